package models

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// DailyStatsTable is the default warehouse table.
const DailyStatsTable = "covid_daily_stats"

// DailyStat is one persisted country row of one extraction day.
type DailyStat struct {
	bun.BaseModel `bun:"table:covid_daily_stats,alias:s"`

	ID             int64           `bun:"id,pk,autoincrement" json:"id"`
	Country        string          `bun:"country,type:varchar(100),notnull" json:"country"`
	Confirmed      int64           `bun:"confirmed,notnull" json:"confirmed"`
	Deaths         int64           `bun:"deaths,notnull" json:"deaths"`
	Recovered      int64           `bun:"recovered,notnull" json:"recovered"`
	Active         int64           `bun:"active,notnull" json:"active"`
	Critical       int64           `bun:"critical,notnull" json:"critical"`
	MortalityRate  NullableFloat64 `bun:"mortality_rate,type:double precision" json:"mortality_rate"`
	RecoveryRate   NullableFloat64 `bun:"recovery_rate,type:double precision" json:"recovery_rate"`
	ActiveRate     NullableFloat64 `bun:"active_rate,type:double precision" json:"active_rate"`
	ExtractionDate time.Time       `bun:"extraction_date,notnull" json:"extraction_date"`
	LastUpdated    time.Time       `bun:"last_updated,notnull,default:current_timestamp" json:"last_updated"`
}

// NewDailyStat builds the warehouse row for an aggregated record.
func NewDailyStat(rec AggregatedRecord, lastUpdated time.Time) DailyStat {
	return DailyStat{
		Country:        rec.Country,
		Confirmed:      rec.Confirmed,
		Deaths:         rec.Deaths,
		Recovered:      rec.Recovered,
		Active:         rec.Active,
		Critical:       rec.Critical,
		MortalityRate:  rec.MortalityRate.Nullable(),
		RecoveryRate:   rec.RecoveryRate.Nullable(),
		ActiveRate:     rec.ActiveRate.Nullable(),
		ExtractionDate: rec.ExtractionDate.UTC(),
		LastUpdated:    lastUpdated.UTC(),
	}
}

// Validate checks that the row can be stored.
func (s *DailyStat) Validate() error {
	if s.Country == "" {
		return errors.New("country is required")
	}
	if s.ExtractionDate.IsZero() {
		return errors.New("extraction date is required")
	}
	return nil
}

// Record converts the row back to its aggregated form.
func (s *DailyStat) Record() AggregatedRecord {
	return AggregatedRecord{
		Country:        s.Country,
		Confirmed:      s.Confirmed,
		Deaths:         s.Deaths,
		Recovered:      s.Recovered,
		Active:         s.Active,
		Critical:       s.Critical,
		MortalityRate:  s.MortalityRate.Rate(),
		RecoveryRate:   s.RecoveryRate.Rate(),
		ActiveRate:     s.ActiveRate.Rate(),
		ExtractionDate: s.ExtractionDate,
	}
}

// Day returns the UTC calendar day of t, the unit of partition replacement.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
