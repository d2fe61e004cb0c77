package models

import "time"

// Table is a batch of rows handed from one stage to the next, together with
// the columns its producer actually populated.
type Table[R any] struct {
	Columns Columns `json:"columns"`
	Rows    []R     `json:"rows"`
}

// Len returns the number of rows.
func (t Table[R]) Len() int {
	return len(t.Rows)
}

// NormalizedRecord is one source object projected onto the fixed schema.
// Pointer fields are nil when the source value was absent or null.
type NormalizedRecord struct {
	Country        *string   `json:"country"`
	Confirmed      *int64    `json:"confirmed"`
	Deaths         *int64    `json:"deaths"`
	Recovered      *int64    `json:"recovered"`
	Active         *int64    `json:"active"`
	Critical       *int64    `json:"critical"`
	Tests          *int64    `json:"tests,omitempty"`
	Population     *int64    `json:"population,omitempty"`
	Continent      *string   `json:"continent,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	ExtractionDate time.Time `json:"extraction_date"`
	DataSource     string    `json:"data_source"`
}

// CaseRecord is a cleaned row. Rates are filled in by metric calculation.
type CaseRecord struct {
	Country        string    `json:"country"`
	Confirmed      int64     `json:"confirmed"`
	Deaths         int64     `json:"deaths"`
	Recovered      int64     `json:"recovered"`
	Active         int64     `json:"active"`
	Critical       int64     `json:"critical"`
	Tests          *int64    `json:"tests,omitempty"`
	Population     *int64    `json:"population,omitempty"`
	Continent      *string   `json:"continent,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	MortalityRate  Rate      `json:"mortality_rate"`
	RecoveryRate   Rate      `json:"recovery_rate"`
	ActiveRate     Rate      `json:"active_rate"`
	ExtractionDate time.Time `json:"extraction_date"`
	DataSource     string    `json:"data_source,omitempty"`
}

// AggregatedRecord is one country within one extraction run.
type AggregatedRecord struct {
	Country        string    `json:"country"`
	Confirmed      int64     `json:"confirmed"`
	Deaths         int64     `json:"deaths"`
	Recovered      int64     `json:"recovered"`
	Active         int64     `json:"active"`
	Critical       int64     `json:"critical"`
	MortalityRate  Rate      `json:"mortality_rate"`
	RecoveryRate   Rate      `json:"recovery_rate"`
	ActiveRate     Rate      `json:"active_rate"`
	ExtractionDate time.Time `json:"extraction_date"`
}

// Count returns the value of a count column.
func (r AggregatedRecord) Count(c Column) int64 {
	switch c {
	case ColConfirmed:
		return r.Confirmed
	case ColDeaths:
		return r.Deaths
	case ColRecovered:
		return r.Recovered
	case ColActive:
		return r.Active
	case ColCritical:
		return r.Critical
	default:
		return 0
	}
}
