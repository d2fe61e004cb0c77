// Package processing cleans normalized records, derives rate metrics and
// aggregates them to one row per country.
package processing

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/stageerr"
)

// cleanColumns must be present for Clean to run.
var cleanColumns = models.Columns{models.ColCountry}.With(models.CountColumns...)

// Clean zero-fills missing counts and trims country names. The input is not
// modified.
func Clean(in models.Table[models.NormalizedRecord]) (models.Table[models.CaseRecord], error) {
	if missing := in.Columns.Missing(cleanColumns); len(missing) > 0 {
		return models.Table[models.CaseRecord]{}, stageerr.MissingColumns("clean", missing.Strings())
	}

	rows := make([]models.CaseRecord, len(in.Rows))
	for i, r := range in.Rows {
		rows[i] = models.CaseRecord{
			Country:        strings.TrimSpace(deref(r.Country)),
			Confirmed:      deref(r.Confirmed),
			Deaths:         deref(r.Deaths),
			Recovered:      deref(r.Recovered),
			Active:         deref(r.Active),
			Critical:       deref(r.Critical),
			Tests:          r.Tests,
			Population:     r.Population,
			Continent:      r.Continent,
			Latitude:       r.Latitude,
			Longitude:      r.Longitude,
			MortalityRate:  models.UndefinedRate(),
			RecoveryRate:   models.UndefinedRate(),
			ActiveRate:     models.UndefinedRate(),
			ExtractionDate: r.ExtractionDate,
			DataSource:     r.DataSource,
		}
	}

	cols := make(models.Columns, len(in.Columns))
	copy(cols, in.Columns)
	return models.Table[models.CaseRecord]{Columns: cols, Rows: rows}, nil
}

// CalculateMetrics derives the three rates per row. A zero confirmed count
// leaves the rates undefined.
func CalculateMetrics(in models.Table[models.CaseRecord]) models.Table[models.CaseRecord] {
	rows := make([]models.CaseRecord, len(in.Rows))
	for i, r := range in.Rows {
		r.MortalityRate = percentage(r.Deaths, r.Confirmed)
		r.RecoveryRate = percentage(r.Recovered, r.Confirmed)
		r.ActiveRate = percentage(r.Active, r.Confirmed)
		rows[i] = r
	}
	return models.Table[models.CaseRecord]{Columns: in.Columns.With(models.RateColumns...), Rows: rows}
}

// Aggregate groups rows by country, summing counts and averaging the
// per-row rates. Every output row carries the first input row's
// extraction date. Rows without a country are dropped.
func Aggregate(in models.Table[models.CaseRecord]) models.Table[models.AggregatedRecord] {
	out := models.Table[models.AggregatedRecord]{Columns: append(models.Columns(nil), models.AggregatedColumns...)}
	if len(in.Rows) == 0 {
		return out
	}
	extractionDate := in.Rows[0].ExtractionDate

	type group struct {
		rec                      models.AggregatedRecord
		mortality, recovery, act mean
	}
	groups := make(map[string]*group)

	for _, r := range in.Rows {
		if r.Country == "" {
			continue
		}
		g, ok := groups[r.Country]
		if !ok {
			g = &group{rec: models.AggregatedRecord{Country: r.Country, ExtractionDate: extractionDate}}
			groups[r.Country] = g
		}
		g.rec.Confirmed += r.Confirmed
		g.rec.Deaths += r.Deaths
		g.rec.Recovered += r.Recovered
		g.rec.Active += r.Active
		g.rec.Critical += r.Critical
		g.mortality.add(r.MortalityRate)
		g.recovery.add(r.RecoveryRate)
		g.act.add(r.ActiveRate)
	}

	out.Rows = make([]models.AggregatedRecord, 0, len(groups))
	for _, g := range groups {
		g.rec.MortalityRate = g.mortality.value()
		g.rec.RecoveryRate = g.recovery.value()
		g.rec.ActiveRate = g.act.value()
		out.Rows = append(out.Rows, g.rec)
	}
	sort.Slice(out.Rows, func(i, j int) bool { return out.Rows[i].Country < out.Rows[j].Country })
	return out
}

// Processor runs the processing steps in their fixed order.
type Processor struct {
	log *slog.Logger
}

// NewProcessor creates a processor.
func NewProcessor(log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{log: log}
}

// Process applies Clean, CalculateMetrics and Aggregate.
func (p *Processor) Process(in models.Table[models.NormalizedRecord]) (models.Table[models.AggregatedRecord], error) {
	p.log.Info("cleaning data", "rows", in.Len())
	cleaned, err := Clean(in)
	if err != nil {
		p.log.Error("cleaning data failed", "error", err)
		return models.Table[models.AggregatedRecord]{}, err
	}

	p.log.Info("calculating metrics")
	withMetrics := CalculateMetrics(cleaned)

	aggregated := Aggregate(withMetrics)
	p.log.Info("aggregated data", "input_rows", withMetrics.Len(), "countries", aggregated.Len())
	return aggregated, nil
}

// percentage returns part/whole*100 rounded half-to-even to two decimals.
func percentage(part, whole int64) models.Rate {
	if whole == 0 {
		return models.UndefinedRate()
	}
	v := float64(part) / float64(whole) * 100
	return models.Rate(math.RoundToEven(v*100) / 100)
}

// mean averages defined rates; it is undefined when none were defined.
type mean struct {
	sum float64
	n   int
}

func (m *mean) add(r models.Rate) {
	if r.Defined() {
		m.sum += float64(r)
		m.n++
	}
}

func (m mean) value() models.Rate {
	if m.n == 0 {
		return models.UndefinedRate()
	}
	return models.Rate(m.sum / float64(m.n))
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
