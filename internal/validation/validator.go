// Package validation checks aggregated tables before they are loaded.
// Validation never modifies the table.
package validation

import (
	"fmt"
	"log/slog"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/metrics"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/stageerr"
)

// QualityReport lists the non-fatal findings of a quality check.
type QualityReport struct {
	Rows int
	// NullCounts holds the number of null values per required column, only
	// for columns that have any.
	NullCounts map[models.Column]int
	// InconsistentTotals counts rows where confirmed < deaths + recovered.
	InconsistentTotals int
}

// HasWarnings reports whether anything worth logging was found.
func (r QualityReport) HasWarnings() bool {
	return len(r.NullCounts) > 0 || r.InconsistentTotals > 0
}

// Validator runs the schema and quality checks.
type Validator struct {
	log *slog.Logger
}

// NewValidator creates a validator.
func NewValidator(log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{log: log}
}

// ValidateSchema fails if any required column is absent. Extra columns are
// accepted.
func (v *Validator) ValidateSchema(t models.Table[models.AggregatedRecord]) error {
	v.log.Info("validating data schema")
	if missing := t.Columns.Missing(models.RequiredColumns); len(missing) > 0 {
		err := stageerr.MissingColumns("validate schema", missing.Strings())
		v.log.Error("schema validation failed", "error", err)
		return err
	}
	return nil
}

// ValidateQuality fails only on negative counts. Nulls in required columns
// and inconsistent totals are logged and counted in the report.
func (v *Validator) ValidateQuality(t models.Table[models.AggregatedRecord]) (QualityReport, error) {
	v.log.Info("validating data quality", "rows", t.Len())
	report := QualityReport{Rows: t.Len(), NullCounts: map[models.Column]int{}}

	for _, r := range t.Rows {
		if r.Country == "" {
			report.NullCounts[models.ColCountry]++
		}
		if r.ExtractionDate.IsZero() {
			report.NullCounts[models.ColExtractionDate]++
		}
	}
	if len(report.NullCounts) > 0 {
		for col, n := range report.NullCounts {
			metrics.ValidationWarnings.WithLabelValues("null_" + string(col)).Add(float64(n))
		}
		v.log.Warn("null values found in required columns", "null_counts", report.NullCounts)
	}

	for _, col := range models.CountColumns {
		negative := 0
		for _, r := range t.Rows {
			if r.Count(col) < 0 {
				negative++
			}
		}
		if negative > 0 {
			err := stageerr.Quality("validate quality", []string{string(col)},
				fmt.Errorf("negative values found in %d rows", negative))
			v.log.Error("data quality validation failed", "column", col, "error", err)
			return report, err
		}
	}

	for _, r := range t.Rows {
		if r.Confirmed < r.Deaths+r.Recovered {
			report.InconsistentTotals++
		}
	}
	if report.InconsistentTotals > 0 {
		metrics.ValidationWarnings.WithLabelValues("inconsistent_totals").Add(float64(report.InconsistentTotals))
		v.log.Warn("found rows where confirmed < deaths + recovered", "rows", report.InconsistentTotals)
	}

	return report, nil
}

// Validate runs the schema check, then the quality check, stopping at the
// first failure.
func (v *Validator) Validate(t models.Table[models.AggregatedRecord]) (QualityReport, error) {
	if err := v.ValidateSchema(t); err != nil {
		return QualityReport{Rows: t.Len()}, err
	}
	report, err := v.ValidateQuality(t)
	if err != nil {
		return report, err
	}
	v.log.Info("all validations passed", "rows", report.Rows, "warnings", report.HasWarnings())
	return report, nil
}
