package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "covid_pipeline_build_info", Help: "Build information of the covid pipeline.",
	}, []string{"version"})

	StepAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "covid_pipeline_step_attempts_total", Help: "Step attempts by outcome.",
	}, []string{"step", "outcome"})
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "covid_pipeline_step_duration_seconds",
		Help:    "Duration of a single step attempt.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"step"})
	StepRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "covid_pipeline_step_rows", Help: "Rows produced by the last successful attempt of a step.",
	}, []string{"step"})
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "covid_pipeline_runs_total", Help: "Pipeline runs by final status.",
	}, []string{"status"})

	ValidationWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "covid_pipeline_validation_warnings_total", Help: "Non-fatal data quality findings by check.",
	}, []string{"check"})

	WarehouseRowsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "covid_pipeline_warehouse_rows_deleted_total", Help: "Rows removed while replacing date partitions.",
	})
	WarehouseRowsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "covid_pipeline_warehouse_rows_inserted_total", Help: "Rows inserted into the warehouse.",
	})
	WarehouseLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "covid_pipeline_warehouse_lock_wait_seconds",
		Help:    "Time spent waiting for the per-date partition lock.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)

// WriteTextfile writes the default registry in the node_exporter textfile
// format. Batch runs call it once before exiting.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
