// Package pipeline drives the extract, process, validate and store steps of
// one run, handing each step's output to the next through an Exchange.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/config"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/metrics"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/sources/diseasesh"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/stageerr"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/validation"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/warehouse"
)

// Step ids, in execution order.
const (
	StepExtract  = "extract_data"
	StepProcess  = "process_data"
	StepValidate = "validate_data"
	StepStore    = "store_data"
)

// Exchange keys.
const (
	KeyRawData       = "raw_data"
	KeyProcessedData = "processed_data"
)

// Steps lists the step ids in order.
var Steps = []string{StepExtract, StepProcess, StepValidate, StepStore}

type (
	Extractor interface {
		ExtractAndTransform(ctx context.Context, kind diseasesh.Kind) (models.Table[models.NormalizedRecord], error)
	}
	Processor interface {
		Process(in models.Table[models.NormalizedRecord]) (models.Table[models.AggregatedRecord], error)
	}
	Validator interface {
		Validate(t models.Table[models.AggregatedRecord]) (validation.QualityReport, error)
	}
	Loader interface {
		Save(ctx context.Context, t models.Table[models.AggregatedRecord]) (warehouse.SaveResult, error)
	}
)

// Deps are the collaborators of a Driver. Exchange defaults to an in-memory
// exchange and Runs to no bookkeeping.
type Deps struct {
	Extractor Extractor
	Processor Processor
	Validator Validator
	Loader    Loader
	Exchange  Exchange
	Runs      RunStore
	Notifiers []Notifier
	Clock     clockwork.Clock
	Log       *slog.Logger
}

// Result summarizes a successful run.
type Result struct {
	RunID         string
	ExecutionDate time.Time
	RowsExtracted int
	RowsProcessed int
	RowsLoaded    int
}

// Driver runs the pipeline steps sequentially.
type Driver struct {
	cfg  config.PipelineConfig
	deps Deps
	log  *slog.Logger
}

// NewDriver creates a driver.
func NewDriver(cfg config.PipelineConfig, deps Deps) *Driver {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Exchange == nil {
		deps.Exchange = NewMemoryExchange()
	}
	if deps.Runs == nil {
		deps.Runs = nopRunStore{}
	}
	return &Driver{cfg: cfg, deps: deps, log: deps.Log}
}

// Run executes all four steps for kind under a fresh run id. The first step
// that fails for good stops the run, fires the notifiers and is returned.
func (d *Driver) Run(ctx context.Context, kind diseasesh.Kind) (Result, error) {
	run, err := d.startRun(ctx, uuid.NewString())
	if err != nil {
		return Result{}, err
	}
	res := Result{RunID: run.RunID, ExecutionDate: run.ExecutionDate}
	log := d.log.With("run_id", run.RunID, "dag_id", run.DAGID)
	log.Info("pipeline run started", "kind", kind)

	for _, step := range Steps {
		n, err := d.execute(ctx, run, step, kind)
		if err != nil {
			return res, err
		}
		switch step {
		case StepExtract:
			res.RowsExtracted = n
		case StepProcess:
			res.RowsProcessed = n
		case StepStore:
			res.RowsLoaded = n
		}
	}

	log.Info("pipeline run succeeded",
		"rows_extracted", res.RowsExtracted,
		"rows_processed", res.RowsProcessed,
		"rows_loaded", res.RowsLoaded)
	return res, nil
}

// RunStep executes a single step of an existing run, reading its input from
// the exchange. The extract step starts the run when it is not known yet.
func (d *Driver) RunStep(ctx context.Context, runID, step string, kind diseasesh.Kind) (int, error) {
	if !isStep(step) {
		return 0, stageerr.Newf(stageerr.KindConfig, "run step", "unknown step %q", step)
	}
	if runID == "" {
		return 0, stageerr.Newf(stageerr.KindConfig, "run step", "run id is required")
	}

	run, err := d.deps.Runs.Get(ctx, runID)
	switch {
	case errors.Is(err, ErrRunNotFound) && step == StepExtract:
		run, err = d.startRun(ctx, runID)
		if err != nil {
			return 0, err
		}
	case errors.Is(err, ErrRunNotFound):
		run = &models.PipelineRun{RunID: runID, DAGID: d.cfg.DAGID, ExecutionDate: d.deps.Clock.Now().UTC()}
	case err != nil:
		return 0, stageerr.Persistence("run step", err)
	}

	return d.execute(ctx, run, step, kind)
}

func (d *Driver) startRun(ctx context.Context, runID string) (*models.PipelineRun, error) {
	now := d.deps.Clock.Now().UTC()
	run := &models.PipelineRun{
		RunID:         runID,
		DAGID:         d.cfg.DAGID,
		ExecutionDate: now,
		StartTime:     now,
	}
	if err := d.deps.Runs.Start(ctx, run); err != nil {
		return nil, stageerr.Persistence("start run", err)
	}
	return run, nil
}

// execute runs one step with its retry policy and books the outcome.
func (d *Driver) execute(ctx context.Context, run *models.PipelineRun, step string, kind diseasesh.Kind) (int, error) {
	n, err := d.retry(ctx, run.RunID, step, d.cfg.Policy(step), d.stepFunc(run.RunID, step, kind))
	if err != nil {
		d.fail(ctx, run, step, err)
		return n, fmt.Errorf("%s: %w", step, err)
	}

	switch step {
	case StepExtract:
		d.book(ctx, run.RunID, "update run counts", d.deps.Runs.Counts(ctx, run.RunID, n, -1))
	case StepStore:
		d.book(ctx, run.RunID, "update run counts", d.deps.Runs.Counts(ctx, run.RunID, -1, n))
		d.book(ctx, run.RunID, "finish run", d.deps.Runs.Finish(ctx, run.RunID, d.deps.Clock.Now(), "", nil))
		metrics.RunsTotal.WithLabelValues(string(models.RunSucceeded)).Inc()
	}
	return n, nil
}

func (d *Driver) stepFunc(runID, step string, kind diseasesh.Kind) stepFunc {
	switch step {
	case StepExtract:
		return func(ctx context.Context) (int, error) { return d.extract(ctx, runID, kind) }
	case StepProcess:
		return func(ctx context.Context) (int, error) { return d.process(ctx, runID) }
	case StepValidate:
		return func(ctx context.Context) (int, error) { return d.validate(ctx, runID) }
	default:
		return func(ctx context.Context) (int, error) { return d.store(ctx, runID) }
	}
}

func (d *Driver) extract(ctx context.Context, runID string, kind diseasesh.Kind) (int, error) {
	table, err := d.deps.Extractor.ExtractAndTransform(ctx, kind)
	if err != nil {
		return 0, err
	}
	if err := push(ctx, d.deps.Exchange, runID, KeyRawData, table); err != nil {
		return 0, err
	}
	return table.Len(), nil
}

func (d *Driver) process(ctx context.Context, runID string) (int, error) {
	var raw models.Table[models.NormalizedRecord]
	if err := pull(ctx, d.deps.Exchange, runID, KeyRawData, &raw); err != nil {
		return 0, err
	}
	processed, err := d.deps.Processor.Process(raw)
	if err != nil {
		return 0, err
	}
	if err := push(ctx, d.deps.Exchange, runID, KeyProcessedData, processed); err != nil {
		return 0, err
	}
	return processed.Len(), nil
}

func (d *Driver) validate(ctx context.Context, runID string) (int, error) {
	var processed models.Table[models.AggregatedRecord]
	if err := pull(ctx, d.deps.Exchange, runID, KeyProcessedData, &processed); err != nil {
		return 0, err
	}
	if processed.Len() < d.cfg.MinRows {
		return 0, stageerr.Quality("validate", nil,
			fmt.Errorf("got %d rows, want at least %d", processed.Len(), d.cfg.MinRows))
	}
	if _, err := d.deps.Validator.Validate(processed); err != nil {
		return 0, err
	}
	return processed.Len(), nil
}

func (d *Driver) store(ctx context.Context, runID string) (int, error) {
	var processed models.Table[models.AggregatedRecord]
	if err := pull(ctx, d.deps.Exchange, runID, KeyProcessedData, &processed); err != nil {
		return 0, err
	}
	res, err := d.deps.Loader.Save(ctx, processed)
	if err != nil {
		return 0, err
	}
	return res.Inserted, nil
}

func (d *Driver) fail(ctx context.Context, run *models.PipelineRun, step string, err error) {
	metrics.RunsTotal.WithLabelValues(string(models.RunFailed)).Inc()
	d.book(ctx, run.RunID, "finish run", d.deps.Runs.Finish(ctx, run.RunID, d.deps.Clock.Now(), step, err))

	f := Failure{
		DAGID:         run.DAGID,
		TaskID:        step,
		RunID:         run.RunID,
		ExecutionDate: run.ExecutionDate,
		Err:           err,
	}
	for _, n := range d.deps.Notifiers {
		if nerr := n.Notify(ctx, f); nerr != nil {
			d.log.Warn("failure notification not delivered", "run_id", run.RunID, "error", nerr)
		}
	}
}

// book logs bookkeeping errors; they never fail a run.
func (d *Driver) book(_ context.Context, runID, what string, err error) {
	if err != nil && !errors.Is(err, ErrRunNotFound) {
		d.log.Warn(what+" failed", "run_id", runID, "error", err)
	}
}

func isStep(step string) bool {
	for _, s := range Steps {
		if s == step {
			return true
		}
	}
	return false
}
