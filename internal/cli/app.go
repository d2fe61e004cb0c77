package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/config"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/database"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/migrations"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/pipeline"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/processing"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/sources/diseasesh"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/validation"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/warehouse"
)

// app holds what every subcommand needs: config, logger and an open,
// migrated warehouse.
type app struct {
	cfg   config.Config
	log   *slog.Logger
	clock clockwork.Clock
	db    *bun.DB
	wh    *warehouse.Warehouse
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	configPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	log := newLogger(verbose)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.NewDB(ctx, cfg.Warehouse)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}

	if err := migrations.RunMigrations(ctx, db, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	clock := clockwork.NewRealClock()
	wh := warehouse.New(db, cfg.Warehouse.Table, clock, log)
	if err := wh.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debug("warehouse ready", "driver", cfg.Warehouse.Driver, "table", wh.Table())
	return &app{cfg: cfg, log: log, clock: clock, db: db, wh: wh}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("failed to close database", "error", err)
	}
}

// driver wires a pipeline driver. The database exchange is used when
// forced or configured.
func (a *app) driver(forceDBExchange bool) *pipeline.Driver {
	var ex pipeline.Exchange = pipeline.NewMemoryExchange()
	if forceDBExchange || a.cfg.Pipeline.Exchange == config.ExchangeDatabase {
		ex = pipeline.NewDBExchange(a.db, a.clock)
	}

	notifiers := []pipeline.Notifier{pipeline.LogNotifier{Log: a.log}}
	if a.cfg.Notify.SlackWebhookURL != "" {
		notifiers = append(notifiers, pipeline.SlackNotifier{WebhookURL: a.cfg.Notify.SlackWebhookURL})
	}

	return pipeline.NewDriver(a.cfg.Pipeline, pipeline.Deps{
		Extractor: diseasesh.NewExtractor(a.cfg.Source, a.cfg.Audit, a.clock, a.log),
		Processor: processing.NewProcessor(a.log),
		Validator: validation.NewValidator(a.log),
		Loader:    a.wh,
		Exchange:  ex,
		Runs:      pipeline.DBRunStore{DB: a.db},
		Notifiers: notifiers,
		Clock:     a.clock,
		Log:       a.log,
	})
}
