// Package warehouse loads aggregated records into the daily statistics
// table, replacing one calendar-day partition per load.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/uptrace/bun"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/database"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/metrics"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/stageerr"
)

// SaveResult summarizes one partition replacement.
type SaveResult struct {
	Day      time.Time
	Deleted  int64
	Inserted int
}

// Warehouse owns the statistics table.
type Warehouse struct {
	db    *bun.DB
	table string
	clock clockwork.Clock
	log   *slog.Logger
	locks *dateLocks
}

// New creates a warehouse writing to table.
func New(db *bun.DB, table string, clock clockwork.Clock, log *slog.Logger) *Warehouse {
	if table == "" {
		table = models.DailyStatsTable
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Warehouse{db: db, table: table, clock: clock, log: log, locks: newDateLocks()}
}

// Table returns the table name.
func (w *Warehouse) Table() string {
	return w.table
}

// EnsureSchema creates the table and its extraction_date index if absent.
func (w *Warehouse) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.NewCreateTable().
		Model((*models.DailyStat)(nil)).
		ModelTableExpr("?", bun.Ident(w.table)).
		IfNotExists().
		Exec(ctx); err != nil {
		return stageerr.Persistence("ensure schema", fmt.Errorf("create table %s: %w", w.table, err))
	}

	if _, err := w.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS ? ON ? (extraction_date)",
		bun.Ident("idx_"+w.table+"_extraction_date"), bun.Ident(w.table)); err != nil {
		return stageerr.Persistence("ensure schema", fmt.Errorf("create index: %w", err))
	}
	return nil
}

// Save replaces the partition of the first row's extraction day with the
// rows of t, in one transaction. Running it again for the same day leaves
// only the rows of the last call. An empty table is rejected and leaves the
// partition untouched.
func (w *Warehouse) Save(ctx context.Context, t models.Table[models.AggregatedRecord]) (SaveResult, error) {
	if t.Len() == 0 {
		return SaveResult{}, stageerr.Quality("save", nil, errors.New("refusing to replace a partition with an empty batch"))
	}

	day := models.Day(t.Rows[0].ExtractionDate)
	res := SaveResult{Day: day}

	now := w.clock.Now().UTC()
	rows := make([]models.DailyStat, len(t.Rows))
	for i, rec := range t.Rows {
		rows[i] = models.NewDailyStat(rec, now)
		if err := rows[i].Validate(); err != nil {
			return res, stageerr.Quality("save", nil, fmt.Errorf("row %d: %w", i, err))
		}
	}

	unlock, waited := w.locks.lock(day)
	defer unlock()
	metrics.WarehouseLockWait.Observe(waited.Seconds())

	err := w.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if database.IsPostgres(tx) {
			if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", w.lockKey(day)); err != nil {
				return fmt.Errorf("acquire partition lock: %w", err)
			}
		}

		deleted, err := tx.NewDelete().
			Model((*models.DailyStat)(nil)).
			ModelTableExpr("?", bun.Ident(w.table)).
			Where("extraction_date >= ?", day).
			Where("extraction_date < ?", day.Add(24*time.Hour)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete partition: %w", err)
		}
		if res.Deleted, err = deleted.RowsAffected(); err != nil {
			return fmt.Errorf("delete partition: %w", err)
		}

		if _, err := tx.NewInsert().
			Model(&rows).
			ModelTableExpr("?", bun.Ident(w.table)).
			Exec(ctx); err != nil {
			return fmt.Errorf("insert rows: %w", err)
		}
		return nil
	})
	if err != nil {
		w.log.Error("saving partition failed", "table", w.table, "day", day.Format(time.DateOnly), "error", err)
		return SaveResult{Day: day}, stageerr.Persistence("save", err)
	}

	res.Inserted = len(rows)
	metrics.WarehouseRowsDeleted.Add(float64(res.Deleted))
	metrics.WarehouseRowsInserted.Add(float64(res.Inserted))
	w.log.Info("saved partition", "table", w.table, "day", day.Format(time.DateOnly),
		"deleted", res.Deleted, "inserted", res.Inserted)
	return res, nil
}

// GetLatest returns, per country, the row with the most recent
// extraction_date, ordered by country.
func (w *Warehouse) GetLatest(ctx context.Context) ([]models.DailyStat, error) {
	var rows []models.DailyStat
	err := w.db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS s", bun.Ident(w.table)).
		Where("s.extraction_date = (SELECT MAX(l.extraction_date) FROM ? AS l WHERE l.country = s.country)", bun.Ident(w.table)).
		OrderExpr("s.country ASC").
		Scan(ctx)
	if err != nil {
		return nil, stageerr.Persistence("get latest", err)
	}
	return rows, nil
}

// Snapshot returns every row at the table's most recent extraction_date.
func (w *Warehouse) Snapshot(ctx context.Context) ([]models.DailyStat, error) {
	var rows []models.DailyStat
	err := w.db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS s", bun.Ident(w.table)).
		Where("s.extraction_date = (SELECT MAX(extraction_date) FROM ?)", bun.Ident(w.table)).
		OrderExpr("s.country ASC").
		Scan(ctx)
	if err != nil {
		return nil, stageerr.Persistence("snapshot", err)
	}
	return rows, nil
}

// Partition returns the rows stored for the calendar day of day.
func (w *Warehouse) Partition(ctx context.Context, day time.Time) ([]models.DailyStat, error) {
	day = models.Day(day)
	var rows []models.DailyStat
	err := w.db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS s", bun.Ident(w.table)).
		Where("s.extraction_date >= ?", day).
		Where("s.extraction_date < ?", day.Add(24*time.Hour)).
		OrderExpr("s.country ASC").
		Scan(ctx)
	if err != nil {
		return nil, stageerr.Persistence("partition", err)
	}
	return rows, nil
}

func (w *Warehouse) lockKey(day time.Time) string {
	return w.table + ":" + day.Format(time.DateOnly)
}
