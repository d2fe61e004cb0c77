package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
)

// ErrRunNotFound is returned when no run matches the id.
var ErrRunNotFound = errors.New("pipeline run not found")

// StartRun records a new running pipeline run.
func StartRun(ctx context.Context, db bun.IDB, run *models.PipelineRun) error {
	run.Status = models.RunRunning
	_, err := db.NewInsert().Model(run).Exec(ctx)
	return err
}

// GetRun fetches a run by its run id.
func GetRun(ctx context.Context, db bun.IDB, runID string) (*models.PipelineRun, error) {
	run := new(models.PipelineRun)
	err := db.NewSelect().Model(run).Where("run_id = ?", runID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// UpdateRunCounts stores the row counts seen so far.
func UpdateRunCounts(ctx context.Context, db bun.IDB, runID string, extracted, loaded int) error {
	q := db.NewUpdate().Model((*models.PipelineRun)(nil)).Where("run_id = ?", runID)
	if extracted >= 0 {
		q = q.Set("rows_extracted = ?", extracted)
	}
	if loaded >= 0 {
		q = q.Set("rows_loaded = ?", loaded)
	}
	return checkAffected(q.Exec(ctx))
}

// FinishRun marks a run succeeded, or failed with the failing step and
// error text when runErr is not nil.
func FinishRun(ctx context.Context, db bun.IDB, runID string, end time.Time, step string, runErr error) error {
	q := db.NewUpdate().
		Model((*models.PipelineRun)(nil)).
		Where("run_id = ?", runID).
		Set("end_time = ?", end.UTC())

	if runErr != nil {
		q = q.Set("status = ?", models.RunFailed).
			Set("failed_step = ?", step).
			Set("error_log = ?", runErr.Error())
	} else {
		q = q.Set("status = ?", models.RunSucceeded)
	}
	return checkAffected(q.Exec(ctx))
}

// ListRuns returns the most recent runs first.
func ListRuns(ctx context.Context, db bun.IDB, limit int) ([]models.PipelineRun, error) {
	var runs []models.PipelineRun
	err := db.NewSelect().
		Model(&runs).
		OrderExpr("start_time DESC").
		OrderExpr("id DESC").
		Limit(limit).
		Scan(ctx)
	return runs, err
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}
