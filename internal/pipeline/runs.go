package pipeline

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/repositories"
)

// ErrRunNotFound is returned by RunStore.Get for unknown run ids.
var ErrRunNotFound = repositories.ErrRunNotFound

// RunStore books pipeline runs. Negative counts leave the stored value
// unchanged.
type RunStore interface {
	Start(ctx context.Context, run *models.PipelineRun) error
	Get(ctx context.Context, runID string) (*models.PipelineRun, error)
	Counts(ctx context.Context, runID string, extracted, loaded int) error
	Finish(ctx context.Context, runID string, end time.Time, step string, runErr error) error
}

// DBRunStore keeps runs in the pipeline_runs table.
type DBRunStore struct {
	DB bun.IDB
}

func (s DBRunStore) Start(ctx context.Context, run *models.PipelineRun) error {
	return repositories.StartRun(ctx, s.DB, run)
}

func (s DBRunStore) Get(ctx context.Context, runID string) (*models.PipelineRun, error) {
	return repositories.GetRun(ctx, s.DB, runID)
}

func (s DBRunStore) Counts(ctx context.Context, runID string, extracted, loaded int) error {
	if extracted < 0 && loaded < 0 {
		return nil
	}
	return repositories.UpdateRunCounts(ctx, s.DB, runID, extracted, loaded)
}

func (s DBRunStore) Finish(ctx context.Context, runID string, end time.Time, step string, runErr error) error {
	return repositories.FinishRun(ctx, s.DB, runID, end, step, runErr)
}

type nopRunStore struct{}

func (nopRunStore) Start(context.Context, *models.PipelineRun) error { return nil }
func (nopRunStore) Get(context.Context, string) (*models.PipelineRun, error) {
	return nil, ErrRunNotFound
}
func (nopRunStore) Counts(context.Context, string, int, int) error { return nil }
func (nopRunStore) Finish(context.Context, string, time.Time, string, error) error {
	return nil
}
