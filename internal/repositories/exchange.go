package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
)

// ErrExchangeNotFound is returned when a step reads a key nobody pushed.
var ErrExchangeNotFound = errors.New("exchange payload not found")

// PutExchange stores payload under (runID, key), replacing an earlier push.
func PutExchange(ctx context.Context, db bun.IDB, runID, key string, payload []byte, now time.Time) error {
	row := &models.StageExchange{
		RunID:       runID,
		ExchangeKey: key,
		Payload:     string(payload),
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	_, err := db.NewInsert().
		Model(row).
		On("CONFLICT (run_id, exchange_key) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// GetExchange returns the payload stored under (runID, key).
func GetExchange(ctx context.Context, db bun.IDB, runID, key string) ([]byte, error) {
	row := new(models.StageExchange)
	err := db.NewSelect().
		Model(row).
		Where("run_id = ?", runID).
		Where("exchange_key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExchangeNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(row.Payload), nil
}

// DeleteExchanges removes every payload of a run.
func DeleteExchanges(ctx context.Context, db bun.IDB, runID string) error {
	_, err := db.NewDelete().
		Model((*models.StageExchange)(nil)).
		Where("run_id = ?", runID).
		Exec(ctx)
	return err
}
