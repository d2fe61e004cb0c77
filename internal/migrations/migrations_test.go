package migrations

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/config"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/database"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
)

func TestRunMigrationsIsRepeatable(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewDB(ctx, config.WarehouseConfig{
		Driver: config.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "covid.db"),
	})
	require.NoError(t, err)
	defer db.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, RunMigrations(ctx, db, log))
	require.NoError(t, RunMigrations(ctx, db, log))

	n, err := db.NewSelect().Model((*models.PipelineRun)(nil)).Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = db.NewSelect().Model((*models.StageExchange)(nil)).Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestMigrationsAreNamedByFile(t *testing.T) {
	sorted := Migrations.Sorted()
	require.Len(t, sorted, 2)
	require.Equal(t, "20240301000000", sorted[0].Name)
	require.Equal(t, "bookkeeping_tables", sorted[0].Comment)
	require.Equal(t, "20240301000001", sorted[1].Name)
	require.Equal(t, "run_indexes", sorted[1].Comment)
}
