package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/config"
)

func TestNewDBSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := NewDB(ctx, config.WarehouseConfig{
		Driver: config.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "covid.db"),
	})
	require.NoError(t, err)
	defer db.Close()

	require.False(t, IsPostgres(db))

	var mode string
	require.NoError(t, db.NewRaw("PRAGMA journal_mode").Scan(ctx, &mode))
	require.Equal(t, "wal", mode)
}

func TestNewDBRejectsUnknownDriver(t *testing.T) {
	_, err := NewDB(context.Background(), config.WarehouseConfig{Driver: "oracle", DSN: "x"})
	require.ErrorContains(t, err, "unsupported driver")
}

func TestNewDBBadPostgresDSN(t *testing.T) {
	_, err := NewDB(context.Background(), config.WarehouseConfig{Driver: config.DriverPostgres, DSN: "postgres://%zz"})
	require.Error(t, err)
}
