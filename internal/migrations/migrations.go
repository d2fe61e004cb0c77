package migrations

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations is filled by the timestamped files of this package; bun takes
// each migration's name from its file name.
var Migrations = migrate.NewMigrations()

// RunMigrations runs all pending migrations. The warehouse table itself is
// created by the warehouse, since its name is configurable.
func RunMigrations(ctx context.Context, db *bun.DB, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	migrator := migrate.NewMigrator(db, Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}

	if group.IsZero() {
		log.Debug("no new migrations to run")
		return nil
	}

	log.Info("migrated", "group", group.String())
	return nil
}
