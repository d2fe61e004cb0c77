package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		modelsList := []interface{}{
			(*models.PipelineRun)(nil),
			(*models.StageExchange)(nil),
		}

		for _, model := range modelsList {
			if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		modelsList := []interface{}{
			(*models.StageExchange)(nil),
			(*models.PipelineRun)(nil),
		}

		for _, model := range modelsList {
			if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
