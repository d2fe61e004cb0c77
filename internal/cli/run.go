package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/repositories"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/sources/diseasesh"
)

type RunCmd struct{}

func NewRunCmd() *RunCmd {
	return &RunCmd{}
}

func (c *RunCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run all pipeline steps in this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := cmd.Flags().GetString("kind")
			if err != nil {
				return fmt.Errorf("failed to get kind flag: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if kind == "" {
				kind = a.cfg.Pipeline.Kind
			}

			res, err := a.driver(false).Run(ctx, diseasesh.Kind(kind))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s loaded %d rows (%d extracted)\n", res.RunID, res.RowsLoaded, res.RowsExtracted)
			return nil
		},
	}

	cmd.Flags().String("kind", "", "source endpoint to extract (countries, global, historical); defaults to pipeline.kind")
	return cmd
}

type StepCmd struct{}

func NewStepCmd() *StepCmd {
	return &StepCmd{}
}

var stepAliases = map[string]string{
	"extract":  "extract_data",
	"process":  "process_data",
	"validate": "validate_data",
	"store":    "store_data",
}

func (c *StepCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "step <extract|process|validate|store>",
		Short:     "Run one step of a run, exchanging data through the database",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"extract", "process", "validate", "store"},
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := cmd.Flags().GetString("run-id")
			if err != nil {
				return fmt.Errorf("failed to get run-id flag: %w", err)
			}
			kind, err := cmd.Flags().GetString("kind")
			if err != nil {
				return fmt.Errorf("failed to get kind flag: %w", err)
			}

			step, ok := stepAliases[args[0]]
			if !ok {
				step = args[0]
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if kind == "" {
				kind = a.cfg.Pipeline.Kind
			}

			n, err := a.driver(true).RunStep(ctx, runID, step, diseasesh.Kind(kind))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s for run %s done (%d rows)\n", step, runID, n)
			return nil
		},
	}

	cmd.Flags().String("run-id", "", "run id shared by all steps of one run")
	cmd.Flags().String("kind", "", "source endpoint for the extract step; defaults to pipeline.kind")
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}

type MigrateCmd struct{}

func NewMigrateCmd() *MigrateCmd {
	return &MigrateCmd{}
}

func (c *MigrateCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run migrations and create the warehouse table",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			a.log.Info("schema is up to date", "table", a.wh.Table())
			return nil
		},
	}
}

type PurgeCmd struct{}

func NewPurgeCmd() *PurgeCmd {
	return &PurgeCmd{}
}

func (c *PurgeCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete the step hand-off payloads kept for a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := cmd.Flags().GetString("run-id")
			if err != nil {
				return fmt.Errorf("failed to get run-id flag: %w", err)
			}

			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := repositories.DeleteExchanges(cmd.Context(), a.db, runID); err != nil {
				return fmt.Errorf("failed to purge run %s: %w", runID, err)
			}
			a.log.Info("purged hand-off payloads", "run_id", runID)
			return nil
		},
	}

	cmd.Flags().String("run-id", "", "run whose payloads to delete")
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}
