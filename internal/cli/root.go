package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/metrics"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

// Version is set at build time.
var Version = "dev"

func Run() ExitCode {
	rootCmd := newRootCmd()
	metrics.BuildInfo.WithLabelValues(Version).Set(1)

	err := rootCmd.Execute()

	verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
	if metricsFile, _ := rootCmd.PersistentFlags().GetString("metrics-textfile"); metricsFile != "" {
		if werr := metrics.WriteTextfile(metricsFile); werr != nil {
			newLogger(verbose).Error("failed to write metrics", "path", metricsFile, "error", werr)
		}
	}
	if err != nil {
		newLogger(verbose).Error("command failed", "error", err)
		return exitCodeError
	}
	return exitCodeSuccess
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "covid-pipeline",
		Short:         "Extract, process, validate and load daily COVID-19 statistics.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "set debug logging level")
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("metrics-textfile", "", "write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(
		NewRunCmd().Command(),
		NewStepCmd().Command(),
		NewMigrateCmd().Command(),
		NewPurgeCmd().Command(),
		NewLatestCmd().Command(),
		NewRunsCmd().Command(),
	)
	return rootCmd
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
