package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/repositories"
)

type LatestCmd struct{}

func NewLatestCmd() *LatestCmd {
	return &LatestCmd{}
}

func (c *LatestCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the most recent row per country",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := cmd.Flags().GetBool("snapshot")
			if err != nil {
				return fmt.Errorf("failed to get snapshot flag: %w", err)
			}

			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var rows []models.DailyStat
			if snapshot {
				rows, err = a.wh.Snapshot(cmd.Context())
			} else {
				rows, err = a.wh.GetLatest(cmd.Context())
			}
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), rows)
			return nil
		},
	}

	cmd.Flags().Bool("snapshot", false, "only rows of the most recent extraction")
	return cmd
}

type RunsCmd struct{}

func NewRunsCmd() *RunsCmd {
	return &RunsCmd{}
}

func (c *RunsCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Print recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to get limit flag: %w", err)
			}

			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := repositories.ListRuns(cmd.Context(), a.db, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "number of runs to show")
	return cmd
}

func printStats(w io.Writer, rows []models.DailyStat) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{
		"Country", "Confirmed", "Deaths", "Recovered", "Active", "Critical",
		"Mortality\n(%)", "Recovery\n(%)", "Active\n(%)", "Extracted",
	})

	for _, s := range rows {
		table.Append([]string{
			s.Country,
			strconv.FormatInt(s.Confirmed, 10),
			strconv.FormatInt(s.Deaths, 10),
			strconv.FormatInt(s.Recovered, 10),
			strconv.FormatInt(s.Active, 10),
			strconv.FormatInt(s.Critical, 10),
			formatRate(s.MortalityRate),
			formatRate(s.RecoveryRate),
			formatRate(s.ActiveRate),
			s.ExtractionDate.UTC().Format(time.RFC3339),
		})
	}
	table.Render()
}

func printRuns(w io.Writer, runs []models.PipelineRun) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Run", "Execution Date", "Status", "Extracted", "Loaded", "Failed Step", "Duration"})

	for _, r := range runs {
		failed, duration := "", ""
		if r.FailedStep != nil {
			failed = *r.FailedStep
		}
		if r.EndTime != nil {
			duration = r.EndTime.Sub(r.StartTime).Round(time.Millisecond).String()
		}
		table.Append([]string{
			r.RunID,
			r.ExecutionDate.UTC().Format(time.RFC3339),
			string(r.Status),
			strconv.Itoa(r.RowsExtracted),
			strconv.Itoa(r.RowsLoaded),
			failed,
			duration,
		})
	}
	table.Render()
}

func formatRate(n models.NullableFloat64) string {
	if !n.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f", n.Float64)
}
