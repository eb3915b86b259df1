package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/mcpforge/internal/analytics"
	"github.com/lucasnoah/mcpforge/internal/db"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		database, err := openDB(s)
		if err != nil {
			return err
		}
		defer database.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := database.ListRuns(limit)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			data, _ := json.MarshalIndent(runs, "", "  ")
			fmt.Fprintln(w, string(data))
			return nil
		}
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}

		fmt.Fprintf(w, "%-36s %-8s %-10s %-16s %-14s %s\n", "ID", "SIDE", "STATUS", "VERSION", "STARTED", "CONFIG")
		fmt.Fprintf(w, "%-36s %-8s %-10s %-16s %-14s %s\n",
			strings.Repeat("-", 36),
			strings.Repeat("-", 8),
			strings.Repeat("-", 10),
			strings.Repeat("-", 16),
			strings.Repeat("-", 14),
			strings.Repeat("-", 6))
		for _, r := range runs {
			fmt.Fprintf(w, "%-36s %-8s %-10s %-16s %-14s %s\n",
				r.ID, r.Side, r.Status, r.MCVersion, ago(r.StartedAt), r.Config)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the step events of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		database, err := openDB(s)
		if err != nil {
			return err
		}
		defer database.Close()

		run, err := database.GetRun(args[0])
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("no run %q", args[0])
		}
		events, err := database.StepEvents(run.ID)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Run %s: %s %s (%s)\n", run.ID, run.Side, run.Status, run.MCVersion)
		fmt.Fprintf(w, "Config:  %s\n", run.Config)
		fmt.Fprintf(w, "Started: %s\n", run.StartedAt)
		if run.Output != "" {
			fmt.Fprintf(w, "Output:  %s\n", run.Output)
		}
		if run.Error != "" {
			fmt.Fprintf(w, "Error:   %s\n", run.Error)
		}
		fmt.Fprintln(w)
		for _, e := range events {
			line := fmt.Sprintf("  %-20s %-16s %-9s", e.Step, e.Type, e.Event)
			if e.Event != "started" {
				line += " " + (time.Duration(e.DurationMs) * time.Millisecond).String()
			}
			if e.Detail != "" {
				line += "  " + e.Detail
			}
			fmt.Fprintln(w, line)
		}
		return nil
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Step durations, failure rates and run outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		database, err := openDB(s)
		if err != nil {
			return err
		}
		defer database.Close()

		since, _ := cmd.Flags().GetString("since")
		if since != "" {
			d, err := time.ParseDuration(since)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			since = time.Now().Add(-d).UTC().Format(db.TimeLayout)
		}

		summary, err := analytics.QueryRunSummary(database, since)
		if err != nil {
			return err
		}
		durations, err := analytics.QueryStepDurations(database, since)
		if err != nil {
			return err
		}
		failures, err := analytics.QueryStepFailureRates(database, since)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Runs: %d total, %d succeeded, %d failed, %d running (%.1f%% success)\n\n",
			summary.Total, summary.Succeeded, summary.Failed, summary.Running, summary.SuccessRate)

		fmt.Fprintf(w, "%-20s %6s %8s %8s %8s %8s\n", "STEP TYPE", "COUNT", "AVG", "P50", "P95", "MAX")
		for _, d := range durations {
			fmt.Fprintf(w, "%-20s %6d %7.1fs %7.1fs %7.1fs %7.1fs\n", d.Type, d.Count, d.Avg, d.P50, d.P95, d.Max)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%-20s %6s %6s %7s\n", "STEP TYPE", "TOTAL", "FAILED", "FAIL%")
		for _, f := range failures {
			fmt.Fprintf(w, "%-20s %6d %6d %6.1f%%\n", f.Type, f.Total, f.Failed, f.FailRate)
		}
		return nil
	},
}

// ago renders a stored timestamp relative to now.
func ago(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to list (0 for all)")
	historyCmd.Flags().String("format", "text", "Output format: text or json")
	historyStatsCmd.Flags().String("since", "", "only consider the last duration, e.g. 168h")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)
}
