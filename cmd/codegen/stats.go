package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"codegen/pkg/config"
	"codegen/pkg/metrics"
	"codegen/pkg/persistence"
)

func newStatsCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "stats [run-id]",
		Short: "Show recorded runs, or the checkpoints and LLM usage of one run",
		Long: `Without an argument, stats lists the most recent runs from the checkpoint
database. With a run ID it prints the run's checkpoints and, when
metrics.prometheus_url is configured, its token and cost totals per stage.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if cfg.Persistence.DBPath == "" {
				return fmt.Errorf("stats needs persistence.db_path")
			}
			store, err := persistence.Open(cfg.Persistence.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				return listRuns(cmd.Context(), out, store, limit)
			}
			if err := showRun(cmd.Context(), out, store, args[0]); err != nil {
				return err
			}
			if cfg.Metrics.PrometheusURL == "" {
				return nil
			}
			return showUsage(cmd.Context(), out, cfg.Metrics.PrometheusURL, args[0])
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}

func listRuns(ctx context.Context, w io.Writer, store *persistence.Store, limit int) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATUS\tSTEPS\tSTARTED\tREQUEST")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			r.RunID, r.Status, r.Steps, r.StartedAt.Local().Format(time.DateTime), truncate(r.UserPrompt, 50))
	}
	return tw.Flush()
}

func showRun(ctx context.Context, w io.Writer, store *persistence.Store, runID string) error {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Run:     %s\n", run.RunID)
	fmt.Fprintf(w, "Status:  %s\n", run.Status)
	fmt.Fprintf(w, "Request: %s\n", run.UserPrompt)
	if run.Error != "" {
		fmt.Fprintf(w, "Error:   %s\n", run.Error)
	}

	history, err := store.History(ctx, runID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tNODE\tSTATUS\tAT")
	for _, cp := range history {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", cp.Step, cp.Node, cp.State.Status, cp.CreatedAt.Local().Format(time.TimeOnly))
	}
	return tw.Flush()
}

func showUsage(ctx context.Context, w io.Writer, prometheusURL, runID string) error {
	qs, err := metrics.NewQueryService(prometheusURL)
	if err != nil {
		return err
	}
	stages, err := qs.GetRunMetricsByStage(ctx, runID)
	if err != nil {
		return fmt.Errorf("query %s: %w", prometheusURL, err)
	}
	if len(stages) == 0 {
		fmt.Fprintf(w, "\nNo LLM usage for this run in %s.\n", prometheusURL)
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tREQUESTS\tPROMPT\tCOMPLETION\tCOST")
	var total float64
	for _, m := range stages {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t$%.4f\n", m.Stage, m.Requests, m.PromptTokens, m.CompletionTokens, m.TotalCost)
		total += m.TotalCost
	}
	fmt.Fprintf(tw, "total\t\t\t\t$%.4f\n", total)
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
