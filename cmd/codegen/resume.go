package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"codegen/pkg/metrics"
	"codegen/pkg/pipeline"
)

func newResumeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Continue a failed or interrupted run from its last checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if cfg.Persistence.DBPath == "" {
				return fmt.Errorf("resume needs persistence.db_path")
			}

			return withPipeline(cmd.Context(), cfg, func(ctx context.Context, p *pipeline.Pipeline, totals *metrics.InternalRecorder) error {
				state, runErr := p.Resume(ctx, args[0])
				printSummary(cmd.OutOrStdout(), &state, p.Sandbox().Root(), totals.RunTotals(state.RunID))
				return runErr
			})
		},
	}
}
