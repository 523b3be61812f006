package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"codegen/pkg/agent"
	"codegen/pkg/config"
	"codegen/pkg/logx"
	"codegen/pkg/metrics"
	"codegen/pkg/persistence"
	"codegen/pkg/pipeline"
	"codegen/pkg/proto"
)

type runOptions struct {
	root           string
	model          string
	coderModel     string
	dbPath         string
	metricsAddr    string
	recursionLimit int
	noCheckpoints  bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [request]",
		Short: "Generate a project from a request",
		Long: `Run plans, decomposes and implements the request.

The request is taken from the argument, from piped stdin, or from an
interactive prompt, in that order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			opts.apply(cfg, cmd)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			stdinTTY := term.IsTerminal(int(syscall.Stdin)) //nolint:unconvert // Stdin is an int only on unix
			request, err := readRequest(args, cmd.InOrStdin(), stdinTTY, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			return withPipeline(cmd.Context(), cfg, func(ctx context.Context, p *pipeline.Pipeline, totals *metrics.InternalRecorder) error {
				state, runErr := p.Run(ctx, request)
				printSummary(cmd.OutOrStdout(), &state, p.Sandbox().Root(), totals.RunTotals(state.RunID))
				return runErr
			})
		},
	}

	opts.bind(cmd)
	return cmd
}

func (o *runOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.root, "root", "", "project root the generated files are written under")
	f.StringVar(&o.model, "model", "", "model for every stage")
	f.StringVar(&o.coderModel, "coder-model", "", "model for the coding stage (overrides --model)")
	f.StringVar(&o.dbPath, "db", "", "checkpoint database path")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.IntVar(&o.recursionLimit, "recursion-limit", 0, "maximum number of graph steps")
	f.BoolVar(&o.noCheckpoints, "no-checkpoints", false, "disable the checkpoint database")
}

// apply overlays explicitly set flags onto cfg.
func (o *runOptions) apply(cfg *config.Config, cmd *cobra.Command) {
	changed := cmd.Flags().Changed
	if changed("root") {
		cfg.ProjectRoot = o.root
	}
	if changed("model") {
		cfg.Models.Planner = o.model
		cfg.Models.Architect = o.model
		cfg.Models.Coder = o.model
	}
	if changed("coder-model") {
		cfg.Models.Coder = o.coderModel
	}
	if changed("db") {
		cfg.Persistence.DBPath = o.dbPath
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}
	if changed("recursion-limit") {
		cfg.RecursionLimit = o.recursionLimit
	}
	if o.noCheckpoints {
		cfg.Persistence.DBPath = ""
	}
}

// readRequest picks the request from args, piped input, or an interactive prompt.
func readRequest(args []string, in io.Reader, interactive bool, prompt io.Writer) (string, error) {
	if len(args) > 0 {
		if req := strings.TrimSpace(args[0]); req != "" {
			return req, nil
		}
		return "", pipeline.ErrEmptyRequest
	}

	if interactive {
		fmt.Fprint(prompt, "What should I build? ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read request: %w", err)
		}
		if req := strings.TrimSpace(line); req != "" {
			return req, nil
		}
		return "", pipeline.ErrEmptyRequest
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read request from stdin: %w", err)
	}
	if req := strings.TrimSpace(string(data)); req != "" {
		return req, nil
	}
	return "", pipeline.ErrEmptyRequest
}

// withPipeline assembles recorders, the metrics endpoint, the checkpoint store and
// the pipeline, then hands them to fn. Everything is torn down when fn returns.
func withPipeline(ctx context.Context, cfg *config.Config, fn func(context.Context, *pipeline.Pipeline, *metrics.InternalRecorder) error) error {
	logger := logx.NewLogger("cli")

	reg := prometheus.NewRegistry()
	totals := metrics.NewInternalRecorder()
	recorder := metrics.Multi(metrics.NewPrometheusRecorder(reg), totals)

	if cfg.Metrics.Addr != "" {
		srv, err := startMetricsServer(cfg.Metrics.Addr, reg)
		if err != nil {
			return err
		}
		logger.Info("Serving metrics on %s", srv.Addr())
		defer func() {
			if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Metrics server shutdown: %v", err)
			}
		}()
	}

	opts := pipeline.Options{
		Config:   cfg,
		Clients:  agent.NewLLMClientFactory(cfg, recorder),
		Recorder: recorder,
	}
	if cfg.Persistence.DBPath != "" {
		store, err := persistence.Open(cfg.Persistence.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close checkpoint database: %v", err)
			}
		}()
		opts.Checkpoints = store
	}

	p, err := pipeline.New(opts)
	if err != nil {
		return err
	}
	return fn(ctx, p, totals)
}

// printSummary writes the outcome of a run. It tolerates a partial state.
func printSummary(w io.Writer, state *proto.PipelineState, root string, totals *metrics.RunTotals) {
	if state.RunID == "" {
		return
	}
	fmt.Fprintf(w, "\nRun %s: %s\n", state.RunID, statusLabel(state))
	if state.Plan != nil {
		fmt.Fprintf(w, "Project: %s", state.Plan.Name)
		if state.Plan.TechStack != "" {
			fmt.Fprintf(w, " (%s)", state.Plan.TechStack)
		}
		fmt.Fprintln(w)
	}
	if state.TaskPlan != nil {
		done := 0
		if state.CoderState != nil {
			done = state.CoderState.CurrentStepIndex
		}
		fmt.Fprintf(w, "Steps: %d/%d completed under %s\n", done, state.TaskPlan.Len(), root)
		for i, task := range state.TaskPlan.ImplementationSteps {
			mark := " "
			if i < done {
				mark = "x"
			}
			fmt.Fprintf(w, "  [%s] %s\n", mark, task.FilePath)
		}
	}
	if totals != nil {
		fmt.Fprintf(w, "LLM: %d requests (%d failed), %d tokens, $%.4f\n",
			totals.RequestCount, totals.FailedRequests, totals.TotalTokens, totals.TotalCost)
	}
}

func statusLabel(state *proto.PipelineState) string {
	if state.IsDone() {
		return "done"
	}
	return "incomplete"
}

