// Package pipeline wires the planning, decomposition and coding stages into the
// state graph and runs a request through it:
//
//	START -> planner -> architect -> coder -(loop)-> coder -(end)-> END
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"

	"codegen/pkg/agent"
	"codegen/pkg/agent/llm"
	"codegen/pkg/agent/toolloop"
	"codegen/pkg/architect"
	"codegen/pkg/coder"
	"codegen/pkg/config"
	"codegen/pkg/gateway"
	"codegen/pkg/graph"
	"codegen/pkg/logx"
	"codegen/pkg/metrics"
	"codegen/pkg/persistence"
	"codegen/pkg/planner"
	"codegen/pkg/proto"
	"codegen/pkg/sandbox"
	"codegen/pkg/templates"
	"codegen/pkg/tools"
)

// ErrEmptyRequest is returned by Run for a blank request.
var ErrEmptyRequest = errors.New("request is empty")

// Route keys of the coder's conditional edge.
const (
	RouteLoop = "loop"
	RouteEnd  = "end"
)

// ClientSource hands out the LLM client of each stage. *agent.LLMClientFactory satisfies it.
type ClientSource interface {
	CreateClient(agentType agent.Type) (llm.LLMClient, error)
}

// Options carries everything a pipeline needs. Only Config and Clients are required.
type Options struct {
	Config  *config.Config
	Clients ClientSource

	// Checkpoints enables per-step persistence and Resume.
	Checkpoints *persistence.Store

	// Recorder receives stage and sandbox metrics.
	Recorder metrics.Recorder

	// Filesystem replaces the OS filesystem under the project root (tests).
	Filesystem billy.Filesystem
}

// Pipeline is a compiled, reusable pipeline. Runs are sequential.
type Pipeline struct {
	cfg         *config.Config
	graph       *graph.Compiled
	sandbox     *sandbox.Store
	checkpoints *persistence.Store
	logger      *logx.Logger
}

// New builds the stages and compiles the graph.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Clients == nil {
		return nil, fmt.Errorf("client source is required")
	}
	cfg := opts.Config
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.Nop()
	}

	sandboxOpts := []sandbox.Option{sandbox.WithRecorder(recorder)}
	if opts.Filesystem != nil {
		sandboxOpts = append(sandboxOpts, sandbox.WithFilesystem(opts.Filesystem))
	}
	store, err := sandbox.New(cfg.ProjectRoot, sandboxOpts...)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, err
	}

	plannerClient, err := opts.Clients.CreateClient(agent.TypePlanner)
	if err != nil {
		return nil, fmt.Errorf("planner client: %w", err)
	}
	architectClient, err := opts.Clients.CreateClient(agent.TypeArchitect)
	if err != nil {
		return nil, fmt.Errorf("architect client: %w", err)
	}
	coderClient, err := opts.Clients.CreateClient(agent.TypeCoder)
	if err != nil {
		return nil, fmt.Errorf("coder client: %w", err)
	}

	gwOpts := []gateway.Option{
		gateway.WithMaxTokens(cfg.Agent.MaxTokens),
		gateway.WithTemperature(cfg.Agent.PlanningTemperature),
	}
	planStage := planner.New(gateway.New(plannerClient, gwOpts...), renderer)
	archStage := architect.New(gateway.New(architectClient, gwOpts...), renderer)

	loop := toolloop.New(coderClient, logx.NewLogger("toolloop"), toolloop.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		MaxTokens:     cfg.Agent.MaxTokens,
		Temperature:   cfg.Agent.Temperature,
		DebugLogging:  logx.IsDebugEnabledForDomain("toolloop"),
	})
	codeStage, err := coder.New(store, loop, tools.NewCoderTools(store), renderer)
	if err != nil {
		return nil, err
	}

	g := graph.New()
	for _, n := range []struct {
		name string
		fn   graph.NodeFunc
	}{
		{planner.Name, planStage.Run},
		{architect.Name, archStage.Run},
		{coder.Name, codeStage.Run},
	} {
		if err := g.AddNode(n.name, n.fn); err != nil {
			return nil, err
		}
	}
	edges := [][2]string{
		{graph.Start, planner.Name},
		{planner.Name, architect.Name},
		{architect.Name, coder.Name},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, err
		}
	}
	if err := g.AddConditionalEdges(coder.Name, Route, map[string]string{
		RouteLoop: coder.Name,
		RouteEnd:  graph.End,
	}); err != nil {
		return nil, err
	}

	compileOpts := []graph.Option{graph.WithRecorder(recorder)}
	if opts.Checkpoints != nil {
		compileOpts = append(compileOpts, graph.WithCheckpointer(opts.Checkpoints))
	}
	compiled, err := g.Compile(compileOpts...)
	if err != nil {
		return nil, fmt.Errorf("compile pipeline graph: %w", err)
	}

	return &Pipeline{
		cfg:         cfg,
		graph:       compiled,
		sandbox:     store,
		checkpoints: opts.Checkpoints,
		logger:      logx.NewLogger("pipeline"),
	}, nil
}

// Route sends the coder back to itself until the run is DONE.
//
//nolint:gocritic // PipelineState passed by value to make snapshots explicit
func Route(state proto.PipelineState) string {
	if state.Status == proto.StatusDone {
		return RouteEnd
	}
	return RouteLoop
}

// Sandbox returns the project file store.
func (p *Pipeline) Sandbox() *sandbox.Store {
	return p.sandbox
}

// Run executes a new request to completion and returns the final state. On error
// the last good state is returned alongside it.
func (p *Pipeline) Run(ctx context.Context, request string) (proto.PipelineState, error) {
	if strings.TrimSpace(request) == "" {
		return proto.PipelineState{}, ErrEmptyRequest
	}
	if err := p.sandbox.EnsureRootExists(); err != nil {
		return proto.PipelineState{}, fmt.Errorf("project root: %w", err)
	}

	runID := uuid.NewString()
	if p.checkpoints != nil {
		if err := p.checkpoints.CreateRun(ctx, runID, request); err != nil {
			return proto.PipelineState{}, err
		}
	}

	p.logger.Info("Run %s started in %s", runID, p.sandbox.Root())
	final, err := p.graph.Run(ctx, proto.NewPipelineState(runID, request), graph.RunConfig{
		RecursionLimit: p.cfg.RecursionLimit,
	})
	p.finish(ctx, runID, err)
	return final, err
}

// Resume continues a checkpointed run after its last completed node. A run that
// failed before its first checkpoint starts over from the planner.
func (p *Pipeline) Resume(ctx context.Context, runID string) (proto.PipelineState, error) {
	if p.checkpoints == nil {
		return proto.PipelineState{}, fmt.Errorf("resume requires a checkpoint database")
	}
	run, err := p.checkpoints.GetRun(ctx, runID)
	if err != nil {
		return proto.PipelineState{}, err
	}
	if err := p.sandbox.EnsureRootExists(); err != nil {
		return proto.PipelineState{}, fmt.Errorf("project root: %w", err)
	}

	cfg := graph.RunConfig{RecursionLimit: p.cfg.RecursionLimit}
	state := proto.NewPipelineState(run.RunID, run.UserPrompt)

	cp, err := p.checkpoints.Latest(ctx, runID)
	switch {
	case errors.Is(err, persistence.ErrNoCheckpoint):
		p.logger.Info("Run %s has no checkpoint, starting over", runID)
	case err != nil:
		return proto.PipelineState{}, err
	default:
		if err := cp.State.Validate(); err != nil {
			return proto.PipelineState{}, fmt.Errorf("checkpoint %d of run %s: %w", cp.Step, runID, err)
		}
		state = cp.State
		cfg.ResumeAfter = cp.Node
		cfg.StepsTaken = cp.Step
		p.logger.Info("Resuming run %s after %s (step %d)", runID, cp.Node, cp.Step)
	}

	if err := p.checkpoints.MarkRunning(ctx, runID); err != nil {
		return state, err
	}
	final, err := p.graph.Run(ctx, state, cfg)
	p.finish(ctx, runID, err)
	return final, err
}

func (p *Pipeline) finish(ctx context.Context, runID string, runErr error) {
	if runErr != nil {
		p.logger.Error("Run %s failed: %v", runID, runErr)
	} else {
		p.logger.Info("Run %s finished", runID)
	}
	if p.checkpoints == nil {
		return
	}
	// The run context may already be canceled; the status update must still land.
	if err := p.checkpoints.FinishRun(context.WithoutCancel(ctx), runID, runErr); err != nil {
		p.logger.Warn("Failed to record run %s status: %v", runID, err)
	}
}

// Run builds a pipeline from opts and runs request through it.
func Run(ctx context.Context, request string, opts Options) (proto.PipelineState, error) {
	p, err := New(opts)
	if err != nil {
		return proto.PipelineState{}, err
	}
	return p.Run(ctx, request)
}
