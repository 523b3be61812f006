// Package graph runs pipeline stages as a directed state graph. Nodes return partial
// updates that are merged into the shared state; edges are static or chosen by a
// router over the merged state.
package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"codegen/pkg/logx"
	"codegen/pkg/metrics"
	"codegen/pkg/proto"
)

const (
	// Start is the virtual entry node.
	Start = "__start__"
	// End is the virtual terminal node.
	End = "__end__"

	// DefaultRecursionLimit caps node executions per run.
	DefaultRecursionLimit = 100
)

// NodeFunc is one stage. It must not mutate the state it receives.
type NodeFunc func(ctx context.Context, state proto.PipelineState) (proto.Update, error)

// Router picks a route key from the state produced by a node.
type Router func(state proto.PipelineState) string

type conditional struct {
	router Router
	routes map[string]string
}

// Checkpointer persists the state after every node execution.
type Checkpointer interface {
	Checkpoint(ctx context.Context, runID string, step int, node string, state proto.PipelineState) error
}

// Graph is the mutable builder. Compile it before running.
type Graph struct {
	nodes       map[string]NodeFunc
	edges       map[string]string
	conditional map[string]conditional
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:       make(map[string]NodeFunc),
		edges:       make(map[string]string),
		conditional: make(map[string]conditional),
	}
}

// AddNode registers a named node.
func (g *Graph) AddNode(name string, fn NodeFunc) error {
	if name == "" || name == Start || name == End {
		return fmt.Errorf("invalid node name %q", name)
	}
	if fn == nil {
		return fmt.Errorf("node %s has no function", name)
	}
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("node %s already exists", name)
	}
	g.nodes[name] = fn
	return nil
}

// AddEdge adds a static edge. A node has at most one outgoing edge of either kind.
func (g *Graph) AddEdge(from, to string) error {
	if err := g.checkFree(from); err != nil {
		return err
	}
	g.edges[from] = to
	return nil
}

// AddConditionalEdges routes from a node by router's key through routes.
func (g *Graph) AddConditionalEdges(from string, router Router, routes map[string]string) error {
	if err := g.checkFree(from); err != nil {
		return err
	}
	if router == nil || len(routes) == 0 {
		return fmt.Errorf("conditional edges from %s need a router and routes", from)
	}
	copied := make(map[string]string, len(routes))
	for k, v := range routes {
		copied[k] = v
	}
	g.conditional[from] = conditional{router: router, routes: copied}
	return nil
}

func (g *Graph) checkFree(from string) error {
	if _, ok := g.edges[from]; ok {
		return fmt.Errorf("node %s already has an outgoing edge", from)
	}
	if _, ok := g.conditional[from]; ok {
		return fmt.Errorf("node %s already has conditional edges", from)
	}
	return nil
}

// Option configures a compiled graph.
type Option func(*Compiled)

// WithCheckpointer saves state after every step.
func WithCheckpointer(cp Checkpointer) Option {
	return func(c *Compiled) { c.checkpointer = cp }
}

// WithRecorder records stage durations.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Compiled) {
		if r != nil {
			c.recorder = r
		}
	}
}

// Compile validates the graph: an entry edge exists, every edge target is a known
// node or End, and every node has an outgoing edge.
func (g *Graph) Compile(opts ...Option) (*Compiled, error) {
	if _, ok := g.edges[Start]; !ok {
		return nil, fmt.Errorf("graph has no entry edge from %s", Start)
	}
	if _, ok := g.conditional[Start]; ok {
		return nil, fmt.Errorf("entry edge from %s must be static", Start)
	}

	known := func(name string) bool {
		_, ok := g.nodes[name]
		return ok || name == End
	}
	for from, to := range g.edges {
		if from != Start && !known(from) {
			return nil, fmt.Errorf("edge from unknown node %s", from)
		}
		if !known(to) {
			return nil, fmt.Errorf("edge %s -> %s targets an unknown node", from, to)
		}
	}
	for from, c := range g.conditional {
		if !known(from) {
			return nil, fmt.Errorf("conditional edges from unknown node %s", from)
		}
		for key, to := range c.routes {
			if !known(to) {
				return nil, fmt.Errorf("route %s -[%s]-> %s targets an unknown node", from, key, to)
			}
		}
	}

	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, static := g.edges[name]
		_, cond := g.conditional[name]
		if !static && !cond {
			return nil, fmt.Errorf("node %s has no outgoing edge", name)
		}
	}

	c := &Compiled{
		nodes:       g.nodes,
		edges:       g.edges,
		conditional: g.conditional,
		recorder:    metrics.Nop(),
		logger:      logx.NewLogger("graph"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Compiled is an immutable, runnable graph.
type Compiled struct {
	nodes        map[string]NodeFunc
	edges        map[string]string
	conditional  map[string]conditional
	checkpointer Checkpointer
	recorder     metrics.Recorder
	logger       *logx.Logger
}

// RunConfig controls one run.
type RunConfig struct {
	// RecursionLimit caps node executions. Zero means DefaultRecursionLimit.
	RecursionLimit int

	// ResumeAfter continues a run after the named node instead of at the entry.
	ResumeAfter string

	// StepsTaken counts node executions already done before a resume.
	StepsTaken int
}

// Next returns the node following from given state, or End.
//
//nolint:gocritic // PipelineState passed by value to make snapshots explicit
func (c *Compiled) Next(from string, state proto.PipelineState) (string, error) {
	if to, ok := c.edges[from]; ok {
		return to, nil
	}
	cond, ok := c.conditional[from]
	if !ok {
		return "", fmt.Errorf("node %s has no outgoing edge", from)
	}
	key := cond.router(state)
	to, ok := cond.routes[key]
	if !ok {
		return "", proto.NewProtocolError(from, fmt.Sprintf("router returned unknown route %q", key))
	}
	return to, nil
}

// Run executes nodes until End. Each node execution is one step; a run that would
// exceed the recursion limit fails with *ResourceExhaustedError. Cancellation is
// checked between steps. The last good state is returned with any error.
//
//nolint:gocritic // PipelineState passed by value to make snapshots explicit
func (c *Compiled) Run(ctx context.Context, initial proto.PipelineState, cfg RunConfig) (proto.PipelineState, error) {
	limit := cfg.RecursionLimit
	if limit <= 0 {
		limit = DefaultRecursionLimit
	}

	from := Start
	if cfg.ResumeAfter != "" {
		if _, ok := c.nodes[cfg.ResumeAfter]; !ok {
			return initial, fmt.Errorf("cannot resume after unknown node %s", cfg.ResumeAfter)
		}
		from = cfg.ResumeAfter
	}

	state := initial
	steps := cfg.StepsTaken
	ctx = logx.WithRunID(ctx, state.RunID)

	current, err := c.Next(from, state)
	if err != nil {
		return state, err
	}

	for current != End {
		if err := ctx.Err(); err != nil {
			return state, fmt.Errorf("run %s canceled before %s: %w", state.RunID, current, err)
		}
		if steps >= limit {
			return state, &ResourceExhaustedError{Limit: limit, Steps: steps}
		}

		next, err := c.step(ctx, current, state)
		if err != nil {
			return state, err
		}
		state = next
		steps++

		if c.checkpointer != nil {
			if err := c.checkpointer.Checkpoint(ctx, state.RunID, steps, current, state); err != nil {
				return state, fmt.Errorf("checkpoint after %s: %w", current, err)
			}
		}

		to, err := c.Next(current, state)
		if err != nil {
			return state, err
		}
		logx.DebugState(ctx, "graph", "transition", current+" -> "+to, fmt.Sprintf("step %d", steps))
		current = to
	}

	c.logger.Info("Run %s reached %s after %d steps", state.RunID, End, steps)
	return state, nil
}

//nolint:gocritic // PipelineState passed by value to make snapshots explicit
func (c *Compiled) step(ctx context.Context, name string, state proto.PipelineState) (proto.PipelineState, error) {
	fn := c.nodes[name]
	start := time.Now()

	update, err := fn(metrics.WithStage(ctx, name), state)
	if err == nil {
		var next proto.PipelineState
		next, err = proto.Apply(state, update)
		if err == nil {
			c.recorder.ObserveStage(name, true, time.Since(start))
			return next, nil
		}
	}

	c.recorder.ObserveStage(name, false, time.Since(start))
	c.logger.Error("Node %s failed: %v", name, err)
	return state, fmt.Errorf("node %s: %w", name, err)
}
