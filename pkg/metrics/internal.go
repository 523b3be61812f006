package metrics

import (
	"context"
	"sync"
	"time"
)

// RunTotals is the aggregated LLM usage of one run.
//
//nolint:govet
type RunTotals struct {
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	RequestCount     int64     `json:"request_count"`
	FailedRequests   int64     `json:"failed_requests"`
	TotalCost        float64   `json:"total_cost_usd"`
	RunID            string    `json:"run_id"`
	LastUpdated      time.Time `json:"last_updated"`
}

// InternalRecorder aggregates LLM usage per run in memory. It needs no external
// services and backs the end-of-run summary printed by the CLI.
type InternalRecorder struct {
	runs map[string]*RunTotals
	mu   sync.RWMutex
}

// NewInternalRecorder creates an empty in-memory recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{runs: make(map[string]*RunTotals)}
}

// ObserveRequest implements Recorder.
func (r *InternalRecorder) ObserveRequest(
	_, runID, _ string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	_ string,
	_ time.Duration,
) {
	if runID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	run, exists := r.runs[runID]
	if !exists {
		run = &RunTotals{RunID: runID}
		r.runs[runID] = run
	}

	run.RequestCount++
	run.LastUpdated = time.Now()
	if !success {
		run.FailedRequests++
		return
	}
	run.PromptTokens += int64(promptTokens)
	run.CompletionTokens += int64(completionTokens)
	run.TotalTokens = run.PromptTokens + run.CompletionTokens
	run.TotalCost += cost
}

// ObserveStage implements Recorder; stage timings are only kept by Prometheus.
func (r *InternalRecorder) ObserveStage(_ string, _ bool, _ time.Duration) {}

// IncSandboxOp implements Recorder; sandbox counters are only kept by Prometheus.
func (r *InternalRecorder) IncSandboxOp(_, _ string) {}

// RunTotals returns a copy of the totals for runID, or nil if nothing was recorded.
func (r *InternalRecorder) RunTotals(runID string) *RunTotals {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if run, exists := r.runs[runID]; exists {
		snapshot := *run
		return &snapshot
	}
	return nil
}

// Reset clears all totals.
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = make(map[string]*RunTotals)
}

// multiRecorder fans every observation out to several recorders.
type multiRecorder []Recorder

// Multi returns a recorder that forwards to each of recorders.
func Multi(recorders ...Recorder) Recorder {
	return multiRecorder(recorders)
}

func (m multiRecorder) ObserveRequest(model, runID, stage string, promptTokens, completionTokens int, cost float64, success bool, errorType string, duration time.Duration) {
	for _, r := range m {
		r.ObserveRequest(model, runID, stage, promptTokens, completionTokens, cost, success, errorType, duration)
	}
}

func (m multiRecorder) ObserveStage(stage string, success bool, duration time.Duration) {
	for _, r := range m {
		r.ObserveStage(stage, success, duration)
	}
}

func (m multiRecorder) IncSandboxOp(op, result string) {
	for _, r := range m {
		r.IncSandboxOp(op, result)
	}
}

type stageKey struct{}

// WithStage tags ctx with the pipeline stage issuing LLM calls.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey{}, stage)
}

// Stage returns the stage set by WithStage, or "".
func Stage(ctx context.Context) string {
	if s, ok := ctx.Value(stageKey{}).(string); ok {
		return s
	}
	return ""
}
