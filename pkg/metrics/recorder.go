// Package metrics records Prometheus metrics for LLM calls, pipeline stages and sandbox
// operations, and queries them back per run.
package metrics

import "time"

// Outcome labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Recorder defines the metrics the pipeline emits.
type Recorder interface {
	// ObserveRequest records a completed LLM request.
	ObserveRequest(
		model, runID, stage string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// ObserveStage records one node execution of the pipeline graph.
	ObserveStage(stage string, success bool, duration time.Duration)

	// IncSandboxOp counts one sandbox file operation.
	IncSandboxOp(op, result string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

// Nop returns a recorder that discards all metrics.
func Nop() Recorder {
	return NoopRecorder{}
}

func (NoopRecorder) ObserveRequest(_, _, _ string, _, _ int, _ float64, _ bool, _ string, _ time.Duration) {
}

func (NoopRecorder) ObserveStage(_ string, _ bool, _ time.Duration) {}

func (NoopRecorder) IncSandboxOp(_, _ string) {}
