package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names, shared with QueryService.
const (
	MetricRequests        = "codegen_llm_requests_total"
	MetricTokens          = "codegen_llm_tokens_total"
	MetricCosts           = "codegen_llm_costs_total"
	MetricRequestDuration = "codegen_llm_request_duration_seconds"
	MetricStages          = "codegen_stage_executions_total"
	MetricStageDuration   = "codegen_stage_duration_seconds"
	MetricSandboxOps      = "codegen_sandbox_operations_total"
)

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	stagesTotal     *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	sandboxOps      *prometheus.CounterVec
}

// NewPrometheusRecorder registers the collectors on reg. A nil reg uses the default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRequests,
				Help: "Total number of LLM requests by model, run, stage, and status",
			},
			[]string{"model", "run_id", "stage", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTokens,
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "run_id", "stage", "type"},
		),
		costsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCosts,
				Help: "Total cost in USD for LLM requests",
			},
			[]string{"model", "run_id", "stage"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricRequestDuration,
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "stage"},
		),
		stagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricStages,
				Help: "Pipeline node executions by stage and status",
			},
			[]string{"stage", "status"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricStageDuration,
				Help:    "Duration of pipeline node executions in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"stage"},
		),
		sandboxOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSandboxOps,
				Help: "Sandboxed file operations by op and result",
			},
			[]string{"op", "result"},
		),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveRequest(
	model, runID, stage string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	p.requestsTotal.WithLabelValues(model, runID, stage, status, errorType).Inc()

	// Tokens and cost only count on success.
	if success {
		p.tokensTotal.WithLabelValues(model, runID, stage, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, runID, stage, "completion").Add(float64(completionTokens))
		p.costsTotal.WithLabelValues(model, runID, stage).Add(cost)
	}

	p.requestDuration.WithLabelValues(model, stage).Observe(duration.Seconds())
}

// ObserveStage records one node execution.
func (p *PrometheusRecorder) ObserveStage(stage string, success bool, duration time.Duration) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	p.stagesTotal.WithLabelValues(stage, status).Inc()
	p.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// IncSandboxOp counts one sandbox operation.
func (p *PrometheusRecorder) IncSandboxOp(op, result string) {
	p.sandboxOps.WithLabelValues(op, result).Inc()
}
