package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// RunMetrics is the aggregated LLM usage of one pipeline run (or one stage of it).
type RunMetrics struct {
	RunID            string  `json:"run_id"`
	Stage            string  `json:"stage,omitempty"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	Requests         int64   `json:"requests"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService reads run metrics back from a Prometheus server that scraped codegen.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a query service against prometheusURL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// GetRunMetrics returns token, request and cost totals for a run across all stages.
func (q *QueryService) GetRunMetrics(ctx context.Context, runID string) (*RunMetrics, error) {
	return q.collect(ctx, &RunMetrics{RunID: runID}, fmt.Sprintf("run_id=%q", runID))
}

// GetRunMetricsByStage returns the same totals broken down by stage, sorted by stage name.
func (q *QueryService) GetRunMetricsByStage(ctx context.Context, runID string) ([]*RunMetrics, error) {
	stagesQuery := fmt.Sprintf(`group by (stage) (%s{run_id=%q})`, MetricRequests, runID)
	result, _, err := q.queryAPI.Query(ctx, stagesQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query stages: %w", err)
	}

	var stages []string
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			if stage, ok := sample.Metric["stage"]; ok {
				stages = append(stages, string(stage))
			}
		}
	}
	sort.Strings(stages)

	out := make([]*RunMetrics, 0, len(stages))
	for _, stage := range stages {
		m, err := q.collect(ctx, &RunMetrics{RunID: runID, Stage: stage},
			fmt.Sprintf("run_id=%q, stage=%q", runID, stage))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (q *QueryService) collect(ctx context.Context, m *RunMetrics, selector string) (*RunMetrics, error) {
	prompt, err := q.sum(ctx, fmt.Sprintf(`sum(%s{%s, type="prompt"})`, MetricTokens, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	completion, err := q.sum(ctx, fmt.Sprintf(`sum(%s{%s, type="completion"})`, MetricTokens, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	requests, err := q.sum(ctx, fmt.Sprintf(`sum(%s{%s})`, MetricRequests, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	cost, err := q.sum(ctx, fmt.Sprintf(`sum(%s{%s})`, MetricCosts, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}

	m.PromptTokens = int64(prompt)
	m.CompletionTokens = int64(completion)
	m.TotalTokens = m.PromptTokens + m.CompletionTokens
	m.Requests = int64(requests)
	m.TotalCost = cost
	return m, nil
}

// sum runs an instant query and returns the first sample, or 0 for an empty vector.
func (q *QueryService) sum(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err //nolint:wrapcheck // wrapped by caller
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}
