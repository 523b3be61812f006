package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObserveRequest("claude-sonnet-4-5", "run-1", "coder", 100, 20, 0.5, true, "", time.Second)
	rec.ObserveRequest("claude-sonnet-4-5", "run-1", "coder", 999, 999, 9, false, "rate_limit", time.Second)
	rec.ObserveStage("coder", true, 2*time.Second)
	rec.IncSandboxOp("write", StatusSuccess)
	rec.IncSandboxOp("write", StatusSuccess)

	assert.InDelta(t, 100, gathered(t, reg, MetricTokens, map[string]string{"type": "prompt"}), 0)
	assert.InDelta(t, 1, gathered(t, reg, MetricRequests, map[string]string{"status": StatusError, "error_type": "rate_limit"}), 0)
	assert.InDelta(t, 0.5, gathered(t, reg, MetricCosts, nil), 1e-9)
	assert.InDelta(t, 1, gathered(t, reg, MetricStages, map[string]string{"stage": "coder"}), 0)
	assert.InDelta(t, 2, gathered(t, reg, MetricSandboxOps, map[string]string{"op": "write"}), 0)
}

func TestRecordersAreIsolatedPerRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusRecorder(prometheus.NewRegistry())
		NewPrometheusRecorder(prometheus.NewRegistry())
	})
}

// gathered returns the counter value of the series of name whose labels include want.
func gathered(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue series
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("no series %s%v", name, want)
	return 0
}

// fakePrometheus answers instant queries with a fixed value per metric name.
func fakePrometheus(t *testing.T, values map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		query := r.Form.Get("query")

		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(query, "group by (stage)") {
			fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[`+
				`{"metric":{"stage":"planner"},"value":[1700000000,"1"]},`+
				`{"metric":{"stage":"coder"},"value":[1700000000,"1"]}]}}`)
			return
		}
		for needle, v := range values {
			if strings.Contains(query, needle) {
				fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1700000000,%q]}]}}`, v)
				return
			}
		}
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
	}))
}

func TestQueryServiceRunMetrics(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		`type="prompt"`:     "1200",
		`type="completion"`: "300",
		MetricRequests:      "7",
		MetricCosts:         "0.25",
	})
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	m, err := q.GetRunMetrics(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), m.PromptTokens)
	assert.Equal(t, int64(300), m.CompletionTokens)
	assert.Equal(t, int64(1500), m.TotalTokens)
	assert.Equal(t, int64(7), m.Requests)
	assert.InDelta(t, 0.25, m.TotalCost, 1e-9)

	byStage, err := q.GetRunMetricsByStage(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, byStage, 2)
	assert.Equal(t, "coder", byStage[0].Stage)
	assert.Equal(t, "planner", byStage[1].Stage)
}

func TestQueryServiceEmptyResult(t *testing.T) {
	srv := fakePrometheus(t, nil)
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	m, err := q.GetRunMetrics(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Zero(t, m.TotalTokens)
}
