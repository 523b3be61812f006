// Package metrics provides metrics middleware for LLM clients.
package metrics

import (
	"context"
	"strings"
	"time"

	"codegen/pkg/agent/llm"
	"codegen/pkg/agent/llmerrors"
	"codegen/pkg/config"
	"codegen/pkg/logx"
	coremetrics "codegen/pkg/metrics"
	"codegen/pkg/utils"
)

// UsageExtractor returns the token usage of a completed request.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor trusts provider-reported usage and falls back to a tiktoken
// estimate when the provider reported none.
//
//nolint:gocritic // value parameters match the extractor signature
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}

	var prompt strings.Builder
	for i := range req.Messages {
		msg := &req.Messages[i]
		prompt.WriteString(msg.Content)
		prompt.WriteByte('\n')
		for j := range msg.ToolResults {
			prompt.WriteString(msg.ToolResults[j].Content)
			prompt.WriteByte('\n')
		}
	}
	promptTokens = utils.CountTokensSimple(prompt.String())
	completionTokens = utils.CountTokensSimple(resp.Content)
	return promptTokens, completionTokens
}

// Middleware records latency, token usage, cost and outcome of every LLM call.
// The run ID and stage labels come from the request context (logx.WithRunID, metrics.WithStage).
func Middleware(recorder coremetrics.Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				var cost float64
				errorType := ""
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
					cost = config.CalculateCost(model, promptTokens, completionTokens)
				} else {
					errorType = getErrorType(err)
				}

				runID := logx.RunID(ctx)
				stage := coremetrics.Stage(ctx)
				recorder.ObserveRequest(model, runID, stage, promptTokens, completionTokens, cost, err == nil, errorType, duration)

				if logger != nil {
					status := coremetrics.StatusSuccess
					if err != nil {
						status = coremetrics.StatusError
					}
					logger.Info("LLM request: model=%s run=%s stage=%s tokens=%d+%d=%d cost=$%.4f status=%s duration=%dms",
						model, runID, stage, promptTokens, completionTokens, promptTokens+completionTokens,
						cost, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware passes errors through unchanged
			},
			next.GetModelName,
		)
	}
}

// getErrorType labels an error for metrics.
func getErrorType(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case strings.Contains(err.Error(), "context deadline exceeded"):
		return "timeout"
	case strings.Contains(err.Error(), "context canceled"):
		return "canceled"
	}
	return llmerrors.Classify(err).Type.String()
}
