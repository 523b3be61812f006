// Package logging provides logging middleware for LLM clients.
package logging

import (
	"context"
	"strings"

	"codegen/pkg/agent/llm"
	"codegen/pkg/agent/llmerrors"
	"codegen/pkg/logx"
	"codegen/pkg/tools"
)

const maxLoggedMessageChars = 10000

// EmptyResponseLoggingMiddleware logs the full request when a provider returns an
// empty response, then passes the error through unchanged.
func EmptyResponseLoggingMiddleware() llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil && llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
					logEmptyResponseDebugInfo(next.GetModelName(), req)
				}
				//nolint:wrapcheck // Middleware passes errors through unchanged
				return resp, err
			},
			next.GetModelName,
		)
	}
}

//nolint:gocritic // 80 bytes is reasonable for a logging function
func logEmptyResponseDebugInfo(model string, req llm.CompletionRequest) {
	logger := logx.NewLogger("llm-middleware")

	logger.Error("EMPTY RESPONSE FROM LLM (model %s), prompt follows:", model)
	for i := range req.Messages {
		msg := &req.Messages[i]
		content := msg.Content
		if len(content) > maxLoggedMessageChars {
			content = content[:maxLoggedMessageChars] + "\n\n[... truncated ...]"
		}
		logger.Error("Message [%d] Role: %s, Tool calls: %d, Tool results: %d, Content: %s",
			i, msg.Role, len(msg.ToolCalls), len(msg.ToolResults), content)
	}

	logger.Error("Request: temperature=%v max_tokens=%d tool_choice=%q tools=%d",
		req.Temperature, req.MaxTokens, req.ToolChoice, len(req.Tools))
	if len(req.Tools) > 0 {
		logger.Error("Available tools: %s", strings.Join(getToolNames(req.Tools), ", "))
	}
}

// getToolNames extracts tool names from tool definitions for logging.
func getToolNames(toolDefs []tools.ToolDefinition) []string {
	names := make([]string, len(toolDefs))
	for i := range toolDefs {
		names[i] = toolDefs[i].Name
	}
	return names
}
