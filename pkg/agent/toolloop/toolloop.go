// Package toolloop runs a tool-using agent: the model is called with a closed tool
// set, every tool call is executed and answered, and the loop repeats until the
// model replies without calling a tool.
package toolloop

import (
	"context"
	"fmt"
	"time"

	"codegen/pkg/agent/llm"
	"codegen/pkg/contextmgr"
	"codegen/pkg/logx"
	"codegen/pkg/tools"
)

// DefaultMaxIterations bounds the number of model calls in one run.
const DefaultMaxIterations = 25

// AgentRunner runs a delegated agent to completion and returns its final message.
type AgentRunner interface {
	RunAgent(ctx context.Context, systemPrompt, userPrompt string, toolset *tools.CoderToolSet) (string, error)
}

// ToolProvider is what the loop needs from a tool set.
type ToolProvider interface {
	Get(name string) (tools.Tool, error)
	List() []tools.ToolDefinition
}

// Config defines how the tool loop behaves.
//
//nolint:govet // fieldalignment: struct fields ordered for clarity over memory alignment
type Config struct {
	// Maximum model calls per run. Zero means DefaultMaxIterations.
	MaxIterations int

	// Maximum tokens per LLM request. Zero means llm.DefaultMaxTokens.
	MaxTokens int

	// Sampling temperature. Zero means llm.TemperatureDeterministic.
	Temperature float32

	// DebugLogging logs every message sent to the model.
	DebugLogging bool
}

// ToolLoop manages LLM interactions with tool calling.
type ToolLoop struct {
	llmClient llm.LLMClient
	logger    *logx.Logger
	cfg       Config
}

// New creates a new ToolLoop. A nil logger logs under "toolloop".
func New(llmClient llm.LLMClient, logger *logx.Logger, cfg Config) *ToolLoop {
	if logger == nil {
		logger = logx.NewLogger("toolloop")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = llm.DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = llm.TemperatureDeterministic
	}
	return &ToolLoop{llmClient: llmClient, logger: logger, cfg: cfg}
}

// RunAgent seeds a fresh context with the two prompts and runs the loop over toolset.
func (tl *ToolLoop) RunAgent(ctx context.Context, systemPrompt, userPrompt string, toolset *tools.CoderToolSet) (string, error) {
	if toolset == nil {
		return "", fmt.Errorf("tool set is required")
	}
	cm := contextmgr.NewContextManager()
	cm.AddMessage(string(llm.RoleSystem), systemPrompt)
	cm.AddMessage(string(llm.RoleUser), userPrompt)
	return tl.Run(ctx, cm, toolset)
}

// Run iterates over an existing context until the model answers without tool calls.
// The final assistant content is returned.
func (tl *ToolLoop) Run(ctx context.Context, cm *contextmgr.ContextManager, provider ToolProvider) (string, error) {
	if cm == nil {
		return "", fmt.Errorf("ContextManager is required")
	}
	if provider == nil {
		return "", fmt.Errorf("ToolProvider is required")
	}
	toolDefs := provider.List()

	for iteration := 0; iteration < tl.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("tool loop interrupted: %w", err)
		}

		messages := cm.CompletionMessages()
		req := llm.CompletionRequest{
			Messages:    messages,
			Tools:       toolDefs,
			ToolChoice:  llm.ToolChoiceAuto,
			MaxTokens:   tl.cfg.MaxTokens,
			Temperature: tl.cfg.Temperature,
		}

		logx.Debug(ctx, "toolloop", "LLM call to %s with %d messages, %d tools (iteration %d)",
			tl.llmClient.GetModelName(), len(messages), len(toolDefs), iteration+1)
		if tl.cfg.DebugLogging {
			tl.logMessages(messages)
		}

		start := time.Now()
		resp, err := tl.llmClient.Complete(ctx, req)
		duration := time.Since(start)
		if err != nil {
			tl.logger.Error("LLM call failed after %.3gs: %v", duration.Seconds(), err)
			return "", fmt.Errorf("LLM completion failed: %w", err)
		}

		logx.Debug(ctx, "toolloop", "LLM call completed in %.3gs, %d chars, %d tool calls",
			duration.Seconds(), len(resp.Content), len(resp.ToolCalls))

		cm.AddAssistantMessageWithTools(resp.Content, resp.ToolCalls)
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		// Every tool call must be answered before the next request.
		for i := range resp.ToolCalls {
			call := &resp.ToolCalls[i]
			content, isError := tl.execTool(ctx, provider, call)
			cm.AddToolResult(call.ID, call.Name, content, isError)
		}
	}

	tl.logger.Warn("Maximum tool iterations (%d) reached", tl.cfg.MaxIterations)
	return "", fmt.Errorf("%w (%d)", ErrMaxIterations, tl.cfg.MaxIterations)
}

// execTool runs one call. Unknown tools and Go errors become error results the model can read.
func (tl *ToolLoop) execTool(ctx context.Context, provider ToolProvider, call *llm.ToolCall) (string, bool) {
	tool, err := provider.Get(call.Name)
	if err != nil {
		tl.logger.Warn("Model requested unavailable tool %s", call.Name)
		return tools.ErrorResult(err).Content, true
	}

	start := time.Now()
	result, err := tool.Exec(ctx, call.Parameters)
	duration := time.Since(start)
	if err != nil {
		tl.logger.Warn("Tool %s failed after %.3fs: %v", call.Name, duration.Seconds(), err)
		return tools.ErrorResult(err).Content, true
	}
	if result == nil {
		return "", false
	}

	logx.Debug(ctx, "toolloop", "tool %s completed in %.3fs (error=%v)", call.Name, duration.Seconds(), result.IsError)
	return result.Content, result.IsError
}

// logMessages logs detailed message information for debugging.
func (tl *ToolLoop) logMessages(messages []llm.CompletionMessage) {
	tl.logger.Info("Messages sent to LLM:")
	for i := range messages {
		msg := &messages[i]
		preview := msg.Content
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		tl.logger.Info("  [%d] Role: %s, Content: %q, ToolCalls: %d, ToolResults: %d",
			i, msg.Role, preview, len(msg.ToolCalls), len(msg.ToolResults))

		for j := range msg.ToolCalls {
			tc := &msg.ToolCalls[j]
			tl.logger.Info("    ToolCall[%d] ID=%s Name=%s Params=%v", j, tc.ID, tc.Name, tc.Parameters)
		}
		for j := range msg.ToolResults {
			tr := &msg.ToolResults[j]
			resultPreview := tr.Content
			if len(resultPreview) > 200 {
				resultPreview = resultPreview[:200] + "..."
			}
			tl.logger.Info("    ToolResult[%d] ID=%s IsError=%v Content=%q", j, tr.ToolCallID, tr.IsError, resultPreview)
		}
	}
}
