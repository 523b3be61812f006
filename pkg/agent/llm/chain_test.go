package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticClient struct {
	reply string
}

func (s *staticClient) Complete(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
	return CompletionResponse{Content: s.reply}, nil
}

func (s *staticClient) GetModelName() string { return "static" }

func tagging(tag string, trace *[]string) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				*trace = append(*trace, tag)
				return next.Complete(ctx, req)
			},
			next.GetModelName,
		)
	}
}

func TestChainOrder(t *testing.T) {
	var trace []string
	client := Chain(&staticClient{reply: "ok"}, tagging("outer", &trace), tagging("inner", &trace))

	resp, err := client.Complete(context.Background(), NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, []string{"outer", "inner"}, trace)
	assert.Equal(t, "static", client.GetModelName())
}

func TestChainWithoutMiddleware(t *testing.T) {
	base := &staticClient{}
	assert.Same(t, base, Chain(base))
}

func TestMessageConstructors(t *testing.T) {
	calls := []ToolCall{{ID: "1", Name: "read_file", Parameters: map[string]any{"path": "a"}}}
	msg := NewAssistantMessage("", calls)
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, calls, msg.ToolCalls)

	results := NewToolResultsMessage([]ToolResult{{ToolCallID: "1", ToolName: "read_file", Content: "x"}})
	assert.Equal(t, RoleUser, results.Role)
	assert.Len(t, results.ToolResults, 1)
}

func TestLLMConfigValidate(t *testing.T) {
	cfg := LLMConfig{ModelName: "m", MaxTokens: 10, Temperature: 0.2}
	require.NoError(t, cfg.Validate())

	cfg.Temperature = 2.5
	assert.Error(t, cfg.Validate())

	cfg = LLMConfig{MaxTokens: 10}
	assert.Error(t, cfg.Validate())
}
