package openaiofficial

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegen/pkg/agent/llm"
	"codegen/pkg/agent/llmerrors"
	"codegen/pkg/tools"
)

func TestNewOfficialClient(t *testing.T) {
	client := NewOfficialClient("test-api-key")
	require.NotNil(t, client)
	assert.Equal(t, "gpt-4o", client.GetModelName())
}

func TestNewOfficialClientWithModel(t *testing.T) {
	client := NewOfficialClientWithModel("test-api-key", "o4-mini")
	assert.Equal(t, "o4-mini", client.GetModelName())
}

func TestConvertPropertyToSchema(t *testing.T) {
	tests := []struct {
		name     string
		property tools.Property
		wantType string
		hasEnum  bool
		hasItems bool
	}{
		{
			name:     "simple string",
			property: tools.Property{Type: "string", Description: "A string value"},
			wantType: "string",
		},
		{
			name:     "string with enum",
			property: tools.Property{Type: "string", Description: "Color choice", Enum: []string{"red", "green"}},
			wantType: "string",
			hasEnum:  true,
		},
		{
			name: "array type",
			property: tools.Property{
				Type:        "array",
				Description: "List of items",
				Items:       &tools.Property{Type: "string", Description: "Item"},
			},
			wantType: "array",
			hasItems: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := convertPropertyToSchema(&tt.property)
			assert.Equal(t, tt.wantType, schema["type"])
			assert.Equal(t, tt.property.Description, schema["description"])
			_, hasEnum := schema["enum"]
			assert.Equal(t, tt.hasEnum, hasEnum)
			_, hasItems := schema["items"]
			assert.Equal(t, tt.hasItems, hasItems)
		})
	}
}

func TestConvertMessages(t *testing.T) {
	_, err := convertMessages(nil)
	require.Error(t, err)

	msgs, err := convertMessages([]llm.CompletionMessage{
		llm.NewSystemMessage("sys"),
		llm.NewUserMessage("go"),
		llm.NewAssistantMessage("", []llm.ToolCall{
			{ID: "c1", Name: "read_file", Parameters: map[string]any{"path": "a"}},
			{ID: "c2", Name: "list_files", Parameters: map[string]any{}},
		}),
		llm.NewToolResultsMessage([]llm.ToolResult{
			{ToolCallID: "c1", Content: "x"},
			{ToolCallID: "c2", Content: "a"},
		}),
	})
	require.NoError(t, err)
	// system, user, assistant, two tool messages
	require.Len(t, msgs, 5)
	require.NotNil(t, msgs[2].OfAssistant)
	assert.Len(t, msgs[2].OfAssistant.ToolCalls, 2)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
}

func TestStopReason(t *testing.T) {
	assert.Equal(t, "end_turn", stopReason("stop"))
	assert.Equal(t, "max_tokens", stopReason("length"))
	assert.Equal(t, "tool_use", stopReason("tool_calls"))
	assert.Equal(t, "content_filter", stopReason("content_filter"))
}

func newFakeServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		if captured != nil {
			assert.NoError(t, json.Unmarshal(raw, captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_ToolCallsAndForcedChoice(t *testing.T) {
	var req map[string]any
	srv := newFakeServer(t, http.StatusOK, `{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
		"choices": [{
			"index": 0,
			"finish_reason": "tool_calls",
			"message": {
				"role": "assistant", "content": null,
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "submit_plan", "arguments": "{\"name\":\"todo\"}"}}]
			}
		}],
		"usage": {"prompt_tokens": 20, "completion_tokens": 6, "total_tokens": 26}
	}`, &req)

	client := NewOfficialClientWithModel("k", "gpt-4o", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	in := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("todo app")})
	in.Tools = []tools.ToolDefinition{tools.SubmitPlanDefinition()}
	in.ToolChoice = llm.ToolChoiceAny

	resp, err := client.Complete(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "todo", resp.ToolCalls[0].Parameters["name"])
	assert.Equal(t, "tool_use", resp.StopReason)
	assert.Equal(t, llm.Usage{PromptTokens: 20, CompletionTokens: 6}, resp.Usage)
	assert.Equal(t, "required", req["tool_choice"])
	// gpt-4o caps output at 4096 tokens
	assert.InDelta(t, 4096, req["max_completion_tokens"], 0)
}

func TestComplete_ClassifiesStatusErrors(t *testing.T) {
	srv := newFakeServer(t, http.StatusBadRequest,
		`{"error": {"message": "context too long", "type": "invalid_request_error"}}`, nil)

	client := NewOfficialClientWithModel("k", "gpt-4o", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("go")}))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt))
}
