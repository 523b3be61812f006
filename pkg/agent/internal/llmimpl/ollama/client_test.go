package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegen/pkg/agent/llm"
	"codegen/pkg/agent/llmerrors"
	"codegen/pkg/tools"
)

// fakeOllama serves /api/chat with a fixed body and records the last decoded request.
func fakeOllama(t *testing.T, status int, body string, got *api.ChatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		if got != nil {
			assert.NoError(t, json.Unmarshal(raw, got))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// toolRoundTrip is a conversation where the assistant called two tools and the user
// turn carries both results plus a follow-up note.
func toolRoundTrip() []llm.CompletionMessage {
	return []llm.CompletionMessage{
		llm.NewSystemMessage("you write code"),
		llm.NewUserMessage("implement calc.py"),
		llm.NewAssistantMessage("", []llm.ToolCall{
			{ID: "call_a", Name: tools.ToolReadFile, Parameters: map[string]any{"path": "calc.py"}},
			{ID: "call_b", Name: tools.ToolWriteFile, Parameters: map[string]any{"path": "calc.py", "content": "x"}},
		}),
		{
			Role:    llm.RoleUser,
			Content: "keep going",
			ToolResults: []llm.ToolResult{
				{ToolCallID: "call_a", ToolName: tools.ToolReadFile, Content: ""},
				{ToolCallID: "call_b", ToolName: tools.ToolWriteFile, Content: "WROTE:calc.py"},
			},
		},
	}
}

func TestComplete_ToolResultsFollowTheirCalls(t *testing.T) {
	var got api.ChatRequest
	srv := fakeOllama(t, http.StatusOK,
		`{"model":"qwen3","message":{"role":"assistant","content":"done"},"done":true,"done_reason":"stop"}`, &got)

	client := NewOllamaClientWithModel(srv.URL, "qwen3")
	in := llm.NewCompletionRequest(toolRoundTrip())
	in.Temperature = 0.4
	in.MaxTokens = 512

	_, err := client.Complete(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "qwen3", got.Model)
	require.Len(t, got.Messages, 6)
	roles := make([]string, len(got.Messages))
	for i := range got.Messages {
		roles[i] = got.Messages[i].Role
	}
	assert.Equal(t, []string{"system", "user", "assistant", "tool", "tool", "user"}, roles)

	assistant := got.Messages[2]
	require.Len(t, assistant.ToolCalls, 2)
	assert.Equal(t, "call_a", assistant.ToolCalls[0].ID)
	assert.Equal(t, tools.ToolWriteFile, assistant.ToolCalls[1].Function.Name)
	assert.Equal(t, "calc.py", assistant.ToolCalls[1].Function.Arguments.ToMap()["path"])

	assert.Equal(t, "call_a", got.Messages[3].ToolCallID)
	assert.Empty(t, got.Messages[3].Content)
	assert.Equal(t, "call_b", got.Messages[4].ToolCallID)
	assert.Equal(t, "WROTE:calc.py", got.Messages[4].Content)
	assert.Equal(t, "keep going", got.Messages[5].Content)

	require.NotNil(t, got.Stream)
	assert.False(t, *got.Stream)
	assert.InDelta(t, 0.4, got.Options["temperature"], 1e-6)
	assert.EqualValues(t, 512, got.Options["num_predict"])
}

func TestComplete_ToolResultsWithoutNoteAddNoUserTurn(t *testing.T) {
	messages, err := convertMessagesToOllama([]llm.CompletionMessage{
		llm.NewToolResultsMessage([]llm.ToolResult{{ToolCallID: "call_7", ToolName: tools.ToolReadFile, Content: "body"}}),
	})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "tool", messages[0].Role)
	assert.Equal(t, "call_7", messages[0].ToolCallID)

	_, err = convertMessagesToOllama(nil)
	assert.Error(t, err)
}

func TestComplete_UsageAndToolCallsMapped(t *testing.T) {
	var got api.ChatRequest
	// The client reads the reply line by line, so the body stays on one line.
	srv := fakeOllama(t, http.StatusOK, `{"model":"qwen3","message":{"role":"assistant","content":"","tool_calls":[`+
		`{"function":{"name":"write_file","arguments":{"path":"calc.py","content":"pass"}}},`+
		`{"id":"given","function":{"name":"done","arguments":{}}}]},`+
		`"done":true,"done_reason":"stop","prompt_eval_count":37,"eval_count":11}`, &got)

	client := NewOllamaClientWithModel(srv.URL, "qwen3")
	in := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("go")})
	in.Tools = []tools.ToolDefinition{tools.SubmitPlanDefinition()}

	resp, err := client.Complete(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, llm.Usage{PromptTokens: 37, CompletionTokens: 11}, resp.Usage)
	assert.Equal(t, "tool_use", resp.StopReason)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "call_0", resp.ToolCalls[0].ID)
	assert.Equal(t, "pass", resp.ToolCalls[0].Parameters["content"])
	assert.Equal(t, "given", resp.ToolCalls[1].ID)

	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)
	assert.Equal(t, tools.SubmitPlanDefinition().Name, got.Tools[0].Function.Name)
}

func TestComplete_StopReasons(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"length", `{"message":{"role":"assistant","content":"cut"},"done":true,"done_reason":"length"}`, "max_tokens"},
		{"no reason", `{"message":{"role":"assistant","content":"ok"},"done":true}`, "end_turn"},
		{"not done", `{"message":{"role":"assistant","content":"part"},"done":false}`, "incomplete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeOllama(t, http.StatusOK, tt.body, nil)
			resp, err := NewOllamaClientWithModel(srv.URL, "m").Complete(context.Background(),
				llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StopReason)
		})
	}
}

func TestComplete_EmptyResponseIsClassified(t *testing.T) {
	srv := fakeOllama(t, http.StatusOK,
		`{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":5}`, nil)

	resp, err := NewOllamaClientWithModel(srv.URL, "m").Complete(context.Background(),
		llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse))
	assert.Empty(t, resp.Content)
	assert.Equal(t, llm.Usage{}, resp.Usage)
}

func TestComplete_EmptyConversationIsBadPrompt(t *testing.T) {
	client := NewOllamaClientWithModel("http://127.0.0.1:1", "m")
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt))
}

func TestComplete_HTTPStatusIsClassified(t *testing.T) {
	tests := []struct {
		status int
		want   llmerrors.ErrorType
	}{
		{http.StatusNotFound, llmerrors.ErrorTypeBadPrompt},
		{http.StatusTooManyRequests, llmerrors.ErrorTypeRateLimit},
		{http.StatusServiceUnavailable, llmerrors.ErrorTypeTransient},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := fakeOllama(t, tt.status, `{"error":"model 'm' not available"}`, nil)
			_, err := NewOllamaClientWithModel(srv.URL, "m").Complete(context.Background(),
				llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
			require.Error(t, err)
			assert.Equal(t, tt.want, llmerrors.TypeOf(err))
		})
	}
}

func TestClassifyError_PlainErrors(t *testing.T) {
	assert.Equal(t, llmerrors.ErrorTypeTransient, llmerrors.TypeOf(classifyError(errors.New("dial tcp: connection refused"))))
	assert.Equal(t, llmerrors.ErrorTypeUnknown, llmerrors.TypeOf(classifyError(errors.New("something unexpected"))))
}

func TestBadHostFallsBackToLocalDefault(t *testing.T) {
	client := NewOllamaClientWithModel("not-a-valid-url", "mistral:7b")
	require.NotNil(t, client)
	assert.Equal(t, "mistral:7b", client.GetModelName())
}

func TestArrayPropertyKeepsItemSchema(t *testing.T) {
	prop := tools.Property{
		Type: "array",
		Items: &tools.Property{
			Type:       "object",
			Properties: map[string]*tools.Property{"path": {Type: "string"}},
			Required:   []string{"path"},
		},
	}
	result := convertPropertyToOllama(&prop)
	assert.Equal(t, api.PropertyType{"array"}, result.Type)
	items, ok := result.Items.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", items["type"])
	assert.Equal(t, []string{"path"}, items["required"])
}
