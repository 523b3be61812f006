package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegen/pkg/agent/llm"
	"codegen/pkg/agent/llmerrors"
	"codegen/pkg/logx"
	"codegen/pkg/tools"
)

type failingClient struct{ err error }

func (f failingClient) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
	return llm.CompletionResponse{}, f.err
}

func (failingClient) GetModelName() string { return "m" }

func TestEmptyResponsesAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logx.SetOutput(&buf)
	t.Cleanup(func() { logx.SetOutput(nil) })

	emptyErr := llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "nothing")
	client := llm.Chain(failingClient{err: emptyErr}, EmptyResponseLoggingMiddleware())

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("write index.html")})
	req.Tools = []tools.ToolDefinition{{Name: tools.ToolWriteFile}}
	_, err := client.Complete(context.Background(), req)

	require.ErrorIs(t, err, emptyErr)
	assert.Contains(t, buf.String(), "EMPTY RESPONSE FROM LLM")
	assert.Contains(t, buf.String(), "write index.html")
	assert.Contains(t, buf.String(), tools.ToolWriteFile)
}

func TestOtherErrorsAreNotLogged(t *testing.T) {
	var buf bytes.Buffer
	logx.SetOutput(&buf)
	t.Cleanup(func() { logx.SetOutput(nil) })

	client := llm.Chain(failingClient{err: llmerrors.FromStatus(500, nil)}, EmptyResponseLoggingMiddleware())
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.Empty(t, buf.String())
}
