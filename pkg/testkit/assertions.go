package testkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegen/pkg/proto"
)

// AssertDone verifies the run finished with every step executed.
func AssertDone(t *testing.T, state *proto.PipelineState) {
	t.Helper()
	assert.Equal(t, proto.StatusDone, state.Status)
	require.NotNil(t, state.CoderState, "coder state")
	assert.Equal(t, state.TaskPlan.Len(), state.CoderState.CurrentStepIndex)
	assert.NoError(t, state.Validate())
}

// AssertStepIndex verifies the coder cursor position.
func AssertStepIndex(t *testing.T, state *proto.PipelineState, want int) {
	t.Helper()
	require.NotNil(t, state.CoderState, "coder state")
	assert.Equal(t, want, state.CoderState.CurrentStepIndex)
}

// AssertToolResult verifies that the request carried a result for toolName with content.
func AssertToolResult(t *testing.T, s *ScriptedLLM, call int, toolName, content string) {
	t.Helper()
	reqs := s.Requests()
	require.Greater(t, len(reqs), call, "request %d", call)
	msgs := reqs[call].Messages
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	for _, r := range last.ToolResults {
		if r.ToolName == toolName {
			assert.Equal(t, content, r.Content)
			return
		}
	}
	t.Errorf("no %s result in request %d", toolName, call)
}
