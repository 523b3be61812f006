package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegen/pkg/agent/llm"
	"codegen/pkg/agent/llmerrors"
	"codegen/pkg/metrics"
	"codegen/pkg/proto"
	"codegen/pkg/testkit"
	"codegen/pkg/tools"
)

func TestGenerateStructuredProjectPlan(t *testing.T) {
	script := testkit.NewScriptedLLM(testkit.SubmitPlan("calculator",
		map[string]string{"index.html": "page", "app.js": "logic"}, "index.html", "app.js"))
	g := New(script, WithMaxTokens(2048))

	var plan proto.ProjectPlan
	require.NoError(t, g.GenerateStructured(context.Background(), "build a calculator", &plan))

	assert.Equal(t, "calculator", plan.Name)
	assert.Equal(t, []string{"index.html", "app.js"}, plan.FilePaths())

	req := script.Requests()[0]
	assert.Equal(t, llm.ToolChoiceAny, req.ToolChoice)
	assert.Equal(t, 2048, req.MaxTokens)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, tools.ToolSubmitPlan, req.Tools[0].Name)
	assert.Equal(t, "build a calculator", req.Messages[0].Content)
}

func TestGenerateStructuredTaskPlan(t *testing.T) {
	script := testkit.NewScriptedLLM(testkit.SubmitTaskPlan(
		"index.html", "markup", "app.js", "logic"))
	g := New(script)

	var tp proto.TaskPlan
	require.NoError(t, g.GenerateStructured(context.Background(), "decompose", &tp))
	require.Equal(t, 2, tp.Len())
	assert.Equal(t, "app.js", tp.ImplementationSteps[1].FilePath)
	assert.Nil(t, tp.Plan)
	assert.Equal(t, tools.ToolSubmitTaskPlan, script.Requests()[0].Tools[0].Name)
}

func TestGenerateStructuredFallsBackToJSONText(t *testing.T) {
	reply := "Here is the plan:\n```json\n{\"name\": \"todo\", \"files\": [{\"path\": \"main.py\", \"purpose\": \"entry\"}]}\n```\n"
	script := testkit.NewScriptedLLM(testkit.Done(reply))
	g := New(script)

	var plan proto.ProjectPlan
	require.NoError(t, g.GenerateStructured(context.Background(), "todo app", &plan))
	assert.Equal(t, "todo", plan.Name)
	assert.Equal(t, []string{"main.py"}, plan.FilePaths())
}

func TestGenerateStructuredNoOutput(t *testing.T) {
	script := testkit.NewScriptedLLM(testkit.Done("I cannot help with that."))
	g := New(script)

	var plan proto.ProjectPlan
	ctx := metrics.WithStage(context.Background(), "planner")
	err := g.GenerateStructured(ctx, "x", &plan)

	var gf *proto.GenerationFailure
	require.ErrorAs(t, err, &gf)
	assert.Equal(t, "planner", gf.Stage)
	assert.ErrorIs(t, err, ErrNoStructuredOutput)
}

func TestGenerateStructuredWrongArgumentTypes(t *testing.T) {
	script := testkit.NewScriptedLLM(testkit.Calls().
		Tool(tools.ToolSubmitPlan, map[string]any{"name": 7}).Step())
	g := New(script)

	var plan proto.ProjectPlan
	err := g.GenerateStructured(context.Background(), "x", &plan)
	var gf *proto.GenerationFailure
	require.ErrorAs(t, err, &gf)
	assert.Equal(t, "gateway", gf.Stage)
}

func TestGenerateStructuredLLMErrorIsWrapped(t *testing.T) {
	cause := llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")
	script := testkit.NewScriptedLLM(testkit.Fail(cause))
	g := New(script)

	var plan proto.ProjectPlan
	err := g.GenerateStructured(context.Background(), "x", &plan)
	var gf *proto.GenerationFailure
	require.ErrorAs(t, err, &gf)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth))
	assert.Equal(t, 1, script.Calls(), "no retry")
}

func TestGenerateStructuredUnsupportedTarget(t *testing.T) {
	script := testkit.NewScriptedLLM()
	g := New(script)

	var out map[string]any
	err := g.GenerateStructured(context.Background(), "x", &out)
	assert.True(t, errors.Is(err, ErrUnsupportedTarget))
	assert.Equal(t, 0, script.Calls())
}

func TestGenerateText(t *testing.T) {
	script := testkit.NewScriptedLLM(testkit.Done("  hello  "), testkit.Done(""))
	g := New(script)

	text, err := g.GenerateText(context.Background(), "greet")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Empty(t, script.Requests()[0].Tools)

	_, err = g.GenerateText(context.Background(), "greet")
	var gf *proto.GenerationFailure
	assert.ErrorAs(t, err, &gf)
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", `{"a": 1}`, `{"a": 1}`, true},
		{"prose around", `sure: {"a": {"b": 2}} done`, `{"a": {"b": 2}}`, true},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"none", "no json here", "", false},
		{"invalid", "{not json}", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
