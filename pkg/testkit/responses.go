package testkit

import (
	"fmt"

	"codegen/pkg/agent/llm"
	"codegen/pkg/tools"
)

// StepBuilder assembles one scripted response.
type StepBuilder struct {
	resp llm.CompletionResponse
	n    int
}

// Reply starts a response with text content.
func Reply(content string) *StepBuilder {
	return &StepBuilder{resp: llm.CompletionResponse{Content: content, StopReason: "end_turn"}}
}

// Calls starts a response with no text, only tool calls added via Tool.
func Calls() *StepBuilder {
	return &StepBuilder{resp: llm.CompletionResponse{StopReason: "tool_use"}}
}

// Tool adds a tool call with a generated ID.
func (b *StepBuilder) Tool(name string, params map[string]any) *StepBuilder {
	b.n++
	if params == nil {
		params = map[string]any{}
	}
	b.resp.ToolCalls = append(b.resp.ToolCalls, llm.ToolCall{
		ID:         fmt.Sprintf("call_%s_%d", name, b.n),
		Name:       name,
		Parameters: params,
	})
	b.resp.StopReason = "tool_use"
	return b
}

// Usage sets reported token usage.
func (b *StepBuilder) Usage(prompt, completion int) *StepBuilder {
	b.resp.Usage = llm.Usage{PromptTokens: prompt, CompletionTokens: completion}
	return b
}

// Step finishes the builder.
func (b *StepBuilder) Step() Step {
	return Step{Response: b.resp}
}

// Fail is a step whose Complete call returns err.
func Fail(err error) Step {
	return Step{Err: err}
}

// ReadFile is a step that reads path.
func ReadFile(path string) Step {
	return Calls().Tool(tools.ToolReadFile, map[string]any{"path": path}).Step()
}

// WriteFile is a step that writes content to path.
func WriteFile(path, content string) Step {
	return Calls().Tool(tools.ToolWriteFile, map[string]any{"path": path, "content": content}).Step()
}

// Done is a step that ends an agent run with a final message.
func Done(message string) Step {
	return Reply(message).Step()
}

// SubmitPlan answers a structured request for a ProjectPlan through the submit_plan tool.
func SubmitPlan(name string, files map[string]string, order ...string) Step {
	fileList := make([]any, 0, len(order))
	for _, path := range order {
		fileList = append(fileList, map[string]any{"path": path, "purpose": files[path]})
	}
	return Calls().Tool(tools.ToolSubmitPlan, map[string]any{
		"name":        name,
		"description": name,
		"techstack":   "python",
		"features":    []any{},
		"files":       fileList,
	}).Step()
}

// SubmitTaskPlan answers a structured request for a TaskPlan. Steps alternate path, description.
func SubmitTaskPlan(pairs ...string) Step {
	steps := make([]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		steps = append(steps, map[string]any{"file_path": pairs[i], "task_description": pairs[i+1]})
	}
	return Calls().Tool(tools.ToolSubmitTaskPlan, map[string]any{"implementation_steps": steps}).Step()
}

// ImplementFile is the usual agent run for one task: read, write, finish.
func ImplementFile(path, content string) []Step {
	return []Step{ReadFile(path), WriteFile(path, content), Done("wrote " + path)}
}
