// Package coder implements the iterative coding stage. Each invocation executes at
// most one implementation task through a delegated tool-using agent and advances
// the cursor by one; the invocation after the last task marks the run DONE.
package coder

import (
	"context"
	"fmt"

	"codegen/pkg/agent/toolloop"
	"codegen/pkg/logx"
	"codegen/pkg/proto"
	"codegen/pkg/templates"
	"codegen/pkg/tools"
)

// Name is the graph node name of this stage.
const Name = "coder"

// FileReader reads the current content of a project file. Missing files read as "".
type FileReader interface {
	Read(rel string) (string, error)
}

// Stage runs one task per invocation.
type Stage struct {
	store        FileReader
	runner       toolloop.AgentRunner
	toolset      *tools.CoderToolSet
	renderer     *templates.Renderer
	logger       *logx.Logger
	systemPrompt string
}

// New creates the coding stage. The system prompt is rendered once from the tool set.
func New(store FileReader, runner toolloop.AgentRunner, toolset *tools.CoderToolSet, renderer *templates.Renderer) (*Stage, error) {
	systemPrompt, err := renderer.Render(templates.CoderSystemTemplate, &templates.TemplateData{
		ToolDocumentation: toolset.PromptDocumentation(),
	})
	if err != nil {
		return nil, fmt.Errorf("render coder system prompt: %w", err)
	}
	return &Stage{
		store:        store,
		runner:       runner,
		toolset:      toolset,
		renderer:     renderer,
		logger:       logx.NewLogger(Name),
		systemPrompt: systemPrompt,
	}, nil
}

// Run executes the task under the cursor, or reports DONE when none is left.
//
//nolint:gocritic // PipelineState passed by value to make snapshots explicit
func (s *Stage) Run(ctx context.Context, state proto.PipelineState) (proto.Update, error) {
	cs := state.CoderState
	if cs == nil {
		if state.TaskPlan == nil {
			return proto.Update{}, proto.NewProtocolError(Name, "no task plan in state")
		}
		cs = proto.NewCoderState(state.TaskPlan)
	}

	task, ok := cs.CurrentTask()
	if !ok {
		logx.DebugState(ctx, Name, "transition", "CODING -> DONE", fmt.Sprintf("%d steps", cs.TaskPlan.Len()))
		return proto.Update{CoderState: cs, Status: proto.StatusDone}, nil
	}

	idx := cs.CurrentStepIndex
	logx.DebugState(ctx, Name, "enter", fmt.Sprintf("step %d/%d", idx+1, cs.TaskPlan.Len()), task.FilePath)

	existing, err := s.store.Read(task.FilePath)
	if err != nil {
		return proto.Update{}, fmt.Errorf("%s: step %d: read %s: %w", Name, idx, task.FilePath, err)
	}

	userPrompt, err := s.renderer.Render(templates.CoderTaskTemplate, &templates.TemplateData{
		TaskDescription: task.TaskDescription,
		FilePath:        task.FilePath,
		ExistingContent: existing,
	})
	if err != nil {
		return proto.Update{}, fmt.Errorf("%s: step %d: %w", Name, idx, err)
	}

	final, err := s.runner.RunAgent(ctx, s.systemPrompt, userPrompt, s.toolset)
	if err != nil {
		return proto.Update{}, fmt.Errorf("%s: step %d (%s): %w", Name, idx, task.FilePath, err)
	}

	s.logger.Info("Step %d/%d done: %s", idx+1, cs.TaskPlan.Len(), task.FilePath)
	logx.Debug(ctx, Name, "agent summary for %s: %s", task.FilePath, final)

	return proto.Update{CoderState: cs.Advance(existing)}, nil
}
