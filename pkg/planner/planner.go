// Package planner implements the planning stage: the user request becomes a ProjectPlan.
package planner

import (
	"context"
	"strings"

	"codegen/pkg/gateway"
	"codegen/pkg/logx"
	"codegen/pkg/proto"
	"codegen/pkg/templates"
)

// Name is the graph node name of this stage.
const Name = "planner"

// Stage produces the ProjectPlan. It runs exactly once per pipeline run.
type Stage struct {
	gen      gateway.Generator
	renderer *templates.Renderer
	logger   *logx.Logger
}

// New creates the planning stage.
func New(gen gateway.Generator, renderer *templates.Renderer) *Stage {
	return &Stage{
		gen:      gen,
		renderer: renderer,
		logger:   logx.NewLogger(Name),
	}
}

// Run asks the model for a plan of state.UserPrompt. No partial plan is accepted:
// a plan without a name or files is a generation failure.
//
//nolint:gocritic // PipelineState passed by value to make snapshots explicit
func (s *Stage) Run(ctx context.Context, state proto.PipelineState) (proto.Update, error) {
	logx.DebugState(ctx, Name, "enter", Name)

	if strings.TrimSpace(state.UserPrompt) == "" {
		return proto.Update{}, proto.NewProtocolError(Name, "user prompt is empty")
	}

	prompt, err := s.renderer.Render(templates.PlannerTemplate, &templates.TemplateData{UserPrompt: state.UserPrompt})
	if err != nil {
		return proto.Update{}, proto.NewGenerationFailure(Name, err)
	}

	plan := &proto.ProjectPlan{}
	if err := s.gen.GenerateStructured(ctx, prompt, plan); err != nil {
		return proto.Update{}, err
	}
	if err := plan.Validate(); err != nil {
		return proto.Update{}, proto.NewGenerationFailure(Name, err)
	}

	s.logger.Info("Planned %q: %d files, %d features", plan.Name, len(plan.Files), len(plan.Features))
	return proto.Update{Plan: plan}, nil
}
