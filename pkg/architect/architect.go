// Package architect implements the decomposition stage: a ProjectPlan becomes an
// ordered list of file-level implementation tasks.
package architect

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"codegen/pkg/gateway"
	"codegen/pkg/logx"
	"codegen/pkg/proto"
	"codegen/pkg/templates"
)

// Name is the graph node name of this stage.
const Name = "architect"

// Stage produces the TaskPlan.
type Stage struct {
	gen      gateway.Generator
	renderer *templates.Renderer
	logger   *logx.Logger
}

// New creates the decomposition stage.
func New(gen gateway.Generator, renderer *templates.Renderer) *Stage {
	return &Stage{
		gen:      gen,
		renderer: renderer,
		logger:   logx.NewLogger(Name),
	}
}

// Run decomposes state.Plan. Plan coverage and ordering are requested in the prompt
// and only checked here for a warning.
//
//nolint:gocritic // PipelineState passed by value to make snapshots explicit
func (s *Stage) Run(ctx context.Context, state proto.PipelineState) (proto.Update, error) {
	logx.DebugState(ctx, Name, "enter", Name)

	if state.Plan == nil {
		return proto.Update{}, proto.NewProtocolError(Name, "no project plan in state")
	}

	planYAML, err := yaml.Marshal(state.Plan)
	if err != nil {
		return proto.Update{}, proto.NewGenerationFailure(Name, fmt.Errorf("render plan: %w", err))
	}

	prompt, err := s.renderer.Render(templates.ArchitectTemplate, &templates.TemplateData{PlanYAML: string(planYAML)})
	if err != nil {
		return proto.Update{}, proto.NewGenerationFailure(Name, err)
	}

	tp := &proto.TaskPlan{}
	if err := s.gen.GenerateStructured(ctx, prompt, tp); err != nil {
		return proto.Update{}, err
	}
	for i := range tp.ImplementationSteps {
		if strings.TrimSpace(tp.ImplementationSteps[i].FilePath) == "" {
			return proto.Update{}, proto.NewGenerationFailure(Name, fmt.Errorf("step %d has no file path", i))
		}
	}
	tp.Plan = state.Plan

	if missing := tp.UncoveredFiles(); len(missing) > 0 {
		s.logger.Warn("Task plan leaves %d plan files without a task: %s", len(missing), strings.Join(missing, ", "))
	}

	s.logger.Info("Decomposed %q into %d steps", state.Plan.Name, tp.Len())
	return proto.Update{TaskPlan: tp}, nil
}
