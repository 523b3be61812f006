// Package proto defines the shared state model threaded through the pipeline stages:
// the project plan, the task plan, the coder cursor, and the pipeline state record.
package proto

import (
	"fmt"
	"strings"
)

// FileSpec is one target file of a ProjectPlan.
type FileSpec struct {
	Path    string `json:"path" yaml:"path"`
	Purpose string `json:"purpose" yaml:"purpose"`
}

// ProjectPlan is the top-level description of the application to build.
// It is produced once by the planner and never modified afterwards.
type ProjectPlan struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	TechStack   string     `json:"techstack" yaml:"techstack"`
	Features    []string   `json:"features" yaml:"features"`
	Files       []FileSpec `json:"files" yaml:"files"`
}

// Validate checks that the plan is complete enough to decompose.
func (p *ProjectPlan) Validate() error {
	if p == nil {
		return fmt.Errorf("plan is nil")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("plan has no name")
	}
	if len(p.Files) == 0 {
		return fmt.Errorf("plan %q lists no files", p.Name)
	}
	for i := range p.Files {
		if strings.TrimSpace(p.Files[i].Path) == "" {
			return fmt.Errorf("plan %q: file %d has an empty path", p.Name, i)
		}
	}
	return nil
}

// FilePaths returns the plan's file paths in plan order.
func (p *ProjectPlan) FilePaths() []string {
	paths := make([]string, len(p.Files))
	for i := range p.Files {
		paths[i] = p.Files[i].Path
	}
	return paths
}

// ImplementationTask is one unit of work bound to exactly one target file.
type ImplementationTask struct {
	FilePath        string `json:"file_path" yaml:"file_path"`
	TaskDescription string `json:"task_description" yaml:"task_description"`
}

// TaskPlan is the ordered list of implementation steps. Order is execution order
// and is fixed once the plan is created.
type TaskPlan struct {
	ImplementationSteps []ImplementationTask `json:"implementation_steps" yaml:"implementation_steps"`

	// Plan is the back-reference to the originating ProjectPlan, attached by the architect.
	Plan *ProjectPlan `json:"plan,omitempty" yaml:"plan,omitempty"`
}

// Len returns the number of implementation steps.
func (tp *TaskPlan) Len() int {
	if tp == nil {
		return 0
	}
	return len(tp.ImplementationSteps)
}

// UncoveredFiles returns plan files that no task touches.
func (tp *TaskPlan) UncoveredFiles() []string {
	if tp == nil || tp.Plan == nil {
		return nil
	}
	touched := make(map[string]struct{}, len(tp.ImplementationSteps))
	for i := range tp.ImplementationSteps {
		touched[tp.ImplementationSteps[i].FilePath] = struct{}{}
	}
	var missing []string
	for _, path := range tp.Plan.FilePaths() {
		if _, ok := touched[path]; !ok {
			missing = append(missing, path)
		}
	}
	return missing
}

// CoderState is the resumable cursor driving the coding loop.
type CoderState struct {
	TaskPlan           *TaskPlan `json:"task_plan"`
	CurrentStepIndex   int       `json:"current_step_idx"`
	CurrentFileContent *string   `json:"current_file_content,omitempty"`
}

// NewCoderState creates a cursor at index 0.
func NewCoderState(tp *TaskPlan) *CoderState {
	return &CoderState{TaskPlan: tp}
}

// Done reports whether the cursor has exhausted the task list.
func (cs *CoderState) Done() bool {
	return cs.CurrentStepIndex >= cs.TaskPlan.Len()
}

// CurrentTask returns the task under the cursor, or false when done.
func (cs *CoderState) CurrentTask() (ImplementationTask, bool) {
	if cs.Done() {
		return ImplementationTask{}, false
	}
	return cs.TaskPlan.ImplementationSteps[cs.CurrentStepIndex], true
}

// Advance returns a copy of the cursor moved forward by exactly one step.
func (cs *CoderState) Advance(fileContent string) *CoderState {
	return &CoderState{
		TaskPlan:           cs.TaskPlan,
		CurrentStepIndex:   cs.CurrentStepIndex + 1,
		CurrentFileContent: &fileContent,
	}
}
