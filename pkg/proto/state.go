package proto

import "fmt"

// Status is the pipeline run status.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
)

// PipelineState is the single shared record threaded through every stage.
// Stages never mutate it; they return an Update that Apply merges into a new snapshot.
type PipelineState struct {
	RunID      string       `json:"run_id"`
	UserPrompt string       `json:"user_prompt"`
	Plan       *ProjectPlan `json:"plan,omitempty"`
	TaskPlan   *TaskPlan    `json:"task_plan,omitempty"`
	CoderState *CoderState  `json:"coder_state,omitempty"`
	Status     Status       `json:"status"`
}

// NewPipelineState creates the initial state for a request.
func NewPipelineState(runID, userPrompt string) PipelineState {
	return PipelineState{
		RunID:      runID,
		UserPrompt: userPrompt,
		Status:     StatusRunning,
	}
}

// IsDone reports whether the run has reached its terminal status.
func (s *PipelineState) IsDone() bool {
	return s.Status == StatusDone
}

// Update is the partial update a stage returns. Nil fields are left untouched.
type Update struct {
	Plan       *ProjectPlan
	TaskPlan   *TaskPlan
	CoderState *CoderState
	Status     Status
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.Plan == nil && u.TaskPlan == nil && u.CoderState == nil && u.Status == ""
}

// Apply merges update into state and returns the new snapshot. The input state is not modified.
// Any update that would break a state invariant is rejected with a ProtocolError.
//
//nolint:gocritic // PipelineState passed by value to make snapshots explicit
func Apply(state PipelineState, update Update) (PipelineState, error) {
	next := state

	if update.Plan != nil {
		if state.Plan != nil && state.Plan != update.Plan {
			return state, NewProtocolError("reducer", "plan is already set and is immutable")
		}
		next.Plan = update.Plan
	}

	if update.TaskPlan != nil {
		if state.TaskPlan != nil && state.TaskPlan != update.TaskPlan {
			return state, NewProtocolError("reducer", "task plan is already set and is immutable")
		}
		if next.Plan == nil {
			return state, NewProtocolError("reducer", "task plan set before plan")
		}
		next.TaskPlan = update.TaskPlan
	}

	if update.CoderState != nil {
		if err := checkCursorMove(state.CoderState, update.CoderState); err != nil {
			return state, err
		}
		next.CoderState = update.CoderState
	}

	if update.Status != "" {
		if state.Status == StatusDone && update.Status != StatusDone {
			return state, NewProtocolError("reducer", fmt.Sprintf("status cannot regress from %s to %s", StatusDone, update.Status))
		}
		if update.Status == StatusDone && (next.CoderState == nil || !next.CoderState.Done()) {
			return state, NewProtocolError("reducer", "status DONE before every implementation step ran")
		}
		next.Status = update.Status
	}

	if err := next.Validate(); err != nil {
		return state, err
	}
	return next, nil
}

// checkCursorMove enforces that the step index only moves forward by at most one and stays in bounds.
func checkCursorMove(prev, next *CoderState) error {
	if next.TaskPlan == nil {
		return NewProtocolError("reducer", "coder state has no task plan")
	}
	limit := next.TaskPlan.Len()
	if next.CurrentStepIndex < 0 || next.CurrentStepIndex > limit {
		return NewProtocolError("reducer", fmt.Sprintf("step index %d out of bounds [0, %d]", next.CurrentStepIndex, limit))
	}
	if prev == nil {
		// First entry: created lazily at 0, or after exactly one step.
		if next.CurrentStepIndex > 1 {
			return NewProtocolError("reducer", fmt.Sprintf("step index jumped from 0 to %d", next.CurrentStepIndex))
		}
		return nil
	}
	if prev.TaskPlan != next.TaskPlan {
		return NewProtocolError("reducer", "coder state task plan was replaced")
	}
	delta := next.CurrentStepIndex - prev.CurrentStepIndex
	if delta < 0 {
		return NewProtocolError("reducer", fmt.Sprintf("step index decreased from %d to %d", prev.CurrentStepIndex, next.CurrentStepIndex))
	}
	if delta > 1 {
		return NewProtocolError("reducer", fmt.Sprintf("step index jumped from %d to %d", prev.CurrentStepIndex, next.CurrentStepIndex))
	}
	return nil
}

// Validate checks the ordering and bounds invariants of a snapshot.
func (s *PipelineState) Validate() error {
	if s.TaskPlan != nil && s.Plan == nil {
		return NewProtocolError("state", "task plan present without a plan")
	}
	if s.CoderState != nil {
		if s.TaskPlan == nil {
			return NewProtocolError("state", "coder state present without a task plan")
		}
		if s.CoderState.CurrentStepIndex > s.CoderState.TaskPlan.Len() {
			return NewProtocolError("state", fmt.Sprintf("step index %d exceeds %d steps",
				s.CoderState.CurrentStepIndex, s.CoderState.TaskPlan.Len()))
		}
	}
	if s.Status == StatusDone && (s.CoderState == nil || !s.CoderState.Done()) {
		return NewProtocolError("state", "status DONE with steps remaining")
	}
	return nil
}
