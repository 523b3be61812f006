package proto

import "fmt"

// GenerationFailure means the generation gateway could not produce the requested structure.
// It is fatal to the run; no partial state is accepted.
type GenerationFailure struct {
	Stage string
	Err   error
}

// NewGenerationFailure wraps err as a generation failure raised in stage.
func NewGenerationFailure(stage string, err error) *GenerationFailure {
	return &GenerationFailure{Stage: stage, Err: err}
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("%s: generation failed: %v", e.Stage, e.Err)
}

func (e *GenerationFailure) Unwrap() error {
	return e.Err
}

// ProtocolError means a stage precondition on the pipeline state was violated.
// It indicates a wiring bug and is fatal.
type ProtocolError struct {
	Stage string
	Msg   string
}

// NewProtocolError creates a protocol error for stage.
func NewProtocolError(stage, msg string) *ProtocolError {
	return &ProtocolError{Stage: stage, Msg: msg}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol error: %s", e.Stage, e.Msg)
}
