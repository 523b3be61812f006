package graph

import "fmt"

// ResourceExhaustedError is returned when a run needs more node executions than
// the recursion limit allows.
type ResourceExhaustedError struct {
	Limit int
	Steps int
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("recursion limit of %d reached after %d steps without reaching %s", e.Limit, e.Steps, End)
}
