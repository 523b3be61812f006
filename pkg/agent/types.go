package agent

import "fmt"

// Type identifies which pipeline stage a client serves.
type Type string

const (
	// TypePlanner produces the project plan.
	TypePlanner Type = "planner"

	// TypeArchitect decomposes the plan into implementation steps.
	TypeArchitect Type = "architect"

	// TypeCoder implements steps through the file tools.
	TypeCoder Type = "coder"
)

// IsValid checks if the agent type is valid.
func (t Type) IsValid() bool {
	return t == TypePlanner || t == TypeArchitect || t == TypeCoder
}

// String returns the string representation of the agent type.
func (t Type) String() string {
	return string(t)
}

// Parse parses a string into a Type.
func Parse(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid agent type: %s (must be 'planner', 'architect' or 'coder')", s)
	}
	return t, nil
}
