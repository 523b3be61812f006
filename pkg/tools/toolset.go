package tools

import (
	"fmt"
	"strings"
)

// UnknownToolError is returned by CoderToolSet.Get for names outside the set.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q: only %s are available", e.Name, strings.Join(CoderToolNames(), ", "))
}

// CoderToolNames returns the four coder tool names in their stable order.
func CoderToolNames() []string {
	return []string{ToolReadFile, ToolWriteFile, ToolListFiles, ToolGetCurrentDirectory}
}

// CoderToolSet is the closed set of file tools handed to the coding agent.
// It cannot be extended after construction.
type CoderToolSet struct {
	byName map[string]Tool
	order  []Tool
}

// NewCoderTools builds the four coder tools over store.
func NewCoderTools(store FileStore) *CoderToolSet {
	order := []Tool{
		NewReadFileTool(store),
		NewWriteFileTool(store),
		NewListFilesTool(store),
		NewGetCurrentDirectoryTool(store),
	}
	byName := make(map[string]Tool, len(order))
	for _, t := range order {
		byName[t.Name()] = t
	}
	return &CoderToolSet{byName: byName, order: order}
}

// Get returns the named tool or *UnknownToolError.
func (s *CoderToolSet) Get(name string) (Tool, error) {
	t, ok := s.byName[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return t, nil
}

// List returns the tool definitions in stable order.
func (s *CoderToolSet) List() []ToolDefinition {
	defs := make([]ToolDefinition, len(s.order))
	for i, t := range s.order {
		defs[i] = t.Definition()
	}
	return defs
}

// Len returns the number of tools.
func (s *CoderToolSet) Len() int {
	return len(s.order)
}

// PromptDocumentation renders every tool's documentation for a system prompt.
func (s *CoderToolSet) PromptDocumentation() string {
	docs := make([]string, len(s.order))
	for i, t := range s.order {
		docs[i] = t.PromptDocumentation()
	}
	return strings.Join(docs, "\n")
}
