// Package tools defines the tool contract shared with LLM providers and the closed
// set of file tools available to the coding agent.
package tools

import (
	"context"
	"fmt"
)

// Tool is a capability the model can invoke by name.
type Tool interface {
	Name() string
	Definition() ToolDefinition
	// PromptDocumentation returns a markdown bullet describing the tool for system prompts.
	PromptDocumentation() string
	Exec(ctx context.Context, args map[string]any) (*ExecResult, error)
}

// ToolDefinition describes a tool to the model.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// InputSchema is the JSON schema of a tool's arguments object.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property is one JSON schema property. Items describes array elements and
// Properties the fields of a nested object.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

// ExecResult is what a tool hands back to the model. IsError marks a failure the
// model should see and correct, as opposed to a Go error that aborts the call.
type ExecResult struct {
	Content string
	IsError bool
}

// ErrorPrefix starts the content of every error result.
const ErrorPrefix = "ERROR: "

// ErrorResult builds an error result the model can read.
func ErrorResult(err error) *ExecResult {
	return &ExecResult{Content: ErrorPrefix + err.Error(), IsError: true}
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, exists := args[key]
	if !exists {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}

// optionalStringArg extracts a string argument, returning def if absent or empty.
func optionalStringArg(args map[string]any, key, def string) (string, error) {
	v, exists := args[key]
	if !exists || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	if s == "" {
		return def, nil
	}
	return s, nil
}

// JSONSchema renders the property as a generic JSON schema object, recursing into
// array items and nested object fields.
func (p *Property) JSONSchema() map[string]any {
	schema := map[string]any{"type": p.Type}
	if p.Description != "" {
		schema["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		schema["enum"] = p.Enum
	}
	if p.Items != nil {
		schema["items"] = p.Items.JSONSchema()
	}
	if len(p.Properties) > 0 {
		props := make(map[string]any, len(p.Properties))
		for name, child := range p.Properties {
			if child != nil {
				props[name] = child.JSONSchema()
			}
		}
		schema["properties"] = props
	}
	if len(p.Required) > 0 {
		schema["required"] = p.Required
	}
	return schema
}

// PropertiesSchema renders the top-level properties as JSON schema objects.
func (s *InputSchema) PropertiesSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name := range s.Properties {
		prop := s.Properties[name]
		props[name] = prop.JSONSchema()
	}
	return props
}
