// Package testkit provides a scripted LLM client and state assertions for tests.
package testkit

import (
	"context"
	"fmt"
	"sync"

	"codegen/pkg/agent/llm"
)

// Step answers one Complete call. Exactly one of Response or Err is used.
type Step struct {
	Response llm.CompletionResponse
	Err      error
}

// ScriptedLLM replays a fixed list of steps and records every request it receives.
// Running past the end of the script is an error.
type ScriptedLLM struct {
	model    string
	steps    []Step
	requests []llm.CompletionRequest
	mu       sync.Mutex
}

// NewScriptedLLM creates a client that replays steps in order.
func NewScriptedLLM(steps ...Step) *ScriptedLLM {
	return &ScriptedLLM{model: "scripted-model", steps: steps}
}

// WithModel sets the name returned by GetModelName.
func (s *ScriptedLLM) WithModel(model string) *ScriptedLLM {
	s.model = model
	return s
}

// Push appends more steps to the script.
func (s *ScriptedLLM) Push(steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
}

// Complete implements llm.LLMClient.
func (s *ScriptedLLM) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, cloneRequest(in))
	if err := ctx.Err(); err != nil {
		return llm.CompletionResponse{}, err
	}
	idx := len(s.requests) - 1
	if idx >= len(s.steps) {
		return llm.CompletionResponse{}, fmt.Errorf("scripted llm: no step for call %d", idx+1)
	}
	step := s.steps[idx]
	if step.Err != nil {
		return llm.CompletionResponse{}, step.Err
	}
	return step.Response, nil
}

// GetModelName implements llm.LLMClient.
func (s *ScriptedLLM) GetModelName() string {
	return s.model
}

// Calls returns the number of Complete calls made so far.
func (s *ScriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of every request received.
func (s *ScriptedLLM) Requests() []llm.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.CompletionRequest(nil), s.requests...)
}

// Remaining returns the number of unused steps.
func (s *ScriptedLLM) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - len(s.requests)
}

// The message slice is reused by callers between iterations.
func cloneRequest(in llm.CompletionRequest) llm.CompletionRequest {
	out := in
	out.Messages = append([]llm.CompletionMessage(nil), in.Messages...)
	return out
}
