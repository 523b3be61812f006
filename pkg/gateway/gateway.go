// Package gateway turns a prompt into a typed plan structure. The model is forced
// to answer through a submit tool whose schema matches the target; a JSON object
// in the text reply is accepted as a fallback.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"codegen/pkg/agent/llm"
	"codegen/pkg/logx"
	"codegen/pkg/metrics"
	"codegen/pkg/proto"
	"codegen/pkg/tools"
)

// Generator is what the planning and decomposition stages need from the gateway.
type Generator interface {
	GenerateStructured(ctx context.Context, prompt string, target any) error
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ErrUnsupportedTarget is returned for targets other than *proto.ProjectPlan and *proto.TaskPlan.
var ErrUnsupportedTarget = errors.New("unsupported structured target")

// ErrNoStructuredOutput means the reply carried neither the submit tool call nor a JSON object.
var ErrNoStructuredOutput = errors.New("model returned no structured output")

// Gateway calls one LLM client. No retry is attempted; any failure is final.
type Gateway struct {
	client      llm.LLMClient
	logger      *logx.Logger
	maxTokens   int
	temperature float32
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMaxTokens caps the reply size.
func WithMaxTokens(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature. Zero keeps the default.
func WithTemperature(t float32) Option {
	return func(g *Gateway) {
		if t > 0 {
			g.temperature = t
		}
	}
}

// New creates a gateway over client.
func New(client llm.LLMClient, opts ...Option) *Gateway {
	g := &Gateway{
		client:      client,
		logger:      logx.NewLogger("gateway"),
		maxTokens:   llm.DefaultMaxTokens,
		temperature: llm.TemperatureDefault,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// submitToolFor picks the terminal tool matching target.
func submitToolFor(target any) (tools.ToolDefinition, error) {
	switch target.(type) {
	case *proto.ProjectPlan:
		return tools.SubmitPlanDefinition(), nil
	case *proto.TaskPlan:
		return tools.SubmitTaskPlanDefinition(), nil
	default:
		return tools.ToolDefinition{}, fmt.Errorf("%w: %T", ErrUnsupportedTarget, target)
	}
}

// GenerateStructured fills target from the model's answer to prompt.
// Every failure is a *proto.GenerationFailure.
func (g *Gateway) GenerateStructured(ctx context.Context, prompt string, target any) error {
	stage := stageName(ctx)

	def, err := submitToolFor(target)
	if err != nil {
		return proto.NewGenerationFailure(stage, err)
	}

	req := llm.CompletionRequest{
		Messages:    []llm.CompletionMessage{llm.NewUserMessage(prompt)},
		Tools:       []tools.ToolDefinition{def},
		ToolChoice:  llm.ToolChoiceAny,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}

	logx.Debug(ctx, "gateway", "structured request to %s via %s", g.client.GetModelName(), def.Name)
	resp, err := g.client.Complete(ctx, req)
	if err != nil {
		return proto.NewGenerationFailure(stage, err)
	}

	if err := decodeResponse(&resp, def.Name, target); err != nil {
		g.logger.Warn("%s: could not decode %s reply: %v", stage, def.Name, err)
		return proto.NewGenerationFailure(stage, err)
	}
	return nil
}

// GenerateText returns the model's plain-text answer to prompt.
func (g *Gateway) GenerateText(ctx context.Context, prompt string) (string, error) {
	stage := stageName(ctx)

	req := llm.CompletionRequest{
		Messages:    []llm.CompletionMessage{llm.NewUserMessage(prompt)},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}
	resp, err := g.client.Complete(ctx, req)
	if err != nil {
		return "", proto.NewGenerationFailure(stage, err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", proto.NewGenerationFailure(stage, ErrNoStructuredOutput)
	}
	return text, nil
}

func decodeResponse(resp *llm.CompletionResponse, toolName string, target any) error {
	for i := range resp.ToolCalls {
		call := &resp.ToolCalls[i]
		if call.Name != toolName {
			continue
		}
		raw, err := json.Marshal(call.Parameters)
		if err != nil {
			return fmt.Errorf("encode %s arguments: %w", toolName, err)
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("decode %s arguments: %w", toolName, err)
		}
		return nil
	}

	obj, ok := ExtractJSONObject(resp.Content)
	if !ok {
		return ErrNoStructuredOutput
	}
	if err := json.Unmarshal([]byte(obj), target); err != nil {
		return fmt.Errorf("decode JSON reply: %w", err)
	}
	return nil
}

// ExtractJSONObject finds the outermost JSON object in text, looking inside a
// fenced code block first.
func ExtractJSONObject(text string) (string, bool) {
	if start := strings.Index(text, "```"); start >= 0 {
		body := text[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end >= 0 {
			text = body[:end]
		}
	}

	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first < 0 || last <= first {
		return "", false
	}
	candidate := text[first : last+1]
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}

func stageName(ctx context.Context) string {
	if s := metrics.Stage(ctx); s != "" {
		return s
	}
	return "gateway"
}
