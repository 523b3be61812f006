package agent

import (
	"fmt"
	"strings"

	"codegen/pkg/agent/internal/llmimpl/anthropic"
	"codegen/pkg/agent/internal/llmimpl/google"
	"codegen/pkg/agent/internal/llmimpl/ollama"
	"codegen/pkg/agent/internal/llmimpl/openaiofficial"
	"codegen/pkg/agent/llm"
	"codegen/pkg/agent/middleware/logging"
	"codegen/pkg/agent/middleware/metrics"
	"codegen/pkg/agent/middleware/resilience/timeout"
	"codegen/pkg/config"
	"codegen/pkg/limiter"
	"codegen/pkg/logx"
	coremetrics "codegen/pkg/metrics"
)

// LLMClientFactory creates LLM clients with their middleware chains.
type LLMClientFactory struct {
	config   *config.Config
	recorder coremetrics.Recorder
	limits   *limiter.Limiter
	logger   *logx.Logger
	// newRaw builds the provider client; replaced in tests.
	newRaw func(provider, model, apiKey string) (llm.LLMClient, error)
}

// NewLLMClientFactory creates a factory. A nil recorder discards metrics.
func NewLLMClientFactory(cfg *config.Config, recorder coremetrics.Recorder) *LLMClientFactory {
	if recorder == nil {
		recorder = coremetrics.Nop()
	}
	f := &LLMClientFactory{
		config:   cfg,
		recorder: recorder,
		limits:   limiter.New(cfg.Limits),
		logger:   logx.NewLogger("llm"),
	}
	f.newRaw = f.newProviderClient
	return f
}

// ModelFor returns the configured model of a stage.
func (f *LLMClientFactory) ModelFor(agentType Type) (string, error) {
	switch agentType {
	case TypePlanner:
		return f.config.Models.Planner, nil
	case TypeArchitect:
		return f.config.Models.Architect, nil
	case TypeCoder:
		return f.config.Models.Coder, nil
	default:
		return "", fmt.Errorf("unsupported agent type: %s", agentType)
	}
}

// CreateClient creates the client for a stage with the full middleware chain.
func (f *LLMClientFactory) CreateClient(agentType Type) (llm.LLMClient, error) {
	model, err := f.ModelFor(agentType)
	if err != nil {
		return nil, err
	}
	return f.CreateClientForModel(model)
}

// CreateClientForModel resolves model to its provider and wraps it:
// metrics -> empty-response logging -> limits -> timeout -> provider.
// Every client of the factory shares one set of limits.
func (f *LLMClientFactory) CreateClientForModel(model string) (llm.LLMClient, error) {
	provider, err := config.GetModelProvider(model)
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", model, err)
	}

	apiKey := ""
	if envVar := config.APIKeyEnvVar(provider); envVar != "" {
		apiKey, err = config.GetSecret(envVar)
		if err != nil {
			return nil, fmt.Errorf("missing API key for provider %s: %w", provider, err)
		}
	}

	raw, err := f.newRaw(provider, strings.TrimPrefix(model, "ollama:"), apiKey)
	if err != nil {
		return nil, err
	}

	return llm.Chain(raw,
		metrics.Middleware(f.recorder, nil, f.logger),
		logging.EmptyResponseLoggingMiddleware(),
		limiter.Middleware(f.limits),
		timeout.Middleware(f.config.Agent.RequestTimeout),
	), nil
}

// Limits returns the limiter shared by the factory's clients.
func (f *LLMClientFactory) Limits() *limiter.Limiter {
	return f.limits
}

func (f *LLMClientFactory) newProviderClient(provider, model, apiKey string) (llm.LLMClient, error) {
	switch provider {
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(apiKey, model), nil
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClientWithModel(apiKey, model), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(apiKey, model), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClientWithModel(f.config.Ollama.Host, model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
