package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegen/pkg/agent/llm"
	"codegen/pkg/config"
	"codegen/pkg/limiter"
	"codegen/pkg/logx"
	coremetrics "codegen/pkg/metrics"
)

type echoClient struct{ model string }

func (e echoClient) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
	return llm.CompletionResponse{Content: "ok", Usage: llm.Usage{PromptTokens: 3, CompletionTokens: 2}}, nil
}

func (e echoClient) GetModelName() string { return e.model }

func newTestFactory(t *testing.T, recorder coremetrics.Recorder) (*LLMClientFactory, *[]string) {
	t.Helper()
	cfg := config.Default()
	cfg.Models.Planner = config.ModelGPT4o
	cfg.Models.Architect = config.ModelGemini25Flash
	cfg.Models.Coder = "ollama:qwen2.5-coder"

	f := NewLLMClientFactory(cfg, recorder)
	var providers []string
	f.newRaw = func(provider, model, _ string) (llm.LLMClient, error) {
		providers = append(providers, provider)
		return echoClient{model: model}, nil
	}
	return f, &providers
}

func TestCreateClientResolvesProviderPerStage(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GOOGLE_GENAI_API_KEY", "g-test")

	f, providers := newTestFactory(t, nil)
	for _, typ := range []Type{TypePlanner, TypeArchitect, TypeCoder} {
		client, err := f.CreateClient(typ)
		require.NoError(t, err, typ)
		require.NotNil(t, client)
	}
	assert.Equal(t, []string{config.ProviderOpenAI, config.ProviderGoogle, config.ProviderOllama}, *providers)
}

func TestCreateClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	config.SetDecryptedSecrets(nil)

	f, _ := newTestFactory(t, nil)
	_, err := f.CreateClient(TypePlanner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestCreateClientRejectsUnknownType(t *testing.T) {
	f, _ := newTestFactory(t, nil)
	_, err := f.CreateClient(Type("reviewer"))
	assert.Error(t, err)
}

func TestCreatedClientRecordsMetrics(t *testing.T) {
	rec := coremetrics.NewInternalRecorder()
	f, _ := newTestFactory(t, rec)

	client, err := f.CreateClient(TypeCoder)
	require.NoError(t, err)

	ctx := logx.WithRunID(context.Background(), "run-9")
	_, err = client.Complete(ctx, llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.NoError(t, err)

	totals := rec.RunTotals("run-9")
	require.NotNil(t, totals)
	assert.Equal(t, int64(5), totals.TotalTokens)
	assert.Equal(t, "qwen2.5-coder", client.GetModelName(), "ollama: prefix is stripped")
}

func TestClientsShareRunBudget(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GOOGLE_GENAI_API_KEY", "g-test")

	f, _ := newTestFactory(t, nil)
	f.config.Limits.MaxCostPerRunUSD = 1e-9
	f.limits = limiter.New(f.config.Limits)

	planner, err := f.CreateClient(TypePlanner)
	require.NoError(t, err)
	architect, err := f.CreateClient(TypeArchitect)
	require.NoError(t, err)

	ctx := logx.WithRunID(context.Background(), "run-b")
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})
	_, err = planner.Complete(ctx, req)
	require.NoError(t, err)
	assert.Positive(t, f.Limits().Spent("run-b"))

	_, err = architect.Complete(ctx, req)
	assert.ErrorIs(t, err, limiter.ErrBudgetExceeded)
}

func TestParse(t *testing.T) {
	typ, err := Parse("coder")
	require.NoError(t, err)
	assert.Equal(t, TypeCoder, typ)

	_, err = Parse("pm")
	assert.Error(t, err)
}
