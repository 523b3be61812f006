package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetModelProvider(t *testing.T) {
	tests := []struct {
		model    string
		provider string
		wantErr  bool
	}{
		{ModelClaudeSonnet4, ProviderAnthropic, false},
		{"claude-3-5-haiku", ProviderAnthropic, false},
		{ModelGPT4o, ProviderOpenAI, false},
		{"o3-mini", ProviderOpenAI, false},
		{"gemini-1.5-pro", ProviderGoogle, false},
		{"qwen2.5-coder:14b", ProviderOllama, false},
		{"ollama:phi4", ProviderOllama, false},
		{"mystery-model", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			provider, err := GetModelProvider(tt.model)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, provider)
		})
	}
}

func TestCalculateCost(t *testing.T) {
	assert.InDelta(t, 3.0+15.0, CalculateCost(ModelClaudeSonnet4, 1_000_000, 1_000_000), 1e-9)
	assert.Zero(t, CalculateCost("llama3", 1000, 1000))
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultProjectRoot, cfg.ProjectRoot)
	assert.Equal(t, DefaultRecursionLimit, cfg.RecursionLimit)
	assert.Equal(t, DefaultMaxIterations, cfg.Agent.MaxIterations)
	assert.Equal(t, DefaultCoderModel, cfg.Models.Coder)
	assert.InDelta(t, DefaultPlanTemp, cfg.Agent.PlanningTemperature, 1e-6)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codegen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
project_root: out
recursion_limit: 40
models:
  planner: gpt-4o
  architect: gpt-4o
  coder: gpt-4o
agent:
  max_iterations: 10
  request_timeout: 90s
  planning_temperature: 0.6
limits:
  tokens_per_minute: 30000
  max_cost_per_run_usd: 2.5
`), 0o644))

	t.Setenv(EnvCoderModel, "qwen2.5-coder:14b")
	t.Setenv(EnvRecursionLimit, "60")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "out", cfg.ProjectRoot)
	assert.Equal(t, 60, cfg.RecursionLimit)
	assert.Equal(t, ModelGPT4o, cfg.Models.Planner)
	assert.Equal(t, "qwen2.5-coder:14b", cfg.Models.Coder)
	assert.Equal(t, 10, cfg.Agent.MaxIterations)
	assert.Equal(t, 90*time.Second, cfg.Agent.RequestTimeout)
	assert.InDelta(t, 0.6, cfg.Agent.PlanningTemperature, 1e-6)
	assert.InDelta(t, DefaultTemperature, cfg.Agent.Temperature, 1e-6)
	assert.Equal(t, DefaultOllamaHost, cfg.Ollama.Host)
	assert.Equal(t, LimitsConfig{TokensPerMinute: 30000, MaxCostPerRunUSD: 2.5}, cfg.Limits)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv(EnvRecursionLimit, "lots")
	_, err := Load("")
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codegen.yaml")
	cfg := Default()
	cfg.Models.Coder = "llama3.1"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.RecursionLimit = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Models.Architect = "mystery-model"
	assert.ErrorContains(t, cfg.Validate(), "models.architect")

	cfg = Default()
	cfg.Agent.Temperature = 3
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Agent.PlanningTemperature = -0.5
	assert.ErrorContains(t, cfg.Validate(), "agent.planning_temperature")

	cfg = Default()
	cfg.Limits.MaxCostPerRunUSD = -1
	assert.ErrorContains(t, cfg.Validate(), "limits")
}
