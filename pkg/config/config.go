// Package config provides configuration loading, validation, and model metadata for codegen.
//
// Configuration is read from a YAML file, then overridden by environment variables, then
// by command-line flags (applied by the caller). Defaults fill anything left unset.
//
//	cfg, err := config.Load("codegen.yaml")
//	cfg.Models.Coder = "qwen2.5-coder:14b"
//	if err := cfg.Validate(); err != nil { ... }
package config

import (
	"fmt"
	"strings"
	"time"
)

// Provider constants.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Model name constants.
const (
	ModelClaudeSonnet4      = "claude-sonnet-4-5"
	ModelClaudeSonnetLatest = ModelClaudeSonnet4
	ModelClaudeOpus45       = "claude-opus-4-5"
	ModelGPT4o              = "gpt-4o"
	ModelGPT5               = "gpt-5"
	ModelGemini25Flash      = "gemini-2.5-flash"

	DefaultPlannerModel   = ModelClaudeSonnet4
	DefaultArchitectModel = ModelClaudeSonnet4
	DefaultCoderModel     = ModelClaudeSonnet4
)

// Defaults for the pipeline and the coding agent.
const (
	DefaultProjectRoot    = "generated_project"
	DefaultRecursionLimit = 100
	DefaultMaxIterations  = 25
	DefaultMaxTokens      = 8192
	DefaultTemperature    = 0.2
	DefaultPlanTemp       = 0.3
	DefaultOllamaHost     = "http://localhost:11434"
	DefaultStateDir       = ".codegen"
	DefaultDBFile         = "codegen.db"
	DefaultSecretsFile    = "secrets.json.enc"

	DefaultRequestTimeout = 5 * time.Minute
)

// ModelInfo contains static information about a known LLM model.
// This data is hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider         string  // API provider (anthropic, openai, google, ollama)
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int
	MaxOutputTokens  int
}

// KnownModels holds pricing and provider information for common models.
// Unknown models are mapped through ProviderPatterns.
//
//nolint:gochecknoglobals // static model registry
var KnownModels = map[string]ModelInfo{
	ModelClaudeSonnet4: {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-sonnet-4-20250514": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	ModelClaudeOpus45: {
		Provider:         ProviderAnthropic,
		InputCPM:         15.0,
		OutputCPM:        75.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  16384,
	},
	ModelGPT4o: {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
	},
	"o4-mini": {
		Provider:         ProviderOpenAI,
		InputCPM:         1.1,
		OutputCPM:        4.4,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	ModelGPT5: {
		Provider:         ProviderOpenAI,
		InputCPM:         20.0,
		OutputCPM:        60.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
	},
	"gemini-2.0-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.10,
		OutputCPM:        0.40,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  8192,
	},
	ModelGemini25Flash: {
		Provider:         ProviderGoogle,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
}

// ProviderPattern maps a model-name prefix to a provider.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns infers providers for models missing from KnownModels.
//
//nolint:gochecknoglobals // static inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"codellama", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama:", ProviderOllama}, // explicit prefix like "ollama:phi4"
}

// GetModelProvider returns the API provider for a given model.
// KnownModels wins over ProviderPatterns; no match is an error.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match", modelName)
}

// GetModelInfo returns the ModelInfo for a model and whether it was found in KnownModels.
// Unknown models get an inferred provider, zero pricing and conservative limits.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}
	provider, _ := GetModelProvider(modelName)
	return ModelInfo{
		Provider:         provider,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// CalculateCost returns the USD cost of a request using KnownModels pricing.
func CalculateCost(modelName string, promptTokens, completionTokens int) float64 {
	info, ok := KnownModels[modelName]
	if !ok {
		return 0
	}
	return float64(promptTokens)*info.InputCPM/1e6 + float64(completionTokens)*info.OutputCPM/1e6
}

// APIKeyEnvVar returns the secret/env name holding the API key for provider.
// Ollama needs none.
func APIKeyEnvVar(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGoogle:
		return "GOOGLE_GENAI_API_KEY"
	default:
		return ""
	}
}

// ModelsConfig selects the model used by each stage.
type ModelsConfig struct {
	Planner   string `yaml:"planner"`
	Architect string `yaml:"architect"`
	Coder     string `yaml:"coder"`
}

// AgentConfig bounds the coding agent's tool loop.
type AgentConfig struct {
	MaxIterations int     `yaml:"max_iterations"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float32 `yaml:"temperature"`

	// PlanningTemperature is used by the planner and architect.
	PlanningTemperature float32 `yaml:"planning_temperature"`

	// RequestTimeout bounds a single LLM call, e.g. "5m".
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LimitsConfig caps LLM usage. Zero disables a limit.
type LimitsConfig struct {
	TokensPerMinute  int     `yaml:"tokens_per_minute"`    // per model, estimated prompt tokens
	MaxCostPerRunUSD float64 `yaml:"max_cost_per_run_usd"` // stops further calls once reached
}

// OllamaConfig holds settings for the local Ollama server.
type OllamaConfig struct {
	Host string `yaml:"host"`
}

// PersistenceConfig locates the checkpoint database. An empty DBPath disables checkpoints.
type PersistenceConfig struct {
	DBPath string `yaml:"db_path"`
}

// MetricsConfig controls the Prometheus endpoint and the query target for `codegen stats`.
type MetricsConfig struct {
	Addr          string `yaml:"addr"`
	PrometheusURL string `yaml:"prometheus_url"`
}

// SecretsConfig locates the encrypted secrets file.
type SecretsConfig struct {
	File string `yaml:"file"`
}

// Config is the complete codegen configuration.
type Config struct {
	ProjectRoot    string            `yaml:"project_root"`
	RecursionLimit int               `yaml:"recursion_limit"`
	Models         ModelsConfig      `yaml:"models"`
	Agent          AgentConfig       `yaml:"agent"`
	Limits         LimitsConfig      `yaml:"limits"`
	Ollama         OllamaConfig      `yaml:"ollama"`
	Persistence    PersistenceConfig `yaml:"persistence"`
	Metrics        MetricsConfig     `yaml:"metrics"`
	Secrets        SecretsConfig     `yaml:"secrets"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.ProjectRoot == "" {
		c.ProjectRoot = DefaultProjectRoot
	}
	if c.RecursionLimit == 0 {
		c.RecursionLimit = DefaultRecursionLimit
	}
	if c.Models.Planner == "" {
		c.Models.Planner = DefaultPlannerModel
	}
	if c.Models.Architect == "" {
		c.Models.Architect = DefaultArchitectModel
	}
	if c.Models.Coder == "" {
		c.Models.Coder = DefaultCoderModel
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = DefaultMaxIterations
	}
	if c.Agent.MaxTokens == 0 {
		c.Agent.MaxTokens = DefaultMaxTokens
	}
	if c.Agent.Temperature == 0 {
		c.Agent.Temperature = DefaultTemperature
	}
	if c.Agent.PlanningTemperature == 0 {
		c.Agent.PlanningTemperature = DefaultPlanTemp
	}
	if c.Agent.RequestTimeout == 0 {
		c.Agent.RequestTimeout = DefaultRequestTimeout
	}
	if c.Ollama.Host == "" {
		c.Ollama.Host = DefaultOllamaHost
	}
	if c.Persistence.DBPath == "" {
		c.Persistence.DBPath = DefaultStateDir + "/" + DefaultDBFile
	}
	if c.Secrets.File == "" {
		c.Secrets.File = DefaultStateDir + "/" + DefaultSecretsFile
	}
}

// Validate rejects configs that cannot drive a run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ProjectRoot) == "" {
		return fmt.Errorf("project_root cannot be empty")
	}
	if c.RecursionLimit <= 0 {
		return fmt.Errorf("recursion_limit must be positive, got %d", c.RecursionLimit)
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.MaxTokens <= 0 {
		return fmt.Errorf("agent.max_tokens must be positive, got %d", c.Agent.MaxTokens)
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		return fmt.Errorf("agent.temperature must be between 0.0 and 2.0, got %v", c.Agent.Temperature)
	}
	if c.Agent.PlanningTemperature < 0 || c.Agent.PlanningTemperature > 2 {
		return fmt.Errorf("agent.planning_temperature must be between 0.0 and 2.0, got %v", c.Agent.PlanningTemperature)
	}
	if c.Limits.TokensPerMinute < 0 || c.Limits.MaxCostPerRunUSD < 0 {
		return fmt.Errorf("limits cannot be negative")
	}
	if c.Agent.RequestTimeout < 0 {
		return fmt.Errorf("agent.request_timeout cannot be negative, got %s", c.Agent.RequestTimeout)
	}
	for stage, model := range map[string]string{
		"planner":   c.Models.Planner,
		"architect": c.Models.Architect,
		"coder":     c.Models.Coder,
	} {
		if _, err := GetModelProvider(model); err != nil {
			return fmt.Errorf("models.%s: %w", stage, err)
		}
	}
	return nil
}
