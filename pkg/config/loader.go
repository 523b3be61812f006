package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"codegen/pkg/logx"
)

// Environment overrides, applied after the YAML file.
const (
	EnvProjectRoot    = "CODEGEN_PROJECT_ROOT"
	EnvRecursionLimit = "CODEGEN_RECURSION_LIMIT"
	EnvModel          = "CODEGEN_MODEL" // sets every stage
	EnvCoderModel     = "CODEGEN_CODER_MODEL"
	EnvMaxIterations  = "CODEGEN_MAX_ITERATIONS"
	EnvDBPath         = "CODEGEN_DB"
	EnvMetricsAddr    = "CODEGEN_METRICS_ADDR"
	EnvPrometheusURL  = "CODEGEN_PROMETHEUS_URL"
	EnvOllamaHost     = "OLLAMA_HOST"
)

// Load reads the YAML config at path, applies environment overrides and defaults.
// A missing file is not an error: the run proceeds on defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logx.NewLogger("config").Debug("config file %s not found, using defaults", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvProjectRoot); v != "" {
		cfg.ProjectRoot = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Models.Planner = v
		cfg.Models.Architect = v
		cfg.Models.Coder = v
	}
	if v := os.Getenv(EnvCoderModel); v != "" {
		cfg.Models.Coder = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Persistence.DBPath = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv(EnvPrometheusURL); v != "" {
		cfg.Metrics.PrometheusURL = v
	}
	if v := os.Getenv(EnvOllamaHost); v != "" {
		cfg.Ollama.Host = v
	}

	for name, dst := range map[string]*int{
		EnvRecursionLimit: &cfg.RecursionLimit,
		EnvMaxIterations:  &cfg.Agent.MaxIterations,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", name, v, err)
		}
		*dst = n
	}
	return nil
}

// Save writes cfg as YAML to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}
