package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/restpilot/restpilot/pkg/llm"
)

// ConfigFileName is the single YAML file Initialize reads from configDir.
const ConfigFileName = "restpilot.yaml"

// Initialize loads, merges, and validates configuration from configDir.
//
// Steps performed:
//  1. Read restpilot.yaml (missing file falls back to built-in defaults)
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Parse YAML
//  4. Merge user values over built-in defaults
//  5. Validate the result
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"graph_backend", cfg.graphBackend(),
		"http_port", cfg.HTTP.Port)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.configDir = configDir

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults alone are a valid configuration for local use.
			slog.Warn("Configuration file not found, using built-in defaults", "path", path)
			return cfg, nil
		}
		return nil, &LoadError{File: ConfigFileName, Err: err}
	}

	// ExpandEnv passes the original data through on template errors and lets
	// the YAML parser produce the message.
	data = ExpandEnv(data)

	var user Config
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, &LoadError{File: ConfigFileName, Err: fmt.Errorf("%w: %v", ErrInvalidYAML, err)}
	}

	// Non-zero user values override defaults, unset fields keep them.
	if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
		return nil, &LoadError{File: ConfigFileName, Err: fmt.Errorf("failed to merge configuration: %w", err)}
	}
	// mergo treats pointers to zero values (false, 0.0) as empty; pointer
	// fields carry explicit opt-outs, so apply them directly.
	if user.Progress.Enabled != nil {
		cfg.Progress.Enabled = user.Progress.Enabled
	}
	if user.LLM.Temperature != nil {
		cfg.LLM.Temperature = user.LLM.Temperature
	}
	cfg.configDir = configDir

	return cfg, nil
}

// APIKey resolves the LLM API key from the environment variable named by
// llm.api_key_env. Empty when the variable is unset.
func (c *Config) APIKey() string {
	if c.LLM.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.LLM.APIKeyEnv)
}

// LLMClientConfig converts the LLM section into a client configuration.
func (c *Config) LLMClientConfig() llm.Config {
	return llm.Config{
		Provider:             c.LLM.Provider,
		BaseURL:              c.LLM.BaseURL,
		Model:                c.LLM.Model,
		APIKey:               c.APIKey(),
		MaxRequestsPerSecond: c.LLM.MaxRequestsPerSecond,
	}
}

func (c *Config) graphBackend() string {
	if c.Graph.Endpoint != "" {
		return "http"
	}
	if c.Graph.CatalogPath != "" {
		return "catalog"
	}
	return "none"
}
