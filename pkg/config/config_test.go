package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restpilot/restpilot/pkg/models"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))
	return dir
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, validate(cfg))

	assert.Equal(t, models.DefaultMaxAttempts, cfg.Orchestration.MaxAttempts)
	assert.Equal(t, 300*time.Second, cfg.RequestTimeout())
	assert.Equal(t, DefaultHTTPPort, cfg.HTTP.Port)
}

func TestInitialize_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultSnippetNamespace, cfg.Snippet.DefaultNamespace)
	assert.Equal(t, "openai", cfg.LLM.Provider)
}

func TestInitialize_UserOverridesMergeOverDefaults(t *testing.T) {
	dir := writeConfig(t, `
orchestration:
  max_attempts: 5
llm:
  provider: anthropic
  model: claude-test
http:
  port: 9000
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Orchestration.MaxAttempts)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-test", cfg.LLM.Model)
	assert.Equal(t, 9000, cfg.HTTP.Port)

	// Unset sections keep their defaults.
	assert.Equal(t, int(models.DefaultRequestTimeout.Milliseconds()), cfg.Orchestration.RequestTimeoutMs)
	assert.Equal(t, DefaultSnippetMaxBytes, cfg.Snippet.MaxBytes)
	assert.Equal(t, "catalog.yaml", cfg.Graph.CatalogPath)
}

func TestInitialize_ProgressDisabledOverridesDefault(t *testing.T) {
	dir := writeConfig(t, "progress:\n  enabled: false\n")

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	require.NotNil(t, cfg.Progress.Enabled)
	assert.False(t, *cfg.Progress.Enabled)
	assert.False(t, cfg.OptionDefaults().EnableProgress)
}

func TestInitialize_EnvExpansion(t *testing.T) {
	t.Setenv("RESTPILOT_TEST_MODEL", "gpt-env")
	dir := writeConfig(t, "llm:\n  model: {{.RESTPILOT_TEST_MODEL}}\n")

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "gpt-env", cfg.LLM.Model)
}

func TestInitialize_InvalidYAML(t *testing.T) {
	dir := writeConfig(t, "orchestration: [not a map\n")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestInitialize_ValidationFailure(t *testing.T) {
	dir := writeConfig(t, "orchestration:\n  max_attempts: 99\n")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestValidate_Bounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"max attempts zero", func(c *Config) { c.Orchestration.MaxAttempts = 0 }, "max_attempts"},
		{"max attempts over cap", func(c *Config) { c.Orchestration.MaxAttempts = 11 }, "max_attempts"},
		{"timeout zero", func(c *Config) { c.Orchestration.RequestTimeoutMs = 0 }, "request_timeout_ms"},
		{"negative interval", func(c *Config) { c.Progress.MinIntervalMs = -1 }, "min_interval_ms"},
		{"interval over cap", func(c *Config) { c.Progress.MinIntervalMs = 20000 }, "min_interval_ms"},
		{"negative delta", func(c *Config) { c.Progress.MinDelta = -1 }, "min_delta"},
		{"snippet bytes zero", func(c *Config) { c.Snippet.MaxBytes = 0 }, "max_bytes"},
		{"empty namespace", func(c *Config) { c.Snippet.DefaultNamespace = "" }, "default_namespace"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "nope" }, "provider"},
		{"empty model", func(c *Config) { c.LLM.Model = "" }, "model"},
		{"temperature out of range", func(c *Config) { temp := 3.0; c.LLM.Temperature = &temp }, "temperature"},
		{"no graph backend", func(c *Config) { c.Graph = GraphConfig{} }, "catalog_path"},
		{"port zero", func(c *Config) { c.HTTP.Port = 0 }, "port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := validate(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidValue)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestOptionDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Orchestration.MaxAttempts = 4
	cfg.Progress.MinIntervalMs = 500
	cfg.Progress.MinDelta = 2
	disabled := false
	cfg.Progress.Enabled = &disabled

	defaults := cfg.OptionDefaults()
	assert.Equal(t, 4, defaults.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, defaults.ProgressMinInterval)
	assert.Equal(t, 2, defaults.ProgressMinDelta)
	assert.False(t, defaults.EnableProgress)
	assert.Equal(t, 300*time.Second, defaults.RequestTimeout)
}

func TestCatalogPathResolution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.configDir = "/etc/restpilot"
	cfg.Graph.CatalogPath = "catalog.yaml"
	assert.Equal(t, filepath.Join("/etc/restpilot", "catalog.yaml"), cfg.CatalogPath())

	cfg.Graph.CatalogPath = "/data/catalog.yaml"
	assert.Equal(t, "/data/catalog.yaml", cfg.CatalogPath())
}

func TestLLMClientConfig_APIKeyFromEnv(t *testing.T) {
	t.Setenv("RESTPILOT_TEST_KEY", "sk-test")
	cfg := DefaultConfig()
	cfg.LLM.APIKeyEnv = "RESTPILOT_TEST_KEY"
	cfg.LLM.BaseURL = "http://localhost:9999"

	cc := cfg.LLMClientConfig()
	assert.Equal(t, "openai", cc.Provider)
	assert.Equal(t, "http://localhost:9999", cc.BaseURL)
	assert.Equal(t, "sk-test", cc.APIKey)
}
