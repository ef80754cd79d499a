// Package config loads and validates the server configuration from
// restpilot.yaml: orchestration bounds, progress rate limits, snippet
// policies, LLM provider settings, and the catalog/runtime endpoints.
// Values are merged over built-in defaults and environment variables are
// expanded with {{.VAR}} template syntax.
package config

import (
	"path/filepath"
	"time"

	"github.com/restpilot/restpilot/pkg/models"
)

// Config is the resolved server configuration returned by Initialize.
type Config struct {
	configDir string

	Orchestration OrchestrationConfig `yaml:"orchestration"`
	Progress      ProgressConfig      `yaml:"progress"`
	Snippet       SnippetConfig       `yaml:"snippet"`
	LLM           LLMConfig           `yaml:"llm"`
	Graph         GraphConfig         `yaml:"graph"`
	Runtime       RuntimeConfig       `yaml:"runtime"`
	HTTP          HTTPConfig          `yaml:"http"`
}

// OrchestrationConfig bounds the per-request pipeline.
type OrchestrationConfig struct {
	// MaxAttempts is the default step retry budget (1..10).
	MaxAttempts int `yaml:"max_attempts"`

	// RequestTimeoutMs is the default request deadline in milliseconds.
	RequestTimeoutMs int `yaml:"request_timeout_ms"`
}

// ProgressConfig sets the progress defaults requests inherit.
type ProgressConfig struct {
	Enabled       *bool `yaml:"enabled"`
	MinIntervalMs int   `yaml:"min_interval_ms"`
	MinDelta      int   `yaml:"min_delta"`
}

// SnippetConfig sets the snippet normalization policies.
type SnippetConfig struct {
	MaxBytes         int    `yaml:"max_bytes"`
	DefaultNamespace string `yaml:"default_namespace"`
}

// LLMConfig selects and tunes the LLM provider.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key. The
	// key itself never appears in YAML.
	APIKeyEnv string `yaml:"api_key_env"`

	MaxRequestsPerSecond float64 `yaml:"max_requests_per_second"`

	// Temperature and MaxTokens are advisory defaults for requests that
	// set neither.
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// GraphConfig selects the knowledge graph backing: a local catalog file or a
// remote graph service. Endpoint takes precedence when both are set. A
// relative CatalogPath resolves against the config directory.
type GraphConfig struct {
	CatalogPath string `yaml:"catalog_path"`
	Endpoint    string `yaml:"endpoint"`
}

// RuntimeConfig selects the snippet runtime. An empty endpoint selects the
// in-process fake, which is only useful for tests and local development.
type RuntimeConfig struct {
	Endpoint string `yaml:"endpoint"`

	// ServiceEndpoints map catalog service names to base URLs the sandbox
	// clients call.
	ServiceEndpoints map[string]string `yaml:"service_endpoints"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port             int      `yaml:"port"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// CatalogPath returns the catalog file path, resolving relative paths
// against the config directory.
func (c *Config) CatalogPath() string {
	p := c.Graph.CatalogPath
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}

// RequestTimeout returns the default request deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Orchestration.RequestTimeoutMs) * time.Millisecond
}

// OptionDefaults converts the configured defaults into the per-request
// option fallbacks the orchestrator applies.
func (c *Config) OptionDefaults() models.OptionDefaults {
	enabled := true
	if c.Progress.Enabled != nil {
		enabled = *c.Progress.Enabled
	}
	return models.OptionDefaults{
		MaxAttempts:         c.Orchestration.MaxAttempts,
		ProgressMinInterval: time.Duration(c.Progress.MinIntervalMs) * time.Millisecond,
		ProgressMinDelta:    c.Progress.MinDelta,
		EnableProgress:      enabled,
		RequestTimeout:      c.RequestTimeout(),
	}
}
