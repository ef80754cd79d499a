package config

import "github.com/restpilot/restpilot/pkg/models"

const (
	// DefaultHTTPPort is the API server port when http.port is unset.
	DefaultHTTPPort = 8710

	// DefaultSnippetNamespace is where unqualified snippet classes land.
	DefaultSnippetNamespace = "core.request.snippets"

	// DefaultSnippetMaxBytes caps normalized snippet size.
	DefaultSnippetMaxBytes = 256 * 1024

	// DefaultLLMRequestsPerSecond throttles outbound LLM calls.
	DefaultLLMRequestsPerSecond = 5.0
)

// DefaultConfig returns the built-in configuration. User YAML is merged on
// top, so every field here must hold a sensible standalone value.
func DefaultConfig() *Config {
	enabled := true
	return &Config{
		Orchestration: OrchestrationConfig{
			MaxAttempts:      models.DefaultMaxAttempts,
			RequestTimeoutMs: int(models.DefaultRequestTimeout.Milliseconds()),
		},
		Progress: ProgressConfig{
			Enabled:       &enabled,
			MinIntervalMs: int(models.DefaultProgressInterval.Milliseconds()),
			MinDelta:      models.DefaultProgressMinDelta,
		},
		Snippet: SnippetConfig{
			MaxBytes:         DefaultSnippetMaxBytes,
			DefaultNamespace: DefaultSnippetNamespace,
		},
		Graph: GraphConfig{
			CatalogPath: "catalog.yaml",
		},
		LLM: LLMConfig{
			Provider:             "openai",
			Model:                "gpt-4o",
			APIKeyEnv:            "RESTPILOT_LLM_API_KEY",
			MaxRequestsPerSecond: DefaultLLMRequestsPerSecond,
		},
		HTTP: HTTPConfig{
			Port: DefaultHTTPPort,
		},
	}
}
