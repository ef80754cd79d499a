package config

import (
	"strings"

	"github.com/restpilot/restpilot/pkg/llm"
	"github.com/restpilot/restpilot/pkg/models"
)

// validate checks every section of the merged configuration and returns the
// first failure. Bounds mirror what the orchestrator enforces per request so
// misconfiguration fails at startup, not on the first request.
func validate(cfg *Config) error {
	if err := validateOrchestration(&cfg.Orchestration); err != nil {
		return err
	}
	if err := validateProgress(&cfg.Progress); err != nil {
		return err
	}
	if err := validateSnippet(&cfg.Snippet); err != nil {
		return err
	}
	if err := validateLLM(&cfg.LLM); err != nil {
		return err
	}
	if err := validateGraph(&cfg.Graph); err != nil {
		return err
	}
	return validateHTTP(&cfg.HTTP)
}

func validateOrchestration(c *OrchestrationConfig) error {
	if c.MaxAttempts < 1 || c.MaxAttempts > models.MaxMaxAttempts {
		return newValidationError("orchestration", "max_attempts",
			"must be between 1 and %d, got %d", models.MaxMaxAttempts, c.MaxAttempts)
	}
	if c.RequestTimeoutMs <= 0 {
		return newValidationError("orchestration", "request_timeout_ms",
			"must be positive, got %d", c.RequestTimeoutMs)
	}
	return nil
}

func validateProgress(c *ProgressConfig) error {
	maxInterval := int(models.MaxProgressInterval.Milliseconds())
	if c.MinIntervalMs < 0 || c.MinIntervalMs > maxInterval {
		return newValidationError("progress", "min_interval_ms",
			"must be between 0 and %d, got %d", maxInterval, c.MinIntervalMs)
	}
	if c.MinDelta < 0 {
		return newValidationError("progress", "min_delta",
			"must not be negative, got %d", c.MinDelta)
	}
	return nil
}

func validateSnippet(c *SnippetConfig) error {
	if c.MaxBytes <= 0 {
		return newValidationError("snippet", "max_bytes",
			"must be positive, got %d", c.MaxBytes)
	}
	if c.DefaultNamespace == "" {
		return newValidationError("snippet", "default_namespace", "must not be empty")
	}
	return nil
}

func validateLLM(c *LLMConfig) error {
	if c.Provider == "" {
		return newValidationError("llm", "provider", "must not be empty")
	}
	if llm.GetProvider(c.Provider) == nil {
		return newValidationError("llm", "provider",
			"unknown provider %q, available: %s", c.Provider, strings.Join(llm.ListProviders(), ", "))
	}
	if c.Model == "" {
		return newValidationError("llm", "model", "must not be empty")
	}
	if c.MaxRequestsPerSecond < 0 {
		return newValidationError("llm", "max_requests_per_second",
			"must not be negative, got %v", c.MaxRequestsPerSecond)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return newValidationError("llm", "temperature",
			"must be between 0 and 2, got %v", *c.Temperature)
	}
	if c.MaxTokens < 0 {
		return newValidationError("llm", "max_tokens",
			"must not be negative, got %d", c.MaxTokens)
	}
	return nil
}

func validateGraph(c *GraphConfig) error {
	if c.CatalogPath == "" && c.Endpoint == "" {
		return newValidationError("graph", "catalog_path",
			"either catalog_path or endpoint must be set")
	}
	return nil
}

func validateHTTP(c *HTTPConfig) error {
	if c.Port < 1 || c.Port > 65535 {
		return newValidationError("http", "port",
			"must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}
