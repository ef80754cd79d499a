// Package models defines the core data model shared across the orchestration
// pipeline: execution requests, plans, step implementations, and results.
// All types are plain serializable structs; no behavior beyond validation
// and option defaulting lives here.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Option bounds and defaults. Values outside the bounds are rejected by
// Options.Validate, not clamped.
const (
	DefaultMaxAttempts      = 3
	MaxMaxAttempts          = 10
	DefaultProgressInterval = 300 * time.Millisecond
	MaxProgressInterval     = 10 * time.Second
	DefaultProgressMinDelta = 1
	DefaultRequestTimeout   = 300 * time.Second
)

// ExecutionRequest is a single orchestration request: one prompt executed
// against the user's API catalog.
type ExecutionRequest struct {
	// RequestID uniquely identifies this request. Assigned by the caller
	// (or the transport layer), never reused.
	RequestID string `json:"request_id"`

	// Prompt is the free-form natural-language task. Must be non-empty.
	Prompt string `json:"prompt"`

	// ProgressToken is the opaque caller-supplied handle that enables
	// caller-visible progress. Empty means no progress delivery.
	ProgressToken string `json:"progress_token,omitempty"`

	// Options carries recognized tuning knobs. Unknown keys are ignored
	// but preserved for telemetry.
	Options Options `json:"options"`
}

// Validate checks the request invariants.
func (r *ExecutionRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("prompt must not be empty")
	}
	if r.RequestID == "" {
		return fmt.Errorf("request_id must not be empty")
	}
	return r.Options.Validate()
}

// Options are the recognized per-request tuning knobs.
// Unset values mean "use the configured default" and are resolved by
// WithDefaults before the request enters the pipeline. The progress knobs
// are pointers because zero is a valid explicit setting for both.
type Options struct {
	MaxAttempts         int            `json:"max_attempts,omitempty"`
	ProgressMinInterval *time.Duration `json:"progress_min_interval,omitempty"`
	ProgressMinDelta    *int           `json:"progress_min_delta,omitempty"`
	EnableProgress      *bool          `json:"enable_progress,omitempty"`
	RequestTimeout      time.Duration  `json:"request_timeout,omitempty"`

	// Advisory LLM knobs, passed through to the LLM client untouched.
	LLMTemperature *float64 `json:"llm_temperature,omitempty"`
	LLMMaxTokens   int      `json:"llm_max_tokens,omitempty"`

	// Unknown holds unrecognized option keys as received. They are ignored
	// by the pipeline but preserved as telemetry attributes.
	Unknown map[string]any `json:"-"`
}

// Validate checks option bounds. Unset values are always valid (defaulted later).
func (o *Options) Validate() error {
	if o.MaxAttempts < 0 || o.MaxAttempts > MaxMaxAttempts {
		return fmt.Errorf("maxAttempts must be in 1..%d, got %d", MaxMaxAttempts, o.MaxAttempts)
	}
	if o.ProgressMinInterval != nil && (*o.ProgressMinInterval < 0 || *o.ProgressMinInterval > MaxProgressInterval) {
		return fmt.Errorf("progressMinIntervalMs must be in 0..%d, got %d",
			MaxProgressInterval.Milliseconds(), o.ProgressMinInterval.Milliseconds())
	}
	if o.ProgressMinDelta != nil && *o.ProgressMinDelta < 0 {
		return fmt.Errorf("progressMinDelta must be >= 0, got %d", *o.ProgressMinDelta)
	}
	if o.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeoutMs must be >= 0, got %d", o.RequestTimeout.Milliseconds())
	}
	return nil
}

// WithDefaults returns a copy with unset values replaced by the supplied
// defaults. The defaults themselves come from configuration. An explicit
// zero on the progress knobs is kept, not overwritten.
func (o Options) WithDefaults(d OptionDefaults) Options {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.ProgressMinInterval == nil {
		interval := d.ProgressMinInterval
		o.ProgressMinInterval = &interval
	}
	if o.ProgressMinDelta == nil {
		delta := d.ProgressMinDelta
		o.ProgressMinDelta = &delta
	}
	if o.EnableProgress == nil {
		enabled := d.EnableProgress
		o.EnableProgress = &enabled
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = d.RequestTimeout
	}
	return o
}

// ProgressEnabled reports the resolved enable flag (true when unset).
func (o Options) ProgressEnabled() bool {
	return o.EnableProgress == nil || *o.EnableProgress
}

// OptionDefaults holds the config-sourced fallback values for Options.
type OptionDefaults struct {
	MaxAttempts         int
	ProgressMinInterval time.Duration
	ProgressMinDelta    int
	EnableProgress      bool
	RequestTimeout      time.Duration
}

// StandardOptionDefaults returns the built-in defaults used when no
// configuration overrides them.
func StandardOptionDefaults() OptionDefaults {
	return OptionDefaults{
		MaxAttempts:         DefaultMaxAttempts,
		ProgressMinInterval: DefaultProgressInterval,
		ProgressMinDelta:    DefaultProgressMinDelta,
		EnableProgress:      true,
		RequestTimeout:      DefaultRequestTimeout,
	}
}
