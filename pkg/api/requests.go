package api

import (
	"encoding/json"
	"time"

	"github.com/restpilot/restpilot/pkg/models"
)

// ExecuteRequest is the wire form of POST /api/v1/execute.
type ExecuteRequest struct {
	Prompt string `json:"prompt" binding:"required"`

	// RequestID lets the caller pick the identifier used by the cancel and
	// event-stream routes. Generated when absent.
	RequestID string `json:"requestId"`

	// ProgressToken opts in to progress events. Defaults to the request ID
	// so WebSocket subscribers receive events without extra negotiation.
	ProgressToken string `json:"progressToken"`

	Options *ExecuteOptions `json:"options"`
}

// ExecuteOptions mirrors models.Options with wire-friendly millisecond
// fields. Unset fields inherit the configured defaults; the progress knobs
// are pointers because zero is a valid explicit value.
type ExecuteOptions struct {
	MaxAttempts           int      `json:"maxAttempts"`
	EnableProgress        *bool    `json:"enableProgress"`
	ProgressMinIntervalMs *int     `json:"progressMinIntervalMs"`
	ProgressMinDelta      *int     `json:"progressMinDelta"`
	RequestTimeoutMs      int      `json:"requestTimeoutMs"`
	Temperature           *float64 `json:"temperature"`
	MaxTokens             int      `json:"maxTokens"`

	// Unknown holds unrecognized option keys as received. They are never
	// interpreted, only carried into telemetry attributes.
	Unknown map[string]any `json:"-"`
}

// recognizedOptionKeys are the wire keys decoded into typed fields above.
var recognizedOptionKeys = map[string]bool{
	"maxAttempts":           true,
	"enableProgress":        true,
	"progressMinIntervalMs": true,
	"progressMinDelta":      true,
	"requestTimeoutMs":      true,
	"temperature":           true,
	"maxTokens":             true,
}

// UnmarshalJSON decodes recognized keys into the typed fields and keeps any
// remaining keys in Unknown.
func (o *ExecuteOptions) UnmarshalJSON(data []byte) error {
	type plain ExecuteOptions
	var typed plain
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		if recognizedOptionKeys[key] {
			delete(raw, key)
		}
	}
	if len(raw) > 0 {
		typed.Unknown = raw
	}
	*o = ExecuteOptions(typed)
	return nil
}

// toModel converts the wire request into the orchestrator's request type.
func (r *ExecuteRequest) toModel() models.ExecutionRequest {
	req := models.ExecutionRequest{
		RequestID:     r.RequestID,
		Prompt:        r.Prompt,
		ProgressToken: r.ProgressToken,
	}
	if r.Options != nil {
		req.Options = models.Options{
			MaxAttempts:    r.Options.MaxAttempts,
			EnableProgress: r.Options.EnableProgress,
			RequestTimeout: time.Duration(r.Options.RequestTimeoutMs) * time.Millisecond,
			LLMTemperature: r.Options.Temperature,
			LLMMaxTokens:   r.Options.MaxTokens,
			Unknown:        r.Options.Unknown,
		}
		if r.Options.ProgressMinIntervalMs != nil {
			interval := time.Duration(*r.Options.ProgressMinIntervalMs) * time.Millisecond
			req.Options.ProgressMinInterval = &interval
		}
		if r.Options.ProgressMinDelta != nil {
			delta := *r.Options.ProgressMinDelta
			req.Options.ProgressMinDelta = &delta
		}
	}
	return req
}
