package snippet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// maxResponseSize caps sidecar response bodies.
const maxResponseSize = 32 * 1024 * 1024 // 32MB; artifacts travel inline

// SidecarRuntime talks to the out-of-process snippet sandbox over JSON/HTTP.
// The sidecar owns compilation, class loading, and wall-clock enforcement;
// this client only moves payloads and classifies outcomes.
type SidecarRuntime struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// SidecarOption configures a SidecarRuntime.
type SidecarOption func(*SidecarRuntime)

// WithSidecarHTTPClient sets a custom HTTP client.
func WithSidecarHTTPClient(c *http.Client) SidecarOption {
	return func(r *SidecarRuntime) { r.httpClient = c }
}

// NewSidecarRuntime creates a client for the sandbox sidecar at baseURL.
func NewSidecarRuntime(baseURL string, opts ...SidecarOption) *SidecarRuntime {
	r := &SidecarRuntime{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "snippet-sidecar",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type compileRequest struct {
	Snippet string `json:"snippet"`
}

type runRequest struct {
	Artifact Artifact   `json:"artifact"`
	Context  RunContext `json:"context"`
}

// Compile implements Runtime.
func (r *SidecarRuntime) Compile(ctx context.Context, snippet string) (*CompileResult, error) {
	var result CompileResult
	if err := r.post(ctx, "/v1/compile", compileRequest{Snippet: snippet}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Run implements Runtime.
func (r *SidecarRuntime) Run(ctx context.Context, artifact Artifact, rc RunContext) (*RunResult, error) {
	var result RunResult
	if err := r.post(ctx, "/v1/run", runRequest{Artifact: artifact, Context: rc}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// post sends one JSON request through the breaker. Transport failures, 5xx
// responses, and an open breaker all surface as ErrUnavailable; the
// sandbox being broken is not something a snippet retry can fix.
func (r *SidecarRuntime) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal sidecar request: %w", err)
	}

	result, err := r.breaker.Execute(func() (any, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := r.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer func() { _ = resp.Body.Close() }()

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if readErr != nil {
			return nil, fmt.Errorf("failed to read sidecar response: %w", readErr)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("sidecar returned %d: %s", resp.StatusCode, string(data))
		}
		return data, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
		}
		return fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
	}

	if err := json.Unmarshal(result.([]byte), out); err != nil {
		return fmt.Errorf("failed to decode sidecar response: %w", err)
	}
	return nil
}
