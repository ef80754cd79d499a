package graph

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

// maxResponseSize caps graph service response bodies.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// ErrUnavailable signals the graph service could not be reached (or the
// breaker is open). Surfaced by the orchestrator as UpstreamUnavailable.
var ErrUnavailable = errors.New("knowledge graph unavailable")

// HTTPGraph queries a remote knowledge-graph service over JSON/HTTP.
type HTTPGraph struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// HTTPGraphOption configures an HTTPGraph.
type HTTPGraphOption func(*HTTPGraph)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPGraphOption {
	return func(g *HTTPGraph) { g.httpClient = c }
}

// NewHTTPGraph creates a client for the graph service at baseURL.
func NewHTTPGraph(baseURL string, opts ...HTTPGraphOption) *HTTPGraph {
	g := &HTTPGraph{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "knowledge-graph",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type queryContextRequest struct {
	Prompt string `json:"prompt"`
}

type queryContextResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type queryOperationRequest struct {
	OperationKey string `json:"operation_key"`
}

// QueryContext implements KnowledgeGraph.
func (g *HTTPGraph) QueryContext(ctx context.Context, prompt string) ([]Candidate, error) {
	var out queryContextResponse
	found, err := g.post(ctx, "/v1/graph/context", queryContextRequest{Prompt: prompt}, &out)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return out.Candidates, nil
}

// QueryOperationForPrompt implements KnowledgeGraph.
func (g *HTTPGraph) QueryOperationForPrompt(ctx context.Context, operationKey string) (*OperationBundle, error) {
	var out OperationBundle
	found, err := g.post(ctx, "/v1/graph/operation", queryOperationRequest{OperationKey: operationKey}, &out)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &out, nil
}

// transientError marks transport and 5xx failures for the ErrUnavailable
// wrap; other failures, such as a 4xx protocol mismatch, surface unwrapped.
type transientError struct{ cause error }

func (e *transientError) Error() string { return e.cause.Error() }

func (e *transientError) Unwrap() error { return e.cause }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// post sends one JSON request through the breaker. Returns found=false for
// 404 (nothing matches), an ErrUnavailable-wrapped error for transport and
// 5xx failures, and a plain error for other statuses and malformed payloads.
func (g *HTTPGraph) post(ctx context.Context, path string, in, out any) (found bool, err error) {
	body, err := json.Marshal(in)
	if err != nil {
		return false, fmt.Errorf("failed to marshal graph request: %w", err)
	}

	result, err := g.breaker.Execute(func() (any, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := g.httpClient.Do(req)
		if doErr != nil {
			return nil, &transientError{cause: doErr}
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		if resp.StatusCode >= 500 {
			return nil, &transientError{cause: fmt.Errorf("graph service returned %d", resp.StatusCode)}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected graph service status %d", resp.StatusCode)
		}
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if readErr != nil {
			return nil, fmt.Errorf("failed to read graph response: %w", readErr)
		}
		return data, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || isTransient(err) {
			return false, fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
		}
		return false, err
	}
	if result == nil {
		return false, nil
	}

	if err := json.Unmarshal(result.([]byte), out); err != nil {
		return false, fmt.Errorf("failed to decode graph response: %w", err)
	}
	return true, nil
}
