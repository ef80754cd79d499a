// Package llm provides a provider-agnostic LLM client with retry, rate
// limiting, and JSON-schema-constrained output handling. Providers (OpenAI-
// compatible, Anthropic) are registered in a small registry and speak plain
// JSON over HTTP.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// ErrUnavailable signals the provider endpoint could not be reached.
// Surfaced by the orchestrator as UpstreamUnavailable, never retried there.
var ErrUnavailable = errors.New("llm provider unavailable")

// Message is one chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is one completion request.
type Request struct {
	Messages []Message

	// Temperature is advisory; nil uses the endpoint default.
	Temperature *float64

	// MaxTokens is advisory; 0 uses the endpoint default.
	MaxTokens int

	// Cacheable marks the request as safe for provider-side prompt caching.
	Cacheable bool
}

// Response is the completion result.
type Response struct {
	Content      string
	Model        string
	Usage        Usage
	FinishReason string
}

// Listener receives telemetry for every completed call. Implementations
// must be cheap and must not block.
type Listener interface {
	OnLLMCall(model string, usage Usage, wall time.Duration)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(model string, usage Usage, wall time.Duration)

// OnLLMCall implements Listener.
func (f ListenerFunc) OnLLMCall(model string, usage Usage, wall time.Duration) {
	f(model, usage, wall)
}

// Client is the LLM contract the orchestration core depends on.
type Client interface {
	// Generate sends a single user prompt.
	Generate(ctx context.Context, prompt string, req Request) (*Response, error)

	// Chat sends a full conversation.
	Chat(ctx context.Context, req Request) (*Response, error)
}

// Config configures an HTTPClient.
type Config struct {
	// Provider selects the wire protocol ("openai" or "anthropic").
	Provider string

	// BaseURL is the endpoint root, e.g. "https://api.openai.com".
	BaseURL string

	// Model is the model identifier sent to the provider.
	Model string

	// APIKey authenticates the requests.
	APIKey string

	// MaxRequestsPerSecond rate-limits outgoing calls. Zero disables.
	MaxRequestsPerSecond float64
}

// HTTPClient is the production Client: one provider endpoint, retry with
// exponential backoff for transient transport failures, a rate limiter, and
// a circuit breaker that converts persistent failure into ErrUnavailable.
type HTTPClient struct {
	cfg         Config
	provider    Provider
	httpClient  *http.Client
	retryConfig RetryConfig
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	listener    Listener
	logger      *slog.Logger
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *HTTPClient) { client.httpClient = c }
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *HTTPClient) { client.retryConfig = cfg }
}

// WithListener installs a telemetry listener.
func WithListener(l Listener) ClientOption {
	return func(client *HTTPClient) { client.listener = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(client *HTTPClient) { client.logger = l }
}

// NewHTTPClient creates a client for the configured provider.
func NewHTTPClient(cfg Config, opts ...ClientOption) (*HTTPClient, error) {
	provider := GetProvider(cfg.Provider)
	if provider == nil {
		return nil, fmt.Errorf("unknown llm provider %q (registered: %v)", cfg.Provider, ListProviders())
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm provider %s: base URL is required", cfg.Provider)
	}

	c := &HTTPClient{
		cfg:         cfg,
		provider:    provider,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		retryConfig: DefaultRetryConfig(),
		logger:      slog.Default(),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "llm-" + cfg.Provider,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
	if cfg.MaxRequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate implements Client.
func (c *HTTPClient) Generate(ctx context.Context, prompt string, req Request) (*Response, error) {
	req.Messages = append(req.Messages, Message{Role: "user", Content: prompt})
	return c.Chat(ctx, req)
}

// Chat implements Client.
func (c *HTTPClient) Chat(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("llm request has no messages")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := c.provider.BuildRequestBody(c.cfg.Model, req)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request body: %w", c.cfg.Provider, err)
	}

	var lastErr error
	backoff := c.retryConfig.BackoffBase
	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, callErr := c.doOnce(ctx, body)
		if callErr == nil {
			if c.listener != nil {
				c.listener.OnLLMCall(resp.Model, resp.Usage, resp.wall)
			}
			return &resp.Response, nil
		}
		lastErr = callErr
		if !isRetryable(callErr) || attempt == c.retryConfig.MaxAttempts {
			break
		}

		// Exponential backoff with jitter.
		sleep := backoff + time.Duration(rand.Int64N(int64(backoff/2)+1))
		c.logger.Warn("LLM call failed, retrying",
			"provider", c.cfg.Provider, "attempt", attempt, "backoff", sleep, "error", callErr)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff = time.Duration(float64(backoff) * c.retryConfig.BackoffMultiplier)
		if backoff > c.retryConfig.MaxBackoff {
			backoff = c.retryConfig.MaxBackoff
		}
	}

	if errors.Is(lastErr, gobreaker.ErrOpenState) || errors.Is(lastErr, gobreaker.ErrTooManyRequests) || isTransport(lastErr) {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, lastErr.Error())
	}
	return nil, lastErr
}

// timedResponse carries wall time alongside the parsed response.
type timedResponse struct {
	Response
	wall time.Duration
}

// doOnce performs a single HTTP round trip through the breaker.
func (c *HTTPClient) doOnce(ctx context.Context, body []byte) (*timedResponse, error) {
	start := time.Now()
	result, err := c.breaker.Execute(func() (any, error) {
		url := c.provider.BuildURL(c.cfg.BaseURL)
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		c.provider.SetHeaders(req, c.cfg.APIKey)

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, &transportError{cause: doErr}
		}
		defer func() { _ = resp.Body.Close() }()

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if readErr != nil {
			return nil, &transportError{cause: readErr}
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &transportError{cause: fmt.Errorf("provider returned %d: %s", resp.StatusCode, truncate(string(data), 200))}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, truncate(string(data), 200))
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}

	parsed, err := c.provider.ParseResponse(result.([]byte), c.cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", c.cfg.Provider, err)
	}
	return &timedResponse{Response: *parsed, wall: time.Since(start)}, nil
}

// transportError marks retryable network/5xx/429 failures.
type transportError struct{ cause error }

func (e *transportError) Error() string { return e.cause.Error() }
func (e *transportError) Unwrap() error { return e.cause }

func isRetryable(err error) bool {
	return isTransport(err)
}

func isTransport(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
