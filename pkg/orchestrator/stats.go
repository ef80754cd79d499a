package orchestrator

import (
	"context"
	"sync"

	"github.com/restpilot/restpilot/pkg/llm"
)

// callStats accumulates token usage across every LLM call of one request.
type callStats struct {
	mu    sync.Mutex
	usage llm.Usage
	calls int
}

func (s *callStats) add(u llm.Usage) {
	s.mu.Lock()
	s.usage.PromptTokens += u.PromptTokens
	s.usage.CompletionTokens += u.CompletionTokens
	s.usage.TotalTokens += u.TotalTokens
	s.calls++
	s.mu.Unlock()
}

func (s *callStats) snapshot() llm.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// meteredClient wraps an llm.Client and records usage per request. The
// underlying client is shared across requests; the meter is not.
type meteredClient struct {
	inner llm.Client
	stats *callStats
}

// Generate implements llm.Client.
func (c *meteredClient) Generate(ctx context.Context, prompt string, req llm.Request) (*llm.Response, error) {
	resp, err := c.inner.Generate(ctx, prompt, req)
	if resp != nil {
		c.stats.add(resp.Usage)
	}
	return resp, err
}

// Chat implements llm.Client.
func (c *meteredClient) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := c.inner.Chat(ctx, req)
	if resp != nil {
		c.stats.add(resp.Usage)
	}
	return resp, err
}
