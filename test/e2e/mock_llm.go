package e2e

import (
	"context"
	"fmt"
	"sync"

	"github.com/restpilot/restpilot/pkg/llm"
)

// LLMScriptEntry defines a single scripted LLM response.
type LLMScriptEntry struct {
	// Text is the response content. Exactly one of Text or Error is set.
	Text  string
	Error error

	// BlockUntilCancelled blocks the call until ctx is cancelled, then
	// returns ctx.Err(). OnBlock is notified when blocking starts.
	BlockUntilCancelled bool
	OnBlock             chan<- struct{}
}

// ScriptedLLMClient implements llm.Client, consuming entries in call order
// and recording every request for prompt assertions.
type ScriptedLLMClient struct {
	mu       sync.Mutex
	script   []LLMScriptEntry
	index    int
	captured []llm.Request
}

// NewScriptedLLMClient creates an empty scripted client.
func NewScriptedLLMClient() *ScriptedLLMClient {
	return &ScriptedLLMClient{}
}

// Add appends an entry to the script.
func (c *ScriptedLLMClient) Add(entry LLMScriptEntry) *ScriptedLLMClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, entry)
	return c
}

// AddText appends plain text responses in order.
func (c *ScriptedLLMClient) AddText(texts ...string) *ScriptedLLMClient {
	for _, t := range texts {
		c.Add(LLMScriptEntry{Text: t})
	}
	return c
}

// Chat implements llm.Client.
func (c *ScriptedLLMClient) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.captured = append(c.captured, req)
	if c.index >= len(c.script) {
		c.mu.Unlock()
		return nil, fmt.Errorf("llm script exhausted at call %d", len(c.captured))
	}
	entry := c.script[c.index]
	c.index++
	c.mu.Unlock()

	if entry.BlockUntilCancelled {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if entry.Error != nil {
		return nil, entry.Error
	}
	return &llm.Response{
		Content: entry.Text,
		Usage:   llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

// Generate implements llm.Client.
func (c *ScriptedLLMClient) Generate(ctx context.Context, prompt string, req llm.Request) (*llm.Response, error) {
	req.Messages = append(req.Messages, llm.Message{Role: "user", Content: prompt})
	return c.Chat(ctx, req)
}

// Calls returns how many calls were issued.
func (c *ScriptedLLMClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.captured)
}

// UserContent returns the user-role content of the nth call (1-based).
func (c *ScriptedLLMClient) UserContent(call int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if call < 1 || call > len(c.captured) {
		return ""
	}
	for _, m := range c.captured[call-1].Messages {
		if m.Role == "user" {
			return m.Content
		}
	}
	return ""
}
