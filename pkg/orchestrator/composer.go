package orchestrator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/restpilot/restpilot/pkg/llm"
	"github.com/restpilot/restpilot/pkg/memory"
	"github.com/restpilot/restpilot/pkg/models"
	"github.com/restpilot/restpilot/pkg/prompt"
)

// fallbackReasoning marks a summary assembled without the LLM.
const fallbackReasoning = "summary_fallback"

var summarySchema = llm.MustCompileSchema(prompt.SummarySchema)

// SummaryComposer turns the per-step summaries and the final value store into
// the user-facing answer. A malformed LLM response degrades to a concatenated
// fallback rather than failing the request.
type SummaryComposer struct {
	llm     llm.Client
	builder *prompt.Builder
	logger  *slog.Logger
}

// NewSummaryComposer creates a SummaryComposer.
func NewSummaryComposer(client llm.Client, builder *prompt.Builder, logger *slog.Logger) *SummaryComposer {
	return &SummaryComposer{llm: client, builder: builder, logger: logger}
}

// ComposeInput carries one summary request.
type ComposeInput struct {
	Prompt string
	Steps  []models.StepSummary
	Memory *memory.SharedMemory

	Temperature *float64
	MaxTokens   int
}

// Compose returns {answer, reasoning}. Only a fatal LLM error fails; schema
// violations in the response fall back to joined step summaries.
func (c *SummaryComposer) Compose(ctx context.Context, in ComposeInput) (string, string, *RequestError) {
	messages, err := c.builder.BuildSummaryMessages(prompt.SummaryInput{
		Prompt: in.Prompt,
		Steps:  in.Steps,
		Memory: in.Memory,
	})
	if err != nil {
		return "", "", classifyCollaboratorError(ctx, "prompt", err)
	}

	resp, err := c.llm.Chat(ctx, llm.Request{
		Messages:    messages,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
	})
	if err != nil {
		return "", "", classifyCollaboratorError(ctx, "llm", err)
	}

	var parsed struct {
		Answer    string `json:"answer"`
		Reasoning string `json:"reasoning"`
	}
	if err := llm.DecodeConstrained(summarySchema, resp.Content, &parsed); err != nil {
		c.logger.Warn("Summary response unusable, falling back", "error", err)
		answer, reasoning := FallbackSummary(in.Steps)
		return answer, reasoning, nil
	}
	return parsed.Answer, parsed.Reasoning, nil
}

// FallbackSummary concatenates step summaries into a best-effort answer.
func FallbackSummary(steps []models.StepSummary) (string, string) {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		parts = append(parts, s.Title+": "+s.Summary)
	}
	return strings.Join(parts, "\n"), fallbackReasoning
}
