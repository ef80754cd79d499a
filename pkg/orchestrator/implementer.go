package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/restpilot/restpilot/pkg/graph"
	"github.com/restpilot/restpilot/pkg/llm"
	"github.com/restpilot/restpilot/pkg/memory"
	"github.com/restpilot/restpilot/pkg/models"
	"github.com/restpilot/restpilot/pkg/prompt"
	"github.com/restpilot/restpilot/pkg/snippet"
)

// Rejection is an attempt-consuming design failure: the LLM responded, but
// the snippet cannot proceed to compilation. It carries what the retry
// prompt needs to embed.
type Rejection struct {
	// Snippet is the offending source as received (after fence stripping
	// where possible), fed back verbatim.
	Snippet string

	// Diagnostics describe what to fix.
	Diagnostics []snippet.Diagnostic
}

// StepImplementer turns one step into an executable snippet. When a previous
// attempt failed, its snippet and diagnostics are embedded verbatim in the
// prompt so the model fixes rather than regenerates.
type StepImplementer struct {
	llm     llm.Client
	builder *prompt.Builder
	logger  *slog.Logger
}

// NewStepImplementer creates a StepImplementer.
func NewStepImplementer(client llm.Client, builder *prompt.Builder, logger *slog.Logger) *StepImplementer {
	return &StepImplementer{llm: client, builder: builder, logger: logger}
}

// ImplementInput carries one design attempt.
type ImplementInput struct {
	Prompt     string
	Step       models.Step
	Bundles    []*graph.OperationBundle
	Memory     []memory.Entry
	Feedback   *prompt.StepFeedback
	Normalizer *snippet.Normalizer

	Temperature *float64
	MaxTokens   int
}

// Implement returns the normalized implementation, or a Rejection when the
// response cannot become a compilable snippet, or a fatal error when the LLM
// itself failed. Exactly one of the three is non-zero.
func (im *StepImplementer) Implement(ctx context.Context, in ImplementInput) (*models.StepImplementation, *Rejection, error) {
	messages, err := im.builder.BuildStepMessages(prompt.StepInput{
		Prompt:   in.Prompt,
		Step:     in.Step,
		Bundles:  in.Bundles,
		Memory:   in.Memory,
		Feedback: in.Feedback,
	})
	if err != nil {
		return nil, nil, err
	}

	resp, err := im.llm.Chat(ctx, llm.Request{
		Messages:    messages,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
	})
	if err != nil {
		return nil, nil, err
	}

	raw := strings.TrimSpace(resp.Content)
	if raw == "" {
		return nil, &Rejection{Diagnostics: []snippet.Diagnostic{
			{Message: "response contained no code; respond with the snippet in a single code block"},
		}}, nil
	}

	// Prose around the fenced block is the model's narrative for the step;
	// it never reaches the compiler.
	code, explanation := snippet.SplitCodeFence(raw)

	normalized, err := in.Normalizer.Normalize(code)
	if err != nil {
		return nil, im.rejectNormalization(code, err), nil
	}

	return &models.StepImplementation{
		QualifiedClassName: normalized.QualifiedClassName(),
		Snippet:            normalized.Source,
		Explanation:        explanation,
	}, nil, nil
}

// rejectNormalization converts a normalization failure into a synthetic
// diagnostic the model can act on.
func (im *StepImplementer) rejectNormalization(raw string, err error) *Rejection {
	stripped := snippet.StripCodeFence(raw)

	var classErr *snippet.ClassCountError
	if errors.As(err, &classErr) {
		return &Rejection{Snippet: stripped, Diagnostics: []snippet.Diagnostic{classErr.Diagnostic()}}
	}
	if errors.Is(err, snippet.ErrTooLarge) {
		return &Rejection{Snippet: "", Diagnostics: []snippet.Diagnostic{
			{Message: err.Error() + "; produce a substantially shorter snippet"},
		}}
	}
	return &Rejection{Snippet: stripped, Diagnostics: []snippet.Diagnostic{{Message: err.Error()}}}
}
