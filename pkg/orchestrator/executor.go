package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/restpilot/restpilot/pkg/graph"
	"github.com/restpilot/restpilot/pkg/memory"
	"github.com/restpilot/restpilot/pkg/models"
	"github.com/restpilot/restpilot/pkg/progress"
	"github.com/restpilot/restpilot/pkg/prompt"
	"github.com/restpilot/restpilot/pkg/snippet"
)

// exhaustedSummary is the step summary surfaced when the retry budget runs out.
const exhaustedSummary = "retry-exhausted"

// PlanExecutor runs the steps of a validated plan strictly in order. Each
// step goes through the bounded design/compile/run retry machine; successful
// steps publish their memory mutations and a progress event before the next
// step starts.
type PlanExecutor struct {
	implementer *StepImplementer
	runtime     snippet.Runtime
	logger      *slog.Logger
}

// NewPlanExecutor creates a PlanExecutor.
func NewPlanExecutor(implementer *StepImplementer, runtime snippet.Runtime, logger *slog.Logger) *PlanExecutor {
	return &PlanExecutor{implementer: implementer, runtime: runtime, logger: logger}
}

// ExecuteInput carries one plan execution.
type ExecuteInput struct {
	Request models.ExecutionRequest
	Options models.Options
	Plan    *models.ExecutionPlan

	// Bundles maps "service.operation" keys to the prompt bundles fetched
	// at plan time.
	Bundles map[string]*graph.OperationBundle

	Memory     *memory.SharedMemory
	Sink       progress.Sink
	Normalizer *snippet.Normalizer

	// ServiceEndpoints are handed to the runtime unchanged.
	ServiceEndpoints map[string]string
}

// ExecuteOutput reports what the plan execution achieved, including the
// partial record when a step failed.
type ExecuteOutput struct {
	Steps []models.StepSummary

	// Operations lists every "service.operation" key of a completed step,
	// in invocation order without duplicates.
	Operations []string
}

// stepOutcome is the result of one successful step.
type stepOutcome struct {
	summary     string
	explanation string
	attempts    int
	warnings    []string
}

// Execute runs every step. On failure the summaries of completed steps (plus
// the exhausted marker for a retry-exhausted step) are still returned so the
// caller can surface a partial result.
func (e *PlanExecutor) Execute(ctx context.Context, in ExecuteInput) (*ExecuteOutput, *RequestError) {
	out := &ExecuteOutput{}
	seenOps := make(map[string]bool)

	for i, step := range in.Plan.Steps {
		if reqErr := checkCancelled(ctx, in.Sink); reqErr != nil {
			return out, reqErr
		}

		outcome, reqErr := e.runStep(ctx, in, step)
		if reqErr != nil {
			if reqErr.Kind == KindStepExhausted {
				out.Steps = append(out.Steps, models.StepSummary{Title: step.Title, Summary: exhaustedSummary})
			}
			return out, reqErr
		}

		out.Steps = append(out.Steps, models.StepSummary{Title: step.Title, Summary: outcome.summary})
		for _, key := range stepOperationKeys(step) {
			if !seenOps[key] {
				seenOps[key] = true
				out.Operations = append(out.Operations, key)
			}
		}

		attrs := stepAttrs(step, outcome)
		in.Sink.Step(progress.StageExec, i+1, step.Title, attrs)
	}
	return out, nil
}

// runStep drives the design → compile → run machine for one step. Design,
// compile, and run failures all draw from the same attempt counter; the
// first attempt counts too.
func (e *PlanExecutor) runStep(ctx context.Context, in ExecuteInput, step models.Step) (*stepOutcome, *RequestError) {
	bundles := bundlesForStep(step, in.Bundles)
	opKeys := stepOperationKeys(step)

	var feedback *prompt.StepFeedback
	for attempt := 1; attempt <= in.Options.MaxAttempts; attempt++ {
		if reqErr := checkCancelled(ctx, in.Sink); reqErr != nil {
			return nil, reqErr
		}

		impl, rejection, err := e.implementer.Implement(ctx, ImplementInput{
			Prompt:      in.Request.Prompt,
			Step:        step,
			Bundles:     bundles,
			Memory:      in.Memory.Snapshot(),
			Feedback:    feedback,
			Normalizer:  in.Normalizer,
			Temperature: in.Options.LLMTemperature,
			MaxTokens:   in.Options.LLMMaxTokens,
		})
		if err != nil {
			return nil, classifyCollaboratorError(ctx, "llm", err)
		}
		if rejection != nil {
			e.logger.Warn("Step design rejected",
				"step", step.Title, "attempt", attempt,
				"diagnostics", snippet.FormatDiagnostics(rejection.Diagnostics))
			feedback = &prompt.StepFeedback{Snippet: rejection.Snippet, Diagnostics: rejection.Diagnostics}
			continue
		}

		if reqErr := checkCancelled(ctx, in.Sink); reqErr != nil {
			return nil, reqErr
		}
		compiled, err := e.runtime.Compile(ctx, impl.Snippet)
		if err != nil {
			return nil, classifyCollaboratorError(ctx, "snippet-runtime", err)
		}
		if compiled.Failed {
			e.logger.Warn("Step compile failed",
				"step", step.Title, "attempt", attempt, "class", impl.QualifiedClassName)
			feedback = &prompt.StepFeedback{Snippet: impl.Snippet, Diagnostics: compiled.Diagnostics}
			continue
		}

		if reqErr := checkCancelled(ctx, in.Sink); reqErr != nil {
			return nil, reqErr
		}
		ran, err := e.runtime.Run(ctx, compiled.Artifact, snippet.RunContext{
			RequestID:        in.Request.RequestID,
			Memory:           in.Memory.Snapshot(),
			ServiceEndpoints: in.ServiceEndpoints,
			Operations:       opKeys,
		})
		if err != nil {
			reqErr := classifyCollaboratorError(ctx, "snippet-runtime", err)
			if reqErr.Kind == KindInternal {
				// Sandbox broke in a way unrelated to the snippet.
				return nil, &RequestError{Kind: KindRuntimeFailure, Message: reqErr.Message, StepTitle: step.Title, err: err}
			}
			return nil, reqErr
		}
		if ran.Failed {
			e.logger.Warn("Step run failed",
				"step", step.Title, "attempt", attempt, "error", ran.ErrorSummary)
			feedback = &prompt.StepFeedback{Snippet: impl.Snippet, ErrorSummary: ran.ErrorSummary}
			continue
		}

		warnings := applyMutations(in.Memory, ran.Mutations, e.logger, step.Title)
		return &stepOutcome{
			summary:     ran.Summary,
			explanation: impl.Explanation,
			attempts:    attempt,
			warnings:    warnings,
		}, nil
	}

	return nil, &RequestError{
		Kind:      KindStepExhausted,
		Message:   fmt.Sprintf("step failed after %d attempts", in.Options.MaxAttempts),
		StepTitle: step.Title,
	}
}

// applyMutations writes the snippet's named outputs into shared memory.
// Invalid identifiers are dropped with a warning that travels in the step's
// progress attrs; valid writes replace existing values.
func applyMutations(mem *memory.SharedMemory, mutations []memory.Entry, logger *slog.Logger, stepTitle string) []string {
	var warnings []string
	for _, entry := range mutations {
		if err := mem.Put(entry); err != nil {
			logger.Warn("Dropped memory write", "step", stepTitle, "identifier", entry.Identifier, "error", err)
			warnings = append(warnings, "dropped memory write: invalid identifier \""+entry.Identifier+"\"")
		}
	}
	return warnings
}

// checkCancelled polls the cancellation sources at a boundary.
func checkCancelled(ctx context.Context, sink progress.Sink) *RequestError {
	if err := ctx.Err(); err != nil {
		return cancellationError(err)
	}
	if sink.IsCancelled() {
		return newError(KindCancelled, "request cancelled by caller")
	}
	return nil
}

// stepAttrs builds the progress attrs for a completed step.
func stepAttrs(step models.Step, outcome *stepOutcome) map[string]any {
	attrs := map[string]any{"attempts": outcome.attempts}
	if len(step.Services) > 0 {
		attrs["service"] = step.Services[0].ServiceName
		if len(step.Services[0].Operations) > 0 {
			attrs["operation"] = step.Services[0].Operations[0]
		}
	}
	if outcome.explanation != "" {
		attrs["explanation"] = outcome.explanation
	}
	if len(outcome.warnings) > 0 {
		attrs["warnings"] = outcome.warnings
	}
	return attrs
}

func bundlesForStep(step models.Step, all map[string]*graph.OperationBundle) []*graph.OperationBundle {
	var bundles []*graph.OperationBundle
	for _, key := range stepOperationKeys(step) {
		if b := all[key]; b != nil {
			bundles = append(bundles, b)
		}
	}
	return bundles
}

func stepOperationKeys(step models.Step) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, svc := range step.Services {
		for _, op := range svc.Operations {
			key := svc.ServiceName + "." + op
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	return keys
}
