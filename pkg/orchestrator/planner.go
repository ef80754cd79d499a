package orchestrator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/restpilot/restpilot/pkg/graph"
	"github.com/restpilot/restpilot/pkg/llm"
	"github.com/restpilot/restpilot/pkg/models"
	"github.com/restpilot/restpilot/pkg/prompt"
)

// planAttempts bounds planning at one initial attempt plus one re-plan.
const planAttempts = 2

var planSchema = llm.MustCompileSchema(prompt.PlanSchema)

// PlanDesigner turns a prompt plus the extracted catalog context into a
// validated ExecutionPlan. A plan that fails validation earns exactly one
// re-plan with the rejection reasons embedded in the prompt.
type PlanDesigner struct {
	llm     llm.Client
	builder *prompt.Builder
	logger  *slog.Logger
}

// NewPlanDesigner creates a PlanDesigner.
func NewPlanDesigner(client llm.Client, builder *prompt.Builder, logger *slog.Logger) *PlanDesigner {
	return &PlanDesigner{llm: client, builder: builder, logger: logger}
}

// DesignInput carries one planning request.
type DesignInput struct {
	Prompt  string
	Bundles []*graph.OperationBundle

	// Known is the set of "service.operation" keys resolvable in the
	// catalog snapshot taken at plan time.
	Known map[string]bool

	Temperature *float64
	MaxTokens   int

	// OnAttempt is invoked after each LLM planning attempt with the
	// validation outcome. Nil-safe.
	OnAttempt func(attempt int, reasons []string)
}

// Design produces a validated plan or a RequestError. Plan-shaped responses
// that reference unknown operations are rejected and retried once; fatal LLM
// errors surface immediately.
func (d *PlanDesigner) Design(ctx context.Context, in DesignInput) (*models.ExecutionPlan, *RequestError) {
	var reasons []string
	for attempt := 1; attempt <= planAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, cancellationError(err)
		}

		messages, err := d.builder.BuildPlanMessages(prompt.PlanInput{
			Prompt:           in.Prompt,
			Bundles:          in.Bundles,
			RejectionReasons: reasons,
		})
		if err != nil {
			return nil, classifyCollaboratorError(ctx, "prompt", err)
		}

		resp, err := d.llm.Chat(ctx, llm.Request{
			Messages:    messages,
			Temperature: in.Temperature,
			MaxTokens:   in.MaxTokens,
			Cacheable:   true,
		})
		if err != nil {
			return nil, classifyCollaboratorError(ctx, "llm", err)
		}

		var plan models.ExecutionPlan
		if err := llm.DecodeConstrained(planSchema, resp.Content, &plan); err != nil {
			reasons = []string{"response was not a valid plan: " + err.Error()}
		} else {
			reasons = plan.Validate()
			reasons = append(reasons, validateAgainstCatalog(&plan, in.Known)...)
		}

		if in.OnAttempt != nil {
			in.OnAttempt(attempt, reasons)
		}
		if len(reasons) == 0 {
			return &plan, nil
		}
		d.logger.Warn("Plan rejected", "attempt", attempt, "reasons", reasons)
	}

	return nil, newError(KindInvalidPlan, "plan invalid after re-plan: %s", strings.Join(reasons, "; "))
}

// validateAgainstCatalog checks that every (service, operation) pair the plan
// references resolves in the snapshot taken at plan time.
func validateAgainstCatalog(plan *models.ExecutionPlan, known map[string]bool) []string {
	var reasons []string
	for _, step := range plan.Steps {
		for _, svc := range step.Services {
			for _, op := range svc.Operations {
				key := svc.ServiceName + "." + op
				if !known[key] {
					reasons = append(reasons, "step \""+step.Title+"\" references unknown operation \""+key+"\"")
				}
			}
		}
	}
	return reasons
}
