package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/restpilot/restpilot/pkg/graph"
	"github.com/restpilot/restpilot/pkg/llm"
	"github.com/restpilot/restpilot/pkg/memory"
	"github.com/restpilot/restpilot/pkg/models"
	"github.com/restpilot/restpilot/pkg/snippet"
)

// PlanSchema constrains the planner's response. Decoded plans are still
// validated against the catalog afterwards; the schema only pins the shape.
const PlanSchema = `{
  "type": "object",
  "required": ["steps"],
  "additionalProperties": false,
  "properties": {
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["title", "description", "services"],
        "additionalProperties": false,
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "description": {"type": "string", "minLength": 1},
          "services": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["service_name", "operations"],
              "additionalProperties": false,
              "properties": {
                "service_name": {"type": "string", "minLength": 1},
                "operations": {
                  "type": "array",
                  "minItems": 1,
                  "items": {"type": "string", "minLength": 1}
                }
              }
            }
          }
        }
      }
    }
  }
}`

// SummarySchema constrains the final summary response.
const SummarySchema = `{
  "type": "object",
  "required": ["answer", "reasoning"],
  "additionalProperties": false,
  "properties": {
    "answer": {"type": "string", "minLength": 1},
    "reasoning": {"type": "string"}
  }
}`

// Builder renders prompts for the pipeline stages. Stateless: all inputs
// arrive per call, so a single Builder serves concurrent requests.
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// PlanInput carries everything the plan prompt needs.
type PlanInput struct {
	Prompt  string
	Bundles []*graph.OperationBundle

	// RejectionReasons, when non-empty, enables the re-plan section with
	// the validation failures from the previous attempt.
	RejectionReasons []string
}

// BuildPlanMessages renders the plan-authoring prompt.
func (b *Builder) BuildPlanMessages(in PlanInput) ([]llm.Message, error) {
	overrides := map[string]bool{
		SectionPlanRetry: len(in.RejectionReasons) > 0,
	}
	return planTemplate.Render(map[string]any{
		"Prompt":     in.Prompt,
		"Operations": FormatOperationBundles(in.Bundles),
		"Reasons":    in.RejectionReasons,
	}, overrides)
}

// StepInput carries everything the step-implementation prompt needs.
type StepInput struct {
	Prompt  string
	Step    models.Step
	Bundles []*graph.OperationBundle
	Memory  []memory.Entry

	// Feedback, when set, enables the correction section.
	Feedback *StepFeedback
}

// StepFeedback is the failed attempt fed back verbatim.
type StepFeedback struct {
	Snippet     string
	Diagnostics []snippet.Diagnostic

	// ErrorSummary is used when the failure had no structured diagnostics
	// (a runtime error rather than a compile error).
	ErrorSummary string
}

// BuildStepMessages renders the step-implementation prompt.
func (b *Builder) BuildStepMessages(in StepInput) ([]llm.Message, error) {
	vars := map[string]any{
		"Prompt":      in.Prompt,
		"Title":       in.Step.Title,
		"Description": in.Step.Description,
		"Services":    formatServiceRefs(in.Step.Services),
		"Operations":  FormatOperationBundles(in.Bundles),
		"Entries":     formatMemoryEntries(in.Memory),
		"Snippet":     "",
		"Diagnostics": "",
	}
	overrides := map[string]bool{SectionStepFeedback: false}
	if in.Feedback != nil {
		overrides[SectionStepFeedback] = true
		vars["Snippet"] = in.Feedback.Snippet
		vars["Diagnostics"] = formatFeedbackDiagnostics(in.Feedback)
	}
	return stepTemplate.Render(vars, overrides)
}

// SummaryInput carries everything the summary prompt needs.
type SummaryInput struct {
	Prompt string
	Steps  []models.StepSummary
	Memory *memory.SharedMemory
}

// BuildSummaryMessages renders the summary-composition prompt.
func (b *Builder) BuildSummaryMessages(in SummaryInput) ([]llm.Message, error) {
	dump := "{}"
	if in.Memory != nil {
		if raw, err := in.Memory.Dump(); err == nil {
			dump = string(raw)
		}
	}
	return summaryTemplate.Render(map[string]any{
		"Prompt":        in.Prompt,
		"StepSummaries": formatStepSummaries(in.Steps),
		"MemoryDump":    dump,
	}, nil)
}

// FormatOperationBundles renders operation bundles as markdown for prompts.
// Nil bundles are skipped.
func FormatOperationBundles(bundles []*graph.OperationBundle) string {
	var sb strings.Builder
	for _, bundle := range bundles {
		if bundle == nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "### %s\n%s %s\n", bundle.OperationID, bundle.Method, bundle.Path)
		if bundle.DocsMarkdown != "" {
			sb.WriteString("\n" + strings.TrimSpace(bundle.DocsMarkdown) + "\n")
		}
		if len(bundle.RequestSchema) > 0 {
			fmt.Fprintf(&sb, "\nRequest schema:\n```json\n%s\n```\n", compactJSON(bundle.RequestSchema))
		}
		if len(bundle.ResponseSchema) > 0 {
			fmt.Fprintf(&sb, "\nResponse schema:\n```json\n%s\n```\n", compactJSON(bundle.ResponseSchema))
		}
		for _, example := range bundle.Examples {
			fmt.Fprintf(&sb, "\nExample:\n```\n%s\n```\n", strings.TrimSpace(example))
		}
	}
	if sb.Len() == 0 {
		return "(none)"
	}
	return strings.TrimSpace(sb.String())
}

func formatServiceRefs(refs []models.ServiceRef) string {
	if len(refs) == 0 {
		return "(none)"
	}
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		parts = append(parts, fmt.Sprintf("%s [%s]", ref.ServiceName, strings.Join(ref.Operations, ", ")))
	}
	return strings.Join(parts, "; ")
}

func formatMemoryEntries(entries []memory.Entry) string {
	if len(entries) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "- %s: %s\n", e.Identifier, e.Description)
		if len(e.Model) > 0 {
			fmt.Fprintf(&sb, "  shape: %s\n", compactJSON(e.Model))
		}
	}
	return strings.TrimSpace(sb.String())
}

func formatStepSummaries(steps []models.StepSummary) string {
	if len(steps) == 0 {
		return "(no steps completed)"
	}
	var sb strings.Builder
	for i, s := range steps {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, s.Title, s.Summary)
	}
	return strings.TrimSpace(sb.String())
}

// formatFeedbackDiagnostics prefers structured diagnostics; runtime failures
// fall back to the error summary text.
func formatFeedbackDiagnostics(fb *StepFeedback) string {
	if len(fb.Diagnostics) > 0 {
		return snippet.FormatDiagnostics(fb.Diagnostics)
	}
	if fb.ErrorSummary != "" {
		return fb.ErrorSummary
	}
	return "(no diagnostics reported)"
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
