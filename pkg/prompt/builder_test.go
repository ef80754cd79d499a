package prompt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restpilot/restpilot/pkg/graph"
	"github.com/restpilot/restpilot/pkg/memory"
	"github.com/restpilot/restpilot/pkg/models"
	"github.com/restpilot/restpilot/pkg/snippet"
)

func testBundle() *graph.OperationBundle {
	return &graph.OperationBundle{
		OperationID:    "billing.listInvoices",
		Method:         "GET",
		Path:           "/v1/invoices",
		RequestSchema:  json.RawMessage(`{"type": "object"}`),
		ResponseSchema: json.RawMessage(`{"type": "array"}`),
		DocsMarkdown:   "Lists invoices for the account.",
	}
}

func TestBuildPlanMessages(t *testing.T) {
	b := NewBuilder()

	msgs, err := b.BuildPlanMessages(PlanInput{
		Prompt:  "refund the last invoice",
		Bundles: []*graph.OperationBundle{testBundle()},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "execution planner")
	assert.Contains(t, msgs[1].Content, "billing.listInvoices")
	assert.Contains(t, msgs[1].Content, "refund the last invoice")
	assert.NotContains(t, msgs[1].Content, "Previous attempt rejected")
}

func TestBuildPlanMessages_Replan(t *testing.T) {
	b := NewBuilder()

	msgs, err := b.BuildPlanMessages(PlanInput{
		Prompt:           "refund the last invoice",
		Bundles:          []*graph.OperationBundle{testBundle()},
		RejectionReasons: []string{`step "Refund" references unknown operation "billing.refund"`},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "Previous attempt rejected")
	assert.Contains(t, msgs[1].Content, `unknown operation "billing.refund"`)
}

func TestBuildStepMessages(t *testing.T) {
	b := NewBuilder()

	msgs, err := b.BuildStepMessages(StepInput{
		Prompt: "refund the last invoice",
		Step: models.Step{
			Title:       "List invoices",
			Description: "Fetch recent invoices and publish the latest one as lastInvoice.",
			Services:    []models.ServiceRef{{ServiceName: "billing", Operations: []string{"listInvoices"}}},
		},
		Bundles: []*graph.OperationBundle{testBundle()},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "List invoices")
	assert.Contains(t, msgs[1].Content, "billing [listInvoices]")
	assert.Contains(t, msgs[1].Content, "The value store is empty")
	assert.NotContains(t, msgs[1].Content, "Previous attempt failed")
}

func TestBuildStepMessages_MemoryEntries(t *testing.T) {
	b := NewBuilder()

	msgs, err := b.BuildStepMessages(StepInput{
		Prompt:  "refund the last invoice",
		Step:    models.Step{Title: "Refund", Description: "Refund lastInvoice."},
		Bundles: []*graph.OperationBundle{testBundle()},
		Memory: []memory.Entry{
			{Identifier: "lastInvoice", Description: "most recent invoice", Model: json.RawMessage(`{"id": "string"}`)},
		},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "lastInvoice: most recent invoice")
	assert.Contains(t, msgs[1].Content, `shape: {"id":"string"}`)
	assert.NotContains(t, msgs[1].Content, "The value store is empty")
}

func TestBuildStepMessages_FeedbackVerbatim(t *testing.T) {
	b := NewBuilder()

	prior := "package p;\npublic class Refund {\n  int x = ;\n}"
	msgs, err := b.BuildStepMessages(StepInput{
		Prompt:  "refund the last invoice",
		Step:    models.Step{Title: "Refund", Description: "Refund lastInvoice."},
		Bundles: []*graph.OperationBundle{testBundle()},
		Feedback: &StepFeedback{
			Snippet: prior,
			Diagnostics: []snippet.Diagnostic{
				{File: "Refund.java", Line: 3, Column: 11, Message: "illegal start of expression"},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "Previous attempt failed")
	assert.Contains(t, msgs[1].Content, prior)
	assert.Contains(t, msgs[1].Content, "Refund.java:3:11: illegal start of expression")
}

func TestBuildStepMessages_FeedbackErrorSummary(t *testing.T) {
	b := NewBuilder()

	msgs, err := b.BuildStepMessages(StepInput{
		Prompt: "p",
		Step:   models.Step{Title: "Refund", Description: "d"},
		Feedback: &StepFeedback{
			Snippet:      "package p;\npublic class Refund {}",
			ErrorSummary: "NullPointerException at Refund.execute",
		},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "NullPointerException at Refund.execute")
}

func TestBuildSummaryMessages(t *testing.T) {
	b := NewBuilder()

	store := memory.New()
	require.NoError(t, store.Put(memory.Entry{
		Identifier:  "total",
		Description: "refunded amount",
		Value:       json.RawMessage(`42`),
	}))

	msgs, err := b.BuildSummaryMessages(SummaryInput{
		Prompt: "refund the last invoice",
		Steps: []models.StepSummary{
			{Title: "List invoices", Summary: "found invoice inv_9"},
			{Title: "Refund", Summary: "refunded 42"},
		},
		Memory: store,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "1. List invoices: found invoice inv_9")
	assert.Contains(t, msgs[1].Content, "2. Refund: refunded 42")
	assert.Contains(t, msgs[1].Content, `"total"`)
}

func TestFormatOperationBundles_Empty(t *testing.T) {
	assert.Equal(t, "(none)", FormatOperationBundles(nil))
	assert.Equal(t, "(none)", FormatOperationBundles([]*graph.OperationBundle{nil}))
}

func TestPlanSchemaCompiles(t *testing.T) {
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(PlanSchema), &doc))
	require.NoError(t, json.Unmarshal([]byte(SummarySchema), &doc))
}
