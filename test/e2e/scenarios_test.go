package e2e

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restpilot/restpilot/pkg/memory"
	"github.com/restpilot/restpilot/pkg/snippet"
)

const echoPlan = `{"steps":[{"title":"t1","description":"echo the value","services":[{"service_name":"math","operations":["echo"]}]}]}`

const sumPlan = `{"steps":[
  {"title":"collect","description":"write the base total","services":[{"service_name":"math","operations":["sum"]}]},
  {"title":"update","description":"add and overwrite the total","services":[{"service_name":"math","operations":["sum"]}]}]}`

func javaSnippet(class string) string {
	return "```java\npackage app;\npublic class " + class + " {\n}\n```"
}

func TestHappyPathSingleStep(t *testing.T) {
	llm := NewScriptedLLMClient().AddText(
		echoPlan,
		javaSnippet("Echo"),
		`{"answer":"42","reasoning":"single-step"}`,
	)
	rt := snippet.NewFakeRuntime()
	rt.RunScript = []snippet.RunResult{{Summary: "42"}}
	app := StartTestApp(t, WithLLM(llm), WithRuntime(rt))

	resp := app.ExecuteOK(`{"prompt":"echo 42","requestId":"req-s1"}`)
	assert.Equal(t, "42", resp.Answer)
	assert.Equal(t, "single-step", resp.Reasoning)
	require.Len(t, resp.Steps, 1)
	assert.Equal(t, "t1", resp.Steps[0].Title)
	assert.Equal(t, "42", resp.Steps[0].Summary)
	assert.Equal(t, []string{"math.echo"}, resp.Stats.Operations)
	assert.Equal(t, 45, resp.Stats.TotalTokens)

	events := app.CollectEvents("req-s1")
	assert.Equal(t, []string{
		"extract/begin", "extract/ok",
		"plan/begin", "plan/ok",
		"exec/begin", "exec/running", "exec/ok",
		"finalize/begin", "finalize/ok",
	}, stageStatuses(events))
}

func TestCompileFailureRetriesWithFeedback(t *testing.T) {
	llm := NewScriptedLLMClient().AddText(
		echoPlan,
		javaSnippet("Echo"),
		javaSnippet("EchoFixed"),
		`{"answer":"42","reasoning":"fixed on retry"}`,
	)
	rt := snippet.NewFakeRuntime()
	rt.CompileScript = []snippet.CompileResult{
		{Failed: true, Diagnostics: []snippet.Diagnostic{{File: "Echo.java", Line: 1, Column: 2, Message: "missing-semicolon"}}},
	}
	rt.RunScript = []snippet.RunResult{{Summary: "42"}}
	app := StartTestApp(t, WithLLM(llm), WithRuntime(rt))

	resp := app.ExecuteOK(`{"prompt":"echo 42","requestId":"req-s2"}`)
	assert.Equal(t, "42", resp.Answer)

	// The retry prompt carries the prior snippet and diagnostics verbatim.
	retryPrompt := app.LLM.UserContent(3)
	assert.Contains(t, retryPrompt, "public class Echo")
	assert.Contains(t, retryPrompt, "missing-semicolon")

	events := app.CollectEvents("req-s2")
	for _, e := range events {
		if e.StageID == "exec" && e.Status == "running" {
			assert.EqualValues(t, 2, e.Attrs["attempts"])
		}
	}
}

func TestRetryExhaustedReturnsPartial(t *testing.T) {
	llm := NewScriptedLLMClient().AddText(
		echoPlan,
		javaSnippet("A"),
		javaSnippet("B"),
		javaSnippet("C"),
	)
	rt := snippet.NewFakeRuntime()
	rt.CompileScript = []snippet.CompileResult{
		{Failed: true}, {Failed: true}, {Failed: true},
	}
	app := StartTestApp(t, WithLLM(llm), WithRuntime(rt))

	resp := app.ExecuteError(`{"prompt":"echo 42","requestId":"req-s3"}`, http.StatusBadGateway)
	assert.Equal(t, "StepExhausted", resp.Error.Kind)
	assert.True(t, resp.Partial)
	require.Len(t, resp.Steps, 1)
	assert.Equal(t, "retry-exhausted", resp.Steps[0].Summary)
	assert.Equal(t, 0, rt.RunCalls())

	events := app.CollectEvents("req-s3")
	statuses := stageStatuses(events)
	assert.Contains(t, statuses, "exec/error")
	assert.NotContains(t, statuses, "finalize/begin")
}

func TestInvalidPlanReplansOnce(t *testing.T) {
	badPlan := `{"steps":[{"title":"t1","description":"use a ghost op","services":[{"service_name":"svc","operations":["missing_op"]}]}]}`
	llm := NewScriptedLLMClient().AddText(
		badPlan,
		echoPlan,
		javaSnippet("Echo"),
		`{"answer":"42","reasoning":"re-planned"}`,
	)
	rt := snippet.NewFakeRuntime()
	rt.RunScript = []snippet.RunResult{{Summary: "42"}}
	app := StartTestApp(t, WithLLM(llm), WithRuntime(rt))

	resp := app.ExecuteOK(`{"prompt":"echo 42","requestId":"req-s5"}`)
	assert.Equal(t, "42", resp.Answer)

	// The re-plan prompt names the rejected operation.
	assert.Contains(t, app.LLM.UserContent(2), "svc.missing_op")

	events := app.CollectEvents("req-s5")
	var planRunning int
	for _, e := range events {
		if e.StageID == "plan" && e.Status == "running" {
			planRunning++
		}
	}
	assert.Equal(t, 2, planRunning)
}

func TestSharedMemoryFlowsAcrossSteps(t *testing.T) {
	llm := NewScriptedLLMClient().AddText(
		sumPlan,
		javaSnippet("Collect"),
		javaSnippet("Update"),
		`{"answer":"total is 20","reasoning":"two-step"}`,
	)
	rt := snippet.NewFakeRuntime()
	rt.RunScript = []snippet.RunResult{
		{Summary: "total=10", Mutations: []memory.Entry{{Identifier: "total", Value: json.RawMessage("10")}}},
		{Summary: "total=20", Mutations: []memory.Entry{{Identifier: "total", Value: json.RawMessage("20")}}},
	}
	app := StartTestApp(t, WithLLM(llm), WithRuntime(rt))

	resp := app.ExecuteOK(`{"prompt":"sum the totals","requestId":"req-s6"}`)
	assert.Equal(t, "total is 20", resp.Answer)
	require.Len(t, resp.Steps, 2)
	assert.Equal(t, "total=10", resp.Steps[0].Summary)
	assert.Equal(t, "total=20", resp.Steps[1].Summary)

	// Step 2 observed step 1's write.
	require.Len(t, rt.RunContexts, 2)
	require.Len(t, rt.RunContexts[1].Memory, 1)
	assert.Equal(t, "total", rt.RunContexts[1].Memory[0].Identifier)
	assert.Equal(t, json.RawMessage("10"), rt.RunContexts[1].Memory[0].Value)

	// The summary prompt carries the final memory dump.
	assert.Contains(t, app.LLM.UserContent(4), `"total":20`)
}

func TestNoCatalogMatch(t *testing.T) {
	app := StartTestApp(t)

	resp := app.ExecuteError(`{"prompt":"translate this poem"}`, http.StatusUnprocessableEntity)
	assert.Equal(t, "NoCatalogContext", resp.Error.Kind)
	assert.Equal(t, 0, app.LLM.Calls())
}
