package prompt

// Section IDs for enable/disable overrides.
const (
	SectionPlanRules          = "plan-rules"
	SectionPlanOperations     = "plan-operations"
	SectionPlanMemoryContract = "plan-memory-contract"
	SectionPlanTask           = "plan-task"
	SectionPlanRetry          = "plan-retry"

	SectionStepRules       = "step-rules"
	SectionStepOperations  = "step-operations"
	SectionStepMemoryState = "step-memory-state"
	SectionStepTask        = "step-task"
	SectionStepFeedback    = "step-feedback"

	SectionSummaryRules  = "summary-rules"
	SectionSummaryReport = "summary-report"
)

// planRules is the system section for plan authoring.
const planRules = `You are an execution planner for a catalog of REST services.
Given a user request and the catalog operations below, produce a step-by-step execution plan.

Rules:
- Use ONLY the services and operations enumerated in the catalog. Never invent operations.
- Order steps so that every value a step needs was produced by an earlier step.
- Each step must have a unique, short title and a one-paragraph description.
- Do not repeat the same operation within a single step.
- Prefer the smallest number of steps that solves the request.

Respond with a single JSON object matching the requested schema. No prose outside the JSON.`

// planOperations enumerates the candidate operations.
const planOperations = `## Available operations

{{.Operations}}`

// planMemoryContract describes the shared value store to the planner.
const planMemoryContract = `## Value store contract

Steps share a value store. A step may publish named values (identifier: ASCII letter
followed by letters, digits or underscores) and read values published by earlier steps.
When a step needs data from a previous step, name the identifier in its description.`

// planTask carries the user request.
const planTask = `## Request

{{.Prompt}}`

// planRetry carries validation failures from the previous planning attempt.
const planRetry = `## Previous attempt rejected

Your previous plan was rejected for these reasons:
{{range .Reasons}}- {{.}}
{{end}}
Produce a corrected plan. Restrict yourself strictly to the operations enumerated above.`

// stepRules is the system section for step implementation.
const stepRules = `You are an expert programmer generating a self-contained snippet for one step
of an execution plan. The snippet runs in a sandbox against generated API clients.

Rules:
- Declare a package and exactly one public top-level class with a public "execute" method.
- Call ONLY the operations listed for this step, through the provided clients.
- Read prior values from the shared value store via the provided context; publish outputs
  by returning named values (identifier, description, value).
- Return a short human-readable summary of what the step did.
- No network access other than the listed operations. No filesystem access. No threads.

Respond with the snippet in a single code block, optionally preceded by one
short sentence describing what the snippet does.`

// stepOperations carries the operation bundles for the step.
const stepOperations = `## Operations available to this step

{{.Operations}}`

// stepMemoryState lists the values already in the store.
const stepMemoryState = `## Shared value store

{{if .Entries}}Values available from earlier steps:
{{.Entries}}{{else}}The value store is empty. This step runs first.{{end}}`

// stepTask describes the step being implemented.
const stepTask = `## Step to implement

Title: {{.Title}}
Description: {{.Description}}
Services: {{.Services}}

Overall request for context: {{.Prompt}}`

// stepFeedback embeds the failed attempt for correction. The snippet and
// diagnostics are included verbatim so the model sees exactly what the
// compiler or runtime saw.
const stepFeedback = `## Previous attempt failed

Your previous snippet:
` + "```" + `
{{.Snippet}}
` + "```" + `

Diagnostics:
{{.Diagnostics}}

Fix the snippet. Keep the parts that were correct; change only what the diagnostics require.`

// summaryRules is the system section for final summary composition.
const summaryRules = `You summarize the outcome of a multi-step execution for the user who asked for it.
Base the answer strictly on the step results and the final value store below. Do not
invent results that the steps did not produce.

Respond with a single JSON object matching the requested schema: an "answer" that
directly addresses the original request, and a short "reasoning" describing how the
steps produced it.`

// summaryReport carries the execution evidence.
const summaryReport = `## Original request

{{.Prompt}}

## Step results

{{.StepSummaries}}

## Final value store

{{.MemoryDump}}`

// planTemplate composes the plan-authoring prompt.
var planTemplate = MustTemplate("plan",
	Section{ID: SectionPlanRules, Role: RoleSystem, EnabledByDefault: true, Body: planRules},
	Section{ID: SectionPlanOperations, Role: RoleUser, EnabledByDefault: true, Body: planOperations},
	Section{ID: SectionPlanMemoryContract, Role: RoleUser, EnabledByDefault: true, Body: planMemoryContract},
	Section{ID: SectionPlanTask, Role: RoleUser, EnabledByDefault: true, Body: planTask},
	Section{ID: SectionPlanRetry, Role: RoleUser, EnabledByDefault: false, Body: planRetry},
)

// stepTemplate composes the step-implementation prompt.
var stepTemplate = MustTemplate("step",
	Section{ID: SectionStepRules, Role: RoleSystem, EnabledByDefault: true, Body: stepRules},
	Section{ID: SectionStepOperations, Role: RoleUser, EnabledByDefault: true, Body: stepOperations},
	Section{ID: SectionStepMemoryState, Role: RoleUser, EnabledByDefault: true, Body: stepMemoryState},
	Section{ID: SectionStepTask, Role: RoleUser, EnabledByDefault: true, Body: stepTask},
	Section{ID: SectionStepFeedback, Role: RoleUser, EnabledByDefault: false, Body: stepFeedback},
)

// summaryTemplate composes the summary prompt.
var summaryTemplate = MustTemplate("summary",
	Section{ID: SectionSummaryRules, Role: RoleSystem, EnabledByDefault: true, Body: summaryRules},
	Section{ID: SectionSummaryReport, Role: RoleUser, EnabledByDefault: true, Body: summaryReport},
)
