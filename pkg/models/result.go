package models

// StepSummary pairs a step title with the textual outcome of its execution.
type StepSummary struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Statistics aggregates resource usage across one request.
type Statistics struct {
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	WallMillis       int64    `json:"wall_ms"`
	Operations       []string `json:"operations"`
}

// ExecutionResult is the terminal outcome of a successful request.
type ExecutionResult struct {
	Answer    string        `json:"answer"`
	Reasoning string        `json:"reasoning"`
	Steps     []StepSummary `json:"steps"`
	Stats     Statistics    `json:"stats"`
	TraceID   string        `json:"trace_id"`

	// Partial is true when earlier steps succeeded but a later step failed;
	// the successful step summaries are still surfaced.
	Partial bool `json:"partial,omitempty"`
}
