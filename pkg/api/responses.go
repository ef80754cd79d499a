package api

import "github.com/restpilot/restpilot/pkg/models"

// ExecuteResponse is the success body of POST /api/v1/execute.
type ExecuteResponse struct {
	RequestID string               `json:"requestId"`
	Answer    string               `json:"answer"`
	Reasoning string               `json:"reasoning,omitempty"`
	Steps     []models.StepSummary `json:"steps"`
	Stats     models.Statistics    `json:"stats"`
	TraceID   string               `json:"traceId,omitempty"`
}

// ErrorBody is the stable error object of failure responses.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse is the failure body. Steps and Stats carry the partial
// result when earlier steps succeeded before the failure.
type ErrorResponse struct {
	RequestID string               `json:"requestId"`
	Error     ErrorBody            `json:"error"`
	TraceID   string               `json:"traceId,omitempty"`
	Partial   bool                 `json:"partial,omitempty"`
	Steps     []models.StepSummary `json:"steps,omitempty"`
	Stats     *models.Statistics   `json:"stats,omitempty"`
}

func newExecuteResponse(requestID string, result *models.ExecutionResult) ExecuteResponse {
	return ExecuteResponse{
		RequestID: requestID,
		Answer:    result.Answer,
		Reasoning: result.Reasoning,
		Steps:     result.Steps,
		Stats:     result.Stats,
		TraceID:   result.TraceID,
	}
}
