package api

import (
	"errors"
	"net/http"

	"github.com/restpilot/restpilot/pkg/models"
	"github.com/restpilot/restpilot/pkg/orchestrator"
)

// statusClientClosedRequest reports caller-initiated cancellation. Not in
// net/http but widely understood (nginx convention).
const statusClientClosedRequest = 499

// statusForKind maps the request failure taxonomy to HTTP status codes.
func statusForKind(kind orchestrator.ErrorKind) int {
	switch kind {
	case orchestrator.KindInvalidRequest:
		return http.StatusBadRequest
	case orchestrator.KindNoCatalogContext, orchestrator.KindInvalidPlan:
		return http.StatusUnprocessableEntity
	case orchestrator.KindStepExhausted, orchestrator.KindRuntimeFailure:
		return http.StatusBadGateway
	case orchestrator.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case orchestrator.KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case orchestrator.KindCancelled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// newErrorResponse shapes an orchestrator failure for the wire, attaching
// the partial result when one exists.
func newErrorResponse(requestID string, err error, partial *models.ExecutionResult) (int, ErrorResponse) {
	var reqErr *orchestrator.RequestError
	if !errors.As(err, &reqErr) {
		return http.StatusInternalServerError, ErrorResponse{
			RequestID: requestID,
			Error:     ErrorBody{Kind: string(orchestrator.KindInternal), Message: "internal server error"},
		}
	}

	resp := ErrorResponse{
		RequestID: requestID,
		Error:     ErrorBody{Kind: string(reqErr.Kind), Message: reqErr.Message},
	}
	if partial != nil {
		resp.TraceID = partial.TraceID
		resp.Partial = partial.Partial
		resp.Steps = partial.Steps
		resp.Stats = &partial.Stats
	}
	return statusForKind(reqErr.Kind), resp
}
