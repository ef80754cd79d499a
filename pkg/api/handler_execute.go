package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/restpilot/restpilot/pkg/orchestrator"
)

// Execute handles POST /api/v1/execute. The call is synchronous: the
// response carries the final result (or failure) while progress events
// stream to WebSocket subscribers under the same request ID.
func (s *Server) Execute(c *gin.Context) {
	var wire ExecuteRequest
	if err := c.ShouldBindJSON(&wire); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorBody{Kind: string(orchestrator.KindInvalidRequest), Message: err.Error()},
		})
		return
	}

	if wire.RequestID == "" {
		wire.RequestID = uuid.NewString()
	}
	if wire.ProgressToken == "" {
		wire.ProgressToken = wire.RequestID
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	hub := newEventHub()
	if !s.registry.Register(wire.RequestID, cancel, hub) {
		c.JSON(http.StatusConflict, ErrorResponse{
			RequestID: wire.RequestID,
			Error: ErrorBody{
				Kind:    string(orchestrator.KindInvalidRequest),
				Message: "request id already in flight",
			},
		})
		return
	}
	defer func() {
		s.registry.Finish(wire.RequestID)
		time.AfterFunc(s.retention, func() { s.registry.Remove(wire.RequestID) })
	}()

	result, err := s.orch.Handle(ctx, wire.toModel(), hub)
	if err != nil {
		status, body := newErrorResponse(wire.RequestID, err, result)
		s.logger.Warn("Request failed",
			"request_id", wire.RequestID,
			"kind", body.Error.Kind,
			"status", status)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, newExecuteResponse(wire.RequestID, result))
}

// CancelRequest handles POST /api/v1/requests/:id/cancel.
func (s *Server) CancelRequest(c *gin.Context) {
	id := c.Param("id")
	if !s.registry.Cancel(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found or already finished"})
		return
	}
	s.logger.Info("Cancelled request", "request_id", id)
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}
