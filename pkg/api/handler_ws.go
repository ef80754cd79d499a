package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
)

// StreamEvents handles GET /api/v1/requests/:id/events. It upgrades to
// WebSocket, replays the events emitted so far, then forwards live events
// until the request finishes or the client disconnects.
func (s *Server) StreamEvents(c *gin.Context) {
	id := c.Param("id")
	hub := s.registry.Hub(id)
	if hub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: s.allowedWSOrigins}
	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "request_id", id, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ctx := c.Request.Context()
	replay, live, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	for _, event := range replay {
		if err := wsjson.Write(ctx, conn, event); err != nil {
			return
		}
	}

	for {
		select {
		case event, ok := <-live:
			if !ok {
				// Request finished: stream is complete.
				conn.Close(websocket.StatusNormalClosure, "done")
				return
			}
			if err := wsjson.Write(ctx, conn, event); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
