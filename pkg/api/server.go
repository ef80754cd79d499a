// Package api exposes the orchestrator over HTTP: a synchronous execute
// endpoint, cancel-by-id, a WebSocket progress stream, and health.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/restpilot/restpilot/pkg/orchestrator"
	"github.com/restpilot/restpilot/pkg/version"
)

// completedRetention is how long a finished request stays resolvable for
// late event-stream subscribers.
const completedRetention = time.Minute

// Server wires the orchestrator to the HTTP surface.
type Server struct {
	orch     *orchestrator.Orchestrator
	registry *requestRegistry
	logger   *slog.Logger

	// allowedWSOrigins are origin patterns accepted for WebSocket upgrades.
	// Empty means same-host only.
	allowedWSOrigins []string

	// retention overridable in tests
	retention time.Duration
}

// ServerOption customizes the server.
type ServerOption func(*Server)

// WithAllowedWSOrigins sets additional WebSocket origin patterns.
func WithAllowedWSOrigins(origins []string) ServerOption {
	return func(s *Server) { s.allowedWSOrigins = origins }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates the API server around an orchestrator.
func NewServer(orch *orchestrator.Orchestrator, opts ...ServerOption) *Server {
	s := &Server{
		orch:      orch,
		registry:  newRequestRegistry(),
		logger:    slog.Default(),
		retention: completedRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.Health)

	v1 := router.Group("/api/v1")
	v1.POST("/execute", s.Execute)
	v1.POST("/requests/:id/cancel", s.CancelRequest)
	v1.GET("/requests/:id/events", s.StreamEvents)

	return router
}

// Health handles GET /health.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Full(),
	})
}
