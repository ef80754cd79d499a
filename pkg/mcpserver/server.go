// Package mcpserver exposes the orchestrator as an MCP tool. Callers invoke
// execute_prompt; when the request meta carries a progressToken, pipeline
// progress events are bridged to MCP progress notifications.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/restpilot/restpilot/pkg/models"
	"github.com/restpilot/restpilot/pkg/orchestrator"
	"github.com/restpilot/restpilot/pkg/progress"
	"github.com/restpilot/restpilot/pkg/version"
)

// ToolName is the single tool this server registers.
const ToolName = "execute_prompt"

// executeInputSchema describes the execute_prompt arguments (spec wire shape).
var executeInputSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "prompt": {"type": "string", "description": "Natural-language request to plan and execute against the API catalog"},
    "options": {
      "type": "object",
      "properties": {
        "maxAttempts": {"type": "integer"},
        "enableProgress": {"type": "boolean"},
        "progressMinIntervalMs": {"type": "integer"},
        "progressMinDelta": {"type": "integer"},
        "requestTimeoutMs": {"type": "integer"}
      }
    }
  },
  "required": ["prompt"]
}`)

// Server registers the orchestrator behind an MCP tool surface.
type Server struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// NewServer creates the MCP tool server.
func NewServer(orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{orch: orch, logger: logger}
}

// SDKServer builds the underlying MCP server with the tool registered.
// Callers run it on a transport of their choice (stdio, in-memory).
func (s *Server) SDKServer() *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)
	server.AddTool(&mcpsdk.Tool{
		Name:        ToolName,
		Description: "Plan and execute a natural-language request against the service catalog, returning an answer with per-step summaries",
		InputSchema: executeInputSchema,
	}, s.handleExecute)
	return server
}

// Run serves MCP on the given transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context, transport mcpsdk.Transport) error {
	return s.SDKServer().Run(ctx, transport)
}

// executeArgs is the wire shape of the execute_prompt arguments.
type executeArgs struct {
	Prompt  string          `json:"prompt"`
	Options *executeOptions `json:"options"`
}

// executeOptions mirrors the tool input schema. Unrecognized keys are kept
// in Unknown and carried into telemetry attributes.
type executeOptions struct {
	MaxAttempts           int   `json:"maxAttempts"`
	EnableProgress        *bool `json:"enableProgress"`
	ProgressMinIntervalMs *int  `json:"progressMinIntervalMs"`
	ProgressMinDelta      *int  `json:"progressMinDelta"`
	RequestTimeoutMs      int   `json:"requestTimeoutMs"`

	Unknown map[string]any `json:"-"`
}

// recognizedOptionKeys are the wire keys decoded into typed fields above.
var recognizedOptionKeys = map[string]bool{
	"maxAttempts":           true,
	"enableProgress":        true,
	"progressMinIntervalMs": true,
	"progressMinDelta":      true,
	"requestTimeoutMs":      true,
}

// UnmarshalJSON decodes recognized keys into the typed fields and keeps any
// remaining keys in Unknown.
func (o *executeOptions) UnmarshalJSON(data []byte) error {
	type plain executeOptions
	var typed plain
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		if recognizedOptionKeys[key] {
			delete(raw, key)
		}
	}
	if len(raw) > 0 {
		typed.Unknown = raw
	}
	*o = executeOptions(typed)
	return nil
}

func (s *Server) handleExecute(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	var args executeArgs
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return toolError(orchestrator.KindInvalidRequest, "malformed arguments: "+err.Error()), nil
		}
	}

	// MCP callers have no request id of their own; the transport assigns one
	// the same way the HTTP surface does.
	mreq := models.ExecutionRequest{RequestID: uuid.NewString(), Prompt: args.Prompt}
	if args.Options != nil {
		mreq.Options = models.Options{
			MaxAttempts:    args.Options.MaxAttempts,
			EnableProgress: args.Options.EnableProgress,
			RequestTimeout: time.Duration(args.Options.RequestTimeoutMs) * time.Millisecond,
			Unknown:        args.Options.Unknown,
		}
		if args.Options.ProgressMinIntervalMs != nil {
			interval := time.Duration(*args.Options.ProgressMinIntervalMs) * time.Millisecond
			mreq.Options.ProgressMinInterval = &interval
		}
		if args.Options.ProgressMinDelta != nil {
			delta := *args.Options.ProgressMinDelta
			mreq.Options.ProgressMinDelta = &delta
		}
	}

	var emitter progress.Emitter
	if token := req.Params.GetProgressToken(); token != nil {
		mreq.ProgressToken = fmt.Sprint(token)
		emitter = s.notificationEmitter(ctx, req.Session, token)
	}

	result, err := s.orch.Handle(ctx, mreq, emitter)
	if err != nil {
		return errorResult(err, result), nil
	}

	body, err := json.Marshal(executeResult{
		Answer:    result.Answer,
		Reasoning: result.Reasoning,
		Steps:     result.Steps,
		Stats:     result.Stats,
		TraceID:   result.TraceID,
	})
	if err != nil {
		return toolError(orchestrator.KindInternal, "encode result: "+err.Error()), nil
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(body)}},
	}, nil
}

// notificationEmitter forwards progress events to the MCP session. Delivery
// is best effort; a dead session must not fail the pipeline.
func (s *Server) notificationEmitter(ctx context.Context, session *mcpsdk.ServerSession, token any) progress.Emitter {
	return progress.EmitterFunc(func(e progress.Event) {
		message := fmt.Sprintf("%s %s", e.StageID, e.Status)
		if e.Message != "" {
			message += ": " + e.Message
		}
		err := session.NotifyProgress(ctx, &mcpsdk.ProgressNotificationParams{
			ProgressToken: token,
			Progress:      float64(e.Completed),
			Total:         float64(e.Total),
			Message:       message,
		})
		if err != nil {
			s.logger.Debug("Progress notification dropped", "error", err)
		}
	})
}

// executeResult is the success payload encoded into the tool result text.
type executeResult struct {
	Answer    string               `json:"answer"`
	Reasoning string               `json:"reasoning,omitempty"`
	Steps     []models.StepSummary `json:"steps"`
	Stats     models.Statistics    `json:"stats"`
	TraceID   string               `json:"traceId,omitempty"`
}

// errorPayload is the failure payload encoded into the tool result text.
type errorPayload struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
	TraceID string               `json:"traceId,omitempty"`
	Partial bool                 `json:"partial,omitempty"`
	Steps   []models.StepSummary `json:"steps,omitempty"`
}

func errorResult(err error, partial *models.ExecutionResult) *mcpsdk.CallToolResult {
	kind := orchestrator.KindInternal
	message := "internal error"
	var reqErr *orchestrator.RequestError
	if errors.As(err, &reqErr) {
		kind = reqErr.Kind
		message = reqErr.Message
	}

	var payload errorPayload
	payload.Error.Kind = string(kind)
	payload.Error.Message = message
	if partial != nil {
		payload.TraceID = partial.TraceID
		payload.Partial = partial.Partial
		payload.Steps = partial.Steps
	}
	body, _ := json.Marshal(payload)
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(body)}},
		IsError: true,
	}
}

func toolError(kind orchestrator.ErrorKind, message string) *mcpsdk.CallToolResult {
	var payload errorPayload
	payload.Error.Kind = string(kind)
	payload.Error.Message = message
	body, _ := json.Marshal(payload)
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(body)}},
		IsError: true,
	}
}
