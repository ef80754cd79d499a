// Package progress implements the caller-facing progress contract: stage
// bracketing, rate-limited step events, and the cancellation query. Events
// are emitted cooperatively at component boundaries and fanned out to the
// transport (WebSocket, MCP progress notifications) through an Emitter.
package progress

// ProtocolVersion is the wire version stamped on every event.
const ProtocolVersion = 1

// StageID identifies one of the four pipeline stages.
type StageID string

// Pipeline stages, in execution order.
const (
	StageExtract  StageID = "extract"
	StagePlan     StageID = "plan"
	StageExec     StageID = "exec"
	StageFinalize StageID = "finalize"
)

// Status is the lifecycle state an event reports for its stage.
type Status string

// Event statuses.
const (
	StatusBegin     Status = "begin"
	StatusRunning   Status = "running"
	StatusOK        Status = "ok"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Event is the progress wire shape delivered to callers.
type Event struct {
	StageID         StageID        `json:"stageId"`
	Label           string         `json:"label"`
	Completed       int            `json:"completed"`
	Total           int            `json:"total"`
	Percent         int            `json:"percent"`
	Message         string         `json:"message,omitempty"`
	Attrs           map[string]any `json:"attrs,omitempty"`
	Status          Status         `json:"status"`
	ProtocolVersion int            `json:"protocolVersion"`
}

// percent derives the 0..100 completion percentage.
func percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return completed * 100 / total
}
