// Package snippet defines the snippet-runtime contract the executor depends
// on, the normalization policies applied to LLM-generated code before
// compilation, and the HTTP sidecar client. Compile and run failures are
// expected values here, not Go errors; a Go error from the runtime means
// the sandbox itself is broken.
package snippet

import (
	"context"
	"errors"
	"fmt"

	"github.com/restpilot/restpilot/pkg/memory"
)

// ErrUnavailable signals the runtime sidecar could not be reached.
// Surfaced by the orchestrator as UpstreamUnavailable.
var ErrUnavailable = errors.New("snippet runtime unavailable")

// Diagnostic is one structured compiler or runtime finding, suitable for
// embedding verbatim in a follow-up prompt.
type Diagnostic struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// String renders the diagnostic in compiler style.
func (d Diagnostic) String() string {
	switch {
	case d.File != "" && d.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Line, d.Column, d.Message)
	case d.Line > 0:
		return fmt.Sprintf("%d:%d: %s", d.Line, d.Column, d.Message)
	default:
		return d.Message
	}
}

// FormatDiagnostics renders diagnostics one per line for prompt embedding.
func FormatDiagnostics(diags []Diagnostic) string {
	out := ""
	for i, d := range diags {
		if i > 0 {
			out += "\n"
		}
		out += d.String()
	}
	return out
}

// Artifact is the compiled form of a snippet. Data is opaque to the core;
// only the runtime that produced it can run it.
type Artifact struct {
	ID        string `json:"id"`
	ClassName string `json:"class_name"`
	Data      []byte `json:"data,omitempty"`
}

// CompileResult is the outcome of a compile call. Failed=true carries
// diagnostics the step implementer can fix; Failed=false may still carry
// warnings.
type CompileResult struct {
	Artifact    Artifact     `json:"artifact"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	Failed      bool         `json:"failed"`
}

// RunContext is the execution environment handed to the runtime: the shared
// memory snapshot, the service endpoints the generated clients target, and
// the operations the snippet is allowed to invoke.
type RunContext struct {
	RequestID        string            `json:"request_id"`
	Memory           []memory.Entry    `json:"memory,omitempty"`
	ServiceEndpoints map[string]string `json:"service_endpoints,omitempty"`
	Operations       []string          `json:"operations,omitempty"`
}

// RunResult is the outcome of a run call. On success, Mutations are applied
// to shared memory atomically by the executor; on failure no mutation is
// observable and ErrorSummary describes what went wrong.
type RunResult struct {
	Summary      string         `json:"summary,omitempty"`
	Mutations    []memory.Entry `json:"mutations,omitempty"`
	Failed       bool           `json:"failed"`
	ErrorSummary string         `json:"error_summary,omitempty"`
}

// Runtime compiles and executes snippets in isolation. Implementations must
// be deterministic per (snippet, context), keep no hidden state between
// calls, and bound every Run by wall clock (a timeout surfaces as a failed
// RunResult, not a Go error).
type Runtime interface {
	Compile(ctx context.Context, snippet string) (*CompileResult, error)
	Run(ctx context.Context, artifact Artifact, rc RunContext) (*RunResult, error)
}
