package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/restpilot/restpilot/pkg/graph"
	"github.com/restpilot/restpilot/pkg/llm"
	"github.com/restpilot/restpilot/pkg/snippet"
)

// ErrorKind classifies request failures for the caller. Kinds are stable wire
// values; messages are short human text with long diagnostics in the trace.
type ErrorKind string

const (
	KindInvalidRequest      ErrorKind = "InvalidRequest"
	KindNoCatalogContext    ErrorKind = "NoCatalogContext"
	KindInvalidPlan         ErrorKind = "InvalidPlan"
	KindStepExhausted       ErrorKind = "StepExhausted"
	KindRuntimeFailure      ErrorKind = "RuntimeFailure"
	KindDeadlineExceeded    ErrorKind = "DeadlineExceeded"
	KindCancelled           ErrorKind = "Cancelled"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	KindInternal            ErrorKind = "Internal"
)

// RequestError is the single failure type a request surfaces.
type RequestError struct {
	Kind    ErrorKind
	Message string

	// StepTitle names the step for StepExhausted and RuntimeFailure.
	StepTitle string

	// Collaborator names the unreachable dependency for UpstreamUnavailable.
	Collaborator string

	err error
}

// Error implements error.
func (e *RequestError) Error() string {
	switch {
	case e.StepTitle != "":
		return fmt.Sprintf("%s (step %q): %s", e.Kind, e.StepTitle, e.Message)
	case e.Collaborator != "":
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Collaborator, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Unwrap exposes the cause for errors.Is/As.
func (e *RequestError) Unwrap() error { return e.err }

func newError(kind ErrorKind, format string, args ...any) *RequestError {
	return &RequestError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, err error, format string, args ...any) *RequestError {
	return &RequestError{Kind: kind, Message: fmt.Sprintf(format, args...), err: err}
}

// upstreamError builds an UpstreamUnavailable error naming the collaborator.
func upstreamError(collaborator string, err error) *RequestError {
	return &RequestError{
		Kind:         KindUpstreamUnavailable,
		Message:      err.Error(),
		Collaborator: collaborator,
		err:          err,
	}
}

// cancellationError maps a context error to Cancelled or DeadlineExceeded.
func cancellationError(err error) *RequestError {
	if errors.Is(err, context.DeadlineExceeded) {
		return wrapError(KindDeadlineExceeded, err, "request deadline exceeded")
	}
	return wrapError(KindCancelled, err, "request cancelled by caller")
}

// classifyCollaboratorError converts a fatal error from an LLM, graph, or
// runtime call into a RequestError. Context errors win over everything else
// so a cancelled downstream call reports as cancellation, not outage.
func classifyCollaboratorError(ctx context.Context, collaborator string, err error) *RequestError {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}
	if ctx.Err() != nil {
		return cancellationError(ctx.Err())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return cancellationError(err)
	}
	if errors.Is(err, llm.ErrUnavailable) || errors.Is(err, graph.ErrUnavailable) || errors.Is(err, snippet.ErrUnavailable) {
		return upstreamError(collaborator, err)
	}
	return &RequestError{Kind: KindInternal, Message: err.Error(), Collaborator: collaborator, err: err}
}
