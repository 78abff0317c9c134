package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/eren23/attocode-core/pkg/models"
)

// Sentinel errors for conditions the loop and dispatcher need to distinguish
// by identity rather than by message text.
var (
	ErrCancelled       = errors.New("agent: execution cancelled")
	ErrBudgetExhausted = errors.New("agent: budget exhausted")
	ErrToolNotFound    = errors.New("agent: tool not found")
)

// ToolError wraps a failed tool invocation with enough structure for the
// dispatcher to classify it and for the loop to decide whether to retry.
// It is never returned to callers directly; it is converted into a
// models.ToolResult with IsError set before the loop ever sees it.
type ToolError struct {
	Kind       models.ToolErrorKind
	ToolCallID string
	ToolName   string
	Message    string
	Cause      error
	Attempts   int
}

func (e *ToolError) Error() string {
	if e.ToolName != "" {
		return fmt.Sprintf("agent: tool %q failed (%s): %s", e.ToolName, e.Kind, e.Message)
	}
	return fmt.Sprintf("agent: tool call failed (%s): %s", e.Kind, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// NewToolError builds a ToolError, defaulting Message from cause when omitted.
func NewToolError(kind models.ToolErrorKind, toolName, callID string, cause error) *ToolError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &ToolError{Kind: kind, ToolName: toolName, ToolCallID: callID, Message: msg, Cause: cause}
}

// WithAttempts records how many attempts were made before surfacing this error.
func (e *ToolError) WithAttempts(n int) *ToolError {
	e.Attempts = n
	return e
}

// AsToolError extracts a *ToolError from err via errors.As, if present.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// LoopPhase identifies which step of the iteration state machine an error
// originated in, for diagnostics and event emission.
type LoopPhase string

const (
	PhaseGuard      LoopPhase = "guard"
	PhaseBudget     LoopPhase = "budget"
	PhaseModelCall  LoopPhase = "model_call"
	PhaseRetry      LoopPhase = "retry"
	PhaseUsage      LoopPhase = "usage"
	PhaseAppend     LoopPhase = "append"
	PhaseCompletion LoopPhase = "completion"
	PhaseDispatch   LoopPhase = "dispatch"
	PhaseIncrement  LoopPhase = "increment"
)

// LoopError reports a failure in the iteration state machine that was not
// absorbed as a retryable provider error or a per-call tool error.
type LoopError struct {
	Phase   LoopPhase
	Message string
	Cause   error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("agent: loop failed in phase %s: %s", e.Phase, e.Message)
}

func (e *LoopError) Unwrap() error { return e.Cause }

// NewLoopError builds a LoopError for the given phase.
func NewLoopError(phase LoopPhase, cause error) *LoopError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &LoopError{Phase: phase, Message: msg, Cause: cause}
}

// classifyToolErr maps a raw error returned by Tool.Execute (or a dispatch
// failure encountered before Execute was even called) to the shared
// swarm-level failure taxonomy. Unrecognized errors default to "unknown",
// which is conservatively treated as retryable.
func classifyToolErr(err error) models.ToolErrorKind {
	if err == nil {
		return models.ToolErrNone
	}
	if te, ok := AsToolError(err); ok && te.Kind != "" {
		return te.Kind
	}
	switch {
	case errors.Is(err, ErrToolNotFound):
		return models.ToolErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return models.ToolErrTimeout
	default:
		return models.ToolErrUnknown
	}
}
