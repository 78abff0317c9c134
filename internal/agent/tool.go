package agent

import (
	"context"

	"github.com/eren23/attocode-core/pkg/models"
)

// Danger classifies how much latitude a tool has to cause harm if misused.
// The policy layer consults this when deciding whether a call needs approval.
type Danger string

const (
	DangerSafe     Danger = "safe"
	DangerLow      Danger = "low"
	DangerModerate Danger = "moderate"
	DangerHigh     Danger = "high"
	DangerCritical Danger = "critical"
)

// Schema describes a tool's expected parameters for presentation to the model
// and for argument validation; the dispatcher checks call arguments against
// it only when a SchemaValidator is configured.
type Schema struct {
	Parameters map[string]any
	Required   []string
}

// Tool is a caller-registered capability the model may invoke. The core does
// not ship any tool implementations; it only consumes a registry whose
// contents are supplied by the embedding application.
type Tool interface {
	Name() string
	Schema() Schema
	Danger() Danger
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToolFunc adapts a plain function into a Tool for simple, stateless tools.
type ToolFunc struct {
	ToolName   string
	ToolSchema Schema
	ToolDanger Danger
	Fn         func(ctx context.Context, args map[string]any) (string, error)
}

func (f *ToolFunc) Name() string     { return f.ToolName }
func (f *ToolFunc) Schema() Schema   { return f.ToolSchema }
func (f *ToolFunc) Danger() Danger   { return f.ToolDanger }
func (f *ToolFunc) Execute(ctx context.Context, args map[string]any) (string, error) {
	return f.Fn(ctx, args)
}

var _ Tool = (*ToolFunc)(nil)

// PermissionVerdict is the outcome of evaluating a tool call against policy.
type PermissionVerdict int

const (
	PermissionAllow PermissionVerdict = iota
	PermissionDeny
	PermissionPrompt
)

// PermissionDecision is the result of a permission check for one call.
// ModifiedArgs, when non-nil, replaces the call's arguments before execution.
type PermissionDecision struct {
	Verdict      PermissionVerdict
	Reason       string
	ModifiedArgs map[string]any
}

// ApprovalCallback is consulted when a PermissionChecker returns PermissionPrompt.
// A false return denies the call.
type ApprovalCallback func(ctx context.Context, call models.ToolCall) (approved bool, modifiedArgs map[string]any)

// PermissionChecker evaluates policy for a single tool call before dispatch.
type PermissionChecker interface {
	Check(ctx context.Context, call models.ToolCall, danger Danger) PermissionDecision
}

// AllowAllChecker is the permissive default: every call is allowed unmodified.
type AllowAllChecker struct{}

func (AllowAllChecker) Check(ctx context.Context, call models.ToolCall, danger Danger) PermissionDecision {
	return PermissionDecision{Verdict: PermissionAllow}
}

var _ PermissionChecker = AllowAllChecker{}
