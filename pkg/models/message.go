// Package models defines the data types shared across the agent execution core:
// messages, tool calls and results, and the budget/metrics snapshots used for
// serialization at execution boundaries.
package models

import (
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a role-tagged, append-only record in one execution's history.
// Tool-role messages carry a ToolCallID correlating them to an outstanding
// assistant tool call; indices into a message slice are stable once appended.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ToolCall is a model-issued request to invoke a named tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolErrorKind classifies why a tool call did not produce a usable result.
// These map to the swarm-level failure taxonomy bridged from raw tool/provider
// errors, and drive both retry eligibility and AoT cascade behavior.
type ToolErrorKind string

const (
	ToolErrNone             ToolErrorKind = ""
	ToolErrNotFound         ToolErrorKind = "tool_not_found"
	ToolErrPermissionDenied ToolErrorKind = "permission_denied"
	ToolErrTimeout          ToolErrorKind = "timeout"
	ToolErrExecution        ToolErrorKind = "execution_error"
	ToolErrPolicyBlocked    ToolErrorKind = "policy_blocked"
	ToolErrInvalidArgs      ToolErrorKind = "invalid_args"
	ToolErrMissingPath      ToolErrorKind = "missing_path"
	ToolErrPermissionReq    ToolErrorKind = "permission_required"
	ToolErrRateLimited      ToolErrorKind = "rate_limited"
	ToolErrProviderSpend    ToolErrorKind = "provider_spend_limit"
	ToolErrProviderAuth     ToolErrorKind = "provider_auth"
	ToolErrTransient5xx     ToolErrorKind = "transient_5xx"
	ToolErrUnknown          ToolErrorKind = "unknown"
)

// Retryable reports whether the dispatcher may retry a call that failed
// with this error kind. tool_not_found and permission_denied are never retried.
func (k ToolErrorKind) Retryable() bool {
	switch k {
	case ToolErrTimeout, ToolErrRateLimited, ToolErrTransient5xx, ToolErrUnknown:
		return true
	default:
		return false
	}
}

// ToolResult carries the outcome of one ToolCall: either textual content or
// an error record, plus observable side-effect metadata.
type ToolResult struct {
	CallID       string         `json:"call_id"`
	Content      string         `json:"content,omitempty"`
	IsError      bool           `json:"is_error,omitempty"`
	ErrorKind    ToolErrorKind  `json:"error_kind,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ModifiedArgs map[string]any `json:"modified_args,omitempty"`
	Duration     time.Duration  `json:"duration_ns,omitempty"`
	Tokens       int64          `json:"tokens,omitempty"`
}

// Usage records token accounting for a single provider call.
type Usage struct {
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	CacheReadTokens  int64   `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int64   `json:"cache_write_tokens,omitempty"`
	Cost             float64 `json:"cost,omitempty"`
}

// Total returns the total token count across all counters.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}
