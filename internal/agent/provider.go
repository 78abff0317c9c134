package agent

import (
	"context"

	"github.com/eren23/attocode-core/pkg/models"
)

// StopReason explains why a Provider stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopError     StopReason = "error"
)

// ChatTool describes a tool surfaced to the model, derived from a registered
// Tool's name, schema, and a natural-language description.
type ChatTool struct {
	Name        string
	Description string
	Schema      Schema
}

// ChatOptions configures a single provider call.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Tools       []ChatTool
}

// ChatResponse is a provider's reply to one chat call.
type ChatResponse struct {
	Content    string
	ToolCalls  []models.ToolCall
	StopReason StopReason
	Usage      models.Usage
}

// ProviderError wraps a failure from a Provider implementation with enough
// information for the retry policy to decide whether to try again.
type ProviderError struct {
	Retryable  bool
	StatusCode int
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string { return e.Message }
func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError classifies an HTTP-style status code into a ProviderError.
// 408, 429, and 5xx are retryable; other 4xx are not.
func NewProviderError(statusCode int, cause error) *ProviderError {
	retryable := statusCode == 408 || statusCode == 429 || statusCode >= 500
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &ProviderError{Retryable: retryable, StatusCode: statusCode, Message: msg, Cause: cause}
}

// Provider is the abstraction the iteration loop drives: a single blocking
// request/response round trip to a language model. Implementations adapt a
// concrete SDK (Anthropic, OpenAI, Bedrock, ...) to this shape; the loop
// itself never imports a provider SDK directly.
type Provider interface {
	Chat(ctx context.Context, messages []models.Message, opts ChatOptions) (*ChatResponse, error)
}

// StreamingProvider is an optional extension for providers that can emit
// partial content incrementally. The iteration loop always calls
// Provider.Chat and does not consume ChatStream.
type StreamingProvider interface {
	Provider
	ChatStream(ctx context.Context, messages []models.Message, opts ChatOptions) (<-chan ChatChunk, error)
}

// ChatChunk is one increment of a streamed response. The final chunk in a
// stream has Done set and carries the terminal StopReason and Usage.
type ChatChunk struct {
	ContentDelta string
	ToolCalls    []models.ToolCall
	Done         bool
	StopReason   StopReason
	Usage        models.Usage
	Err          error
}
