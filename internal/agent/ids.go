package agent

import "github.com/google/uuid"

// NewToolCallID returns a fresh opaque id for a ToolCall, for callers that
// build tool calls themselves rather than echoing an id minted by a
// provider's SDK.
func NewToolCallID() string {
	return uuid.NewString()
}
