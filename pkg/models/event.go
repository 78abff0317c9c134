package models

import "time"

// LoopEventKind identifies which iteration-loop transition produced an event.
type LoopEventKind string

const (
	EventStart           LoopEventKind = "start"
	EventIterationStart  LoopEventKind = "iteration_start"
	EventLLMStart        LoopEventKind = "llm_start"
	EventLLMComplete     LoopEventKind = "llm_complete"
	EventLLMError        LoopEventKind = "llm_error"
	EventAssistantTurn   LoopEventKind = "assistant_turn"
	EventToolDispatch    LoopEventKind = "tool_dispatch"
	EventToolStart       LoopEventKind = "tool_start"
	EventToolComplete    LoopEventKind = "tool_complete"
	EventToolError       LoopEventKind = "tool_error"
	EventBudgetStatus    LoopEventKind = "budget_status"
	EventCompleted       LoopEventKind = "completed"
	EventCancelled       LoopEventKind = "cancelled"
	EventError           LoopEventKind = "error"
)

// LoopEvent is emitted on every iteration-loop state transition. Handlers
// are best-effort observers: a panicking or erroring handler never affects
// the loop that produced the event.
type LoopEvent struct {
	Kind         LoopEventKind `json:"kind"`
	Iteration    int           `json:"iteration"`
	Detail       string        `json:"detail,omitempty"`
	Err          string        `json:"err,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	Tool         *ToolEvent    `json:"tool,omitempty"`
	At           time.Time     `json:"at"`
}

// EventHandler observes LoopEvents. Implementations must not assume ordering
// guarantees beyond "emitted in the order the loop produced them".
type EventHandler func(LoopEvent)
