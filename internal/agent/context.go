package agent

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eren23/attocode-core/pkg/models"
)

// Context is the dependency bundle constructed once per execution and
// threaded through every phase of the iteration loop. It owns the message
// history and the one-shot cancellation flag; every other dependency
// (provider, registry, economics, permission checker) is a reference it
// holds but does not own the mutable state of. Nothing in the loop or
// dispatcher ever reaches back up into a caller-owned object through
// Context - all observable communication flows out through emitted events.
type Context struct {
	mu       sync.RWMutex
	messages []models.Message

	cancelled atomic.Bool

	provider   Provider
	registry   *Registry
	economics  *Economics
	checker    PermissionChecker
	approval   ApprovalCallback
	budget     Budget
	handlers   []models.EventHandler
	handlersMu sync.RWMutex

	logger *slog.Logger
}

// ContextConfig supplies the dependencies a Context is built from.
type ContextConfig struct {
	Provider   Provider
	Registry   *Registry
	Economics  *Economics
	Checker    PermissionChecker
	Approval   ApprovalCallback
	Budget     Budget
	Logger     *slog.Logger
	EventSinks []models.EventHandler
}

// NewContext constructs a Context. At least one user message must be
// appended, and the budget must allow at least one iteration, before the
// loop's Guard phase will let execution proceed; NewContext itself does not
// enforce that precondition since messages are appended afterward.
func NewContext(cfg ContextConfig) *Context {
	checker := cfg.Checker
	if checker == nil {
		checker = AllowAllChecker{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Context{
		provider:  cfg.Provider,
		registry:  registry,
		economics: cfg.Economics,
		checker:   checker,
		approval:  cfg.Approval,
		budget:    cfg.Budget,
		logger:    logger,
		handlers:  append([]models.EventHandler(nil), cfg.EventSinks...),
	}
}

// AppendMessage adds a message to the execution's history. Indices are
// stable once assigned: nothing ever reorders or removes an appended message.
func (c *Context) AppendMessage(m models.Message) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
}

// Messages returns a snapshot copy of the history so far.
func (c *Context) Messages() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// MessageCount returns the number of messages appended so far.
func (c *Context) MessageCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// HasUserMessage reports whether at least one user-role message has been
// appended, part of the loop's precondition check.
func (c *Context) HasUserMessage() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.messages {
		if m.Role == models.RoleUser {
			return true
		}
	}
	return false
}

// Cancel sets the one-shot cancellation flag. It is safe to call multiple
// times and from any goroutine; only the first call has any effect on
// observers that branch on the transition, though IsCancelled always
// reflects the latest state.
func (c *Context) Cancel() {
	c.cancelled.Store(true)
}

// IsCancelled reports whether Cancel has been called.
func (c *Context) IsCancelled() bool {
	return c.cancelled.Load()
}

// Emit notifies every registered handler of a LoopEvent. Handlers are
// best-effort: a panic inside one is recovered and logged, never
// propagated, and never prevents the remaining handlers from running.
func (c *Context) Emit(evt models.LoopEvent) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	c.handlersMu.RLock()
	handlers := c.handlers
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		c.emitOne(h, evt)
	}
}

func (c *Context) emitOne(h models.EventHandler, evt models.LoopEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("event handler panicked", "recovered", fmt.Sprint(r), "event_kind", evt.Kind)
		}
	}()
	h(evt)
}

// AddEventHandler registers an additional event handler.
func (c *Context) AddEventHandler(h models.EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers = append(c.handlers, h)
}

// CheckIterationBudget is a pure predicate: true if another iteration is
// allowed given the configured MaxIterations and the economics manager's
// current iteration count.
func (c *Context) CheckIterationBudget() bool {
	if c.budget.MaxIterations <= 0 {
		return true
	}
	if c.economics == nil {
		return true
	}
	return c.economics.Snapshot().Iteration < c.budget.MaxIterations
}

// CheckTokenBudget is a pure predicate: true if the hard token limit has not
// yet been reached.
func (c *Context) CheckTokenBudget() bool {
	if c.budget.MaxTokens <= 0 || c.economics == nil {
		return true
	}
	snap := c.economics.Snapshot()
	total := snap.InputTokens + snap.OutputTokens + snap.CacheReadTokens + snap.CacheWriteTokens
	return total < c.budget.MaxTokens
}

// NotifyCompaction is the single call an external compactor makes once it
// has produced a summary for the oldest dropCount messages: the prefix is
// replaced by summary in one step and the economics manager's baseline is
// re-anchored to the token total as of this point, so budget fractions
// computed afterward reflect only post-compaction growth. The core never
// performs the summarization itself; this only applies its result.
func (c *Context) NotifyCompaction(dropCount int, summary models.Message) {
	c.mu.Lock()
	if dropCount > len(c.messages) {
		dropCount = len(c.messages)
	}
	rest := append([]models.Message(nil), c.messages[dropCount:]...)
	c.messages = append([]models.Message{summary}, rest...)
	c.mu.Unlock()

	if c.economics != nil {
		c.economics.UpdateBaseline()
	}
}

// Provider returns the configured model provider.
func (c *Context) Provider() Provider { return c.provider }

// Registry returns the tool registry.
func (c *Context) Registry() *Registry { return c.registry }

// Economics returns the execution's Economics manager.
func (c *Context) Economics() *Economics { return c.economics }

// PermissionChecker returns the configured permission checker.
func (c *Context) PermissionChecker() PermissionChecker { return c.checker }

// Approval returns the configured approval callback, or nil if none.
func (c *Context) Approval() ApprovalCallback { return c.approval }

// Budget returns a copy of the configured execution budget.
func (c *Context) Budget() Budget { return c.budget }

// Logger returns the structured logger for this execution.
func (c *Context) Logger() *slog.Logger { return c.logger }
