package agent

import (
	"context"
	"time"

	"github.com/eren23/attocode-core/internal/metrics"
	"github.com/eren23/attocode-core/internal/retry"
	"github.com/eren23/attocode-core/internal/telemetry"
	"github.com/eren23/attocode-core/pkg/models"
)

// TerminationReason explains why Run returned.
type TerminationReason string

const (
	TerminatedCompleted     TerminationReason = "completed"
	TerminatedMaxIterations TerminationReason = "max_iterations"
	TerminatedBudgetLimit   TerminationReason = "budget_limit"
	TerminatedCancelled     TerminationReason = "cancelled"
	TerminatedError         TerminationReason = "error"
)

// RunResult is returned once the iteration loop stops.
type RunResult struct {
	Reason     TerminationReason
	Iterations int
	Err        error
	Snapshot   Snapshot
}

// LoopConfig configures a single Run of the iteration loop.
type LoopConfig struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	ToolTimeout   time.Duration
	RetryConfig   retry.Config
	ToolsProvider func() []ChatTool
	Provider      string // label used on telemetry spans and metrics for the active Provider
	Tracer        *telemetry.Tracer
	Metrics       *metrics.Metrics
}

// Loop is the single-threaded cooperative state machine described by the
// per-iteration sequence: guard, consult budget, call the model, retry on
// transient failure, record usage, append the assistant turn, test for
// completion, dispatch tool calls, append tool results, then increment.
// Assistant and tool messages are always appended in call order, and a
// retried model call never contributes an extra message to history.
type Loop struct {
	ctx        *Context
	dispatcher *Dispatcher
	cfg        LoopConfig
}

// NewLoop constructs a Loop bound to a Context and Dispatcher.
func NewLoop(ctx *Context, dispatcher *Dispatcher, cfg LoopConfig) *Loop {
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.Config{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Factor:       2.0,
			Jitter:       true,
		}
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = defaultCallTimeout
	}
	if dispatcher != nil {
		dispatcher.onToolEvent = func(evt models.ToolEvent) {
			if kind, ok := toolEventLoopKind(evt.Stage); ok {
				ctx.Emit(models.LoopEvent{Kind: kind, Tool: &evt})
			}
		}
	}
	return &Loop{ctx: ctx, dispatcher: dispatcher, cfg: cfg}
}

// toolEventLoopKind maps a ToolEvent's stage to the LoopEvent kind forwarded
// into the loop's event stream. ApprovalRequired and Retrying stages stay
// available to a direct Dispatcher.onToolEvent consumer but aren't part of
// the loop-level tool.start/tool.complete/tool.error lifecycle.
func toolEventLoopKind(stage models.ToolEventStage) (models.LoopEventKind, bool) {
	switch stage {
	case models.ToolEventRequested:
		return models.EventToolStart, true
	case models.ToolEventSucceeded:
		return models.EventToolComplete, true
	case models.ToolEventFailed, models.ToolEventDenied:
		return models.EventToolError, true
	default:
		return "", false
	}
}

// Run drives the loop to completion, cancellation, or budget/iteration
// exhaustion. It blocks until one of those terminal conditions holds.
func (l *Loop) Run(ctx context.Context) RunResult {
	// Guard: precondition is at least one user message and at least one
	// permitted iteration. Violating it terminates before any provider call.
	if !l.ctx.HasUserMessage() {
		return l.finish(TerminatedError, NewLoopError(PhaseGuard, errMissingUserMessage))
	}
	if l.ctx.IsCancelled() {
		return l.finish(TerminatedCancelled, nil)
	}
	if !l.ctx.CheckIterationBudget() {
		return l.finish(TerminatedMaxIterations, nil)
	}

	l.ctx.Emit(models.LoopEvent{Kind: models.EventStart})

	for {
		if l.ctx.IsCancelled() {
			return l.finish(TerminatedCancelled, nil)
		}

		check := l.ctx.Economics().CheckBudget()
		l.ctx.Emit(models.LoopEvent{Kind: models.EventBudgetStatus, Detail: string(check.Status)})
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.SetBudgetStatus(string(check.Status))
		}
		if !check.CanContinue {
			return l.finish(TerminatedBudgetLimit, nil)
		}

		resp, err := l.callModelWithRetry(ctx, check)
		if err != nil {
			return l.finish(TerminatedError, NewLoopError(PhaseModelCall, err))
		}
		if l.ctx.Economics() != nil {
			l.ctx.Economics().RecordLLMUsage("", l.cfg.Model, resp.Usage)
		}

		l.ctx.AppendMessage(models.Message{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		l.ctx.Emit(models.LoopEvent{Kind: models.EventAssistantTurn})

		if resp.StopReason != StopToolUse || len(resp.ToolCalls) == 0 {
			return l.finish(TerminatedCompleted, nil)
		}

		batchCtx, endBatch := l.startToolBatchSpan(ctx, len(resp.ToolCalls))
		results := l.dispatcher.ExecuteBatch(batchCtx, resp.ToolCalls, l.cfg.ToolTimeout)
		endBatch()
		for i, call := range resp.ToolCalls {
			if l.ctx.Economics() != nil {
				l.ctx.Economics().RecordToolCall(call)
			}
			if l.cfg.Metrics != nil {
				status := "success"
				if results[i].IsError {
					status = "error"
				}
				l.cfg.Metrics.RecordToolExecution(call.Name, status, results[i].Duration)
			}
			l.ctx.AppendMessage(toolResultMessage(call, results[i]))
		}
		l.ctx.Emit(models.LoopEvent{Kind: models.EventToolDispatch, Detail: "dispatched"})

		iteration := l.ctx.Economics().IncrementIteration()
		l.ctx.Emit(models.LoopEvent{Kind: models.EventIterationStart, Iteration: iteration})

		if !l.ctx.CheckIterationBudget() {
			return l.finish(TerminatedMaxIterations, nil)
		}

		if l.ctx.Economics() != nil && l.ctx.Economics().DetectDoomLoop() {
			return l.finish(TerminatedError, NewLoopError(PhaseDispatch, errDoomLoop))
		}
	}
}

func (l *Loop) finish(reason TerminationReason, err error) RunResult {
	var snap Snapshot
	if l.ctx.Economics() != nil {
		snap = l.ctx.Economics().Snapshot()
	}
	var errStr string
	if err != nil {
		errStr = err.Error()
	}
	l.ctx.Emit(models.LoopEvent{
		Kind:      terminalEventKind(reason),
		Iteration: snap.Iteration,
		Detail:    string(reason),
		Err:       errStr,
	})
	return RunResult{Reason: reason, Iterations: snap.Iteration, Err: err, Snapshot: snap}
}

// terminalEventKind maps a TerminationReason to the LoopEvent kind emitted
// when Run stops, so every exit path carries exactly one terminal event.
func terminalEventKind(reason TerminationReason) models.LoopEventKind {
	switch reason {
	case TerminatedCompleted:
		return models.EventCompleted
	case TerminatedCancelled:
		return models.EventCancelled
	default:
		return models.EventError
	}
}

// callModelWithRetry retries failed model calls using exponential backoff;
// a ProviderError marked non-retryable is surfaced immediately via
// retry.Permanent so it aborts the attempt loop without consuming the
// configured attempt budget. Any other error is retried.
func (l *Loop) callModelWithRetry(ctx context.Context, check BudgetCheck) (*ChatResponse, error) {
	opts := ChatOptions{Model: l.cfg.Model, MaxTokens: l.cfg.MaxTokens, Temperature: l.cfg.Temperature}
	if l.cfg.ToolsProvider != nil && !check.ForceTextOnly {
		opts.Tools = l.cfg.ToolsProvider()
	}

	messages := l.ctx.Messages()
	if check.InjectedPrompt != "" {
		messages = append(messages, models.Message{Role: models.RoleSystem, Content: check.InjectedPrompt})
	}

	start := time.Now()
	spanCtx := ctx
	var endSpan func(err error)
	if l.cfg.Tracer != nil {
		sctx, s := l.cfg.Tracer.StartModelCall(ctx, l.cfg.Provider, l.cfg.Model)
		spanCtx = sctx
		endSpan = func(err error) {
			telemetry.RecordError(s, err)
			s.End()
		}
	} else {
		endSpan = func(error) {}
	}

	value, result := retry.DoWithValue(spanCtx, l.cfg.RetryConfig, func() (*ChatResponse, error) {
		l.ctx.Emit(models.LoopEvent{Kind: models.EventLLMStart})
		attemptStart := time.Now()
		resp, err := l.ctx.Provider().Chat(spanCtx, messages, opts)
		if err == nil {
			l.ctx.Emit(models.LoopEvent{
				Kind:         models.EventLLMComplete,
				Duration:     time.Since(attemptStart),
				InputTokens:  resp.Usage.InputTokens,
				OutputTokens: resp.Usage.OutputTokens,
			})
			return resp, nil
		}
		l.ctx.Emit(models.LoopEvent{Kind: models.EventLLMError, Duration: time.Since(attemptStart), Err: err.Error()})
		if pe, ok := err.(*ProviderError); ok && !pe.Retryable {
			return nil, retry.Permanent(err)
		}
		return nil, err
	})
	endSpan(result.Err)

	if l.cfg.Metrics != nil {
		status := "success"
		promptTokens, completionTokens := 0, 0
		if result.Err != nil {
			status = "error"
		} else if value != nil {
			promptTokens, completionTokens = value.Usage.InputTokens, value.Usage.OutputTokens
		}
		l.cfg.Metrics.RecordLLMRequest(l.cfg.Provider, l.cfg.Model, status, time.Since(start), promptTokens, completionTokens, 0)
	}

	if result.Err != nil {
		return nil, result.Err
	}
	return value, nil
}

// startToolBatchSpan opens a span around one ExecuteBatch call when a Tracer
// is configured, otherwise it returns ctx unchanged and a no-op closer.
func (l *Loop) startToolBatchSpan(ctx context.Context, batchSize int) (context.Context, func()) {
	if l.cfg.Tracer == nil {
		return ctx, func() {}
	}
	spanCtx, span := l.cfg.Tracer.StartToolBatch(ctx, batchSize)
	return spanCtx, func() { span.End() }
}

func toolResultMessage(call models.ToolCall, result models.ToolResult) models.Message {
	content := result.Content
	if result.IsError {
		content = result.ErrorMessage
	}
	return models.Message{
		Role:       models.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
	}
}

var (
	errMissingUserMessage = loopSentinel("at least one user message is required before the loop can run")
	errDoomLoop           = loopSentinel("detected repeated identical tool calls")
)

type loopSentinel string

func (e loopSentinel) Error() string { return string(e) }
