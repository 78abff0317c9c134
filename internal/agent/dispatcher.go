package agent

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"sync"
	"time"

	"github.com/eren23/attocode-core/pkg/models"
)

const (
	// defaultCallTimeout bounds a single tool call absent a caller override.
	defaultCallTimeout = 60 * time.Second
	// forceKillGrace is added to a timeout before a call's goroutine is
	// abandoned outright; it gives a well-behaved tool time to clean up once
	// its context is cancelled. A result returned after the timeout is still
	// reported as a timeout.
	forceKillGrace = 3 * time.Second
	// defaultMaxConcurrency bounds how many calls in one ExecuteBatch run
	// at once.
	defaultMaxConcurrency = 8
)

// SchemaValidator checks decoded tool arguments against a tool's declared
// Schema before the dispatcher invokes it. cacheKey is typically the tool
// name, letting an implementation cache compiled schemas across calls.
// Implemented by toolschema.Validator; kept as an interface here so this
// package never imports the JSON Schema compiler directly.
type SchemaValidator interface {
	Validate(cacheKey string, schema Schema, args map[string]any) error
}

// Dispatcher resolves ToolCalls against a Registry, applies permission
// policy, and enforces per-call timeouts. It is the sole path by which the
// iteration loop ever invokes a Tool.
type Dispatcher struct {
	registry      *Registry
	checker       PermissionChecker
	approval      ApprovalCallback
	validator     SchemaValidator
	maxConcurrent int

	// onToolEvent, when set, receives every tool-lifecycle event Execute
	// produces. NewLoop wires this to forward a filtered subset into the
	// loop's own event stream; it is nil (a no-op) for any Dispatcher used
	// outside a Loop.
	onToolEvent func(models.ToolEvent)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Registry      *Registry
	Checker       PermissionChecker
	Approval      ApprovalCallback
	Validator     SchemaValidator
	MaxConcurrent int
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	checker := cfg.Checker
	if checker == nil {
		checker = AllowAllChecker{}
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrency
	}
	return &Dispatcher{
		registry:      cfg.Registry,
		checker:       checker,
		approval:      cfg.Approval,
		validator:     cfg.Validator,
		maxConcurrent: maxConcurrent,
	}
}

// Execute dispatches a single ToolCall end to end: permission evaluation,
// lookup, timeout-bounded invocation, and failure classification. Every
// failure is represented inside the returned ToolResult; if ctx is already
// done before dispatch begins, the result carries a timeout error kind.
func (d *Dispatcher) Execute(ctx context.Context, call models.ToolCall, timeout time.Duration) models.ToolResult {
	requestedAt := time.Now()
	d.emitToolEvent(models.ToolEvent{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Stage:      models.ToolEventRequested,
		StartedAt:  requestedAt,
	})

	if err := ctx.Err(); err != nil {
		res := errorResult(call, models.ToolErrTimeout, "execution context already done")
		d.emitToolResultEvent(call, res, requestedAt)
		return res
	}

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		res := errorResult(call, models.ToolErrNotFound, "tool "+call.Name+" is not registered")
		d.emitToolResultEvent(call, res, requestedAt)
		return res
	}

	decision := d.checker.Check(ctx, call, tool.Danger())
	args := call.Args
	switch decision.Verdict {
	case PermissionDeny:
		d.emitToolEvent(models.ToolEvent{
			ToolCallID:   call.ID,
			ToolName:     call.Name,
			Stage:        models.ToolEventDenied,
			PolicyReason: decision.Reason,
			StartedAt:    requestedAt,
			FinishedAt:   time.Now(),
		})
		return errorResult(call, models.ToolErrPolicyBlocked, decision.Reason)
	case PermissionPrompt:
		d.emitToolEvent(models.ToolEvent{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Stage:      models.ToolEventApprovalRequired,
			StartedAt:  requestedAt,
		})
		if d.approval == nil {
			res := errorResult(call, models.ToolErrPermissionReq, "approval required but no approval callback configured")
			d.emitToolResultEvent(call, res, requestedAt)
			return res
		}
		approved, modified := d.approval(ctx, call)
		if !approved {
			res := errorResult(call, models.ToolErrPermissionDenied, "approval denied")
			d.emitToolResultEvent(call, res, requestedAt)
			return res
		}
		if modified != nil {
			args = modified
		}
	case PermissionAllow:
		if decision.ModifiedArgs != nil {
			args = decision.ModifiedArgs
		}
	}

	if err := ValidateArgsSize(args); err != nil {
		res := errorResult(call, models.ToolErrInvalidArgs, err.Error())
		d.emitToolResultEvent(call, res, requestedAt)
		return res
	}

	if d.validator != nil {
		if err := d.validator.Validate(call.Name, tool.Schema(), args); err != nil {
			res := errorResult(call, models.ToolErrInvalidArgs, err.Error())
			d.emitToolResultEvent(call, res, requestedAt)
			return res
		}
	}

	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	res := d.invoke(ctx, tool, call, args, timeout)
	d.emitToolResultEvent(call, res, requestedAt)
	return res
}

// emitToolEvent forwards evt to onToolEvent if one is configured.
func (d *Dispatcher) emitToolEvent(evt models.ToolEvent) {
	if d.onToolEvent == nil {
		return
	}
	d.onToolEvent(evt)
}

// emitToolResultEvent translates a terminal ToolResult into a succeeded or
// failed ToolEvent.
func (d *Dispatcher) emitToolResultEvent(call models.ToolCall, res models.ToolResult, startedAt time.Time) {
	if d.onToolEvent == nil {
		return
	}
	stage := models.ToolEventSucceeded
	errStr := ""
	if res.IsError {
		stage = models.ToolEventFailed
		errStr = res.ErrorMessage
	}
	d.emitToolEvent(models.ToolEvent{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Stage:      stage,
		Output:     res.Content,
		Error:      errStr,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	})
}

// invoke runs a single tool call with a hard deadline. If the tool has not
// returned by timeout+forceKillGrace, invoke gives up and returns a timeout
// result even though the tool's goroutine may still be running; the tool
// contract requires idempotent, independently abandonable execution.
func (d *Dispatcher) invoke(ctx context.Context, tool Tool, call models.ToolCall, args map[string]any, timeout time.Duration) models.ToolResult {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: NewToolError(models.ToolErrExecution, call.Name, call.ID, nil).withPanic(r)}
			}
		}()
		content, err := tool.Execute(callCtx, args)
		done <- outcome{content: content, err: err}
	}()

	select {
	case out := <-done:
		if callCtx.Err() == context.DeadlineExceeded {
			return errorResult(call, models.ToolErrTimeout, "tool call exceeded timeout")
		}
		res := models.ToolResult{CallID: call.ID, Duration: time.Since(start)}
		if out.err != nil {
			res.IsError = true
			res.ErrorKind = classifyToolErr(out.err)
			res.ErrorMessage = out.err.Error()
		} else {
			res.Content = out.content
		}
		if args2, ok := anyMapDiffers(call.Args, args); ok {
			res.ModifiedArgs = args2
		}
		return res
	case <-time.After(timeout + forceKillGrace):
		return errorResult(call, models.ToolErrTimeout, "tool call exceeded timeout and grace period")
	}
}

func anyMapDiffers(orig, modified map[string]any) (map[string]any, bool) {
	if len(orig) == len(modified) {
		same := true
		for k, v := range orig {
			mv, ok := modified[k]
			if !ok {
				same = false
				break
			}
			a, _ := json.Marshal(v)
			b, _ := json.Marshal(mv)
			if string(a) != string(b) {
				same = false
				break
			}
		}
		if same {
			return nil, false
		}
	}
	return modified, true
}

func errorResult(call models.ToolCall, kind models.ToolErrorKind, message string) models.ToolResult {
	return models.ToolResult{
		CallID:       call.ID,
		IsError:      true,
		ErrorKind:    kind,
		ErrorMessage: message,
	}
}

func (e *ToolError) withPanic(r any) *ToolError {
	e.Message = "panic: " + toString(r) + "\n" + string(debug.Stack())
	return e
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// ExecuteBatch dispatches every call concurrently, bounded by maxConcurrent,
// and returns results in the same order as calls. A failure in one call
// never cancels or delays its siblings; each call gets its own timeout
// budget starting when that call is dispatched, after it obtains one of the
// maxConcurrent slots.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, calls []models.ToolCall, timeout time.Duration) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	sem := make(chan struct{}, d.maxConcurrent)
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, c models.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = d.Execute(ctx, c, timeout)
		}(i, call)
	}
	wg.Wait()
	return results
}
