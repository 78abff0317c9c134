package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eren23/attocode-core/internal/usage"
	"github.com/eren23/attocode-core/pkg/models"
)

// EnforcementMode controls how strictly a Budget's limits are applied.
type EnforcementMode string

const (
	EnforceAdvisory EnforcementMode = "advisory"
	EnforceSoft     EnforcementMode = "soft"
	EnforceStrict   EnforcementMode = "strict"
)

// Budget bounds a single execution. SoftTokenLimit must not exceed
// MaxTokens; NewBudget clamps it if a caller passes an invalid pair.
type Budget struct {
	MaxTokens         int64
	SoftTokenLimit    int64
	MaxIterations     int
	MaxDurationSecond int64
	Enforcement       EnforcementMode
}

// NewBudget returns a Budget with SoftTokenLimit clamped to MaxTokens.
func NewBudget(maxTokens, softLimit int64, maxIterations int, maxDuration time.Duration, mode EnforcementMode) Budget {
	if softLimit > maxTokens {
		softLimit = maxTokens
	}
	return Budget{
		MaxTokens:         maxTokens,
		SoftTokenLimit:    softLimit,
		MaxIterations:     maxIterations,
		MaxDurationSecond: int64(maxDuration.Seconds()),
		Enforcement:       mode,
	}
}

// BudgetStatus is the coarse health signal returned by CheckBudget, mirrored
// after the ok/warning/critical/exhausted ladder used throughout the swarm
// layer's resource reporting.
type BudgetStatus string

const (
	StatusOK        BudgetStatus = "ok"
	StatusWarning   BudgetStatus = "warning"
	StatusCritical  BudgetStatus = "critical"
	StatusExhausted BudgetStatus = "exhausted"
)

// BudgetType identifies which dimension of the budget triggered a status.
type BudgetType string

const (
	BudgetTokens     BudgetType = "tokens"
	BudgetIterations BudgetType = "iterations"
	BudgetDuration   BudgetType = "duration"
	BudgetNone       BudgetType = ""
)

// BudgetCheck is the result of consulting the Economics Manager before a
// provider call. ForceTextOnly signals the loop to omit tool definitions
// from the next request once, under strict enforcement, token usage since
// the baseline reaches 95% of the hard limit, so
// the model can still wrap up without being able to trigger further tool use.
type BudgetCheck struct {
	CanContinue    bool
	Status         BudgetStatus
	BudgetType     BudgetType
	ForceTextOnly  bool
	InjectedPrompt string
}

// Snapshot is the serializable state of an Economics Manager at a point in
// time, suitable for persistence across a compaction boundary or for
// returning to a caller as an execution progress report.
type Snapshot struct {
	InputTokens      int64   `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens" yaml:"output_tokens"`
	CacheReadTokens  int64   `json:"cache_read_tokens" yaml:"cache_read_tokens"`
	CacheWriteTokens int64   `json:"cache_write_tokens" yaml:"cache_write_tokens"`
	EstimatedCost    float64 `json:"estimated_cost" yaml:"estimated_cost"`
	LLMCalls         int64   `json:"llm_calls" yaml:"llm_calls"`
	ToolCalls        int64   `json:"tool_calls" yaml:"tool_calls"`
	ElapsedSeconds   float64 `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Iteration        int     `json:"iteration" yaml:"iteration"`
	Baseline         int64   `json:"baseline,omitempty" yaml:"baseline,omitempty"`
}

// MarshalSnapshotYAML encodes a snapshot as YAML, for callers that persist
// execution progress reports alongside a YAML-based config or job record.
func MarshalSnapshotYAML(s Snapshot) ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("agent: encoding snapshot yaml: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshotYAML decodes a YAML-encoded Snapshot, the inverse of
// MarshalSnapshotYAML.
func UnmarshalSnapshotYAML(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("agent: decoding snapshot yaml: %w", err)
	}
	return s, nil
}

const (
	softThresholdFraction     = 0.80
	criticalThresholdFraction = 0.90
	textOnlyThresholdFraction = 0.95
	loopRingSize              = 20
	loopWindowSize            = 5
	loopRepeatThreshold       = 3
)

type loopEntry struct {
	toolName string
	argsHash string
	at       time.Time
}

// Economics tracks token and wall-clock consumption against a Budget,
// detects tool-call doom loops, and estimates a provider cache boundary for
// observability. It is the single owner of an execution's budget state;
// Context holds a reference to it but never mutates its counters directly.
type Economics struct {
	mu sync.Mutex

	budget    Budget
	cost      usage.Cost
	tracker   *usage.Tracker
	startedAt time.Time
	baseline  int64

	inputTokens      int64
	outputTokens     int64
	cacheReadTokens  int64
	cacheWriteTokens int64
	estimatedCost    float64
	llmCalls         int64
	toolCalls        int64
	iteration        int

	loopRing []loopEntry
}

// NewEconomics constructs an Economics manager for one execution.
func NewEconomics(budget Budget, cost usage.Cost) *Economics {
	return &Economics{
		budget:    budget,
		cost:      cost,
		tracker:   usage.NewTracker(usage.DefaultTrackerConfig()),
		startedAt: time.Now(),
	}
}

// RecordLLMUsage accounts for one provider call's token usage and cost.
func (e *Economics) RecordLLMUsage(provider, model string, u models.Usage) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.inputTokens += u.InputTokens
	e.outputTokens += u.OutputTokens
	e.cacheReadTokens += u.CacheReadTokens
	e.cacheWriteTokens += u.CacheWriteTokens
	e.llmCalls++

	cost := u.Cost
	if cost == 0 {
		uu := usage.Usage{
			InputTokens:      u.InputTokens,
			OutputTokens:     u.OutputTokens,
			CacheReadTokens:  u.CacheReadTokens,
			CacheWriteTokens: u.CacheWriteTokens,
		}
		cost = e.cost.Estimate(&uu)
	}
	e.estimatedCost += cost

	e.tracker.Record(usage.Record{
		ID:       fmt.Sprintf("llm-%d", e.llmCalls),
		Provider: provider,
		Model:    model,
		Usage: usage.Usage{
			InputTokens:      u.InputTokens,
			OutputTokens:     u.OutputTokens,
			CacheReadTokens:  u.CacheReadTokens,
			CacheWriteTokens: u.CacheWriteTokens,
		},
		Cost: cost,
	})
}

// RecordToolCall accounts for one dispatched tool call, independent of
// whether it succeeded, and feeds the loop detector's bounded ring.
func (e *Economics) RecordToolCall(call models.ToolCall) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.toolCalls++
	entry := loopEntry{toolName: call.Name, argsHash: hashArgs(call.Args), at: time.Now()}
	e.loopRing = append(e.loopRing, entry)
	if len(e.loopRing) > loopRingSize {
		e.loopRing = e.loopRing[len(e.loopRing)-loopRingSize:]
	}
}

// IncrementIteration advances the iteration counter and returns the new value.
func (e *Economics) IncrementIteration() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.iteration++
	return e.iteration
}

// CheckBudget evaluates current consumption against the configured Budget
// and returns the loop's next move. Advisory budgets never block; soft and
// strict budgets exhaust identically, but only strict ones are expected to
// be paired with a caller that actually halts on exhaustion.
func (e *Economics) CheckBudget() BudgetCheck {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.budget.Enforcement == EnforceAdvisory {
		return BudgetCheck{CanContinue: true, Status: StatusOK}
	}

	totalTokens := e.totalTokensLocked()
	elapsed := time.Since(e.startedAt)

	if e.budget.MaxIterations > 0 && e.iteration >= e.budget.MaxIterations {
		return BudgetCheck{CanContinue: false, Status: StatusExhausted, BudgetType: BudgetIterations}
	}
	if e.budget.MaxDurationSecond > 0 && int64(elapsed.Seconds()) >= e.budget.MaxDurationSecond {
		return BudgetCheck{CanContinue: false, Status: StatusExhausted, BudgetType: BudgetDuration}
	}
	if e.budget.MaxTokens > 0 && totalTokens >= e.budget.MaxTokens {
		return BudgetCheck{CanContinue: false, Status: StatusExhausted, BudgetType: BudgetTokens}
	}

	if e.budget.MaxTokens > 0 {
		sinceBaseline := totalTokens - e.baseline
		fraction := float64(sinceBaseline) / float64(e.budget.MaxTokens)
		forceTextOnly := fraction >= textOnlyThresholdFraction && e.budget.Enforcement == EnforceStrict

		if fraction >= criticalThresholdFraction {
			return BudgetCheck{
				CanContinue:    true,
				Status:         StatusCritical,
				BudgetType:     BudgetTokens,
				ForceTextOnly:  forceTextOnly,
				InjectedPrompt: "Token budget is nearly exhausted; wrap up without further tool calls.",
			}
		}
		softLimit := e.budget.SoftTokenLimit
		if softLimit == 0 {
			softLimit = int64(softThresholdFraction * float64(e.budget.MaxTokens))
		}
		if sinceBaseline >= softLimit {
			return BudgetCheck{
				CanContinue:    true,
				Status:         StatusWarning,
				BudgetType:     BudgetTokens,
				InjectedPrompt: "Token budget is running low; prefer concise responses.",
			}
		}
	}

	return BudgetCheck{CanContinue: true, Status: StatusOK}
}

func (e *Economics) totalTokensLocked() int64 {
	return e.inputTokens + e.outputTokens + e.cacheReadTokens + e.cacheWriteTokens
}

// UpdateBaseline re-anchors the token count used for budget fractions after
// a context compaction event, so soft/critical thresholds are computed
// against the post-compaction working set rather than the full history.
func (e *Economics) UpdateBaseline() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.baseline = e.totalTokensLocked()
}

// DetectDoomLoop reports whether the same (tool name, canonicalized args)
// pair has appeared at least loopRepeatThreshold times within the last
// loopWindowSize recorded tool calls. It assumes tool calls are idempotent,
// per the Tool contract.
func (e *Economics) DetectDoomLoop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.loopRing)
	if n < loopRepeatThreshold {
		return false
	}
	window := e.loopRing
	if n > loopWindowSize {
		window = e.loopRing[n-loopWindowSize:]
	}

	counts := make(map[string]int, len(window))
	for _, entry := range window {
		key := entry.toolName + "\x00" + entry.argsHash
		counts[key]++
		if counts[key] >= loopRepeatThreshold {
			return true
		}
	}
	return false
}

// EstimateCacheBoundary returns a weighted average of recently recorded
// cache-read token counts, used only for observability dashboards; it never
// influences budget or retry decisions.
func (e *Economics) EstimateCacheBoundary() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	records := e.tracker.GetRecentRecords(10)
	if len(records) == 0 {
		return 0
	}
	var weighted, weightTotal float64
	for i, r := range records {
		weight := float64(i + 1)
		weighted += weight * float64(r.Usage.CacheReadTokens)
		weightTotal += weight
	}
	if weightTotal == 0 {
		return 0
	}
	return weighted / weightTotal
}

// Snapshot returns a serializable view of current consumption.
func (e *Economics) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		InputTokens:      e.inputTokens,
		OutputTokens:     e.outputTokens,
		CacheReadTokens:  e.cacheReadTokens,
		CacheWriteTokens: e.cacheWriteTokens,
		EstimatedCost:    e.estimatedCost,
		LLMCalls:         e.llmCalls,
		ToolCalls:        e.toolCalls,
		ElapsedSeconds:   time.Since(e.startedAt).Seconds(),
		Iteration:        e.iteration,
		Baseline:         e.baseline,
	}
}

// hashArgs canonicalizes a tool call's arguments (by sorted-key JSON
// re-encoding) and returns a short hex digest, used as the loop detector's
// dedup key so argument ordering never masks a repeated call.
func hashArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, args[k])
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		return "unhashable"
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}
