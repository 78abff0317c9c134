// Package metrics exposes Prometheus instrumentation for the iteration loop,
// the tool dispatcher, and the AoT scheduler. Callers register a Metrics
// against their own prometheus.Registerer so embedding one instance of this
// module twice in the same process (as tests in this package do) never
// collides against the global default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector this module emits.
type Metrics struct {
	LLMRequestDuration *prometheus.HistogramVec
	LLMRequestCounter  *prometheus.CounterVec
	LLMTokensUsed      *prometheus.CounterVec
	LLMCostUSD         *prometheus.CounterVec

	ToolExecutionCounter  *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	BudgetStatus *prometheus.GaugeVec

	AoTTaskDuration *prometheus.HistogramVec
	AoTTasksTotal   *prometheus.CounterVec

	DoomLoopDetected prometheus.Counter
}

// New creates and registers every collector against reg. Pass
// prometheus.NewRegistry() for an isolated instance (the default in tests),
// or prometheus.DefaultRegisterer to expose these series on the process-wide
// /metrics endpoint.
func New(reg prometheus.Registerer) *Metrics {
	factory := prometheus.WrapRegistererWith(prometheus.Labels{}, reg)

	m := &Metrics{
		LLMRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attocode_llm_request_duration_seconds",
			Help:    "Duration of provider chat calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),

		LLMRequestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attocode_llm_requests_total",
			Help: "Total provider chat calls by provider, model, and outcome",
		}, []string{"provider", "model", "status"}),

		LLMTokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attocode_llm_tokens_total",
			Help: "Total tokens consumed by provider, model, and token type",
		}, []string{"provider", "model", "type"}),

		LLMCostUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attocode_llm_cost_usd_total",
			Help: "Estimated LLM spend in USD by provider and model",
		}, []string{"provider", "model"}),

		ToolExecutionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attocode_tool_executions_total",
			Help: "Total tool dispatches by tool name and outcome",
		}, []string{"tool_name", "status"}),

		ToolExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attocode_tool_execution_duration_seconds",
			Help:    "Duration of tool dispatches in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),

		BudgetStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "attocode_budget_status",
			Help: "1 if the execution's budget is currently in the given status, else 0",
		}, []string{"status"}),

		AoTTaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attocode_aot_task_duration_seconds",
			Help:    "Duration of one AoT node's dispatch in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		AoTTasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attocode_aot_tasks_total",
			Help: "Total AoT subtasks by terminal status",
		}, []string{"status"}),

		DoomLoopDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attocode_doom_loop_detected_total",
			Help: "Total number of times the loop detector flagged a repeating tool-call pattern",
		}),
	}

	factory.MustRegister(
		m.LLMRequestDuration, m.LLMRequestCounter, m.LLMTokensUsed, m.LLMCostUSD,
		m.ToolExecutionCounter, m.ToolExecutionDuration,
		m.BudgetStatus,
		m.AoTTaskDuration, m.AoTTasksTotal,
		m.DoomLoopDetected,
	)
	return m
}

// RecordLLMRequest records one provider call's latency, outcome, token usage, and cost.
func (m *Metrics) RecordLLMRequest(provider, model, status string, elapsed time.Duration, promptTokens, completionTokens int, costUSD float64) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(elapsed.Seconds())
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
	if costUSD > 0 {
		m.LLMCostUSD.WithLabelValues(provider, model).Add(costUSD)
	}
}

// RecordToolExecution records one dispatcher call's latency and outcome.
func (m *Metrics) RecordToolExecution(toolName, status string, elapsed time.Duration) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(elapsed.Seconds())
}

// SetBudgetStatus reports the execution's current budget status as the only
// active gauge among the known set, zeroing the rest.
func (m *Metrics) SetBudgetStatus(current string) {
	for _, s := range []string{"ok", "warning", "critical", "exhausted"} {
		if s == current {
			m.BudgetStatus.WithLabelValues(s).Set(1)
		} else {
			m.BudgetStatus.WithLabelValues(s).Set(0)
		}
	}
}

// RecordAoTTaskDuration records one node dispatch's duration and outcome.
func (m *Metrics) RecordAoTTaskDuration(outcome string, elapsed time.Duration) {
	m.AoTTaskDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RecordAoTTask increments the terminal-status counter for one subtask.
func (m *Metrics) RecordAoTTask(status string) {
	m.AoTTasksTotal.WithLabelValues(status).Inc()
}

// RecordDoomLoop increments the doom-loop detection counter.
func (m *Metrics) RecordDoomLoop() {
	m.DoomLoopDetected.Inc()
}
