package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordLLMRequest_IncrementsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordLLMRequest("anthropic", "claude-sonnet-4", "success", 250*time.Millisecond, 100, 40, 0.002)

	if got := counterValue(t, m.LLMRequestCounter.WithLabelValues("anthropic", "claude-sonnet-4", "success")); got != 1 {
		t.Fatalf("request counter = %v, want 1", got)
	}
	if got := counterValue(t, m.LLMTokensUsed.WithLabelValues("anthropic", "claude-sonnet-4", "prompt")); got != 100 {
		t.Fatalf("prompt tokens = %v, want 100", got)
	}
	if got := counterValue(t, m.LLMCostUSD.WithLabelValues("anthropic", "claude-sonnet-4")); got != 0.002 {
		t.Fatalf("cost = %v, want 0.002", got)
	}
}

func TestSetBudgetStatus_OnlyCurrentStatusIsActive(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetBudgetStatus("critical")

	if got := gaugeValue(t, m.BudgetStatus.WithLabelValues("critical")); got != 1 {
		t.Fatalf("critical gauge = %v, want 1", got)
	}
	if got := gaugeValue(t, m.BudgetStatus.WithLabelValues("ok")); got != 0 {
		t.Fatalf("ok gauge = %v, want 0", got)
	}
}

func TestRecordAoTTask_CountsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordAoTTask("done")
	m.RecordAoTTask("done")
	m.RecordAoTTask("skipped")

	if got := counterValue(t, m.AoTTasksTotal.WithLabelValues("done")); got != 2 {
		t.Fatalf("done count = %v, want 2", got)
	}
	if got := counterValue(t, m.AoTTasksTotal.WithLabelValues("skipped")); got != 1 {
		t.Fatalf("skipped count = %v, want 1", got)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetGauge().GetValue()
}
