package agent

import (
	"testing"

	"github.com/eren23/attocode-core/internal/usage"
	"github.com/eren23/attocode-core/pkg/models"
)

func TestContext_AppendAndOrderMessages(t *testing.T) {
	ctx := NewContext(ContextConfig{})
	ctx.AppendMessage(models.Message{Role: models.RoleUser, Content: "1"})
	ctx.AppendMessage(models.Message{Role: models.RoleAssistant, Content: "2"})

	msgs := ctx.Messages()
	if len(msgs) != 2 || msgs[0].Content != "1" || msgs[1].Content != "2" {
		t.Fatalf("messages out of order: %+v", msgs)
	}
	// Messages() returns a copy; mutating it must not affect the Context.
	msgs[0].Content = "mutated"
	if ctx.Messages()[0].Content != "1" {
		t.Fatal("Messages() must return an independent snapshot copy")
	}
}

func TestContext_HasUserMessage(t *testing.T) {
	ctx := NewContext(ContextConfig{})
	if ctx.HasUserMessage() {
		t.Fatal("fresh context should have no user message")
	}
	ctx.AppendMessage(models.Message{Role: models.RoleSystem, Content: "sys"})
	if ctx.HasUserMessage() {
		t.Fatal("a system message alone should not satisfy HasUserMessage")
	}
	ctx.AppendMessage(models.Message{Role: models.RoleUser, Content: "hi"})
	if !ctx.HasUserMessage() {
		t.Fatal("expected HasUserMessage true after a user message is appended")
	}
}

func TestContext_CancelIsOneShotAndMonotonic(t *testing.T) {
	ctx := NewContext(ContextConfig{})
	if ctx.IsCancelled() {
		t.Fatal("fresh context should not be cancelled")
	}
	ctx.Cancel()
	ctx.Cancel() // idempotent
	if !ctx.IsCancelled() {
		t.Fatal("expected cancelled after Cancel()")
	}
}

func TestContext_CheckIterationBudget(t *testing.T) {
	budget := NewBudget(0, 0, 2, 0, EnforceStrict)
	econ := NewEconomics(budget, usage.Cost{})
	ctx := NewContext(ContextConfig{Economics: econ, Budget: budget})

	if !ctx.CheckIterationBudget() {
		t.Fatal("0 iterations consumed, budget of 2 should allow continuing")
	}
	econ.IncrementIteration()
	econ.IncrementIteration()
	if ctx.CheckIterationBudget() {
		t.Fatal("iteration budget should be exhausted at 2/2")
	}
}

func TestContext_CheckTokenBudget(t *testing.T) {
	budget := NewBudget(100, 0, 0, 0, EnforceStrict)
	econ := NewEconomics(budget, usage.Cost{})
	ctx := NewContext(ContextConfig{Economics: econ, Budget: budget})

	if !ctx.CheckTokenBudget() {
		t.Fatal("no usage recorded yet, should be within budget")
	}
	econ.RecordLLMUsage("", "", models.Usage{InputTokens: 100})
	if ctx.CheckTokenBudget() {
		t.Fatal("token budget should be exhausted at exactly the max")
	}
}

func TestContext_NotifyCompactionReanchorsBaseline(t *testing.T) {
	budget := NewBudget(0, 0, 0, 0, EnforceAdvisory)
	econ := NewEconomics(budget, usage.Cost{})
	ctx := NewContext(ContextConfig{Economics: econ, Budget: budget})
	for i := 0; i < 5; i++ {
		ctx.AppendMessage(models.Message{Role: models.RoleUser, Content: "msg"})
	}
	econ.RecordLLMUsage("", "", models.Usage{InputTokens: 500})

	ctx.NotifyCompaction(3, models.Message{Role: models.RoleSystem, Content: "summary of earlier turns"})

	msgs := ctx.Messages()
	if len(msgs) != 3 || msgs[0].Content != "summary of earlier turns" {
		t.Fatalf("expected prefix replaced by summary, got %+v", msgs)
	}
	if econ.Snapshot().Baseline != 500 {
		t.Fatalf("expected baseline re-anchored to 500, got %d", econ.Snapshot().Baseline)
	}
}
