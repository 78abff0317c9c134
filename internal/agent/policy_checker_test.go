package agent

import (
	"context"
	"testing"

	"github.com/eren23/attocode-core/internal/tools/policy"
	"github.com/eren23/attocode-core/pkg/models"
)

func TestPolicyChecker_AllowsExplicitlyAllowedTool(t *testing.T) {
	resolver := policy.NewResolver()
	p := policy.NewPolicy("").WithAllow("read")
	checker := NewPolicyChecker(resolver, p)

	decision := checker.Check(context.Background(), models.ToolCall{Name: "read"}, DangerSafe)
	if decision.Verdict != PermissionAllow {
		t.Fatalf("Verdict = %v, want allow; reason=%q", decision.Verdict, decision.Reason)
	}
}

func TestPolicyChecker_DeniesToolNotInAllowList(t *testing.T) {
	resolver := policy.NewResolver()
	p := policy.NewPolicy("").WithAllow("read")
	checker := NewPolicyChecker(resolver, p)

	decision := checker.Check(context.Background(), models.ToolCall{Name: "exec"}, DangerHigh)
	if decision.Verdict != PermissionDeny {
		t.Fatalf("Verdict = %v, want deny", decision.Verdict)
	}
}

func TestPolicyChecker_DenyRuleOverridesAllow(t *testing.T) {
	resolver := policy.NewResolver()
	p := policy.NewPolicy("").WithAllow("group:fs").WithDeny("exec")
	checker := NewPolicyChecker(resolver, p)

	decision := checker.Check(context.Background(), models.ToolCall{Name: "exec"}, DangerHigh)
	if decision.Verdict != PermissionDeny {
		t.Fatalf("Verdict = %v, want deny (explicit deny beats group allow)", decision.Verdict)
	}
}

func TestPolicyChecker_CriticalToolUnderFullProfileRequiresPrompt(t *testing.T) {
	resolver := policy.NewResolver()
	p := policy.NewPolicy(policy.ProfileFull)
	checker := NewPolicyChecker(resolver, p)

	decision := checker.Check(context.Background(), models.ToolCall{Name: "exec"}, DangerCritical)
	if decision.Verdict != PermissionPrompt {
		t.Fatalf("Verdict = %v, want prompt for a critical tool allowed only by the full-profile catch-all", decision.Verdict)
	}
}

func TestPolicyChecker_CriticalToolWithExplicitAllowDoesNotPrompt(t *testing.T) {
	resolver := policy.NewResolver()
	p := policy.NewPolicy("").WithAllow("exec")
	checker := NewPolicyChecker(resolver, p)

	decision := checker.Check(context.Background(), models.ToolCall{Name: "exec"}, DangerCritical)
	if decision.Verdict != PermissionAllow {
		t.Fatalf("Verdict = %v, want allow when an explicit rule names the tool", decision.Verdict)
	}
}
