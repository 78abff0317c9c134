package agent

import (
	"context"

	"github.com/eren23/attocode-core/internal/tools/policy"
	"github.com/eren23/attocode-core/pkg/models"
)

// PolicyChecker adapts a policy.Resolver plus a policy.Policy to the
// PermissionChecker contract, giving the dispatcher's permission step a
// concrete allow/deny language instead of AllowAllChecker's rubber stamp.
//
// The policy language itself only speaks allow/deny, so PolicyChecker turns a
// deny into PermissionDeny and an allow into PermissionAllow - except a
// critical-danger tool that is allowed only through the full-profile
// catch-all (no explicit rule names it), which is downgraded to
// PermissionPrompt so a caller's ApprovalCallback gets a say.
type PolicyChecker struct {
	resolver *policy.Resolver
	policy   *policy.Policy
}

// NewPolicyChecker constructs a PolicyChecker over a resolver and policy.
func NewPolicyChecker(resolver *policy.Resolver, p *policy.Policy) *PolicyChecker {
	return &PolicyChecker{resolver: resolver, policy: p}
}

func (c *PolicyChecker) Check(ctx context.Context, call models.ToolCall, danger Danger) PermissionDecision {
	decision := c.resolver.Decide(c.policy, call.Name)
	if !decision.Allowed {
		return PermissionDecision{Verdict: PermissionDeny, Reason: decision.Reason}
	}
	if danger == DangerCritical && decision.Reason == "allowed by profile full" {
		return PermissionDecision{
			Verdict: PermissionPrompt,
			Reason:  "critical-danger tool allowed only via the full-profile catch-all, not an explicit rule",
		}
	}
	return PermissionDecision{Verdict: PermissionAllow, Reason: decision.Reason}
}

var _ PermissionChecker = (*PolicyChecker)(nil)
