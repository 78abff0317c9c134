package providers

import (
	"context"

	"github.com/eren23/attocode-core/internal/agent"
	"github.com/eren23/attocode-core/internal/throttle"
	"github.com/eren23/attocode-core/pkg/models"
)

// ThrottledProvider wraps another agent.Provider with the adaptive throttle:
// it acquires a permit before every call, widens spacing on a 429/402
// response, and narrows it again after sustained success. Rate-limited
// providers can be wrapped this way without the iteration loop knowing the
// throttle exists, since ThrottledProvider still satisfies agent.Provider.
type ThrottledProvider struct {
	inner agent.Provider
	th    *throttle.Throttle
}

// NewThrottledProvider wraps inner with th.
func NewThrottledProvider(inner agent.Provider, th *throttle.Throttle) *ThrottledProvider {
	return &ThrottledProvider{inner: inner, th: th}
}

var _ agent.Provider = (*ThrottledProvider)(nil)

// Chat acquires a throttle permit, delegates to the wrapped provider, and
// feeds the outcome back into the throttle's backoff/recover state.
func (p *ThrottledProvider) Chat(ctx context.Context, messages []models.Message, opts agent.ChatOptions) (*agent.ChatResponse, error) {
	if err := p.th.Acquire(ctx); err != nil {
		return nil, err
	}

	resp, err := p.inner.Chat(ctx, messages, opts)
	if err != nil {
		if pe, ok := err.(*agent.ProviderError); ok && isRateLimited(pe.StatusCode) {
			p.th.Backoff()
		}
		return nil, err
	}

	p.th.Recover()
	return resp, nil
}

func isRateLimited(statusCode int) bool {
	return statusCode == 429 || statusCode == 402
}
