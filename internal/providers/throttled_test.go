package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eren23/attocode-core/internal/agent"
	"github.com/eren23/attocode-core/internal/backoff"
	"github.com/eren23/attocode-core/internal/throttle"
	"github.com/eren23/attocode-core/pkg/models"
)

type scriptedProvider struct {
	errs  []error
	calls int
}

func (s *scriptedProvider) Chat(ctx context.Context, messages []models.Message, opts agent.ChatOptions) (*agent.ChatResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &agent.ChatResponse{StopReason: agent.StopEndTurn}, nil
}

func TestThrottledProvider_WidensSpacingOnRateLimitResponse(t *testing.T) {
	inner := &scriptedProvider{errs: []error{agent.NewProviderError(429, errors.New("rate limited"))}}
	th := throttle.New(throttle.Config{
		Capacity:   10,
		MinSpacing: time.Millisecond,
		Policy:     backoff.BackoffPolicy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0},
	})
	p := NewThrottledProvider(inner, th)

	if _, err := p.Chat(context.Background(), nil, agent.ChatOptions{}); err == nil {
		t.Fatal("expected the 429 to propagate")
	}
	if got := th.CurrentSpacing(); got != 100*time.Millisecond {
		t.Fatalf("spacing after one rate-limited call = %v, want 100ms", got)
	}
}

func TestThrottledProvider_SuccessDoesNotWidenSpacing(t *testing.T) {
	inner := &scriptedProvider{}
	th := throttle.New(throttle.Config{Capacity: 10, MinSpacing: time.Millisecond})
	p := NewThrottledProvider(inner, th)

	if _, err := p.Chat(context.Background(), nil, agent.ChatOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := th.CurrentSpacing(); got != time.Millisecond {
		t.Fatalf("spacing after a successful call = %v, want unchanged 1ms", got)
	}
}

func TestThrottledProvider_NonRateLimitErrorDoesNotTriggerBackoff(t *testing.T) {
	inner := &scriptedProvider{errs: []error{agent.NewProviderError(401, errors.New("bad key"))}}
	th := throttle.New(throttle.Config{
		Capacity:   10,
		MinSpacing: time.Millisecond,
		Policy:     backoff.BackoffPolicy{InitialMs: 500, MaxMs: 10000, Factor: 2, Jitter: 0},
	})
	p := NewThrottledProvider(inner, th)

	if _, err := p.Chat(context.Background(), nil, agent.ChatOptions{}); err == nil {
		t.Fatal("expected the 401 to propagate")
	}
	if got := th.CurrentSpacing(); got != time.Millisecond {
		t.Fatalf("spacing after a non-rate-limit error = %v, want unchanged 1ms", got)
	}
}
