// Package throttle implements the adaptive request throttle named as an
// optional wrapper for rate-limited providers: a token bucket bounds burst
// concurrency, and a minimum inter-request spacing escalates on repeated
// 429/402 responses and relaxes again after sustained success. The AoT
// scheduler's worker pool semaphore is the throttling primitive for CPU-bound
// work; this package exists for the network-bound case a provider call adds
// on top of that.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/eren23/attocode-core/internal/backoff"
)

// Config configures a Throttle.
type Config struct {
	// Capacity is the token bucket's maximum burst size.
	Capacity int
	// RefillInterval is how often one token is added back to the bucket.
	RefillInterval time.Duration
	// MinSpacing is the floor on inter-request spacing before any backoff
	// has been applied.
	MinSpacing time.Duration
	// Policy drives how spacing escalates under Backoff and decays under
	// Recover; attempt number is the consecutive-failure count.
	Policy backoff.BackoffPolicy
	// RecoverThreshold is how many consecutive successful Acquire/Recover
	// cycles are required before spacing steps back down. Zero defaults to 5.
	RecoverThreshold int
}

// Throttle is a token bucket plus an adaptive minimum inter-request spacing.
// It is safe for concurrent use.
type Throttle struct {
	mu sync.Mutex

	capacity       float64
	refillInterval time.Duration
	tokens         float64
	lastRefill     time.Time

	baseSpacing      time.Duration
	currentSpacing   time.Duration
	lastAcquire      time.Time
	policy           backoff.BackoffPolicy
	failureStreak    int
	successStreak    int
	recoverThreshold int
}

// New constructs a Throttle with a full bucket and no backoff applied.
func New(cfg Config) *Throttle {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	refill := cfg.RefillInterval
	if refill <= 0 {
		refill = time.Second
	}
	threshold := cfg.RecoverThreshold
	if threshold <= 0 {
		threshold = 5
	}
	return &Throttle{
		capacity:         float64(capacity),
		refillInterval:   refill,
		tokens:           float64(capacity),
		baseSpacing:      cfg.MinSpacing,
		currentSpacing:   cfg.MinSpacing,
		policy:           cfg.Policy,
		recoverThreshold: threshold,
	}
}

// Acquire blocks until a token is available and the configured minimum
// spacing since the previous Acquire has elapsed, or ctx is cancelled.
func (t *Throttle) Acquire(ctx context.Context) error {
	for {
		wait, ok := t.tryAcquire()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire attempts a non-blocking acquire. On success it returns (0,
// true); otherwise it returns the duration the caller should wait before
// retrying.
func (t *Throttle) tryAcquire() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.refillLocked(now)

	if since := now.Sub(t.lastAcquire); t.lastAcquire.IsZero() {
		// first call, spacing has nothing to measure against
	} else if since < t.currentSpacing {
		return t.currentSpacing - since, false
	}

	if t.tokens < 1 {
		return t.refillInterval, false
	}

	t.tokens--
	t.lastAcquire = now
	return 0, true
}

func (t *Throttle) refillLocked(now time.Time) {
	if t.lastRefill.IsZero() {
		t.lastRefill = now
		return
	}
	elapsed := now.Sub(t.lastRefill)
	if elapsed < t.refillInterval {
		return
	}
	added := float64(elapsed / t.refillInterval)
	t.tokens = minFloat(t.capacity, t.tokens+added)
	t.lastRefill = t.lastRefill.Add(time.Duration(added) * t.refillInterval)
}

// Backoff widens the minimum spacing following a 429/402 (or any
// provider-reported rate-limit) response. Consecutive calls escalate
// spacing exponentially per the configured Policy.
func (t *Throttle) Backoff() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failureStreak++
	t.successStreak = 0
	widened := backoff.ComputeBackoff(t.policy, t.failureStreak)
	if widened > t.currentSpacing {
		t.currentSpacing = widened
	}
}

// Recover registers one successful request. After RecoverThreshold
// consecutive successes, spacing steps back toward baseSpacing.
func (t *Throttle) Recover() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failureStreak = 0
	t.successStreak++
	if t.successStreak < t.recoverThreshold {
		return
	}
	t.successStreak = 0
	if t.currentSpacing > t.baseSpacing {
		t.currentSpacing = maxDuration(t.baseSpacing, t.currentSpacing/2)
	}
}

// CurrentSpacing reports the throttle's present minimum inter-request
// spacing, mainly useful for tests and diagnostics.
func (t *Throttle) CurrentSpacing() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentSpacing
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
