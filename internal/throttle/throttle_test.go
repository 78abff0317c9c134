package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/eren23/attocode-core/internal/backoff"
)

func TestAcquire_FirstCallNeverBlocksOnSpacing(t *testing.T) {
	th := New(Config{Capacity: 2, MinSpacing: time.Hour, Policy: backoff.DefaultPolicy()})

	if err := th.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire should never block on spacing: %v", err)
	}
}

func TestAcquire_SecondCallRespectsMinSpacing(t *testing.T) {
	th := New(Config{Capacity: 5, MinSpacing: 50 * time.Millisecond, Policy: backoff.DefaultPolicy()})

	if err := th.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := th.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("second Acquire returned after %v, want >= min spacing 50ms", elapsed)
	}
}

func TestAcquire_ExhaustedBucketBlocksUntilRefill(t *testing.T) {
	th := New(Config{Capacity: 1, RefillInterval: 40 * time.Millisecond})

	if err := th.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := th.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("second Acquire returned after %v, want >= refill interval 40ms", elapsed)
	}
}

func TestAcquire_ContextCancelledWhileWaiting(t *testing.T) {
	th := New(Config{Capacity: 1, MinSpacing: time.Hour})
	if err := th.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := th.Acquire(ctx); err == nil {
		t.Fatal("expected context deadline error while waiting on spacing")
	}
}

func TestBackoff_WidensSpacingAndEscalatesOnRepeatedCalls(t *testing.T) {
	th := New(Config{
		Capacity:   10,
		MinSpacing: 10 * time.Millisecond,
		Policy:     backoff.BackoffPolicy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0},
	})

	th.Backoff()
	first := th.CurrentSpacing()
	if first != 100*time.Millisecond {
		t.Fatalf("spacing after first Backoff = %v, want 100ms", first)
	}

	th.Backoff()
	second := th.CurrentSpacing()
	if second <= first {
		t.Fatalf("spacing after second Backoff = %v, want > %v", second, first)
	}
}

func TestRecover_NarrowsSpacingAfterSustainedSuccess(t *testing.T) {
	th := New(Config{
		Capacity:         10,
		MinSpacing:       10 * time.Millisecond,
		Policy:           backoff.BackoffPolicy{InitialMs: 1000, MaxMs: 60000, Factor: 2, Jitter: 0},
		RecoverThreshold: 3,
	})

	th.Backoff()
	widened := th.CurrentSpacing()

	th.Recover()
	th.Recover()
	if got := th.CurrentSpacing(); got != widened {
		t.Fatalf("spacing should be unchanged before RecoverThreshold is reached, got %v", got)
	}

	th.Recover()
	if got := th.CurrentSpacing(); got >= widened {
		t.Fatalf("spacing after reaching RecoverThreshold = %v, want < %v", got, widened)
	}
}

func TestRecover_NeverNarrowsBelowBaseSpacing(t *testing.T) {
	th := New(Config{
		Capacity:         10,
		MinSpacing:       10 * time.Millisecond,
		Policy:           backoff.BackoffPolicy{InitialMs: 11, MaxMs: 60000, Factor: 1, Jitter: 0},
		RecoverThreshold: 1,
	})

	th.Backoff()
	for i := 0; i < 10; i++ {
		th.Recover()
	}
	if got := th.CurrentSpacing(); got < 10*time.Millisecond {
		t.Fatalf("spacing narrowed below base: %v", got)
	}
}

func TestBackoff_ResetsSuccessStreak(t *testing.T) {
	th := New(Config{
		Capacity:         10,
		MinSpacing:       5 * time.Millisecond,
		Policy:           backoff.BackoffPolicy{InitialMs: 500, MaxMs: 60000, Factor: 2, Jitter: 0},
		RecoverThreshold: 2,
	})

	th.Backoff()
	widened := th.CurrentSpacing()
	th.Recover()
	th.Backoff() // should reset the one accumulated success
	th.Recover()
	if got := th.CurrentSpacing(); got < widened {
		t.Fatalf("a Backoff mid-streak should have reset the success count, got spacing %v want >= %v", got, widened)
	}
}
