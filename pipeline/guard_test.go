// ABOUTME: Tests for the delivery guard's pacing, retry ladder, and error classification.
package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock advances only when the recorded sleep function is called.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// newTestGuard returns a guard with a fake clock whose sleeps advance the
// clock and are recorded.
func newTestGuard(cfg GuardConfig) (*Guard, *fakeClock, *[]time.Duration) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var sleeps []time.Duration
	cfg.Clock = clock
	cfg.Sleep = func(d time.Duration) {
		sleeps = append(sleeps, d)
		clock.now = clock.now.Add(d)
	}
	return NewGuard(cfg), clock, &sleeps
}

func TestIntervalFromRate(t *testing.T) {
	cases := []struct {
		rate int
		want time.Duration
	}{
		{60, time.Second},
		{10, 6 * time.Second},
		{30, 2 * time.Second},
		{0, 0},
		{-5, 0},
	}
	for _, tc := range cases {
		g := NewGuard(GuardConfig{RatePerMinute: tc.rate})
		if got := g.Interval(); got != tc.want {
			t.Errorf("rate %d: interval = %v, want %v", tc.rate, got, tc.want)
		}
	}
}

func TestDeliverPacesLiveSends(t *testing.T) {
	g, clock, sleeps := newTestGuard(GuardConfig{RatePerMinute: 10})
	send := func() error { return nil }

	// First send has no predecessor, so no pacing sleep.
	g.Deliver(context.Background(), "lead-1", true, send)
	if len(*sleeps) != 0 {
		t.Fatalf("first send slept %v, want none", *sleeps)
	}

	// Second send immediately after must wait the full 6s interval.
	g.Deliver(context.Background(), "lead-2", true, send)
	if len(*sleeps) != 1 || (*sleeps)[0] != 6*time.Second {
		t.Fatalf("second send sleeps = %v, want [6s]", *sleeps)
	}

	// After 4s of real time pass, only the 2s remainder is slept.
	clock.now = clock.now.Add(4 * time.Second)
	g.Deliver(context.Background(), "lead-3", true, send)
	if len(*sleeps) != 2 || (*sleeps)[1] != 2*time.Second {
		t.Fatalf("third send sleeps = %v, want remainder 2s", *sleeps)
	}
}

func TestDeliverNeverPacesDryRuns(t *testing.T) {
	g, _, sleeps := newTestGuard(GuardConfig{RatePerMinute: 60})
	for i := 0; i < 5; i++ {
		out := g.Deliver(context.Background(), "lead", false, func() error { return nil })
		if !out.Delivered() {
			t.Fatalf("dry send %d failed: %v", i, out.Err)
		}
	}
	if len(*sleeps) != 0 {
		t.Fatalf("dry runs slept %v, want none", *sleeps)
	}
}

func TestDeliverRetriesWithExponentialBackoff(t *testing.T) {
	g, _, sleeps := newTestGuard(GuardConfig{MaxRetries: 3})

	calls := 0
	out := g.Deliver(context.Background(), "lead", false, func() error {
		calls++
		if calls < 3 {
			return &TransientDeliveryError{Cause: errors.New("connection reset")}
		}
		return nil
	})

	if !out.Delivered() {
		t.Fatalf("expected eventual success, got %v", out.Err)
	}
	if out.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", out.Attempts)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("backoff sleeps = %v, want %v", *sleeps, want)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Errorf("backoff sleep %d = %v, want %v", i, (*sleeps)[i], want[i])
		}
	}
}

func TestDeliverExhaustsRetries(t *testing.T) {
	g, _, _ := newTestGuard(GuardConfig{MaxRetries: 2})

	sendErr := &TransientDeliveryError{Cause: errors.New("still down")}
	calls := 0
	out := g.Deliver(context.Background(), "lead", false, func() error {
		calls++
		return sendErr
	})

	if out.Delivered() {
		t.Fatal("expected exhaustion, got success")
	}
	if calls != 3 {
		t.Errorf("send called %d times, want 3 (initial + 2 retries)", calls)
	}
	if out.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", out.Attempts)
	}
	if !errors.Is(out.Err, sendErr) {
		t.Errorf("outcome error = %v, want last send error", out.Err)
	}
}

func TestDeliverStopsOnNonRetryableError(t *testing.T) {
	g, _, sleeps := newTestGuard(GuardConfig{MaxRetries: 5})

	calls := 0
	out := g.Deliver(context.Background(), "lead", false, func() error {
		calls++
		return &ConfigurationError{Missing: "SMTP_HOST"}
	})

	if calls != 1 {
		t.Errorf("send called %d times, want 1 for a non-retryable error", calls)
	}
	if out.Delivered() {
		t.Fatal("expected failure outcome")
	}
	if len(*sleeps) != 0 {
		t.Errorf("slept %v before giving up, want no backoff", *sleeps)
	}
}

func TestDeliverHonorsRetryAfterHint(t *testing.T) {
	g, _, sleeps := newTestGuard(GuardConfig{MaxRetries: 1})

	calls := 0
	g.Deliver(context.Background(), "lead", false, func() error {
		calls++
		if calls == 1 {
			return &RateLimitedError{Cause: errors.New("429"), RetryAfter: 10 * time.Second}
		}
		return nil
	})

	if len(*sleeps) != 1 || (*sleeps)[0] != 10*time.Second {
		t.Fatalf("sleeps = %v, want the 10s retry-after hint", *sleeps)
	}
}

func TestDeliverRespectsCancellationBetweenAttempts(t *testing.T) {
	g, _, _ := newTestGuard(GuardConfig{MaxRetries: 5})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	out := g.Deliver(ctx, "lead", false, func() error {
		calls++
		cancel()
		return &TransientDeliveryError{Cause: errors.New("flaky")}
	})

	if calls != 1 {
		t.Errorf("send called %d times after cancel, want 1", calls)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("outcome error = %v, want context.Canceled", out.Err)
	}
}

func TestDeliverAuditsEachFailedAttempt(t *testing.T) {
	var entries []string
	g, _, _ := newTestGuard(GuardConfig{
		MaxRetries: 2,
		Audit: func(leadID, level, message string) {
			if leadID != "lead-7" || level != "ERROR" {
				t.Errorf("audit entry lead=%q level=%q", leadID, level)
			}
			entries = append(entries, message)
		},
	})

	g.Deliver(context.Background(), "lead-7", false, func() error {
		return &TransientDeliveryError{Cause: errors.New("boom")}
	})

	if len(entries) != 3 {
		t.Fatalf("audit entries = %d, want one per failed attempt", len(entries))
	}
}
