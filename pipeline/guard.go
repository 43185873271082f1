// ABOUTME: Rate-limited delivery guard wrapping each record's send with interval pacing and bounded retry.
// ABOUTME: Pacing applies only in live mode; backoff doubles per attempt (1s, 2s, 4s, ...).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Clock provides the current time. It can be swapped for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time { return time.Now() }

// AuditFunc records one delivery audit entry. leadID may be empty.
type AuditFunc func(leadID, level, message string)

// GuardConfig configures a delivery Guard.
type GuardConfig struct {
	// RatePerMinute is the maximum number of sends per minute. Zero or
	// negative disables pacing.
	RatePerMinute int

	// MaxRetries is the number of retry attempts after the first failure,
	// so each record gets MaxRetries+1 attempts in total.
	MaxRetries int

	// Clock defaults to SystemClock.
	Clock Clock

	// Sleep defaults to time.Sleep. Injectable for deterministic tests.
	Sleep func(time.Duration)

	// Audit receives one entry per failed attempt. Optional.
	Audit AuditFunc
}

// Guard paces and retries individual record deliveries. Only the pipeline
// worker invokes it, so lastSend has a single writer.
type Guard struct {
	ratePerMinute int
	maxRetries    int
	clock         Clock
	sleep         func(time.Duration)
	audit         AuditFunc
	lastSend      time.Time
}

// NewGuard creates a Guard from the given configuration, filling defaults.
func NewGuard(cfg GuardConfig) *Guard {
	g := &Guard{
		ratePerMinute: cfg.RatePerMinute,
		maxRetries:    cfg.MaxRetries,
		clock:         cfg.Clock,
		sleep:         cfg.Sleep,
		audit:         cfg.Audit,
	}
	if g.clock == nil {
		g.clock = SystemClock{}
	}
	if g.sleep == nil {
		g.sleep = time.Sleep
	}
	if g.audit == nil {
		g.audit = func(string, string, string) {}
	}
	return g
}

// Interval returns the minimum spacing between sends, zero when pacing is
// disabled.
func (g *Guard) Interval() time.Duration {
	if g.ratePerMinute <= 0 {
		return 0
	}
	return time.Duration(float64(time.Minute) / float64(g.ratePerMinute))
}

// pace blocks until at least Interval has elapsed since the previous send.
// The last-send timestamp is updated on exit regardless of how the
// subsequent attempts turn out.
func (g *Guard) pace() {
	interval := g.Interval()
	if interval <= 0 {
		return
	}

	if !g.lastSend.IsZero() {
		if since := g.clock.Now().Sub(g.lastSend); since < interval {
			g.sleep(interval - since)
		}
	}
	g.lastSend = g.clock.Now()
}

// Outcome reports how a guarded delivery ended.
type Outcome struct {
	Attempts int
	Err      error // nil on success; the last attempt's error on exhaustion
}

// Delivered reports whether the record was sent successfully.
func (o Outcome) Delivered() bool { return o.Err == nil }

// Deliver runs one record's delivery through pacing and retry. In live mode
// it first waits out the pacing interval; dry runs are never paced. send is
// invoked up to MaxRetries+1 times with exponential backoff between
// attempts; non-retryable errors (see Retryable) stop immediately.
//
// Cancellation is coarse-grained: ctx is consulted between attempts, never
// during an in-flight send.
func (g *Guard) Deliver(ctx context.Context, leadID string, live bool, send func() error) Outcome {
	if live {
		g.pace()
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= g.maxRetries+1; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return Outcome{Attempts: attempts, Err: ctx.Err()}
			default:
			}
		}

		attempts = attempt
		err := send()
		if err == nil {
			deliveryAttempts.WithLabelValues("delivered").Inc()
			return Outcome{Attempts: attempts}
		}

		lastErr = err
		deliveryAttempts.WithLabelValues("failed").Inc()
		g.audit(leadID, "ERROR", fmt.Sprintf("attempt %d: %v", attempt, err))

		if !Retryable(err) {
			break
		}
		if attempt <= g.maxRetries {
			g.sleep(backoffDelay(attempt, err))
		}
	}

	return Outcome{Attempts: attempts, Err: lastErr}
}

// backoffDelay returns 2^(attempt-1) seconds, or the RetryAfter hint when
// the error carries a larger one.
func backoffDelay(attempt int, err error) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * time.Second
	if hint := retryAfterHint(err); hint > delay {
		delay = hint
	}
	return delay
}

func retryAfterHint(err error) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
