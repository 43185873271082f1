// ABOUTME: Error taxonomy for pipeline runs: control-surface sentinels plus structured delivery errors.
// ABOUTME: Delivery errors expose IsRetryable so the Guard can decide between backoff and immediate failure.
package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrBusy is returned by Start when a run is already active.
var ErrBusy = errors.New("pipeline already running")

// ErrNotRunning is returned by Stop when no run is active.
var ErrNotRunning = errors.New("no pipeline running")

// errStopRequested aborts the worker between stages after Stop is observed.
// It is not a failure and maps to the Stopped outcome.
var errStopRequested = errors.New("pipeline stopped by user")

// ConfigurationError reports a missing credential or setting. It is fatal to
// the delivery attempt immediately; the Guard never retries it.
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s not set", e.Missing)
}

func (e *ConfigurationError) IsRetryable() bool { return false }

// RateLimitedError reports upstream throttling. Retryable; RetryAfter is a
// hint for the minimum delay before the next attempt, zero when unknown.
type RateLimitedError struct {
	Cause      error
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.Cause != nil {
		return "rate limited: " + e.Cause.Error()
	}
	return "rate limited"
}

func (e *RateLimitedError) Unwrap() error     { return e.Cause }
func (e *RateLimitedError) IsRetryable() bool { return true }

// TransientDeliveryError wraps a transport failure that is worth retrying.
type TransientDeliveryError struct {
	Cause error
}

func (e *TransientDeliveryError) Error() string {
	return "transient delivery error: " + e.Cause.Error()
}

func (e *TransientDeliveryError) Unwrap() error     { return e.Cause }
func (e *TransientDeliveryError) IsRetryable() bool { return true }

// retryable is implemented by errors that know their own retry policy.
type retryable interface {
	IsRetryable() bool
}

// Retryable reports whether a delivery error should be retried. Errors that
// implement IsRetryable decide for themselves; anything else is treated as
// transient, matching the original behavior of retrying every send failure.
func Retryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}
