// ABOUTME: Structured errors for completion requests with retryability derived from the HTTP status.
package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyCompletion indicates the provider returned a response with no
// usable text.
var ErrEmptyCompletion = errors.New("completion response contained no text")

// RequestError wraps a failed completion request. StatusCode is zero for
// transport-level failures that never produced an HTTP response.
type RequestError struct {
	StatusCode int
	RetryAfter time.Duration
	Cause      error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("completion request failed (status %d): %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("completion request failed: %v", e.Cause)
}

func (e *RequestError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the request is worth repeating. Throttling and
// server-side failures are; client-side mistakes are not. Transport failures
// without a status are treated as transient.
func (e *RequestError) IsRetryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}
