// ABOUTME: Context plumbing carrying the active run ID into stage functions.
package pipeline

import "context"

type ctxKey int

const runIDKey ctxKey = iota

// WithRunID attaches the run ID to ctx for the duration of a stage.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFrom returns the run ID attached by the worker, empty outside a run.
func RunIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}
