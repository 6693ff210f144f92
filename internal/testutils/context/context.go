package context

import (
	"context"
	"testing"
	"time"
)

// WithTest bounds ctx by the deadline of the test, less a second for clean-up.
//
// Polling tests use it to fail with context error rather than a timeout panic.
func WithTest(ctx context.Context, t *testing.T) (context.Context, context.CancelFunc) {
	if deadline, ok := t.Deadline(); ok {
		return context.WithDeadline(ctx, deadline.Add(-time.Second))
	}
	return context.WithCancel(ctx)
}
