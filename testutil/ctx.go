package testutil

import (
	"context"
	"testing"
	"time"
)

// Constants for timing out operations in tests. Errs on the side of
// being longer than necessary to reduce flakes in slow CI runners.
const (
	WaitShort  = 10 * time.Second
	WaitMedium = 15 * time.Second
	WaitLong   = 25 * time.Second

	IntervalFast   = 25 * time.Millisecond
	IntervalMedium = 250 * time.Millisecond
	IntervalSlow   = time.Second
)

// Context returns a context that is canceled after the given timeout or
// on test cleanup, whichever comes first.
func Context(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
