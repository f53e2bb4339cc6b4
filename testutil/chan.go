package testutil

import (
	"context"
	"testing"
)

// RequireReceive receives a value from the chan and returns it. If the
// context expires before a value can be received, it fails the test.
//
// Safety: Must only be called from the goroutine that created `t`.
func RequireReceive[A any](ctx context.Context, t testing.TB, c <-chan A) A {
	t.Helper()
	select {
	case <-ctx.Done():
		t.Fatal("timeout receiving from channel")
		var a A
		return a
	case a := <-c:
		return a
	}
}

// RequireSend sends a value over the chan. If the context expires before
// the send completes, it fails the test.
//
// Safety: Must only be called from the goroutine that created `t`.
func RequireSend[A any](ctx context.Context, t testing.TB, c chan<- A, a A) {
	t.Helper()
	select {
	case <-ctx.Done():
		t.Fatal("timeout sending on channel")
	case c <- a:
	}
}
