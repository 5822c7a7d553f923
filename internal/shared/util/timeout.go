package util

import (
	"context"
	"time"
)

// RunWithTimeout runs fn on its own goroutine and gives up once timeout
// elapses or ctx is cancelled. Filesystem syscalls cannot be interrupted, so a
// timed-out fn keeps running in the background and its result is discarded.
func RunWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
