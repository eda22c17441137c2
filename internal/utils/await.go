package utils

import (
	"context"
	"time"
)

// RaceWithTimeout runs fn in its own goroutine and waits at most timeout for it
// to settle. On timeout the underlying call is NOT cancelled, since a broadcast
// blockchain operation cannot be recalled. It keeps running and its eventual
// result is discarded; only the caller's progression is unblocked.
func RaceWithTimeout[T any](ctx context.Context, timeout time.Duration, onTimeout error, fn func(context.Context) (T, error)) (T, error) {
	type settled struct {
		value T
		err   error
	}

	// Buffered so the abandoned goroutine can settle without a receiver.
	done := make(chan settled, 1)
	go func() {
		value, err := fn(ctx)
		done <- settled{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case result := <-done:
		return result.value, result.err
	case <-timer.C:
		return zero, onTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// SleepWithContext waits for d unless the context ends first.
// Returns false if the context ended.
func SleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
