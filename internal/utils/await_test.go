package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTimedOut = errors.New("timed out")

func TestRaceWithTimeoutReturnsResult(t *testing.T) {
	got, err := RaceWithTimeout(context.Background(), 100*time.Millisecond, errTimedOut, func(ctx context.Context) (string, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "done" {
		t.Fatalf("want done, got %q", got)
	}
}

func TestRaceWithTimeoutReturnsTimeoutError(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	_, err := RaceWithTimeout(context.Background(), 10*time.Millisecond, errTimedOut, func(ctx context.Context) (string, error) {
		<-block
		return "late", nil
	})
	if !errors.Is(err, errTimedOut) {
		t.Fatalf("want timeout error, got %v", err)
	}
}

// The timeout abandons the call without cancelling it: the function keeps
// running and may still settle.
func TestRaceWithTimeoutDoesNotCancelTheCall(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})

	_, err := RaceWithTimeout(context.Background(), 5*time.Millisecond, errTimedOut, func(ctx context.Context) (string, error) {
		close(started)
		select {
		case <-ctx.Done():
			t.Error("context must not be cancelled by the timeout")
		case <-time.After(30 * time.Millisecond):
		}
		close(finished)
		return "late", nil
	})
	if !errors.Is(err, errTimedOut) {
		t.Fatalf("want timeout error, got %v", err)
	}

	<-started
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("abandoned call never finished")
	}
}

func TestRaceWithTimeoutPropagatesFnError(t *testing.T) {
	fnErr := errors.New("boom")
	_, err := RaceWithTimeout(context.Background(), 100*time.Millisecond, errTimedOut, func(ctx context.Context) (int, error) {
		return 0, fnErr
	})
	if !errors.Is(err, fnErr) {
		t.Fatalf("want fn error, got %v", err)
	}
}

func TestRaceWithTimeoutContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := make(chan struct{})
	defer close(block)
	_, err := RaceWithTimeout(ctx, time.Second, errTimedOut, func(ctx context.Context) (string, error) {
		<-block
		return "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestSleepWithContext(t *testing.T) {
	if !SleepWithContext(context.Background(), time.Millisecond) {
		t.Fatal("expected sleep to complete")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if SleepWithContext(ctx, time.Hour) {
		t.Fatal("expected cancelled sleep to report false")
	}
}
