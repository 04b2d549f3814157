package sessions

import (
	"testing"
	"time"
)

func TestCancelTokenStartsActive(t *testing.T) {
	tok := NewCancelToken()
	if tok.State() != CancelActive {
		t.Fatalf("got state %v, want active", tok.State())
	}
	if tok.Cancelled() {
		t.Fatalf("fresh token should not report cancelled")
	}
	if err := tok.ThrowIfCancelled(); err != nil {
		t.Fatalf("ThrowIfCancelled on active token: %v", err)
	}
}

func TestCancelTransitionsToCancelling(t *testing.T) {
	tok := NewCancelToken()
	tok.Cancel()
	if tok.State() != CancelCancelling {
		t.Fatalf("got state %v, want cancelling", tok.State())
	}
	if !tok.Cancelled() {
		t.Fatalf("expected Cancelled() true after Cancel")
	}
	if err := tok.ThrowIfCancelled(); err == nil {
		t.Fatalf("expected ThrowIfCancelled to return an error once cancelling")
	}
	select {
	case <-tok.Done():
	default:
		t.Fatalf("expected Done() channel closed after Cancel")
	}
}

func TestMarkCancelledCompletesTransition(t *testing.T) {
	tok := NewCancelToken()
	tok.Cancel()
	tok.MarkCancelled()
	if tok.State() != CancelCancelled {
		t.Fatalf("got state %v, want cancelled", tok.State())
	}
	if !tok.Cancelled() {
		t.Fatalf("expected Cancelled() true once fully cancelled")
	}
}

func TestMarkCancelledWithoutCancelIsNoop(t *testing.T) {
	tok := NewCancelToken()
	tok.MarkCancelled()
	if tok.State() != CancelActive {
		t.Fatalf("MarkCancelled before Cancel should not change state, got %v", tok.State())
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	tok := NewCancelToken()
	calls := 0
	tok.OnCancel(func() { calls++ })
	tok.Cancel()
	tok.Cancel()
	if calls != 1 {
		t.Fatalf("OnCancel handler ran %d times, want 1", calls)
	}
}

func TestOnCancelRunsImmediatelyIfAlreadyFired(t *testing.T) {
	tok := NewCancelToken()
	tok.Cancel()

	ran := make(chan struct{})
	tok.OnCancel(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("OnCancel registered after Cancel should run synchronously")
	}
}

func TestOnCancelRunsOnSubsequentCancel(t *testing.T) {
	tok := NewCancelToken()
	ran := make(chan struct{})
	tok.OnCancel(func() { close(ran) })
	tok.Cancel()
	select {
	case <-ran:
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("OnCancel handler registered before Cancel should run on Cancel")
	}
}
