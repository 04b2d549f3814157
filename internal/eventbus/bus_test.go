package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestEmitDeliversToAllSubscribers(t *testing.T) {
	b := New()
	var a, c int64
	b.On(TopicToolCall, func(payload any) { atomic.AddInt64(&a, 1) })
	b.On(TopicToolCall, func(payload any) { atomic.AddInt64(&c, 1) })

	b.Emit(TopicToolCall, ToolCallPayload{SessionID: "s1"})

	if atomic.LoadInt64(&a) != 1 || atomic.LoadInt64(&c) != 1 {
		t.Fatalf("expected both subscribers to fire once, got a=%d c=%d", a, c)
	}
}

func TestEmitDoesNotCrossTopics(t *testing.T) {
	b := New()
	fired := false
	b.On(TopicToolCall, func(payload any) { fired = true })

	b.Emit(TopicToolResult, ToolResultPayload{})

	if fired {
		t.Fatal("handler for a different topic must not fire")
	}
}

func TestOffRemovesOnlyThatHandler(t *testing.T) {
	b := New()
	var first, second int
	h1 := b.On(TopicResourceUpdated, func(payload any) { first++ })
	b.On(TopicResourceUpdated, func(payload any) { second++ })

	h1.Off()
	b.Emit(TopicResourceUpdated, nil)

	if first != 0 {
		t.Fatalf("expected removed handler not to fire, got %d", first)
	}
	if second != 1 {
		t.Fatalf("expected remaining handler to fire once, got %d", second)
	}
}

func TestOnceFiresAtMostOnce(t *testing.T) {
	b := New()
	count := 0
	b.Once(TopicSessionTitleUpdated, func(payload any) { count++ })

	b.Emit(TopicSessionTitleUpdated, nil)
	b.Emit(TopicSessionTitleUpdated, nil)

	if count != 1 {
		t.Fatalf("expected once-handler to fire exactly once, got %d", count)
	}
	if b.Count(TopicSessionTitleUpdated) != 0 {
		t.Fatalf("expected once-handler to unregister itself, got %d remaining", b.Count(TopicSessionTitleUpdated))
	}
}

func TestHandlerPanicDoesNotStopOthers(t *testing.T) {
	b := New()
	ranAfterPanic := false
	b.On(TopicLLMError, func(payload any) { panic("boom") })
	b.On(TopicLLMError, func(payload any) { ranAfterPanic = true })

	b.Emit(TopicLLMError, ErrorPayload{Code: "x"})

	if !ranAfterPanic {
		t.Fatal("a panicking handler must not prevent later handlers from running")
	}
}

func TestUnsubscribeDuringDispatchIsSafe(t *testing.T) {
	b := New()
	var h subscriptionHandle
	calls := 0
	h = b.On(TopicMcpServerConnected, func(payload any) {
		calls++
		h.Off()
	})
	b.Emit(TopicMcpServerConnected, nil)
	b.Emit(TopicMcpServerConnected, nil)

	if calls != 1 {
		t.Fatalf("expected self-unsubscribing handler to fire once, got %d", calls)
	}
}

func TestConcurrentEmitAndSubscribe(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.On(TopicToolCall, func(payload any) {})
		}()
		go func() {
			defer wg.Done()
			b.Emit(TopicToolCall, ToolCallPayload{})
		}()
	}
	wg.Wait()
}
