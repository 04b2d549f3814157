// Package eventbus implements the typed in-process publish/subscribe bus
// described in spec §4.1. It is the single channel through which the run
// loop, tool manager, MCP manager, and approval manager announce state
// changes to everything else — transports, plugins, loggers — without any
// of those parties importing one another.
package eventbus

import (
	"sync"
)

// Handler receives a topic's payload. Handlers must not block: the bus
// dispatches synchronously on the emitting goroutine, so a slow handler
// slows down whoever emitted. This mirrors how observability.EventSink
// implementations in the teacher corpus are expected to return quickly and
// push real work onto their own channel.
type Handler func(payload any)

// subscription is a single (id, fn) pair so Off can remove one handler
// without disturbing others registered for the same topic.
type subscription struct {
	id int64
	fn Handler
}

// Bus is a typed pub/sub bus. The zero value is not usable; use New.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]subscription
	nextID int64
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// subscriptionHandle lets On's caller call Off without tracking the id itself.
type subscriptionHandle struct {
	bus   *Bus
	topic Topic
	id    int64
}

// Off removes the handler this handle was returned for. Safe to call more
// than once, and safe to call from within a handler that is itself
// currently being dispatched to (dispatch iterates a snapshot).
func (h subscriptionHandle) Off() {
	h.bus.off(h.topic, h.id)
}

// On registers fn for topic and returns a handle that can unregister it.
func (b *Bus) On(topic Topic, fn Handler) subscriptionHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: fn})
	return subscriptionHandle{bus: b, topic: topic, id: id}
}

// Once registers fn to run at most once, unregistering itself after firing.
func (b *Bus) Once(topic Topic, fn Handler) subscriptionHandle {
	var handle subscriptionHandle
	wrapped := func(payload any) {
		handle.Off()
		fn(payload)
	}
	handle = b.On(topic, wrapped)
	return handle
}

func (b *Bus) off(topic Topic, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[topic]
	for i, s := range list {
		if s.id == id {
			b.subs[topic] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Emit dispatches payload to every handler currently registered for topic,
// synchronously, in registration order. Handlers are invoked against a
// snapshot of the subscriber list taken under the read lock, so a handler
// that calls On/Off/Emit on the same bus (including unsubscribing itself,
// as Once does) never deadlocks and never skips or double-fires a sibling.
// A panicking handler is recovered and does not prevent the remaining
// handlers from running, so one broken subscriber can never take down
// the others sharing a topic.
func (b *Bus) Emit(topic Topic, payload any) {
	b.mu.RLock()
	list := b.subs[topic]
	snapshot := make([]subscription, len(list))
	copy(snapshot, list)
	b.mu.RUnlock()

	for _, s := range snapshot {
		b.dispatchOne(s.fn, payload)
	}
}

func (b *Bus) dispatchOne(fn Handler, payload any) {
	defer func() {
		recover()
	}()
	fn(payload)
}

// Clear removes every subscription for topic. Intended for tests and for
// session teardown, not for ordinary runtime use.
func (b *Bus) Clear(topic Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, topic)
}

// Count reports how many handlers are currently registered for topic.
func (b *Bus) Count(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
