package sessions

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// MinQueueCapacity is the lowest capacity a queue may be configured with
// (spec §4.9: "MUST be at least 16").
const MinQueueCapacity = 16

// messageQueue is the FIFO of QueuedMessages a session accumulates while a
// run is in progress, drained in order once the run completes.
type messageQueue struct {
	mu       sync.Mutex
	items    []dexto.QueuedMessage
	capacity int
}

func newMessageQueue(capacity int) *messageQueue {
	if capacity < MinQueueCapacity {
		capacity = MinQueueCapacity
	}
	return &messageQueue{capacity: capacity}
}

// Enqueue appends content as a QueuedMessage, returning CodeQueueFull if the
// queue is already at capacity.
func (q *messageQueue) Enqueue(sessionID, content string) (dexto.QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		return dexto.QueuedMessage{}, dexto.NewError(dexto.CodeQueueFull, "message queue is full", nil).WithSession(sessionID, "")
	}
	msg := dexto.QueuedMessage{ID: uuid.NewString(), SessionID: sessionID, Content: content, EnqueuedAt: time.Now()}
	q.items = append(q.items, msg)
	return msg, nil
}

// Drain returns and clears every queued message, in FIFO order.
func (q *messageQueue) Drain() []dexto.QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len reports how many messages are currently queued.
func (q *messageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
