package sessions

import (
	"sync"
	"time"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// ChatSession is the runtime wrapper around a persisted dexto.SessionMeta:
// everything that does not survive a restart lives here, not on SessionMeta
// itself (see SessionMeta's doc comment in pkg/dexto/session.go).
type ChatSession struct {
	mu sync.Mutex

	meta  dexto.SessionMeta
	state dexto.RunState

	currentRunID        string
	cancel              *CancelToken
	returnQueueOnCancel bool

	queue *messageQueue
}

func newChatSession(meta dexto.SessionMeta, queueCapacity int) *ChatSession {
	return &ChatSession{
		meta:  meta,
		state: dexto.RunIdle,
		queue: newMessageQueue(queueCapacity),
	}
}

// Meta returns a copy of the session's persisted metadata.
func (s *ChatSession) Meta() dexto.SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// State reports the session's current run state.
func (s *ChatSession) State() dexto.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsIdle reports whether the session has no run in progress, the condition
// the Session Manager's LRU eviction requires before reclaiming a slot.
func (s *ChatSession) IsIdle() bool {
	return s.State() == dexto.RunIdle
}

// CurrentRunID returns the run ID of the in-progress run, or "" if idle.
func (s *ChatSession) CurrentRunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentRunID
}

// CancelToken returns the CancelToken of the in-progress run, or nil if idle.
func (s *ChatSession) CancelToken() *CancelToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel
}

func (s *ChatSession) beginRun(runID string) *CancelToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = dexto.RunThinking
	s.currentRunID = runID
	s.cancel = NewCancelToken()
	return s.cancel
}

func (s *ChatSession) setState(state dexto.RunState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *ChatSession) endRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = dexto.RunIdle
	s.currentRunID = ""
	s.cancel = nil
}

// setReturnQueueOnCancel records that the run currently in progress, if
// cancelled, should leave its queued messages for ClearMessageQueue instead
// of being coalesced into a follow-up run.
func (s *ChatSession) setReturnQueueOnCancel(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.returnQueueOnCancel = v
}

// consumeReturnQueueOnCancel reads and resets the flag set by
// setReturnQueueOnCancel, so it only ever applies to the run it was set for.
func (s *ChatSession) consumeReturnQueueOnCancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.returnQueueOnCancel
	s.returnQueueOnCancel = false
	return v
}

func (s *ChatSession) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.LastActivityAt = time.Now()
}

func (s *ChatSession) setTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Title = title
}
