package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// sessionLock is one session's write lock. waitCh is closed (and replaced)
// every time the lock is released, so blocked Acquire calls wake up without
// polling and without leaking a goroutine per waiter.
type sessionLock struct {
	mu     sync.Mutex
	locked bool
	waitCh chan struct{}
}

func newSessionLock() *sessionLock {
	return &sessionLock{waitCh: make(chan struct{})}
}

// locker hands out per-session mutual exclusion for run/resetConversation/
// session-scoped swaps (spec §5's "Session mutex (per session)"), grounded
// on the teacher's SessionLockManager.Acquire.
type locker struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

func newLocker() *locker {
	return &locker{locks: make(map[string]*sessionLock)}
}

func (l *locker) lockFor(sessionID string) *sessionLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[sessionID]
	if !ok {
		lk = newSessionLock()
		l.locks[sessionID] = lk
	}
	return lk
}

// Acquire blocks until sessionID's lock is free or ctx is done, returning a
// release function on success.
func (l *locker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	lk := l.lockFor(sessionID)
	for {
		lk.mu.Lock()
		if !lk.locked {
			lk.locked = true
			lk.mu.Unlock()
			return l.releaseFunc(lk), nil
		}
		wait := lk.waitCh
		lk.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *locker) releaseFunc(lk *sessionLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			lk.mu.Lock()
			lk.locked = false
			close(lk.waitCh)
			lk.waitCh = make(chan struct{})
			lk.mu.Unlock()
		})
	}
}

// TryAcquire attempts to take sessionID's lock without waiting.
func (l *locker) TryAcquire(sessionID string) (func(), bool) {
	lk := l.lockFor(sessionID)
	lk.mu.Lock()
	defer lk.mu.Unlock()
	if lk.locked {
		return nil, false
	}
	lk.locked = true
	return l.releaseFunc(lk), true
}

// IsLocked reports whether sessionID currently has an active run.
func (l *locker) IsLocked(sessionID string) bool {
	l.mu.Lock()
	lk, ok := l.locks[sessionID]
	l.mu.Unlock()
	if !ok {
		return false
	}
	lk.mu.Lock()
	defer lk.mu.Unlock()
	return lk.locked
}

// Forget drops sessionID's lock entry entirely, used when a session is
// evicted or deleted so the locker doesn't accumulate an entry per session
// for the lifetime of the process.
func (l *locker) Forget(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, sessionID)
}

// acquireTimeout wraps Acquire with a bound, surfaced as BusyRun so callers
// get a typed error instead of a bare context.DeadlineExceeded.
func (l *locker) acquireTimeout(ctx context.Context, sessionID string, timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		return l.Acquire(ctx, sessionID)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	release, err := l.Acquire(ctx, sessionID)
	if err != nil {
		return nil, dexto.NewError(dexto.CodeBusyRun, "timed out waiting for session lock", err).WithSession(sessionID, "")
	}
	return release, nil
}
