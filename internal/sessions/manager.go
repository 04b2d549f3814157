package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// DefaultMaxSessions and DefaultIdleTTL are the Session Manager's bounds
// absent explicit configuration.
const (
	DefaultMaxSessions   = 256
	DefaultIdleTTL       = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

// ManagerConfig bounds the Session Manager's live in-memory session set
// (spec §4.8).
type ManagerConfig struct {
	MaxSessions   int
	QueueCapacity int
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = MinQueueCapacity
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = DefaultIdleTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// RunOutcome is what Manager.Run hands back: either the final assistant
// text from a run that executed to completion, or an acknowledgement that
// content was queued behind an already-running session (spec §4.9's "do
// not start a second loop").
type RunOutcome struct {
	Text    string
	Queued  bool
	Message dexto.QueuedMessage
}

// Manager is the Session Manager (spec §4.8): a bounded, LRU-evicted,
// TTL-swept set of live ChatSessions backed by Store, plus the run
// entrypoint that threads a caller's input through the run loop.
type Manager struct {
	store  Store
	locker *locker
	deps   RunDeps
	runner *runner
	config ManagerConfig

	mu       sync.Mutex
	sessions map[string]*ChatSession

	sweeper *cron.Cron
}

// NewManager builds a Session Manager over deps.Store, starting its TTL
// sweeper immediately.
func NewManager(deps RunDeps, config ManagerConfig) *Manager {
	config = config.withDefaults()
	m := &Manager{
		store:    deps.Store,
		locker:   newLocker(),
		deps:     deps,
		runner:   newRunner(deps),
		config:   config,
		sessions: make(map[string]*ChatSession),
		sweeper:  cron.New(),
	}
	spec := fmt.Sprintf("@every %s", config.SweepInterval)
	if _, err := m.sweeper.AddFunc(spec, m.sweepIdle); err != nil {
		panic(fmt.Sprintf("sessions: invalid sweep interval %s: %v", config.SweepInterval, err))
	}
	m.sweeper.Start()
	return m
}

// Close stops the TTL sweeper. Safe to call more than once.
func (m *Manager) Close() {
	m.sweeper.Stop()
}

// Create persists a new session and loads it into memory.
func (m *Manager) Create(ctx context.Context, title string) (dexto.SessionMeta, error) {
	now := time.Now()
	meta := dexto.SessionMeta{ID: uuid.NewString(), CreatedAt: now, LastActivityAt: now, Title: title}
	if err := m.store.CreateSession(ctx, meta); err != nil {
		return dexto.SessionMeta{}, dexto.NewError(dexto.CodeStorageError, "create session", err)
	}
	m.mu.Lock()
	m.evictIfAtCapacityLocked()
	m.sessions[meta.ID] = newChatSession(meta, m.config.QueueCapacity)
	m.mu.Unlock()
	m.recordSessionLoaded()
	return meta, nil
}

// Get returns the live ChatSession for id, loading it from Store (and
// evicting an idle session to make room, if necessary) if it is not
// already in memory.
func (m *Manager) Get(ctx context.Context, id string) (*ChatSession, error) {
	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return sess, nil
	}
	m.mu.Unlock()

	meta, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, dexto.NewError(dexto.CodeStorageError, "session not found", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		return sess, nil
	}
	m.evictIfAtCapacityLocked()
	sess := newChatSession(meta, m.config.QueueCapacity)
	m.sessions[id] = sess
	m.recordSessionLoaded()
	return sess, nil
}

func (m *Manager) recordSessionLoaded() {
	if m.deps.Telemetry != nil {
		m.deps.Telemetry.Metrics.SessionLoaded()
	}
}

func (m *Manager) recordSessionUnloaded(reason string) {
	if m.deps.Telemetry != nil {
		m.deps.Telemetry.Metrics.SessionUnloaded(reason)
	}
}

// List returns every persisted session's metadata.
func (m *Manager) List(ctx context.Context) ([]dexto.SessionMeta, error) {
	return m.store.ListSessions(ctx, 0, 0)
}

// Delete removes a session from memory and from Store. A running session
// cannot be deleted out from under its run; callers should Cancel first.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok && !sess.IsIdle() {
		m.mu.Unlock()
		return dexto.NewError(dexto.CodeBusyRun, "cannot delete a session with a run in progress", nil).WithSession(id, "")
	}
	_, wasLoaded := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	m.locker.Forget(id)
	if wasLoaded {
		m.recordSessionUnloaded("deleted")
	}

	if err := m.store.DeleteSession(ctx, id); err != nil {
		return dexto.NewError(dexto.CodeStorageError, "delete session", err).WithSession(id, "")
	}
	return nil
}

// ResetConversation clears a session's message history. It waits for any
// in-progress run to finish rather than enqueueing, since it is a
// session-scoped mutation, not a new turn.
func (m *Manager) ResetConversation(ctx context.Context, id string) error {
	release, err := m.locker.acquireTimeout(ctx, id, dexto.DefaultApprovalTimeout)
	if err != nil {
		return err
	}
	defer release()
	if err := m.store.ClearHistory(ctx, id); err != nil {
		return dexto.NewError(dexto.CodeStorageError, "reset conversation", err).WithSession(id, "")
	}
	return nil
}

// ClearMessageQueue drains and returns a session's pending queued messages
// without touching whatever run is currently in progress.
func (m *Manager) ClearMessageQueue(ctx context.Context, id string) ([]dexto.QueuedMessage, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.queue.Drain(), nil
}

// Cancel fires the CancelToken of id's in-progress run, if any. When
// returnQueue is true, the run loop skips coalescing its queued messages
// into a follow-up run and leaves them queued for ClearMessageQueue
// instead (spec §4.9's "return queue to caller").
func (m *Manager) Cancel(ctx context.Context, id string, returnQueue bool) error {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	tok := sess.CancelToken()
	if tok == nil {
		return nil
	}
	sess.setReturnQueueOnCancel(returnQueue)
	tok.Cancel()
	return nil
}

// Run is the spec §4.9 run() entrypoint: if the session is idle, it runs
// content to completion (coalescing and re-running for whatever content
// accumulates in the queue while it runs); if the session is busy, content
// is enqueued and Run returns immediately without starting a second loop.
func (m *Manager) Run(ctx context.Context, opts RunOptions, sessionID, content string) (RunOutcome, error) {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return RunOutcome{}, err
	}

	release, ok := m.locker.TryAcquire(sessionID)
	if !ok {
		qm, err := sess.queue.Enqueue(sessionID, content)
		if err != nil {
			return RunOutcome{}, err
		}
		return RunOutcome{Queued: true, Message: qm}, nil
	}
	return m.runLocked(ctx, sess, opts, content, release)
}

func (m *Manager) runLocked(ctx context.Context, sess *ChatSession, opts RunOptions, content string, release func()) (RunOutcome, error) {
	defer release()

	var lastText string
	var lastErr error

	for {
		runID := uuid.NewString()
		cancel := sess.beginRun(runID)

		userMsg := dexto.NewUserMessage(uuid.NewString(), sess.Meta().ID, content)
		if err := m.store.AppendMessage(ctx, sess.Meta().ID, *userMsg); err != nil {
			sess.endRun()
			return RunOutcome{}, dexto.NewError(dexto.CodeStorageError, "persist user message", err).WithSession(sess.Meta().ID, runID)
		}

		history, err := m.store.GetHistory(ctx, sess.Meta().ID, 0)
		if err != nil {
			sess.endRun()
			return RunOutcome{}, dexto.NewError(dexto.CodeStorageError, "load history", err).WithSession(sess.Meta().ID, runID)
		}

		lastText, lastErr = m.runner.execute(ctx, sess, opts, runID, cancel, history)

		cancelled := lastErr != nil && errorCode(lastErr) == dexto.CodeCancelled
		returnQueue := cancelled && sess.consumeReturnQueueOnCancel()
		sess.endRun()
		sess.touch()

		if returnQueue {
			return RunOutcome{Text: lastText}, lastErr
		}

		drained := sess.queue.Drain()
		if len(drained) == 0 {
			return RunOutcome{Text: lastText}, lastErr
		}
		content = coalesce(drained)
	}
}

func coalesce(drained []dexto.QueuedMessage) string {
	out := drained[0].Content
	for _, msg := range drained[1:] {
		out += "\n" + msg.Content
	}
	return out
}

func errorCode(err error) dexto.ErrorCode {
	if derr, ok := err.(*dexto.Error); ok {
		return derr.Code
	}
	return ""
}

// evictIfAtCapacityLocked removes the least-recently-active idle session if
// the live set is already at config.MaxSessions. Called with m.mu held. If
// every live session is currently running, the bound is exceeded rather
// than evicting a session mid-run.
func (m *Manager) evictIfAtCapacityLocked() {
	if len(m.sessions) < m.config.MaxSessions {
		return
	}
	var victim *ChatSession
	var victimID string
	for id, sess := range m.sessions {
		if !sess.IsIdle() {
			continue
		}
		if victim == nil || sess.Meta().LastActivityAt.Before(victim.Meta().LastActivityAt) {
			victim, victimID = sess, id
		}
	}
	if victim == nil {
		return
	}
	delete(m.sessions, victimID)
	m.locker.Forget(victimID)
	m.recordSessionUnloaded("capacity")
}

// sweepIdle is invoked by the cron scheduler on config.SweepInterval; it also
// runs synchronously from tests via direct calls rather than waiting on cron.
func (m *Manager) sweepIdle() {
	cutoff := time.Now().Add(-m.config.IdleTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		if !sess.IsIdle() {
			continue
		}
		if sess.Meta().LastActivityAt.Before(cutoff) {
			delete(m.sessions, id)
			m.locker.Forget(id)
			m.recordSessionUnloaded("ttl")
		}
	}
}
