package dexto

import "time"

// RunState is the ChatSession state machine from spec §4.9.
type RunState string

const (
	RunIdle        RunState = "idle"
	RunThinking    RunState = "thinking"
	RunStreaming   RunState = "streaming"
	RunToolCalling RunState = "toolCalling"
	RunCancelling  RunState = "cancelling"
)

// QueuedMessage is held while a run is active and drained FIFO on completion.
type QueuedMessage struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Content    string    `json:"content"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// SessionMeta is the persisted, non-runtime view of a session — the part
// that survives a restart and round-trips through storage. Runtime-only
// state (run state, cancel token, mutex) lives on the ChatSession wrapper in
// package sessions, not here, so that storage implementations never need to
// know about in-process concurrency primitives.
type SessionMeta struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Title          string    `json:"title,omitempty"`
}

// ToolCacheScope distinguishes the two session-scoped approval caches.
type ToolCacheScope int

const (
	ToolCacheAllowed ToolCacheScope = iota
	ToolCacheDenied
)
