// Package storage defines the three orthogonal storage contracts the core
// depends on — Database, Cache, and BlobStore (spec §4.3) — and the
// in-memory, sql, and filesystem/S3 implementations of each. No component
// outside this package imports database/sql, modernc.org/sqlite, or lib/pq
// directly; the S3 SDK is also imported by the resources package's s3
// backend. Storage users depend only on the interfaces here.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Database/Cache/BlobStore lookups that find
	// nothing, so callers can use errors.Is without caring which backend
	// they are talking to.
	ErrNotFound = errors.New("storage: not found")

	// ErrAlreadyExists is returned by Create-style writes on a duplicate key.
	ErrAlreadyExists = errors.New("storage: already exists")

	// ErrQuotaExceeded is returned by BlobStore.Put when the caller-configured
	// byte quota would be exceeded.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
)

// Record is a generic (namespace, key) -> JSON-encoded value row. The
// Database contract is deliberately narrow — namespaced key/value storage
// with simple listing and a transaction boundary — because every concrete
// caller (sessions, messages, approvals, resources) already serializes its
// own domain type to JSON before persisting, the same way the teacher's
// cockroach store marshals Agent.Config before the INSERT.
type Record struct {
	Namespace string
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// Database is the persistence contract for durable, queryable state:
// session metadata, conversation history, approval records.
type Database interface {
	Put(ctx context.Context, namespace, key string, value []byte) error
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Delete(ctx context.Context, namespace, key string) error
	List(ctx context.Context, namespace string, limit, offset int) ([]Record, error)

	// WithTransaction runs fn against a Database bound to one transaction;
	// fn's writes commit only if it returns nil.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Database) error) error

	Close() error
}

// Cache is the contract for ephemeral, TTL-bound state: approval
// rate-limit counters, MCP tool-list caches, resource freshness markers.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// BlobStore is the contract for content-addressed binary data referenced
// from messages (images, file attachments) via a BlobHandle.
type BlobStore interface {
	// Put stores content under its SHA-256 digest and returns the handle.
	// Implementations dedupe: storing identical bytes twice returns the same
	// handle and does not count twice against quota.
	Put(ctx context.Context, content []byte, mimeType string) (handle string, err error)
	Get(ctx context.Context, handle string) (content []byte, mimeType string, err error)
	Delete(ctx context.Context, handle string) error

	// UsedBytes reports total bytes currently retained, for quota enforcement.
	UsedBytes(ctx context.Context) (int64, error)

	Close() error
}
