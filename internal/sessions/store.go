package sessions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dexto-ai/dexto-core/internal/storage"
	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

const (
	nsSessionMeta    = "session_meta"
	messageKeyDigits = 20
)

// Store is the persistence contract for session metadata and message
// history, layered over the generic storage.Database the same way the
// teacher's MemoryStore/cockroach store layer session-specific operations
// over a generic row store — Database itself knows nothing about sessions or
// messages, only namespaced byte blobs.
type Store interface {
	CreateSession(ctx context.Context, meta dexto.SessionMeta) error
	GetSession(ctx context.Context, id string) (dexto.SessionMeta, error)
	UpdateSession(ctx context.Context, meta dexto.SessionMeta) error
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context, limit, offset int) ([]dexto.SessionMeta, error)

	AppendMessage(ctx context.Context, sessionID string, msg dexto.Message) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]dexto.Message, error)
	ClearHistory(ctx context.Context, sessionID string) error
}

// dbStore is the Store implementation backed by storage.Database. Each
// session's messages live in their own namespace ("messages:<id>") keyed by
// a zero-padded sequence number, so Database.List's key-sorted order is also
// chronological order without the Store needing its own index.
type dbStore struct {
	db storage.Database
}

// NewStore returns a Store persisted through db.
func NewStore(db storage.Database) Store {
	return &dbStore{db: db}
}

func messageNamespace(sessionID string) string {
	return "messages:" + sessionID
}

func messageKey(seq int) string {
	return fmt.Sprintf("%0*d", messageKeyDigits, seq)
}

func (s *dbStore) CreateSession(ctx context.Context, meta dexto.SessionMeta) error {
	buf, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Put(ctx, nsSessionMeta, meta.ID, buf)
}

func (s *dbStore) GetSession(ctx context.Context, id string) (dexto.SessionMeta, error) {
	buf, err := s.db.Get(ctx, nsSessionMeta, id)
	if err != nil {
		return dexto.SessionMeta{}, err
	}
	var meta dexto.SessionMeta
	if err := json.Unmarshal(buf, &meta); err != nil {
		return dexto.SessionMeta{}, err
	}
	return meta, nil
}

func (s *dbStore) UpdateSession(ctx context.Context, meta dexto.SessionMeta) error {
	buf, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Put(ctx, nsSessionMeta, meta.ID, buf)
}

func (s *dbStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.db.Delete(ctx, nsSessionMeta, id); err != nil {
		return err
	}
	return s.ClearHistory(ctx, id)
}

func (s *dbStore) ListSessions(ctx context.Context, limit, offset int) ([]dexto.SessionMeta, error) {
	records, err := s.db.List(ctx, nsSessionMeta, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]dexto.SessionMeta, 0, len(records))
	for _, rec := range records {
		var meta dexto.SessionMeta
		if err := json.Unmarshal(rec.Value, &meta); err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

func (s *dbStore) AppendMessage(ctx context.Context, sessionID string, msg dexto.Message) error {
	ns := messageNamespace(sessionID)
	existing, err := s.db.List(ctx, ns, 0, 0)
	if err != nil {
		return err
	}
	buf, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.db.Put(ctx, ns, messageKey(len(existing)), buf)
}

func (s *dbStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]dexto.Message, error) {
	records, err := s.db.List(ctx, messageNamespace(sessionID), 0, 0)
	if err != nil {
		return nil, err
	}
	start := 0
	if limit > 0 && len(records) > limit {
		start = len(records) - limit
	}
	out := make([]dexto.Message, 0, len(records)-start)
	for _, rec := range records[start:] {
		var msg dexto.Message
		if err := json.Unmarshal(rec.Value, &msg); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *dbStore) ClearHistory(ctx context.Context, sessionID string) error {
	ns := messageNamespace(sessionID)
	records, err := s.db.List(ctx, ns, 0, 0)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := s.db.Delete(ctx, ns, rec.Key); err != nil {
			return err
		}
	}
	return nil
}
