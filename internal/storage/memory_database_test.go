package storage

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryDatabasePutGetDelete(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()

	if err := db.Put(ctx, "sessions", "s1", []byte(`{"id":"s1"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get(ctx, "sessions", "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != `{"id":"s1"}` {
		t.Fatalf("unexpected value: %s", value)
	}

	if err := db.Delete(ctx, "sessions", "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(ctx, "sessions", "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryDatabaseGetMissingNamespace(t *testing.T) {
	db := NewMemoryDatabase()
	if _, err := db.Get(context.Background(), "nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryDatabaseListOrderedAndPaginated(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	for _, key := range []string{"c", "a", "b"} {
		if err := db.Put(ctx, "ns", key, []byte(key)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	records, err := db.List(ctx, "ns", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 || records[0].Key != "a" || records[2].Key != "c" {
		t.Fatalf("expected sorted keys a,b,c, got %+v", records)
	}

	page, err := db.List(ctx, "ns", 1, 1)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 || page[0].Key != "b" {
		t.Fatalf("expected single record 'b', got %+v", page)
	}
}

func TestMemoryDatabaseWithTransactionDoesNotRollBackOnError(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	boom := errors.New("boom")

	err := db.WithTransaction(ctx, func(ctx context.Context, tx Database) error {
		_ = tx.Put(ctx, "ns", "k", []byte("v"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}
	// MemoryDatabase's transaction has no real rollback — documented
	// behavior — so the write is still visible. Assert that documented
	// behavior rather than a rollback MemoryDatabase cannot provide.
	if _, err := db.Get(ctx, "ns", "k"); err != nil {
		t.Fatalf("expected write to persist despite fn error, got %v", err)
	}
}
