package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryDatabase is an in-process Database, grounded on the teacher's
// MemoryAgentStore/MemoryChannelConnectionStore: a mutex-guarded map plus
// deterministic ordering on List.
type MemoryDatabase struct {
	mu     sync.RWMutex
	tables map[string]map[string]Record
}

// NewMemoryDatabase returns an empty MemoryDatabase.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{tables: make(map[string]map[string]Record)}
}

func (d *MemoryDatabase) Put(ctx context.Context, namespace, key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	table, ok := d.tables[namespace]
	if !ok {
		table = make(map[string]Record)
		d.tables[namespace] = table
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	table[key] = Record{Namespace: namespace, Key: key, Value: cp, UpdatedAt: time.Now()}
	return nil
}

func (d *MemoryDatabase) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	table, ok := d.tables[namespace]
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := table[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(rec.Value))
	copy(cp, rec.Value)
	return cp, nil
}

func (d *MemoryDatabase) Delete(ctx context.Context, namespace, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	table, ok := d.tables[namespace]
	if !ok {
		return ErrNotFound
	}
	if _, ok := table[key]; !ok {
		return ErrNotFound
	}
	delete(table, key)
	return nil
}

func (d *MemoryDatabase) List(ctx context.Context, namespace string, limit, offset int) ([]Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	table := d.tables[namespace]
	records := make([]Record, 0, len(table))
	for _, rec := range table {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return paginate(records, limit, offset), nil
}

func paginate(records []Record, limit, offset int) []Record {
	if offset < 0 {
		offset = 0
	}
	if offset > len(records) {
		offset = len(records)
	}
	end := len(records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return records[offset:end]
}

// WithTransaction on MemoryDatabase has no real isolation: writes apply
// immediately under the same mutex any other call uses, and an error from
// fn does not roll anything back. It exists so callers can write
// backend-agnostic code; the sql-backed Database variants give real
// transaction semantics.
func (d *MemoryDatabase) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Database) error) error {
	return fn(ctx, d)
}

func (d *MemoryDatabase) Close() error { return nil }
