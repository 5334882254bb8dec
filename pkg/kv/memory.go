package kv

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of the key-value store
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]Record
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]map[string]Record)}
}

// Get returns a copy of the record stored under key
func (s *MemoryStore) Get(ctx context.Context, table, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tables[table][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out, nil
}

// Put replaces the record stored under key
func (s *MemoryStore) Put(ctx context.Context, table, key string, fields map[string]string) error {
	s.Seed(table, key, toRecord(fields))
	return nil
}

// PutIf replaces the record only if cond holds
func (s *MemoryStore) PutIf(ctx context.Context, table, key string, fields map[string]string, cond Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tables[table][key]
	if !ok || !satisfies(rec, cond) {
		return ErrConditionFailed
	}
	s.tables[table][key] = toRecord(fields)
	return nil
}

// Seed stores an arbitrary record, including non-string values.
func (s *MemoryStore) Seed(table, key string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[table]
	if !ok {
		t = make(map[string]Record)
		s.tables[table] = t
	}
	cp := make(Record, len(rec))
	for k, v := range rec {
		cp[k] = v
	}
	t[key] = cp
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
