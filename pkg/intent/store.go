package intent

import (
	"context"
	"sync"
)

// Store is the persisted single-slot channel between the producer and consumer.
// Put overwrites any existing record; Get returns nil when the slot is empty.
// ClearIf empties the slot only while it still holds the record with id and
// reports whether it did.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context) (*Record, error)
	Clear(ctx context.Context) error
	ClearIf(ctx context.Context, id string) (bool, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu  sync.Mutex
	rec *Record
}

// NewMemoryStore creates an empty in-process slot.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Put stores a copy of rec, replacing any previous record.
func (m *MemoryStore) Put(_ context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	cp := *rec
	m.mu.Lock()
	m.rec = &cp
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current record or nil.
func (m *MemoryStore) Get(_ context.Context) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, nil
	}
	cp := *m.rec
	return &cp, nil
}

// Clear empties the slot.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.rec = nil
	m.mu.Unlock()
	return nil
}

// ClearIf empties the slot if it holds the record with id.
func (m *MemoryStore) ClearIf(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil || m.rec.ID != id {
		return false, nil
	}
	m.rec = nil
	return true, nil
}
