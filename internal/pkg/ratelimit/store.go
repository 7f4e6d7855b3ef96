package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStoreUnavailable wraps failures of the backing store.
var ErrStoreUnavailable = errors.New("ratelimit: store unavailable")

// Mutator changes a record in place and reports whether it must be persisted.
type Mutator func(r *Record) (changed bool)

// Store persists records. Update must apply fn atomically per principal; when
// the resulting record is zero the entry is removed, otherwise it is kept for ttl.
type Store interface {
	Load(ctx context.Context, principal string) (Record, error)
	Update(ctx context.Context, principal string, ttl time.Duration, fn Mutator) (Record, error)
}

// MemoryStore is a process-local Store for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Load returns the record of principal, or the zero record.
func (m *MemoryStore) Load(_ context.Context, principal string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[principal], nil
}

// Update applies fn under the store mutex. ttl is ignored; healing is lazy.
func (m *MemoryStore) Update(_ context.Context, principal string, _ time.Duration, fn Mutator) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.records[principal]
	if !fn(&rec) {
		return rec, nil
	}

	if rec.IsZero() {
		delete(m.records, principal)
	} else {
		m.records[principal] = rec
	}

	return rec, nil
}
