package storage

import (
	"context"
	"sync"
	"time"

	"github.com/spherity/ethr-did/internal/model"
)

type memory struct {
	clock func() time.Time

	muOps sync.RWMutex
	ops   map[string][]model.OperationLogEntry

	muCache sync.Mutex
	cache   map[string]StoredResponse
}

// NewMemory returns a concurrency-safe in-memory implementation of Store.
// Useful for tests, demos, or as a default ephemeral backend.
func NewMemory() Store {
	return newMemory(time.Now)
}

func newMemory(clock func() time.Time) *memory {
	return &memory{
		clock: clock,
		ops:   make(map[string][]model.OperationLogEntry),
		cache: make(map[string]StoredResponse),
	}
}

// AppendOperation appends entry to its DID's log.
func (m *memory) AppendOperation(ctx context.Context, entry model.OperationLogEntry) error {
	m.muOps.Lock()
	defer m.muOps.Unlock()
	m.ops[entry.DID] = append(m.ops[entry.DID], entry)
	return nil
}

// ListOperations returns a copy of the log for did. An unknown DID yields
// an empty slice and no error.
func (m *memory) ListOperations(ctx context.Context, did string) ([]model.OperationLogEntry, error) {
	m.muOps.RLock()
	defer m.muOps.RUnlock()
	out := make([]model.OperationLogEntry, len(m.ops[did]))
	copy(out, m.ops[did])
	return out, nil
}

// Remember stores response under key. Expired entries are swept lazily.
func (m *memory) Remember(ctx context.Context, key string, response StoredResponse) error {
	m.muCache.Lock()
	defer m.muCache.Unlock()
	now := m.clock()
	for k, v := range m.cache {
		if !v.ExpiresAt.After(now) {
			delete(m.cache, k)
		}
	}
	if _, ok := m.cache[key]; ok {
		return ErrConflict
	}
	m.cache[key] = response
	return nil
}

// Recall returns the live response stored under key.
func (m *memory) Recall(ctx context.Context, key string) (StoredResponse, bool) {
	m.muCache.Lock()
	defer m.muCache.Unlock()
	resp, ok := m.cache[key]
	if !ok || !resp.ExpiresAt.After(m.clock()) {
		return StoredResponse{}, false
	}
	return resp, true
}
