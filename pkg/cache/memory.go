package cache

import (
	"context"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store implementation.
// It is safe for concurrent use. Entries are lost on process restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
	}
}

// Get returns the entry for key and whether it exists.
func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	return e, ok, nil
}

// Set inserts or replaces the entry for key.
func (m *MemoryStore) Set(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = e
	return nil
}

// Delete removes the entry for key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Flush removes every entry.
func (m *MemoryStore) Flush(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]Entry)
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries), nil
}

// DeleteExpired removes entries whose expiry is at or before now.
func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, e := range m.entries {
		if !e.ExpiresAt.After(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// DeleteOldest removes the entry with the earliest StoredAt.
func (m *MemoryStore) DeleteOldest(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldestKey := ""
	var oldest time.Time
	for key, e := range m.entries {
		if oldestKey == "" || e.StoredAt.Before(oldest) {
			oldestKey = key
			oldest = e.StoredAt
		}
	}

	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
	return oldestKey, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
