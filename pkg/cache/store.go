package cache

import (
	"context"
	"time"
)

// Entry is one cached value with its insertion and expiry times.
type Entry struct {
	Value     []byte
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Store defines the backend holding cache entries. Expiry is data to a
// Store: it returns whatever it holds and the Cache decides staleness, so
// every backend behaves identically under the same clock.
type Store interface {
	// Get returns the entry for key and whether it exists.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Set inserts or replaces the entry for key.
	Set(ctx context.Context, key string, e Entry) error

	// Delete removes the entry for key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Flush removes every entry.
	Flush(ctx context.Context) error

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)

	// DeleteExpired removes entries with ExpiresAt at or before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// DeleteOldest removes the entry with the earliest StoredAt and returns
	// its key, or "" when the store is empty.
	DeleteOldest(ctx context.Context) (string, error)

	// Close releases any resources held by the store.
	Close() error
}
