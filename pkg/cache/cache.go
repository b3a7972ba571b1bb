// Package cache provides a TTL cache over pluggable stores.
//
// The Cache layer owns expiry and capacity: reads never return a stale
// entry, writes evict expired entries first and then the oldest entry when
// the key ceiling is reached, and a background janitor sweeps expired
// entries so abandoned keys do not pin memory until the next read.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Claw256/mcp-google-search/pkg/logging"
)

// warnOccupancy is the fill ratio above which a capacity warning is logged.
const warnOccupancy = 0.9

// Config shapes a Cache.
type Config struct {
	TTL     time.Duration
	MaxKeys int

	// SweepInterval is how often expired entries are removed in the
	// background. Zero means one sweep per TTL.
	SweepInterval time.Duration

	// NowFunc overrides the clock. Nil means time.Now.
	NowFunc func() time.Time
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Keys      int    `json:"keys"`
	MaxKeys   int    `json:"maxKeys"`
}

// Cache is a TTL cache with a bounded key count.
type Cache struct {
	store   Store
	ttl     time.Duration
	maxKeys int
	logger  *logging.Logger
	now     func() time.Time

	mu        sync.Mutex
	hits      uint64
	misses    uint64
	evictions uint64
	warned    bool

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache over store and starts its sweep goroutine. Call Close
// to stop it; Close also closes the store.
func New(cfg Config, store Store, logger *logging.Logger) *Cache {
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = cfg.TTL
	}
	now := cfg.NowFunc
	if now == nil {
		now = time.Now
	}

	c := &Cache{
		store:   store,
		ttl:     cfg.TTL,
		maxKeys: cfg.MaxKeys,
		logger:  logger,
		now:     now,
		done:    make(chan struct{}),
	}

	go c.janitor(sweepInterval)

	return c
}

// Key derives a stable cache key from an operation name and its parameters.
// Parameters are JSON-encoded and hashed, so any comparable request struct
// can serve as the identity of a result.
func Key(op string, params interface{}) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("cache: key for %s: %w", op, err)
	}
	sum := sha256.Sum256(data)
	return op + ":" + hex.EncodeToString(sum[:]), nil
}

// Get returns the cached value for key, if present and fresh. An expired
// entry is removed and counted as a miss; it is never returned.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	e, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warnf("Cache read for %q failed: %v", key, err)
		c.countMiss()
		return nil, false
	}
	if !ok {
		c.countMiss()
		return nil, false
	}

	if !e.ExpiresAt.After(c.now()) {
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warnf("Failed to drop expired entry %q: %v", key, err)
		}
		c.countMiss()
		return nil, false
	}

	c.countHit()
	return e.Value, true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit TTL, evicting as needed
// to respect the key ceiling.
func (c *Cache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.now()

	if err := c.ensureCapacity(ctx, key, now); err != nil {
		return err
	}

	e := Entry{
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := c.store.Set(ctx, key, e); err != nil {
		return err
	}

	c.checkOccupancy(ctx)
	return nil
}

// ensureCapacity makes room for one more key: expired entries go first,
// then the oldest entry. Overwrites of an existing key need no room.
func (c *Cache) ensureCapacity(ctx context.Context, key string, now time.Time) error {
	if _, exists, err := c.store.Get(ctx, key); err == nil && exists {
		return nil
	}

	size, err := c.store.Len(ctx)
	if err != nil {
		return err
	}
	if size < c.maxKeys {
		return nil
	}

	removed, err := c.store.DeleteExpired(ctx, now)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.logger.Debugf("Evicted %d expired entries at capacity", removed)
		return nil
	}

	oldest, err := c.store.DeleteOldest(ctx)
	if err != nil {
		return err
	}
	if oldest != "" {
		c.mu.Lock()
		c.evictions++
		c.mu.Unlock()
		c.logger.Debugf("Evicted oldest entry %q at capacity", oldest)
	}
	return nil
}

// checkOccupancy warns when the cache crosses the high-water mark and arms
// the warning again once it drops below.
func (c *Cache) checkOccupancy(ctx context.Context) {
	size, err := c.store.Len(ctx)
	if err != nil {
		return
	}

	high := float64(size) >= float64(c.maxKeys)*warnOccupancy

	c.mu.Lock()
	defer c.mu.Unlock()

	if high && !c.warned {
		c.warned = true
		c.logger.Warnf("Cache at %d/%d keys (%.0f%% full)", size, c.maxKeys, float64(size)/float64(c.maxKeys)*100)
	} else if !high && c.warned {
		c.warned = false
	}
}

// Delete removes the entry for key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// Flush removes every entry.
func (c *Cache) Flush(ctx context.Context) error {
	return c.store.Flush(ctx)
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats(ctx context.Context) Stats {
	size, err := c.store.Len(ctx)
	if err != nil {
		c.logger.Warnf("Failed to count cache entries: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Keys:      size,
		MaxKeys:   c.maxKeys,
	}
}

func (c *Cache) countHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *Cache) countMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// janitor sweeps expired entries until Close.
func (c *Cache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			removed, err := c.store.DeleteExpired(context.Background(), c.now())
			if err != nil {
				c.logger.Warnf("Cache sweep failed: %v", err)
				continue
			}
			if removed > 0 {
				c.logger.Debugf("Swept %d expired cache entries", removed)
			}
		}
	}
}

// Close stops the janitor and closes the store. Safe to call multiple
// times.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.store.Close()
	})
	return err
}
