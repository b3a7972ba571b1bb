// Package ratelimit provides per-key token-bucket admission control.
//
// Each key gets its own bucket holding MaxRequests tokens that refills
// continuously over Window. Buckets start full, so a new key can burst up to
// the maximum immediately. Keys idle for a full window are swept by a
// background janitor.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Claw256/mcp-google-search/pkg/logging"
)

// Config shapes the buckets handed to each key.
type Config struct {
	Window      time.Duration
	MaxRequests int

	// SweepInterval is how often idle buckets are removed. Zero means one
	// sweep per window.
	SweepInterval time.Duration

	// NowFunc overrides the clock. Nil means time.Now.
	NowFunc func() time.Time
}

// bucket pairs a limiter with the last time its key was seen.
type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter applies a token bucket per key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	limit  rate.Limit
	burst  int
	window time.Duration
	logger *logging.Logger
	now    func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a limiter and starts its sweep goroutine. Call Close to stop
// it.
func New(cfg Config, logger *logging.Logger) *Limiter {
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = cfg.Window
	}
	now := cfg.NowFunc
	if now == nil {
		now = time.Now
	}

	l := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(cfg.MaxRequests) / cfg.Window.Seconds()),
		burst:   cfg.MaxRequests,
		window:  cfg.Window,
		logger:  logger,
		now:     now,
		done:    make(chan struct{}),
	}

	go l.janitor(sweepInterval)

	return l
}

// Allow reports whether key may proceed, consuming one token if so. On
// rejection it logs the estimated wait until the next token accrues.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	if b.lim.AllowN(now, 1) {
		return true
	}

	wait := l.estimateWait(b, now)
	l.logger.Warnf("Rate limit exceeded for %q, next token in ~%s", key, wait.Round(time.Millisecond))
	return false
}

// estimateWait returns roughly how long until one token accrues in b.
func (l *Limiter) estimateWait(b *bucket, now time.Time) time.Duration {
	tokens := b.lim.TokensAt(now)
	if tokens >= 1 {
		return 0
	}
	deficit := 1 - tokens
	return time.Duration(deficit / float64(l.limit) * float64(time.Second))
}

// EstimatedWait returns roughly how long key must wait for its next token.
// Zero means a token is available now or the key has no bucket yet.
func (l *Limiter) EstimatedWait(key string) time.Duration {
	l.mu.Lock()
	b, ok := l.buckets[key]
	l.mu.Unlock()

	if !ok {
		return 0
	}
	return l.estimateWait(b, l.now())
}

// janitor sweeps idle buckets until Close.
func (l *Limiter) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// sweep removes buckets whose key has been idle for at least one full
// window. Such a bucket is back to full, so dropping it loses nothing.
func (l *Limiter) sweep() {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debugf("Swept %d idle rate limit buckets, %d remain", removed, len(l.buckets))
	}
}

// Keys returns the number of live buckets.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}
