// Package gate runs operations through the shared admission pipeline:
// cache lookup, rate-limit check, pooled resource borrow, and retry with
// exponential backoff for transient failures.
//
// Every tool goes through the same sequence so caching, throttling, and
// browser reuse behave identically regardless of what the operation does
// with its borrowed resource.
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/Claw256/mcp-google-search/pkg/cache"
	"github.com/Claw256/mcp-google-search/pkg/logging"
	"github.com/Claw256/mcp-google-search/pkg/pool"
	"github.com/Claw256/mcp-google-search/pkg/ratelimit"
)

// Operation describes one unit of gated work.
type Operation struct {
	// Name appears in logs and error messages.
	Name string

	// CacheKey identifies the result. Empty disables caching for this
	// operation.
	CacheKey string

	// RateKey selects the token bucket charged for this operation. Empty
	// disables rate limiting.
	RateKey string

	// TTL overrides the cache default for this result. Zero keeps the
	// default.
	TTL time.Duration

	// Action does the work against a borrowed resource. The resource is
	// released when Action returns, on every path.
	Action func(ctx context.Context, res pool.Resource) ([]byte, error)
}

// Config shapes a Runner.
type Config struct {
	// MaxRetries is the total attempt budget for transient failures.
	MaxRetries int
	Backoff    Backoff
}

// Runner executes Operations through the pipeline.
type Runner struct {
	pool    *pool.Pool
	limiter *ratelimit.Limiter
	cache   *cache.Cache
	logger  *logging.Logger

	maxRetries int
	backoff    Backoff

	// sleepFn is replaceable in tests
	sleepFn func(ctx context.Context, d time.Duration) error
}

// NewRunner wires the pipeline pieces together.
func NewRunner(cfg Config, p *pool.Pool, l *ratelimit.Limiter, c *cache.Cache, logger *logging.Logger) *Runner {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &Runner{
		pool:       p,
		limiter:    l,
		cache:      c,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    cfg.Backoff,
		sleepFn:    sleep,
	}
}

// Do runs op through the pipeline. A cache hit returns immediately without
// charging the rate limiter or touching the pool. A rate-limit rejection is
// final, never retried. Transient failures re-enter at the borrow step after
// a backoff wait, up to the attempt budget; the final failure wraps the last
// cause. Successful results are cached best-effort.
func (r *Runner) Do(ctx context.Context, op Operation) ([]byte, error) {
	if op.CacheKey != "" {
		if value, ok := r.cache.Get(ctx, op.CacheKey); ok {
			r.logger.Debugf("Cache hit for %s", op.Name)
			return value, nil
		}
	}

	if op.RateKey != "" && !r.limiter.Allow(op.RateKey) {
		return nil, RateLimited(op.RateKey, r.limiter.EstimatedWait(op.RateKey))
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if attempt > 1 {
			delay := r.backoff.Delay(attempt - 2)
			r.logger.Infof("Retrying %s (attempt %d/%d) after %s: %v", op.Name, attempt, r.maxRetries, delay.Round(time.Millisecond), lastErr)
			if err := r.sleepFn(ctx, delay); err != nil {
				return nil, fmt.Errorf("%s aborted during backoff: %w", op.Name, err)
			}
		}

		value, err := r.attempt(ctx, op)
		if err == nil {
			r.storeResult(ctx, op, value)
			return value, nil
		}

		if !IsTransient(err) {
			return nil, fmt.Errorf("%s failed: %w", op.Name, err)
		}

		lastErr = err
		r.logger.Warnf("Transient failure in %s (attempt %d/%d): %v", op.Name, attempt, r.maxRetries, err)
	}

	return nil, MaxRetries(op.Name, r.maxRetries, lastErr)
}

// attempt borrows a resource, runs the action, and guarantees the release.
func (r *Runner) attempt(ctx context.Context, op Operation) ([]byte, error) {
	res, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer r.pool.Release(res)

	return op.Action(ctx, res)
}

// storeResult caches a successful result. A cache failure is logged, never
// surfaced: the caller has a good result in hand.
func (r *Runner) storeResult(ctx context.Context, op Operation, value []byte) {
	if op.CacheKey == "" {
		return
	}

	var err error
	if op.TTL > 0 {
		err = r.cache.SetWithTTL(ctx, op.CacheKey, value, op.TTL)
	} else {
		err = r.cache.Set(ctx, op.CacheKey, value)
	}
	if err != nil {
		r.logger.Warnf("Failed to cache result of %s: %v", op.Name, err)
	}
}
