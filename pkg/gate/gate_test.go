package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Claw256/mcp-google-search/pkg/cache"
	"github.com/Claw256/mcp-google-search/pkg/logging"
	"github.com/Claw256/mcp-google-search/pkg/pool"
	"github.com/Claw256/mcp-google-search/pkg/ratelimit"
)

type fakeResource struct {
	id string
}

func (r *fakeResource) ID() string   { return r.id }
func (r *fakeResource) Close() error { return nil }

// failingStore wraps the memory store and fails every write.
type failingStore struct {
	cache.Store
}

func (s *failingStore) Set(ctx context.Context, key string, e cache.Entry) error {
	return errors.New("disk full")
}

type testRig struct {
	runner  *Runner
	pool    *pool.Pool
	limiter *ratelimit.Limiter
	cache   *cache.Cache

	mu     sync.Mutex
	delays []time.Duration

	factoryCalls atomic.Int32
}

func newTestRig(t *testing.T, maxRetries, maxRequests int, store cache.Store) *testRig {
	t.Helper()

	logger := logging.NewDiscardLogger("gate-test")
	rig := &testRig{}

	factory := func(ctx context.Context) (pool.Resource, error) {
		n := rig.factoryCalls.Add(1)
		return &fakeResource{id: fmt.Sprintf("res-%d", n)}, nil
	}

	rig.pool = pool.New(pool.Config{
		MinSize:      0,
		MaxSize:      2,
		IdleTimeout:  time.Minute,
		PollInterval: 2 * time.Millisecond,
	}, factory, logger)
	t.Cleanup(func() { rig.pool.CloseAll() })

	rig.limiter = ratelimit.New(ratelimit.Config{
		Window:      time.Minute,
		MaxRequests: maxRequests,
	}, logger)
	t.Cleanup(rig.limiter.Close)

	if store == nil {
		store = cache.NewMemoryStore()
	}
	rig.cache = cache.New(cache.Config{
		TTL:           time.Hour,
		MaxKeys:       100,
		SweepInterval: time.Hour,
	}, store, logger)
	t.Cleanup(func() { rig.cache.Close() })

	rig.runner = NewRunner(Config{
		MaxRetries: maxRetries,
		Backoff:    Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond, jitter: func() float64 { return 0 }},
	}, rig.pool, rig.limiter, rig.cache, logger)

	// Record backoff waits instead of sleeping.
	rig.runner.sleepFn = func(ctx context.Context, d time.Duration) error {
		rig.mu.Lock()
		rig.delays = append(rig.delays, d)
		rig.mu.Unlock()
		return nil
	}

	return rig
}

func (r *testRig) recordedDelays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.delays))
	copy(out, r.delays)
	return out
}

func TestDoSuccess(t *testing.T) {
	rig := newTestRig(t, 3, 10, nil)

	var calls atomic.Int32
	op := Operation{
		Name:     "search",
		CacheKey: "search:abc",
		RateKey:  "search",
		Action: func(ctx context.Context, res pool.Resource) ([]byte, error) {
			calls.Add(1)
			return []byte(`{"results":[]}`), nil
		},
	}

	value, err := rig.runner.Do(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"results":[]}`), value)
	assert.Equal(t, int32(1), calls.Load())

	// The borrowed resource went back.
	assert.Equal(t, 0, rig.pool.Stats().InUse)
	assert.Equal(t, 1, rig.pool.Stats().Free)
}

func TestDoTransientRetry(t *testing.T) {
	// Scenario: first attempt hits a transient failure, second succeeds.
	rig := newTestRig(t, 3, 10, nil)

	var calls atomic.Int32
	op := Operation{
		Name:     "search",
		CacheKey: "search:abc",
		RateKey:  "search",
		Action: func(ctx context.Context, res pool.Resource) ([]byte, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("page.goto: Timeout 30000ms exceeded")
			}
			return []byte("ok"), nil
		},
	}

	value, err := rig.runner.Do(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), value)
	assert.Equal(t, int32(2), calls.Load(), "exactly one retry")

	// One backoff wait happened, and the result was cached.
	assert.Len(t, rig.recordedDelays(), 1)
	cached, ok := rig.cache.Get(context.Background(), "search:abc")
	require.True(t, ok)
	assert.Equal(t, []byte("ok"), cached)

	// Resources were released after both attempts.
	assert.Equal(t, 0, rig.pool.Stats().InUse)
}

func TestDoNonTransientFailsFast(t *testing.T) {
	rig := newTestRig(t, 3, 10, nil)

	var calls atomic.Int32
	op := Operation{
		Name:    "extract",
		RateKey: "extract",
		Action: func(ctx context.Context, res pool.Resource) ([]byte, error) {
			calls.Add(1)
			return nil, errors.New("no element matches selector #main")
		},
	}

	_, err := rig.runner.Do(context.Background(), op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract failed")
	assert.Equal(t, int32(1), calls.Load(), "non-transient failures must not retry")
	assert.Empty(t, rig.recordedDelays())
	assert.Equal(t, 0, rig.pool.Stats().InUse)
}

func TestDoRetryBudgetExhausted(t *testing.T) {
	rig := newTestRig(t, 3, 10, nil)

	var calls atomic.Int32
	op := Operation{
		Name:     "search",
		CacheKey: "search:abc",
		RateKey:  "search",
		Action: func(ctx context.Context, res pool.Resource) ([]byte, error) {
			calls.Add(1)
			return nil, errors.New("our systems have detected unusual traffic")
		},
	}

	_, err := rig.runner.Do(context.Background(), op)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMaxRetries))
	assert.Contains(t, err.Error(), "unusual traffic", "last cause should be visible")
	assert.Equal(t, int32(3), calls.Load(), "budget is total attempts")

	// Backoff doubled between attempts (jitter pinned to zero).
	delays := rig.recordedDelays()
	require.Len(t, delays, 2)
	assert.Equal(t, time.Millisecond, delays[0])
	assert.Equal(t, 2*time.Millisecond, delays[1])

	// Nothing was cached.
	_, ok := rig.cache.Get(context.Background(), "search:abc")
	assert.False(t, ok)
	assert.Equal(t, 0, rig.pool.Stats().InUse)
}

func TestDoRateLimited(t *testing.T) {
	// Scenario: an exhausted bucket rejects before any borrow, with no retry.
	rig := newTestRig(t, 3, 1, nil)

	okOp := Operation{
		Name:    "search",
		RateKey: "search",
		Action: func(ctx context.Context, res pool.Resource) ([]byte, error) {
			return []byte("ok"), nil
		},
	}
	_, err := rig.runner.Do(context.Background(), okOp)
	require.NoError(t, err)

	var calls atomic.Int32
	deniedOp := Operation{
		Name:    "search",
		RateKey: "search",
		Action: func(ctx context.Context, res pool.Resource) ([]byte, error) {
			calls.Add(1)
			return []byte("never"), nil
		},
	}

	_, err = rig.runner.Do(context.Background(), deniedOp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))

	var typed *Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, CodeRateLimited, typed.Code)
	assert.Equal(t, 429, typed.Status)

	assert.Equal(t, int32(0), calls.Load(), "rejected operation must not run")
	assert.Equal(t, int32(1), rig.factoryCalls.Load(), "rejection must not borrow from the pool")
	assert.Empty(t, rig.recordedDelays(), "rejection is never retried")
}

func TestDoCacheHit(t *testing.T) {
	// Scenario: a repeat of a cached operation touches neither the limiter
	// nor the pool.
	rig := newTestRig(t, 3, 1, nil)

	var calls atomic.Int32
	op := Operation{
		Name:     "search",
		CacheKey: "search:repeat",
		RateKey:  "search",
		Action: func(ctx context.Context, res pool.Resource) ([]byte, error) {
			calls.Add(1)
			return []byte("fresh"), nil
		},
	}

	first, err := rig.runner.Do(context.Background(), op)
	require.NoError(t, err)

	// The single token is spent. A second run only works via the cache.
	second, err := rig.runner.Do(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load(), "cached run must not execute the action")
	assert.Equal(t, int32(1), rig.factoryCalls.Load(), "cached run must not borrow")
}

func TestDoCacheStoreFailureIsNotFatal(t *testing.T) {
	rig := newTestRig(t, 3, 10, &failingStore{Store: cache.NewMemoryStore()})

	op := Operation{
		Name:     "search",
		CacheKey: "search:abc",
		RateKey:  "search",
		Action: func(ctx context.Context, res pool.Resource) ([]byte, error) {
			return []byte("ok"), nil
		},
	}

	value, err := rig.runner.Do(context.Background(), op)
	require.NoError(t, err, "a failed cache write must not fail the operation")
	assert.Equal(t, []byte("ok"), value)
}

func TestDoWithoutCacheOrRateKey(t *testing.T) {
	rig := newTestRig(t, 3, 1, nil)

	op := Operation{
		Name: "stats",
		Action: func(ctx context.Context, res pool.Resource) ([]byte, error) {
			return []byte("ok"), nil
		},
	}

	for i := 0; i < 3; i++ {
		_, err := rig.runner.Do(context.Background(), op)
		require.NoError(t, err, "unkeyed operations bypass the limiter")
	}
	assert.Equal(t, 0, rig.limiter.Keys())
}

func TestDoBackoffAbortsOnCancel(t *testing.T) {
	rig := newTestRig(t, 3, 10, nil)
	rig.runner.sleepFn = sleep // real sleep so cancellation matters

	ctx, cancel := context.WithCancel(context.Background())

	op := Operation{
		Name:    "search",
		RateKey: "search",
		Action: func(ctx context.Context, res pool.Resource) ([]byte, error) {
			cancel()
			return nil, errors.New("navigation timeout")
		},
	}

	_, err := rig.runner.Do(ctx, op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted during backoff")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoCustomTTL(t *testing.T) {
	rig := newTestRig(t, 3, 10, nil)

	op := Operation{
		Name:     "screenshot",
		CacheKey: "shot:abc",
		RateKey:  "screenshot",
		TTL:      time.Nanosecond,
		Action: func(ctx context.Context, res pool.Resource) ([]byte, error) {
			return []byte("png"), nil
		},
	}

	_, err := rig.runner.Do(context.Background(), op)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, ok := rig.cache.Get(context.Background(), "shot:abc")
	assert.False(t, ok, "per-operation TTL should govern the entry")
}
