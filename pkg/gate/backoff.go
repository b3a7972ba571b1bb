package gate

import (
	"context"
	"math/rand"
	"time"
)

// Backoff defaults. The first retry waits about a second; later retries
// double, capped well below a host's patience.
const (
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// Backoff computes exponential retry delays with jitter.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	// jitter is replaceable in tests; nil means rand.Float64
	jitter func() float64
}

// Delay returns the wait before retry number retry (0-based): Base doubled
// retry times, capped at Max, plus up to one Base of jitter so synchronized
// clients spread out.
func (b Backoff) Delay(retry int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	max := b.Max
	if max <= 0 {
		max = DefaultBackoffMax
	}

	if retry > 30 {
		retry = 30 // avoid shift overflow; the cap applies anyway
	}
	d := base << uint(retry)
	if d <= 0 || d > max {
		d = max
	}

	jitterFn := b.jitter
	if jitterFn == nil {
		jitterFn = rand.Float64
	}
	return d + time.Duration(jitterFn()*float64(base))
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
