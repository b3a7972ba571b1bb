// Package pool provides a bounded pool of reusable resources with lazy
// growth, blocking acquisition, and idle reclamation.
//
// The pool holds between MinSize and MaxSize resources. Acquire hands out a
// free resource when one exists, creates a new one while there is headroom,
// and otherwise polls until a resource is released or the context ends. A
// resource released while the pool is above MinSize is scheduled for close
// after IdleTimeout, unless it is borrowed again first.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Claw256/mcp-google-search/pkg/logging"
)

// DefaultPollInterval is how often a blocked Acquire rechecks the pool.
const DefaultPollInterval = 100 * time.Millisecond

// ErrClosed is returned by Acquire after CloseAll.
var ErrClosed = errors.New("pool is closed")

// Resource is anything the pool can manage. ID must be unique per resource
// and stable for its lifetime.
type Resource interface {
	ID() string
	Close() error
}

// Factory creates a new resource. It is called outside the pool lock and may
// be slow; the context carries the acquiring caller's deadline.
type Factory func(ctx context.Context) (Resource, error)

// Config sizes a Pool.
type Config struct {
	MinSize      int
	MaxSize      int
	IdleTimeout  time.Duration
	PollInterval time.Duration // zero means DefaultPollInterval
}

// entry tracks one pooled resource.
type entry struct {
	res   Resource
	inUse bool

	// releaseSeq increments on every release. An idle timer captures the
	// sequence at arm time and only closes the resource if it still matches,
	// so a timer from an earlier release can never reclaim a resource that
	// has been borrowed and released again since.
	releaseSeq uint64
	idleTimer  *time.Timer
}

// Pool manages a bounded set of resources.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*entry
	pending int // factory calls in flight, each holding a slot
	closed  bool

	factory      Factory
	logger       *logging.Logger
	minSize      int
	maxSize      int
	idleTimeout  time.Duration
	pollInterval time.Duration

	initOnce sync.Once
	initErr  error
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Size    int // resources currently pooled
	InUse   int // resources handed out
	Free    int // resources available for borrow
	Pending int // factory calls in flight
}

// New creates a pool. Resources are not created until Initialize or the
// first Acquire.
func New(cfg Config, factory Factory, logger *logging.Logger) *Pool {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &Pool{
		entries:      make(map[string]*entry),
		factory:      factory,
		logger:       logger,
		minSize:      cfg.MinSize,
		maxSize:      cfg.MaxSize,
		idleTimeout:  cfg.IdleTimeout,
		pollInterval: pollInterval,
	}
}

// Initialize warms the pool to MinSize resources, creating them in parallel.
// If any creation fails, every resource created by this call is closed and
// the error is returned. The outcome is memoized: repeat calls return the
// first result without creating anything.
func (p *Pool) Initialize(ctx context.Context) error {
	p.initOnce.Do(func() {
		p.initErr = p.warmUp(ctx)
	})
	return p.initErr
}

func (p *Pool) warmUp(ctx context.Context) error {
	if p.minSize == 0 {
		return nil
	}

	results := make([]Resource, p.minSize)
	errs := make([]error, p.minSize)

	var wg sync.WaitGroup
	for i := 0; i < p.minSize; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.factory(ctx)
		}(i)
	}
	wg.Wait()

	var firstErr error
	for _, err := range errs {
		if err != nil {
			firstErr = err
			break
		}
	}

	if firstErr != nil {
		// All-or-nothing: a partial warm-up leaves nothing behind.
		for _, res := range results {
			if res == nil {
				continue
			}
			if err := res.Close(); err != nil {
				p.logger.Warnf("Failed to close resource %s during failed warm-up: %v", res.ID(), err)
			}
		}
		return fmt.Errorf("failed to initialize pool: %w", firstErr)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, res := range results {
		p.entries[res.ID()] = &entry{res: res}
	}

	p.logger.Infof("Pool initialized with %d resources (max %d)", p.minSize, p.maxSize)
	return nil
}

// Acquire returns a resource for exclusive use. It prefers a free resource,
// creates one while the pool is below MaxSize, and otherwise blocks until a
// release or ctx is done. A factory failure is returned to this caller
// immediately. There is no fairness guarantee among concurrent waiters.
func (p *Pool) Acquire(ctx context.Context) (Resource, error) {
	for {
		res, wait, err := p.tryAcquire(ctx)
		if err != nil {
			return nil, err
		}
		if !wait {
			return res, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire aborted: %w", ctx.Err())
		case <-time.After(p.pollInterval):
		}
	}
}

// tryAcquire makes one pass: free resource, growth, or wait=true.
func (p *Pool) tryAcquire(ctx context.Context) (Resource, bool, error) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, false, ErrClosed
	}

	for _, e := range p.entries {
		if !e.inUse {
			e.inUse = true
			if e.idleTimer != nil {
				e.idleTimer.Stop()
				e.idleTimer = nil
			}
			res := e.res
			p.mu.Unlock()
			return res, false, nil
		}
	}

	if len(p.entries)+p.pending < p.maxSize {
		// Reserve the slot before releasing the lock so concurrent callers
		// cannot overshoot MaxSize while the factory runs.
		p.pending++
		p.mu.Unlock()

		res, err := p.factory(ctx)

		p.mu.Lock()
		p.pending--
		if err != nil {
			p.mu.Unlock()
			return nil, false, fmt.Errorf("failed to create resource: %w", err)
		}
		if p.closed {
			p.mu.Unlock()
			if cerr := res.Close(); cerr != nil {
				p.logger.Warnf("Failed to close resource %s created during shutdown: %v", res.ID(), cerr)
			}
			return nil, false, ErrClosed
		}
		p.entries[res.ID()] = &entry{res: res, inUse: true}
		size := len(p.entries)
		p.mu.Unlock()

		p.logger.Debugf("Created resource %s (pool size %d/%d)", res.ID(), size, p.maxSize)
		return res, false, nil
	}

	p.mu.Unlock()
	return nil, true, nil
}

// Release returns a resource to the pool. If the pool is above MinSize an
// idle timer is armed; when it fires the resource is closed only if it is
// still free, has not been released again since, and the pool is still above
// MinSize. Releasing a resource the pool does not own is a logged no-op.
func (p *Pool) Release(res Resource) {
	if res == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[res.ID()]
	if !ok {
		p.logger.Warnf("Release of unknown resource %s ignored", res.ID())
		return
	}
	if !e.inUse {
		p.logger.Warnf("Release of already free resource %s ignored", res.ID())
		return
	}

	e.inUse = false
	e.releaseSeq++

	if p.idleTimeout > 0 && len(p.entries) > p.minSize {
		id := res.ID()
		seq := e.releaseSeq
		e.idleTimer = time.AfterFunc(p.idleTimeout, func() {
			p.reclaimIdle(id, seq)
		})
	}
}

// reclaimIdle closes a resource whose idle timer fired, re-verifying that
// nothing changed since the timer was armed.
func (p *Pool) reclaimIdle(id string, seq uint64) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return
	}

	e, ok := p.entries[id]
	if !ok || e.inUse || e.releaseSeq != seq || len(p.entries) <= p.minSize {
		p.mu.Unlock()
		return
	}

	delete(p.entries, id)
	size := len(p.entries)
	res := e.res
	p.mu.Unlock()

	if err := res.Close(); err != nil {
		p.logger.Warnf("Failed to close idle resource %s: %v", id, err)
		return
	}
	p.logger.Debugf("Closed idle resource %s (pool size %d/%d)", id, size, p.maxSize)
}

// CloseAll closes every resource, free and in-use alike. Close failures are
// logged and collected; the pool always ends empty and rejects further
// acquisition.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	p.closed = true
	entries := p.entries
	p.entries = make(map[string]*entry)
	p.mu.Unlock()

	var errs []error
	for id, e := range entries {
		if e.idleTimer != nil {
			e.idleTimer.Stop()
		}
		if err := e.res.Close(); err != nil {
			p.logger.Warnf("Failed to close resource %s: %v", id, err)
			errs = append(errs, err)
		}
	}

	p.logger.Infof("Pool closed, released %d resources", len(entries))

	if len(errs) > 0 {
		return fmt.Errorf("errors closing resources: %v", errs)
	}
	return nil
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{
		Size:    len(p.entries),
		Pending: p.pending,
	}
	for _, e := range p.entries {
		if e.inUse {
			stats.InUse++
		} else {
			stats.Free++
		}
	}
	return stats
}
