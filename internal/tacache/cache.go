// Package tacache memoizes technical-analysis snapshots by input fingerprint.
//
// GetOrCompute guarantees that, for one fingerprint, the compute function runs
// at most once across all concurrent callers. Every waiter receives the same
// snapshot or the same error. Errors are never stored.
package tacache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// ComputeFunc builds a snapshot. It receives a context detached from any
// single caller so one caller giving up does not fail the others.
type ComputeFunc func(ctx context.Context) (*model.Snapshot, error)

// Config bounds the cache.
type Config struct {
	TTL            time.Duration `yaml:"ttl"`
	MaxEntries     int           `yaml:"max_entries" split_words:"true"`
	ComputeTimeout time.Duration `yaml:"compute_timeout" split_words:"true"`
}

func DefaultConfig() Config {
	return Config{TTL: 5 * time.Second, MaxEntries: 512, ComputeTimeout: 10 * time.Second}
}

type entry struct {
	snap      *model.Snapshot
	createdAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	cfg   Config
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry

	now func() time.Time

	// Optional hooks, called outside locks.
	OnHit     func()
	OnMiss    func()
	OnEvict   func(n int)
	OnCompute func(d time.Duration, err error)
}

func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.ComputeTimeout <= 0 {
		cfg.ComputeTimeout = DefaultConfig().ComputeTimeout
	}
	return &Cache{cfg: cfg, entries: make(map[string]entry), now: time.Now}
}

// SetClock replaces the wall clock, for tests.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

// Get returns a live entry.
func (c *Cache) Get(fp string) (*model.Snapshot, bool) {
	c.mu.RLock()
	e, ok := c.entries[fp]
	c.mu.RUnlock()
	if !ok || c.expired(e) {
		return nil, false
	}
	return e.snap, true
}

// GetOrCompute returns the cached snapshot for fp or runs fn once to build it.
// A caller whose ctx ends stops waiting; the computation keeps running for
// the remaining waiters and its result is still cached.
func (c *Cache) GetOrCompute(ctx context.Context, fp string, fn ComputeFunc) (*model.Snapshot, error) {
	if snap, ok := c.Get(fp); ok {
		if c.OnHit != nil {
			c.OnHit()
		}
		return snap, nil
	}
	if c.OnMiss != nil {
		c.OnMiss()
	}

	ch := c.group.DoChan(fp, func() (interface{}, error) {
		// A flight that finished just before this one started may already
		// have stored the result.
		if snap, ok := c.Get(fp); ok {
			return snap, nil
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ComputeTimeout)
		defer cancel()

		start := c.now()
		snap, err := fn(cctx)
		if c.OnCompute != nil {
			c.OnCompute(c.now().Sub(start), err)
		}
		if err != nil {
			return nil, err
		}
		c.put(fp, snap)
		return snap, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) put(fp string, snap *model.Snapshot) {
	var evicted int
	c.mu.Lock()
	c.entries[fp] = entry{snap: snap, createdAt: c.now()}
	if c.cfg.MaxEntries > 0 && len(c.entries) > c.cfg.MaxEntries {
		evicted = c.evictLocked(len(c.entries) - c.cfg.MaxEntries)
	}
	c.mu.Unlock()
	if evicted > 0 && c.OnEvict != nil {
		c.OnEvict(evicted)
	}
}

// evictLocked drops expired entries first, then the oldest until n are gone.
func (c *Cache) evictLocked(n int) int {
	removed := 0
	for fp, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, fp)
			removed++
		}
	}
	for removed < n && len(c.entries) > 0 {
		var oldest string
		var at time.Time
		for fp, e := range c.entries {
			if oldest == "" || e.createdAt.Before(at) {
				oldest, at = fp, e.createdAt
			}
		}
		delete(c.entries, oldest)
		removed++
	}
	return removed
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	n := 0
	for fp, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, fp)
			n++
		}
	}
	c.mu.Unlock()
	if n > 0 && c.OnEvict != nil {
		c.OnEvict(n)
	}
	return n
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) expired(e entry) bool {
	return c.now().Sub(e.createdAt) >= c.cfg.TTL
}
