// Package cache memoizes indexed artifacts and resource-read results. Entries
// carry a TTL and the source-document version they were derived from: expiry
// is enforced lazily on access and eagerly by a background sweep, size is
// bounded with least-recently-used eviction, and concurrent misses for the
// same key collapse into a single computation.
package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Stats counts cache activity since construction or the last reset.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Sets      uint64 `json:"sets"`
}

type entry struct {
	key       string
	value     any
	version   string
	createdAt time.Time
	expireAt  time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// Cache is a TTL + LRU cache with version tagging and single-flight
// computation. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List // front = most recently used
	maxSize int
	ttl     time.Duration
	stats   Stats

	group singleflight.Group

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a Cache bounded to maxSize entries with the given default TTL.
// A non-zero sweepInterval starts a background goroutine that evicts expired
// entries eagerly; Close stops it.
func New(maxSize int, ttl, sweepInterval time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	c := &Cache{
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.sweepLoop(sweepInterval)
	}
	return c
}

// Close stops the background sweeper.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Get returns the cached value for key if it exists, has not expired, and was
// derived from the given source version. A stale version counts as a miss.
func (c *Cache) Get(key, version string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	ent := elem.Value.(*entry)
	if ent.expired(time.Now()) || ent.version != version {
		c.removeLocked(elem)
		c.stats.Misses++
		return nil, false
	}
	c.lru.MoveToFront(elem)
	c.stats.Hits++
	return ent.value, true
}

// Set stores value under key, tagged with version. A zero ttl uses the cache
// default; a negative ttl disables expiry for the entry.
func (c *Cache) Set(key string, value any, version string, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.ttl
	}
	ent := &entry{
		key:       key,
		value:     value,
		version:   version,
		createdAt: time.Now(),
	}
	if ttl > 0 {
		ent.expireAt = ent.createdAt.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		elem.Value = ent
		c.lru.MoveToFront(elem)
	} else {
		for c.lru.Len() >= c.maxSize {
			c.evictLocked()
		}
		c.items[key] = c.lru.PushFront(ent)
	}
	c.stats.Sets++
}

// GetOrCompute returns the cached value for key, computing it at most once
// across concurrent callers on a miss. The computation runs detached from the
// caller's context so an abandoned request does not fail the other waiters;
// only complete results are committed to the cache. The abandoning caller
// still returns its context error immediately.
func (c *Cache) GetOrCompute(ctx context.Context, key, version string, ttl time.Duration, compute func(context.Context) (any, error)) (any, error) {
	if value, ok := c.Get(key, version); ok {
		return value, nil
	}

	ch := c.group.DoChan(version+"\x1f"+key, func() (any, error) {
		value, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.Set(key, value, version, ttl)
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}
}

// InvalidatePrefix removes every key starting with prefix and returns how
// many entries were dropped.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var dropped int
	for key, elem := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(elem)
			dropped++
		}
	}
	return dropped
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
}

// Len returns the number of live entries, including not-yet-swept expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a snapshot of the activity counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Cache) evictLocked() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	c.removeLocked(back)
	c.stats.Evictions++
}

func (c *Cache) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry)
	delete(c.items, ent.key)
	c.lru.Remove(elem)
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, elem := range c.items {
		if elem.Value.(*entry).expired(now) {
			c.removeLocked(elem)
		}
	}
}
