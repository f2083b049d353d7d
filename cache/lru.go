package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/greyhound/resource"
)

// Usage is the footprint of one CacheKind.
type Usage struct {
	Entries int
	Bytes   int64
}

// LRUBlockCache is a byte-bounded LRU BlockCache. Every cached byte is also
// charged to the resource controller, if any, so several caches can share
// one process-wide memory budget.
type LRUBlockCache struct {
	capacity int64
	rc       *resource.Controller

	mu      sync.Mutex
	used    int64
	entries map[CacheKey]*list.Element
	recency *list.List // front is most recently used
	usage   [numKinds]Usage

	hits   atomic.Int64
	misses atomic.Int64
}

type item struct {
	key  CacheKey
	data []byte
}

// NewLRUBlockCache creates a cache holding at most capacity bytes. rc may be
// nil.
func NewLRUBlockCache(capacity int64, rc *resource.Controller) *LRUBlockCache {
	return &LRUBlockCache{
		capacity: capacity,
		rc:       rc,
		entries:  make(map[CacheKey]*list.Element),
		recency:  list.New(),
	}
}

// Get returns a cached block and marks it recently used.
func (c *LRUBlockCache) Get(_ context.Context, key CacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.recency.MoveToFront(e)
	return e.Value.(*item).data, true
}

// Set caches b under key, replacing any previous block. Blocks larger than
// the cache, or refused by the controller, are not cached.
func (c *LRUBlockCache) Set(_ context.Context, key CacheKey, b []byte) {
	size := int64(len(b))
	if size > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}

	// Evict locally first so freed bytes are back in the controller before
	// asking it for more.
	for c.used+size > c.capacity && c.evictOldest() {
	}
	if !c.rc.TryAcquireMemory(size) {
		return
	}

	c.entries[key] = c.recency.PushFront(&item{key: key, data: b})
	c.used += size
	u := &c.usage[key.Kind.index()]
	u.Entries++
	u.Bytes += size
}

// Invalidate removes entries matching the predicate.
func (c *LRUBlockCache) Invalidate(predicate func(key CacheKey) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for e := c.recency.Front(); e != nil; {
		next := e.Next()
		if predicate(e.Value.(*item).key) {
			c.remove(e)
		}
		e = next
	}
}

// Close drops every entry and returns its memory to the controller.
func (c *LRUBlockCache) Close() error {
	c.Invalidate(func(CacheKey) bool { return true })
	return nil
}

// Stats returns hit/miss counters.
func (c *LRUBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Usage returns the footprint of one kind of block.
func (c *LRUBlockCache) Usage(kind CacheKind) Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage[kind.index()]
}

// Size returns the cached bytes.
func (c *LRUBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Len returns the number of cached entries.
func (c *LRUBlockCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *LRUBlockCache) evictOldest() bool {
	e := c.recency.Back()
	if e == nil {
		return false
	}
	c.remove(e)
	return true
}

func (c *LRUBlockCache) remove(e *list.Element) {
	it := c.recency.Remove(e).(*item)
	delete(c.entries, it.key)

	size := int64(len(it.data))
	c.used -= size
	u := &c.usage[it.key.Kind.index()]
	u.Entries--
	u.Bytes -= size
	c.rc.ReleaseMemory(size)
}
