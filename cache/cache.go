// Package cache stores model replies so repeated instructions do not pay for
// a second model call. Memory is process-local; Redis is shared between
// server replicas.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory implements a thread-safe cache with TTL expiration and LRU eviction.
type Memory struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	eviction   *list.List // front = most recently used, back = least recently used
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time

	hits      int64
	misses    int64
	evictions int64
}

type cacheEntry struct {
	key       string
	value     string
	expiresAt time.Time
}

// MemoryConfig configures the in-memory cache.
type MemoryConfig struct {
	// MaxSize is the maximum number of items in the cache.
	MaxSize int
	// DefaultTTL applies when Set is called with a zero TTL.
	DefaultTTL time.Duration
}

// DefaultMemoryConfig returns sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxSize:    1000,
		DefaultTTL: time.Hour,
	}
}

// NewMemory creates a new in-memory cache.
func NewMemory(cfg MemoryConfig) *Memory {
	def := DefaultMemoryConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}

	return &Memory{
		items:      make(map[string]*list.Element, cfg.MaxSize),
		eviction:   list.New(),
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
	}
}

// Get returns the value and true if the key is present and not expired.
func (c *Memory) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return "", false, nil
	}

	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.removeLocked(elem)
		c.misses++
		return "", false, nil
	}

	c.eviction.MoveToFront(elem)
	c.hits++
	return entry.value, true, nil
}

// Set stores a value. A zero ttl uses the configured default.
func (c *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = c.now().Add(ttl)
		c.eviction.MoveToFront(elem)
		return nil
	}

	for c.eviction.Len() >= c.maxSize {
		c.evictLocked()
	}

	elem := c.eviction.PushFront(&cacheEntry{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(ttl),
	})
	c.items[key] = elem
	return nil
}

// Delete removes a key from the cache.
func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}
	return nil
}

// Len returns the number of items in the cache (including expired but not yet evicted).
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}

// Stats holds cache statistics.
type Stats struct {
	Size      int
	MaxSize   int
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

// Stats returns cache statistics.
func (c *Memory) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:      c.eviction.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// evictLocked removes the least recently used entry.
func (c *Memory) evictLocked() {
	back := c.eviction.Back()
	if back == nil {
		return
	}
	c.removeLocked(back)
	c.evictions++
}

func (c *Memory) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
	c.eviction.Remove(elem)
}

// PurgeExpired removes all expired entries and returns how many were removed.
func (c *Memory) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	purged := 0

	var next *list.Element
	for e := c.eviction.Front(); e != nil; e = next {
		next = e.Next()
		if now.After(e.Value.(*cacheEntry).expiresAt) {
			c.removeLocked(e)
			purged++
		}
	}
	return purged
}

// StartJanitor purges expired entries every interval until ctx is done.
func (c *Memory) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.PurgeExpired()
			}
		}
	}()
}
