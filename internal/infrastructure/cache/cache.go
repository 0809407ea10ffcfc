// Package cache provides a thread-safe in-memory LRU cache with per-item TTL
// and prefix invalidation, used to memoize discovery results per folder.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"curator-backend/internal/config"
)

// Cache is an LRU cache bounded by item count and total byte size.
type Cache struct {
	mu      sync.Mutex
	items   map[string]*entry
	order   *list.List // front = most recently used
	size    int64
	cfg     config.Cache
	logger  *zap.Logger
	nowFunc func() time.Time

	hits      int64
	misses    int64
	evictions int64
}

type entry struct {
	key     string
	value   []byte
	size    int64
	expires time.Time
	elem    *list.Element
}

// New creates an empty cache.
func New(cfg config.Cache, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		items:   make(map[string]*entry),
		order:   list.New(),
		cfg:     cfg,
		logger:  logger.Named("cache"),
		nowFunc: time.Now,
	}
}

// Get returns the cached value for key, or false when absent or expired.
// The returned slice is a copy.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.nowFunc().After(e.expires) {
		c.remove(e)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(e.elem)
	c.hits++
	return append([]byte(nil), e.value...), true
}

// Set stores value under key with the given TTL, evicting least-recently-used
// entries until the bounds hold. A ttl of zero uses the configured default.
// Values larger than the whole cache are skipped.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	size := int64(len(key) + len(value))
	if size > c.cfg.MaxMemory {
		c.logger.Warn("value exceeds cache capacity, not cached",
			zap.String("key", key), zap.Int64("size", size))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[key]; ok {
		c.remove(existing)
	}
	for (c.size+size > c.cfg.MaxMemory || len(c.items) >= c.cfg.MaxItems) && c.order.Len() > 0 {
		c.remove(c.order.Back().Value.(*entry))
		c.evictions++
	}

	e := &entry{
		key:     key,
		value:   append([]byte(nil), value...),
		size:    size,
		expires: c.nowFunc().Add(ttl),
	}
	e.elem = c.order.PushFront(e)
	c.items[key] = e
	c.size += size
}

// Delete removes one key. Missing keys are a no-op.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.remove(e)
	}
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns how many were dropped. Placements into a folder invalidate that
// folder's discovery results this way.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []*entry
	for key, e := range c.items {
		if strings.HasPrefix(key, prefix) {
			doomed = append(doomed, e)
		}
	}
	for _, e := range doomed {
		c.remove(e)
	}
	return len(doomed)
}

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Items     int
	Bytes     int64
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Items:     len(c.items),
		Bytes:     c.size,
	}
}

func (c *Cache) remove(e *entry) {
	c.order.Remove(e.elem)
	delete(c.items, e.key)
	c.size -= e.size
}
