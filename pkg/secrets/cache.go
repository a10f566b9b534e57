package secrets

import (
	"sync"
	"time"
)

type cacheItem[T any] struct {
	value   T
	expires time.Time
}

// Cache is a thread-safe TTL cache for resolved secrets.
type Cache[T any] struct {
	mu   sync.RWMutex
	data map[string]cacheItem[T]
	ttl  time.Duration
	now  func() time.Time
}

// NewCache creates a cache whose entries live for ttl.
func NewCache[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		data: make(map[string]cacheItem[T]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Get returns a live entry. Expired entries are evicted on read.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T

	c.mu.RLock()
	item, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if c.now().After(item.expires) {
		c.Bust(key)
		return zero, false
	}
	return item.value, true
}

// Put inserts or overwrites an entry.
func (c *Cache[T]) Put(key string, value T) {
	c.mu.Lock()
	c.data[key] = cacheItem[T]{value: value, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Bust drops an entry, e.g. after a rotated credential was rejected.
func (c *Cache[T]) Bust(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// StartCleaner evicts expired entries every interval until stop is closed.
func (c *Cache[T]) StartCleaner(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-stop:
			return
		}
	}
}

func (c *Cache[T]) evictExpired() {
	now := c.now()
	c.mu.Lock()
	for k, v := range c.data {
		if now.After(v.expires) {
			delete(c.data, k)
		}
	}
	c.mu.Unlock()
}
