package common

import (
	"container/list"
	"sync"
	"time"
)

// BoundedLRUCache is a thread-safe bounded LRU cache. When ttl is positive,
// entries older than ttl read as missing.
type BoundedLRUCache[K comparable, V any] struct {
	mu      sync.Mutex
	cache   map[K]*list.Element
	lru     *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type lruEntry[K comparable, V any] struct {
	key      K
	value    V
	storedAt time.Time
}

func NewBoundedLRUCache[K comparable, V any](maxSize int) *BoundedLRUCache[K, V] {
	return NewBoundedTTLCache[K, V](maxSize, 0)
}

func NewBoundedTTLCache[K comparable, V any](maxSize int, ttl time.Duration) *BoundedLRUCache[K, V] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &BoundedLRUCache[K, V]{
		cache:   make(map[K]*list.Element, maxSize),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock replaces the time source used for expiry.
func (c *BoundedLRUCache[K, V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *BoundedLRUCache[K, V]) expired(e *lruEntry[K, V]) bool {
	return c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl
}

// Get retrieves a value and marks it most recently used.
func (c *BoundedLRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.cache[key]
	if !ok {
		return zero, false
	}
	entry := elem.Value.(*lruEntry[K, V])
	if c.expired(entry) {
		c.lru.Remove(elem)
		delete(c.cache, key)
		return zero, false
	}
	c.lru.MoveToFront(elem)
	return entry.value, true
}

// Set adds or updates a value and restarts its ttl.
func (c *BoundedLRUCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

func (c *BoundedLRUCache[K, V]) set(key K, value V) {
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*lruEntry[K, V])
		entry.value = value
		entry.storedAt = c.now()
		return
	}

	for len(c.cache) >= c.maxSize {
		c.evictLRU()
	}

	elem := c.lru.PushFront(&lruEntry[K, V]{key: key, value: value, storedAt: c.now()})
	c.cache[key] = elem
}

// Add stores value only when key is absent or expired, and reports whether it did.
func (c *BoundedLRUCache[K, V]) Add(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok && !c.expired(elem.Value.(*lruEntry[K, V])) {
		return false
	}
	c.set(key, value)
	return true
}

func (c *BoundedLRUCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.lru.Remove(elem)
		delete(c.cache, key)
	}
}

// evictLRU removes the least recently used entry
// Must be called with mu held
func (c *BoundedLRUCache[K, V]) evictLRU() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*lruEntry[K, V])
	c.lru.Remove(back)
	delete(c.cache, entry.key)
}

func (c *BoundedLRUCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func (c *BoundedLRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[K]*list.Element, c.maxSize)
	c.lru.Init()
}
