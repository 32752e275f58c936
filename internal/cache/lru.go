package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a size-bounded cache whose entries also expire after a TTL.
// A zero TTL keeps entries until they are evicted.
type LRUCache[T any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	index    map[string]*list.Element
	order    *list.List // front is most recently used
	now      func() time.Time
	stats    Stats
}

type entry[T any] struct {
	key     string
	value   T
	expires time.Time
}

// Stats counts lookups since the cache was created.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

var _ Cache[int] = (*LRUCache[int])(nil)

func NewLRUCache[T any](capacity int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		capacity: capacity,
		ttl:      ttl,
		index:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

func (c *LRUCache[T]) expired(e *entry[T], at time.Time) bool {
	return c.ttl > 0 && at.After(e.expires)
}

func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.stats.Misses++
		var zero T
		return zero, false
	}
	e := el.Value.(*entry[T])
	if c.expired(e, c.now()) {
		c.drop(el)
		c.stats.Misses++
		var zero T
		return zero, false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	return e.value, true
}

// Set stores value under key, refreshing its TTL, and evicts the least
// recently used entry when the cache is over capacity.
func (c *LRUCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[T]{key: key, value: value, expires: c.now().Add(c.ttl)}
	if el, ok := c.index[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(e)

	for c.capacity > 0 && c.order.Len() > c.capacity {
		c.drop(c.order.Back())
		c.stats.Evictions++
	}
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.drop(el)
	}
}

// Purge drops every entry.
func (c *LRUCache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.index)
	c.order.Init()
}

func (c *LRUCache[T]) drop(el *list.Element) {
	delete(c.index, el.Value.(*entry[T]).key)
	c.order.Remove(el)
}

// CleanExpired removes expired entries and reports how many it removed.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	at := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*entry[T]), at) {
			c.drop(el)
			removed++
		}
		el = prev
	}
	return removed
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *LRUCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.index)
	return s
}
