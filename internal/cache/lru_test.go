package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestCache(maxSize int, ttl time.Duration) (*LRUCache[int], *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](maxSize, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUCacheGetSet(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v %v", v, ok)
	}
	// "b" is now least recently used and gets evicted.
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	clock.t = clock.t.Add(30 * time.Second)
	c.Set("b", 3) // refresh b's TTL
	clock.t = clock.t.Add(45 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a to be expired")
	}
	if v, ok := c.Get("b"); !ok || v != 3 {
		t.Fatalf("expected refreshed b=3, got %v %v", v, ok)
	}

	clock.t = clock.t.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 expired entry, got %d", n)
	}
}

func TestLRUCachePurgeAndDelete(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a deleted")
	}
	c.Purge()
	if c.Size() != 0 {
		t.Fatalf("expected empty cache after purge, got %d", c.Size())
	}
	c.Set("c", 3)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatalf("cache unusable after purge")
	}
}

func TestLRUCacheStats(t *testing.T) {
	c, _ := newTestCache(1, time.Minute)
	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")
	c.Set("b", 2) // evicts a

	got := c.Stats()
	want := Stats{Hits: 1, Misses: 1, Evictions: 1, Size: 1}
	if got != want {
		t.Fatalf("stats = %+v, want %+v", got, want)
	}
}

func TestLRUCacheZeroTTLKeepsEntries(t *testing.T) {
	c, clock := newTestCache(10, 0)
	c.Set("a", 1)
	clock.t = clock.t.Add(24 * time.Hour)
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("zero TTL should not expire entries")
	}
	if n := c.CleanExpired(); n != 0 {
		t.Fatalf("expected nothing cleaned, got %d", n)
	}
}

func TestManagerCleanNow(t *testing.T) {
	c, clock := newTestCache(10, time.Second)
	c.Set("a", 1)
	m := NewManager()
	m.Register(c)
	clock.t = clock.t.Add(time.Minute)
	if n := m.CleanNow(); n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop() // second stop is a no-op
}
