package cache

import (
	"testing"
	"time"
)

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b was least recently used and should be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCache_ExpiryAndClean(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }
	c.Set("x", "1")
	c.Set("y", "2")
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("x"); ok {
		t.Error("x should have expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCache_PurgeAndDelete(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	for i, k := range []string{"a", "b", "c"} {
		c.Set(k, i)
	}
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be deleted")
	}
	c.Purge()
	if c.Size() != 0 {
		t.Errorf("Size() after Purge = %d", c.Size())
	}
	c.Set("d", 4)
	if v, ok := c.Get("d"); !ok || v != 4 {
		t.Errorf("cache unusable after Purge: %d, %v", v, ok)
	}
}

func TestManager_CleanNowAndStop(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)
	c.Set("a", 1)
	m := NewManager(nil)
	m.Register(c)
	time.Sleep(20 * time.Millisecond)

	if n := m.CleanNow(); n != 1 {
		t.Errorf("CleanNow() = %d, want 1", n)
	}

	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()

	idle := NewManager(nil)
	idle.Stop()
}
