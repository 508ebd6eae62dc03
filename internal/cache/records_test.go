package cache

import (
	"fmt"
	"testing"
)

func TestRecordCache_PutGet(t *testing.T) {
	c := NewRecordCache(4)

	c.Put("a", 1)
	v, ok := c.Get("a")
	if !ok || v.(int) != 1 {
		t.Errorf("expected hit with value 1, got %v, %v", v, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Errorf("unexpected hit for missing key")
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats wrong: hits=%d misses=%d", hits, misses)
	}
}

func TestRecordCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewRecordCache(3)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	// Touch "a" so "b" becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a to be cached")
	}
	c.Put("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Errorf("b should have been evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s should still be cached", key)
		}
	}
	if c.Len() != 3 {
		t.Errorf("len: got %d, want 3", c.Len())
	}
}

func TestRecordCache_PutRefreshesExisting(t *testing.T) {
	c := NewRecordCache(2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("a", 10)
	c.Put("c", 3)

	// Re-putting "a" moved it to the front, so "b" was the oldest.
	if v, ok := c.Get("a"); !ok || v.(int) != 10 {
		t.Errorf("a should hold the refreshed value, got %v, %v", v, ok)
	}
	if _, ok := c.Get("b"); ok {
		t.Errorf("b should have been evicted")
	}
}

func TestRecordCache_DefaultCapacity(t *testing.T) {
	c := NewRecordCache(0)
	for i := 0; i < 300; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}
	if c.Len() != 256 {
		t.Errorf("default capacity: got %d, want 256", c.Len())
	}
}
