package querycache

import (
	"testing"
	"time"
)

func TestCache_SetGet_RoundTrips(t *testing.T) {
	c := New(time.Minute, 10, 2)
	key := Key("What is Go?", 4, "sig1")
	c.Set(key, "answer")
	v, ok := c.Get(key)
	if !ok || v != "answer" {
		t.Fatalf("expected cached value, got %v ok=%v", v, ok)
	}
}

func TestCache_Get_MissingKey(t *testing.T) {
	c := New(time.Minute, 10, 2)
	_, ok := c.Get(Key("nope", 4, "sig1"))
	if ok {
		t.Fatal("expected miss for unset key")
	}
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := New(10*time.Millisecond, 10, 2)
	key := Key("q", 4, "sig")
	c.Set(key, "v")
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get(key)
	if ok {
		t.Fatal("expected entry to expire")
	}
}

func TestCache_EvictsOldestBatchOnOverflow(t *testing.T) {
	c := New(time.Minute, 4, 2)
	for i := 0; i < 4; i++ {
		c.Set(Key("q", i, "sig"), i)
	}
	if c.Len() != 4 {
		t.Fatalf("expected 4 entries, got %d", c.Len())
	}
	// Insert one more: should evict the 2 oldest (q0, q1) before inserting.
	c.Set(Key("q", 4, "sig"), 4)
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries after eviction, got %d", c.Len())
	}
	if _, ok := c.Get(Key("q", 0, "sig")); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
	if _, ok := c.Get(Key("q", 4, "sig")); !ok {
		t.Fatal("expected newest entry to survive")
	}
}

func TestCache_SetExistingKeyRefreshesRecency(t *testing.T) {
	c := New(time.Minute, 2, 1)
	k1, k2 := Key("a", 1, "s"), Key("b", 1, "s")
	c.Set(k1, "1")
	c.Set(k2, "2")
	c.Set(k1, "1-updated") // touches k1, making k2 the oldest
	c.Set(Key("c", 1, "s"), "3")
	if _, ok := c.Get(k2); ok {
		t.Fatal("expected k2 to be evicted as least recently used")
	}
	v, ok := c.Get(k1)
	if !ok || v != "1-updated" {
		t.Fatalf("expected k1 to survive with updated value, got %v ok=%v", v, ok)
	}
}

func TestKey_NormalizesWhitespaceAndCase(t *testing.T) {
	a := Key("  What  IS Go?  ", 4, "sig")
	b := Key("what is go?", 4, "sig")
	if a != b {
		t.Fatalf("expected normalized keys to match: %q vs %q", a, b)
	}
}
