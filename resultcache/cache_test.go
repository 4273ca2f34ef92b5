package resultcache_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/veilgeo/veilgeo/resultcache"
)

func TestRoundTrip(t *testing.T) {
	c := resultcache.New[string](10, time.Minute)

	c.Set("fp", "result")
	got, ok := c.Get("fp")
	if !ok || got != "result" {
		t.Fatalf("expected cached result, got %q ok=%v", got, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss for unknown fingerprint")
	}
}

func TestTTLExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	c := resultcache.New[string](10, time.Minute, resultcache.WithClock[string](clock))

	c.Set("fp", "result")
	if _, ok := c.Get("fp"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(time.Minute + time.Second)
	if _, ok := c.Get("fp"); ok {
		t.Fatal("expected miss after TTL elapsed")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry removed, len %d", c.Len())
	}
}

func TestEvictionOldestFirst(t *testing.T) {
	const capacity = 5
	c := resultcache.New[int](capacity, time.Minute)

	for i := 0; i <= capacity; i++ {
		c.Set(fmt.Sprintf("fp-%d", i), i)
	}

	if _, ok := c.Get("fp-0"); ok {
		t.Fatal("expected first-inserted entry evicted")
	}
	for i := 1; i <= capacity; i++ {
		if _, ok := c.Get(fmt.Sprintf("fp-%d", i)); !ok {
			t.Fatalf("expected fp-%d retrievable", i)
		}
	}
	if c.Len() != capacity {
		t.Fatalf("expected len %d, got %d", capacity, c.Len())
	}
}

func TestOverwriteMovesToBack(t *testing.T) {
	c := resultcache.New[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3) // refresh, a is now newest
	c.Set("c", 4) // evicts b

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b evicted")
	}
	if got, ok := c.Get("a"); !ok || got != 3 {
		t.Fatalf("expected refreshed a=3, got %d ok=%v", got, ok)
	}
}

func TestClear(t *testing.T) {
	c := resultcache.New[int](10, time.Minute)
	c.Set("a", 1)
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, len %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss after clear")
	}
}
