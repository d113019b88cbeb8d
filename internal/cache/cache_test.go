package cache

import (
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCache_ExpiresAfterTTL(t *testing.T) {
	clk := &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := New[[]string](0).WithClock(clk.now)

	c.Set("crypto", []string{"BTCUSDT"})
	if v, ok := c.Get("crypto"); !ok || v[0] != "BTCUSDT" {
		t.Fatalf("expected fresh hit, got %v ok=%v", v, ok)
	}

	clk.advance(DefaultTTL - time.Second)
	if _, ok := c.Get("crypto"); !ok {
		t.Fatal("entry should still be live just before the TTL")
	}

	clk.advance(time.Second)
	if _, ok := c.Get("crypto"); ok {
		t.Fatal("entry should be expired at the TTL")
	}
	if c.Len() != 1 {
		t.Errorf("expired entry stays stored until Purge, Len=%d", c.Len())
	}
	if n := c.Purge(); n != 1 || c.Len() != 0 {
		t.Errorf("Purge dropped %d, Len=%d", n, c.Len())
	}

	hits, misses := c.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("stats hits=%d misses=%d, want 2/1", hits, misses)
	}
}

func TestCache_SetWithTTLAndEvict(t *testing.T) {
	clk := &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := New[int](time.Minute).WithClock(clk.now)

	c.SetWithTTL("short", 1, time.Second)
	c.Set("long", 2)
	clk.advance(2 * time.Second)

	if keys := c.Keys(); len(keys) != 1 || keys[0] != "long" {
		t.Fatalf("Keys() = %v, want [long]", keys)
	}
	if !c.Evict("long") {
		t.Fatal("Evict should report the key was present")
	}
	if c.Evict("long") {
		t.Fatal("second Evict should report absent")
	}
	if _, ok := c.Get("long"); ok {
		t.Fatal("evicted key returned a value")
	}
	if n := c.Clear(); n != 1 {
		t.Errorf("Clear removed %d, want 1 (the expired short entry)", n)
	}
}
