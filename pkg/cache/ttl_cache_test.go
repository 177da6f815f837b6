package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache(4, 50*time.Millisecond)

	c.Set("measurements", []string{"devicemotion"})
	if got, ok := c.Get("measurements"); !ok || len(got) != 1 || got[0] != "devicemotion" {
		t.Fatalf("expected cached value, got %v %v", got, ok)
	}

	time.Sleep(150 * time.Millisecond)
	if _, ok := c.Get("measurements"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestTTLCacheIsBounded(t *testing.T) {
	c := NewTTLCache(3, time.Minute)
	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("SHOW TAG VALUES FROM \"m%d\"", i), []string{"STILL"})
	}

	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}
	if _, ok := c.Get(`SHOW TAG VALUES FROM "m0"`); ok {
		t.Fatalf("expected the oldest entry to be evicted")
	}
	if _, ok := c.Get(`SHOW TAG VALUES FROM "m99"`); !ok {
		t.Fatalf("expected the newest entry to be kept")
	}
}

func TestTTLCacheDefaultSize(t *testing.T) {
	c := NewTTLCache(0, 0)
	for i := 0; i < DefaultTTLCacheSize+10; i++ {
		c.Set(fmt.Sprint(i), nil)
	}
	if c.Len() != DefaultTTLCacheSize {
		t.Fatalf("expected %d entries, got %d", DefaultTTLCacheSize, c.Len())
	}
}

func TestTTLCacheReturnsCopies(t *testing.T) {
	c := NewTTLCache(4, 0)
	src := []string{"STILL"}
	c.Set("labels", src)
	src[0] = "WALKING"

	got, ok := c.Get("labels")
	if !ok || got[0] != "STILL" {
		t.Fatalf("cache must not alias caller slices, got %v", got)
	}
	got[0] = "RUNNING"
	again, _ := c.Get("labels")
	if again[0] != "STILL" {
		t.Fatalf("cache must not alias returned slices, got %v", again)
	}
}
