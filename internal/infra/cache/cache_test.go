package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/lendgrid/export-profiles/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "key1", "value1")
	val, ok := c.Get(ctx, "key1")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != "value1" {
		t.Errorf("expected 'value1', got '%s'", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	_, ok := c.Get(context.Background(), "nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get(ctx, "key1")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_DeleteMany(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "key1", "value1")
	c.Set(ctx, "key2", "value2")
	c.Set(ctx, "key3", "value3")
	c.Delete(ctx, "key1", "key2")

	if _, ok := c.Get(ctx, "key1"); ok {
		t.Fatal("expected key1 to be deleted")
	}
	if _, ok := c.Get(ctx, "key2"); ok {
		t.Fatal("expected key2 to be deleted")
	}
	if _, ok := c.Get(ctx, "key3"); !ok {
		t.Fatal("expected key3 to survive")
	}
}

func TestCache_NonPositiveTTL(t *testing.T) {
	for _, ttl := range []time.Duration{0, -time.Second} {
		c := cache.New[string](ttl)
		ctx := context.Background()

		// Starting the cleanup loop must not panic.
		time.Sleep(20 * time.Millisecond)

		c.Set(ctx, "key1", "value1")
		if _, ok := c.Get(ctx, "key1"); !ok {
			t.Fatalf("ttl %s: expected key to exist", ttl)
		}
		c.Close()
	}
}
