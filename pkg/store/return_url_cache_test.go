package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisReturnURLCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisReturnURLCache(client, "test:return_url", time.Hour)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "a@x.com"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	const url = "https://pillarwebdesigns.com/return/u1?email=a%40x.com"
	if err := c.Put(ctx, "A@x.com ", url); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := c.Get(ctx, "a@x.com")
	if err != nil || !ok || got != url {
		t.Fatalf("get = %q ok=%v err=%v", got, ok, err)
	}
	if ttl := mr.TTL("test:return_url:a@x.com"); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, _ := c.Get(ctx, "a@x.com"); ok {
		t.Fatalf("entry should expire")
	}

	_ = c.Put(ctx, "a@x.com", url)
	if err := c.Delete(ctx, "a@x.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "a@x.com"); ok {
		t.Fatalf("entry should be cleared")
	}
}

func TestRedisReturnURLCacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisReturnURLCache(client, "", 0)
	mr.Close()
	if err := c.Put(context.Background(), "a@x.com", "u"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

func TestMemoryReturnURLCache(t *testing.T) {
	c := NewMemoryReturnURLCache()
	ctx := context.Background()
	_ = c.Put(ctx, "A@x.com", "u1")
	if got, ok, _ := c.Get(ctx, "a@x.com"); !ok || got != "u1" {
		t.Fatalf("get = %q ok=%v", got, ok)
	}
	_ = c.Delete(ctx, "a@x.com")
	if _, ok, _ := c.Get(ctx, "a@x.com"); ok {
		t.Fatalf("entry should be cleared")
	}
}
