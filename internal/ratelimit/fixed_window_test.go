package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, limit int, opts ...Option) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	opts = append([]Option{WithPrefix("test:ratelimit")}, opts...)
	limiter, err := NewFixedWindowLimiter(client, limit, time.Minute, opts...)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return limiter, mr
}

func TestFixedWindowLimiterBlocksOverQuota(t *testing.T) {
	limiter, _ := newLimiter(t, 2)
	ctx := context.Background()
	if !limiter.Allow(ctx, "ip-1").Allowed {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow(ctx, "ip-1").Allowed {
		t.Fatalf("second request should pass")
	}
	d := limiter.Allow(ctx, "ip-1")
	if d.Allowed {
		t.Fatalf("third request should be blocked")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry after: %v", d.RetryAfter)
	}
	if !limiter.Allow(ctx, "ip-2").Allowed {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterNewWindowResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter, _ := newLimiter(t, 1, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	if !limiter.Allow(ctx, "ip-1").Allowed {
		t.Fatalf("first request should pass")
	}
	if limiter.Allow(ctx, "ip-1").Allowed {
		t.Fatalf("second request in same window should be blocked")
	}
	now = now.Add(time.Minute)
	if !limiter.Allow(ctx, "ip-1").Allowed {
		t.Fatalf("request in next window should pass")
	}
}

func TestFixedWindowLimiterRedisFailure(t *testing.T) {
	closed, mr := newLimiter(t, 1)
	mr.Close()
	if d := closed.Allow(context.Background(), "ip-1"); d.Allowed || d.Err == nil {
		t.Fatalf("limiter should fail closed on redis errors: %+v", d)
	}

	open, mr2 := newLimiter(t, 1, WithFailOpen(true))
	mr2.Close()
	if d := open.Allow(context.Background(), "ip-1"); !d.Allowed || d.Err == nil {
		t.Fatalf("fail-open limiter should admit and report the error: %+v", d)
	}
}

func TestFixedWindowLimiterRequiresClient(t *testing.T) {
	limiter, err := NewFixedWindowLimiter(nil, 1, time.Second)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for nil client")
	}
}
