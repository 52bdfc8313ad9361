package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "funnel:ratelimit"

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
	// Err is set when Redis could not be consulted.
	Err error
}

// FixedWindowLimiter counts requests per key in fixed windows stored in Redis,
// so several funnel instances share one quota.
type FixedWindowLimiter struct {
	limit    int
	window   time.Duration
	failOpen bool
	prefix   string
	client   redis.Cmdable
	now      func() time.Time
}

// Option tunes a limiter.
type Option func(*FixedWindowLimiter)

// WithPrefix overrides the Redis key prefix.
func WithPrefix(prefix string) Option {
	return func(l *FixedWindowLimiter) {
		if p := strings.TrimSpace(prefix); p != "" {
			l.prefix = p
		}
	}
}

// WithFailOpen admits requests when Redis is unreachable. The default is fail closed.
func WithFailOpen(open bool) Option {
	return func(l *FixedWindowLimiter) { l.failOpen = open }
}

// WithClock replaces time.Now for window slot computation.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindowLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// NewFixedWindowLimiter builds a limiter over an existing Redis client.
func NewFixedWindowLimiter(client redis.Cmdable, limit int, window time.Duration, opts ...Option) (*FixedWindowLimiter, error) {
	if client == nil {
		return nil, errors.New("rate limiter requires a redis client")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	l := &FixedWindowLimiter{
		limit:  limit,
		window: window,
		prefix: defaultPrefix,
		client: client,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow consumes one unit of quota for key.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) Decision {
	if l == nil {
		return Decision{Allowed: true}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	nowMs := l.now().UTC().UnixMilli()
	slot := nowMs / windowMs
	retryAfter := time.Duration((slot+1)*windowMs-nowMs) * time.Millisecond

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)
	count, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return Decision{Allowed: l.failOpen, Limit: l.limit, Err: err}
	}
	d := Decision{Allowed: count <= int64(l.limit), Count: count, Limit: l.limit}
	if !d.Allowed {
		d.RetryAfter = retryAfter
	}
	return d
}
