package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window keys outlive their second by one so a counter is never resurrected
// by a slightly skewed clock.
const redisKeyTTLSeconds = 2

// countScript bumps the window counter and pins its TTL on first use, in a
// single round trip.
var countScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return hits
`)

// RedisLimiter shares fixed one-second windows across instances through
// Redis, so a horizontally scaled deployment enforces one combined limit.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter wraps an established Redis client.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: strings.TrimSpace(prefix)}
}

// Allow counts the request in the key's current window. Errors surface to
// the caller; the manager decides whether to fall back.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error) {
	if l == nil || l.client == nil || key == "" || limit <= 0 {
		return Result{Allowed: true}, nil
	}
	windowSec := now.Unix()
	reset := time.Unix(windowSec+1, 0).UTC()

	raw, errRun := countScript.Run(ctx, l.client, []string{l.windowKey(key, windowSec)}, redisKeyTTLSeconds).Result()
	if errRun != nil {
		return Result{}, fmt.Errorf("rate limit redis: count: %w", errRun)
	}
	hits, ok := raw.(int64)
	if !ok {
		return Result{}, fmt.Errorf("rate limit redis: unexpected script reply %T", raw)
	}
	if hits > int64(limit) {
		return Result{Allowed: false, Reset: reset}, nil
	}
	return Result{Allowed: true, Remaining: limit - int(hits), Reset: reset}, nil
}

func (l *RedisLimiter) windowKey(key string, windowSec int64) string {
	suffix := key + ":" + strconv.FormatInt(windowSec, 10)
	if l.prefix == "" {
		return suffix
	}
	return l.prefix + ":" + suffix
}
