package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memorySweepThreshold bounds how many per-client buckets accumulate before
// stale ones from past windows are dropped. The API sees arbitrary client
// IPs, so the map cannot be allowed to grow unchecked.
const memorySweepThreshold = 4096

type bucket struct {
	windowSec int64
	hits      int
}

// MemoryLimiter counts requests per key in one-second fixed windows. It is
// the default backend and the fallback whenever Redis is unreachable.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewMemoryLimiter constructs an empty in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*bucket)}
}

// Allow records one request against the key's current window and reports
// whether it fits under the limit. Empty keys and non-positive limits are
// exempt.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if key == "" || limit <= 0 {
		return Result{Allowed: true}, nil
	}
	windowSec := now.Unix()
	reset := time.Unix(windowSec+1, 0).UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || b.windowSec != windowSec {
		if len(l.buckets) >= memorySweepThreshold {
			l.sweep(windowSec)
		}
		b = &bucket{windowSec: windowSec}
		l.buckets[key] = b
	}
	if b.hits >= limit {
		return Result{Allowed: false, Reset: reset}, nil
	}
	b.hits++
	return Result{Allowed: true, Remaining: limit - b.hits, Reset: reset}, nil
}

// sweep drops buckets from past windows. Callers hold the mutex.
func (l *MemoryLimiter) sweep(currentSec int64) {
	for key, b := range l.buckets {
		if b.windowSec != currentSec {
			delete(l.buckets, key)
		}
	}
}
