package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// After a Redis failure the manager serves from memory for this long before
// probing Redis again.
const redisRetryAfter = 30 * time.Second

// SettingsProvider supplies the latest rate limit settings snapshot.
type SettingsProvider func() SettingsConfig

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// redisTarget identifies the Redis endpoint the current limiter talks to.
// A settings change to any field forces a reconnect.
type redisTarget struct {
	addr     string
	password string
	prefix   string
	db       int
}

// Manager picks a limiter backend per check: the shared Redis window when
// configured and reachable, the in-process one otherwise. Backend trouble
// degrades enforcement scope, never request availability.
type Manager struct {
	provider SettingsProvider
	nowFn    func() time.Time
	memory   Limiter
	dial     RedisClientFactory

	mu        sync.Mutex
	redis     *RedisLimiter
	target    redisTarget
	downUntil time.Time
}

// NewManager constructs a Manager, substituting defaults for nil
// dependencies.
func NewManager(provider SettingsProvider, nowFn func() time.Time, dial RedisClientFactory) *Manager {
	if provider == nil {
		provider = func() SettingsConfig { return SettingsConfig{} }
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if dial == nil {
		dial = redis.NewClient
	}
	return &Manager{
		provider: provider,
		nowFn:    nowFn,
		memory:   NewMemoryLimiter(),
		dial:     dial,
	}
}

// Allow checks one request against the limit using the best available
// backend.
func (m *Manager) Allow(ctx context.Context, key string, limit int) (Result, error) {
	if m == nil || key == "" || limit <= 0 {
		return Result{Allowed: true}, nil
	}
	now := m.nowFn()
	cfg := m.provider()

	if cfg.RedisEnabled {
		if result, served := m.redisAllow(ctx, key, limit, now, cfg); served {
			return result, nil
		}
	}
	return m.memory.Allow(ctx, key, limit, now)
}

// redisAllow runs the check on Redis. A false second return means Redis did
// not serve the check and the caller should use memory.
func (m *Manager) redisAllow(ctx context.Context, key string, limit int, now time.Time, cfg SettingsConfig) (Result, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.redisDown(now) {
		return Result{}, false
	}
	limiter, errConnect := m.redisLimiter(ctx, cfg)
	if errConnect != nil {
		m.markRedisDown(errConnect, now)
		return Result{}, false
	}
	result, errAllow := limiter.Allow(ctx, key, limit, now)
	if errAllow != nil {
		m.markRedisDown(errAllow, now)
		return Result{}, false
	}
	return result, true
}

func (m *Manager) redisDown(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Before(m.downUntil) {
		return true
	}
	m.downUntil = time.Time{}
	return false
}

func (m *Manager) markRedisDown(err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Before(m.downUntil) {
		return
	}
	m.downUntil = now.Add(redisRetryAfter)
	log.WithError(err).Warn("rate limit: redis unavailable, serving from memory")
}

// redisLimiter returns a limiter connected to the configured endpoint,
// reconnecting when the settings moved it.
func (m *Manager) redisLimiter(ctx context.Context, cfg SettingsConfig) (*RedisLimiter, error) {
	target := redisTarget{
		addr:     strings.TrimSpace(cfg.RedisAddr),
		password: strings.TrimSpace(cfg.RedisPassword),
		prefix:   strings.TrimSpace(cfg.RedisPrefix),
		db:       cfg.RedisDB,
	}
	if target.addr == "" {
		return nil, errors.New("rate limit redis: missing address")
	}
	if target.db < 0 {
		target.db = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redis != nil && m.target == target {
		return m.redis, nil
	}
	if m.redis != nil {
		_ = m.redis.client.Close()
		m.redis = nil
	}

	client := m.dial(&redis.Options{
		Addr:     target.addr,
		Password: target.password,
		DB:       target.db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redis = NewRedisLimiter(client, target.prefix)
	m.target = target
	return m.redis, nil
}
