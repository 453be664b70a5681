package ratelimit

import (
	"context"
	"strconv"
	"strings"

	internalsettings "github.com/streamvault/streamvault/internal/settings"
	"gorm.io/gorm"
)

// SettingsConfig captures rate limit settings stored in the settings table.
type SettingsConfig struct {
	Limit         int
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// NewDBSettingsProvider returns a provider reading the latest rate limit
// settings from the database on every call, so changes take effect without
// a restart.
func NewDBSettingsProvider(conn *gorm.DB) SettingsProvider {
	return func() SettingsConfig {
		return LoadSettingsConfig(context.Background(), conn)
	}
}

// LoadSettingsConfig loads the current rate limit settings snapshot.
func LoadSettingsConfig(ctx context.Context, conn *gorm.DB) SettingsConfig {
	cfg := SettingsConfig{
		RedisPrefix: internalsettings.DefaultRateLimitRedisPrefix,
	}
	if conn == nil {
		return cfg
	}

	cfg.Limit = internalsettings.GetInt(ctx, conn, internalsettings.RateLimitKey, 0)
	if cfg.Limit < 0 {
		cfg.Limit = 0
	}

	if raw, errGet := internalsettings.Get(ctx, conn, internalsettings.RateLimitRedisEnabledKey); errGet == nil {
		cfg.RedisEnabled = parseBool(raw)
	}
	if addr, errGet := internalsettings.Get(ctx, conn, internalsettings.RateLimitRedisAddrKey); errGet == nil {
		cfg.RedisAddr = strings.TrimSpace(addr)
	}
	if password, errGet := internalsettings.Get(ctx, conn, internalsettings.RateLimitRedisPasswordKey); errGet == nil {
		cfg.RedisPassword = strings.TrimSpace(password)
	}
	cfg.RedisDB = internalsettings.GetInt(ctx, conn, internalsettings.RateLimitRedisDBKey, 0)
	if cfg.RedisDB < 0 {
		cfg.RedisDB = 0
	}
	if prefix, errGet := internalsettings.Get(ctx, conn, internalsettings.RateLimitRedisPrefixKey); errGet == nil {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			cfg.RedisPrefix = trimmed
		}
	}
	return cfg
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	if parsed, errParse := strconv.ParseBool(strings.TrimSpace(raw)); errParse == nil {
		return parsed
	}
	return false
}
