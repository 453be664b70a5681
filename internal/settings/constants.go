package settings

// DB config keys and defaults for settings.
const (
	// PanelBaseURLKey is the DB config key for the panel API base URL.
	PanelBaseURLKey = "PANEL_BASE_URL"
	// PanelAPIKeyKey is the DB config key for the panel API key.
	PanelAPIKeyKey = "PANEL_API_KEY"
	// StreamBaseURLKey is the DB config key for the playlist stream base URL.
	// When unset the panel URL's origin is used.
	StreamBaseURLKey = "STREAM_BASE_URL"
	// JobMaxAttemptsKey controls the default attempt budget for new jobs.
	JobMaxAttemptsKey = "JOB_MAX_ATTEMPTS"
	// DefaultJobMaxAttempts is the fallback attempt budget.
	DefaultJobMaxAttempts = 10

	// RateLimitKey is the per-client request limit per second; 0 disables.
	RateLimitKey = "RATE_LIMIT"
	// RateLimitRedisEnabledKey toggles the Redis rate limit backend.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey is the Redis address for rate limiting.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey is the Redis password for rate limiting.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey is the Redis database index for rate limiting.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey is the Redis key prefix for rate limiting.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "streamvault:rl"
)
