package config

// Environment variable names for configuration.
const (
	EnvHost     = "DISTROCACHE_HOST"
	EnvPort     = "DISTROCACHE_PORT"
	EnvCacheDir = "DISTROCACHE_CACHEDIR"
	EnvDebug    = "DISTROCACHE_DEBUG"

	// Cache configuration environment variables.
	EnvCacheMaxSize         = "DISTROCACHE_CACHE_MAX_SIZE"
	EnvCacheTTL             = "DISTROCACHE_CACHE_TTL"
	EnvCacheCleanupInterval = "DISTROCACHE_CACHE_CLEANUP_INTERVAL"

	// TLS configuration environment variables.
	EnvTLSEnabled  = "DISTROCACHE_TLS_ENABLED"
	EnvTLSCertFile = "DISTROCACHE_TLS_CERT"
	EnvTLSKeyFile  = "DISTROCACHE_TLS_KEY"

	// Security configuration environment variables.
	EnvAPIKey        = "DISTROCACHE_API_KEY"
	EnvEnableAPIAuth = "DISTROCACHE_ENABLE_API_AUTH"
	EnvRateLimit     = "DISTROCACHE_RATE_LIMIT_PER_MINUTE"

	// Configuration file environment variable.
	EnvConfigFile = "DISTROCACHE_CONFIG_FILE"

	// Cache freshness / retention environment variables.
	EnvCacheDays             = "DISTROCACHE_CACHE_DAYS"
	EnvCacheRetentionEnabled = "DISTROCACHE_CACHE_RETENTION_ENABLED"

	// Passthrough / admin token environment variables.
	EnvPassthroughMode = "DISTROCACHE_PASSTHROUGH_MODE"
	EnvAdminToken      = "DISTROCACHE_ADMIN_TOKEN"
	EnvDatabasePath    = "DISTROCACHE_DATABASE_PATH"
)

// Default configuration values.
const (
	DefaultHost     = "0.0.0.0"
	DefaultPort     = "3142"
	DefaultCacheDir = "./.distrocache"

	// Default cache configuration values (as ints, for flag parsing).
	DefaultCacheMaxSizeGB          = 10  // 10 GB
	DefaultCacheTTLHours           = 168 // 7 days
	DefaultCacheCleanupIntervalMin = 60  // 1 hour

	// Default rate limit applied to the admin API, requests per client IP per minute.
	DefaultRateLimitPerMinute = 120

	// Default configuration file name (searched in common locations).
	DefaultConfigFileName = "distrocache.yaml"

	// DefaultCacheDays is the default cache freshness window, in days.
	DefaultCacheDays = 30

	// DefaultRetentionEnabled is the default for age-based cache eviction.
	DefaultRetentionEnabled = true

	// DefaultPassthroughMode is the default for direct (uncached) proxying.
	DefaultPassthroughMode = true

	// DefaultDatabaseFileName names the persistent store document, written
	// under the resolved storage root unless database_path overrides it.
	DefaultDatabaseFileName = "distrocache.db.json"
)

// Environment variable names for logging configuration.
const (
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"
)
