package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v2"

	"github.com/distrocache/distrocache/internal/mirrors"
	"github.com/soulteary/cli-kit/configutil"
)

// ParseFlagsWithConfigFile parses command-line flags and optionally loads
// configuration from a YAML file. Priority: CLI > ENV > Config File > Default.
func ParseFlagsWithConfigFile() (*Config, error) {
	flags := flag.NewFlagSet("distrocache", flag.ContinueOnError)

	flags.String("host", DefaultHost, "the host to bind to")
	flags.String("port", DefaultPort, "the port to bind to")
	flags.Bool("debug", false, "whether to output debugging logging")
	flags.String("cachedir", DefaultCacheDir, "the dir to store cached packages and proxy state in")

	flags.Int64("cache-max-size", 0, "maximum cache size in GB (0 to use the default)")
	flags.Int("cache-ttl", 0, "cache retention period in hours (0 to use the default)")
	flags.Int("cache-cleanup-interval", 0, "cache cleanup sweep interval in minutes (0 to use the default)")

	flags.Bool("tls", false, "enable TLS/HTTPS")
	flags.String("tls-cert", "", "path to TLS certificate file")
	flags.String("tls-key", "", "path to TLS private key file")

	flags.String("config", "", "path to YAML configuration file")

	flags.String("api-key", "", "API key required for the admin API")
	flags.Int("rate-limit", 0, "admin API rate limit per client IP per minute (0 to use the default)")

	flags.Int("cache-days", 0, "cache freshness window in days (0 to use the default)")
	flags.Bool("cache-retention", true, "enable age-based cache eviction and freshness checks")
	flags.Bool("passthrough", true, "allow direct (uncached) proxying of absolute-form URLs to unmanaged hosts")
	flags.String("admin-token", "", "shared secret required on the admin API (empty disables auth)")
	flags.String("log-level", "", "structured logger level (debug, info, warn, error)")
	flags.String("database-path", "", "path to the persistent store document (default: under storage root)")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	var fileConfig *Config
	configPath := configutil.ResolveString(flags, "config", EnvConfigFile, "", true)
	if configPath == "" {
		configPath = FindConfigFile()
	}
	if configPath != "" {
		var err error
		fileConfig, err = LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	cliConfig := buildCLIConfig(flags)

	config := MergeConfigs(fileConfig, cliConfig)
	config = applyDefaults(config)

	if err := ResolveStoragePath(config); err != nil {
		return nil, err
	}

	if configPath == "" {
		configPath = filepath.Join(config.StoragePathResolved, DefaultConfigFileName)
	}
	config.ConfigFilePath = configPath

	return config, nil
}

// ResolveStoragePath computes storage_path_resolved as an absolute path and
// creates the directory. It also fills DatabasePath when the operator left
// it unset, and fills the LogLevel default, which doesn't depend on
// CLI/ENV/file precedence.
func ResolveStoragePath(config *Config) error {
	abs, err := filepath.Abs(config.CacheDir)
	if err != nil {
		return fmt.Errorf("resolving storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("creating storage directory %s: %w", abs, err)
	}
	config.StoragePathResolved = abs

	if config.DatabasePath == "" {
		config.DatabasePath = filepath.Join(abs, DefaultDatabaseFileName)
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	return nil
}

// buildCLIConfig builds a Config from CLI flags and environment variables,
// priority CLI > ENV, zero/empty values left unset so MergeConfigs can fall
// back to the file config.
func buildCLIConfig(flags *flag.FlagSet) *Config {
	host := configutil.ResolveString(flags, "host", EnvHost, "", true)
	port := configutil.ResolveString(flags, "port", EnvPort, "", true)
	debug := configutil.ResolveBool(flags, "debug", EnvDebug, false)
	cacheDir := configutil.ResolveString(flags, "cachedir", EnvCacheDir, "", true)

	cacheMaxSizeGB := configutil.ResolveInt64(flags, "cache-max-size", EnvCacheMaxSize, 0, true)
	cacheTTLHours := configutil.ResolveInt(flags, "cache-ttl", EnvCacheTTL, 0, true)
	cacheCleanupIntervalMin := configutil.ResolveInt(flags, "cache-cleanup-interval", EnvCacheCleanupInterval, 0, true)

	tlsEnabled := configutil.ResolveBool(flags, "tls", EnvTLSEnabled, false)
	tlsCertFile := configutil.ResolveString(flags, "tls-cert", EnvTLSCertFile, "", true)
	tlsKeyFile := configutil.ResolveString(flags, "tls-key", EnvTLSKeyFile, "", true)

	apiKey := configutil.ResolveString(flags, "api-key", EnvAPIKey, "", true)
	enableAPIAuth := configutil.ResolveBool(flags, "tls", EnvEnableAPIAuth, false)
	if apiKey != "" {
		enableAPIAuth = true
	}
	rateLimit := configutil.ResolveInt(flags, "rate-limit", EnvRateLimit, 0, true)

	cacheDays := configutil.ResolveInt(flags, "cache-days", EnvCacheDays, 0, true)
	retentionEnabled := configutil.ResolveBool(flags, "cache-retention", EnvCacheRetentionEnabled, DefaultRetentionEnabled)
	passthroughMode := configutil.ResolveBool(flags, "passthrough", EnvPassthroughMode, DefaultPassthroughMode)
	adminToken := configutil.ResolveString(flags, "admin-token", EnvAdminToken, "", true)
	logLevel := configutil.ResolveString(flags, "log-level", EnvLogLevel, "", true)
	databasePath := configutil.ResolveString(flags, "database-path", EnvDatabasePath, "", true)

	config := &Config{
		Debug:           debug,
		CacheDir:        cacheDir,
		PassthroughMode: passthroughMode,
		AdminToken:      adminToken,
		LogLevel:        logLevel,
		DatabasePath:    databasePath,
		Cache: CacheConfig{
			MaxSizeGB:          cacheMaxSizeGB,
			TTLHours:           cacheTTLHours,
			CleanupIntervalMin: cacheCleanupIntervalMin,
			Days:               cacheDays,
			RetentionEnabled:   retentionEnabled,
		},
		TLS: TLSConfig{
			Enabled:  tlsEnabled,
			CertFile: tlsCertFile,
			KeyFile:  tlsKeyFile,
		},
		Security: SecurityConfig{
			APIKey:             apiKey,
			EnableAPIAuth:      enableAPIAuth,
			RateLimitPerMinute: rateLimit,
		},
	}

	if host != "" || port != "" {
		if host == "" {
			host = DefaultHost
		}
		if port == "" {
			port = DefaultPort
		}
		listenAddr, err := mirrors.BuildListenAddress(host, port)
		if err != nil {
			config.Listen = fmt.Sprintf("%s:%s", host, port)
		} else {
			config.Listen = listenAddr
		}
	}

	return config
}

// applyDefaults fills in any fields still at their zero value after merging
// CLI/ENV and file configuration.
func applyDefaults(config *Config) *Config {
	if config == nil {
		config = &Config{}
	}

	if config.CacheDir == "" {
		config.CacheDir = DefaultCacheDir
	}

	if config.Listen == "" {
		listenAddr, err := mirrors.BuildListenAddress(DefaultHost, DefaultPort)
		if err != nil {
			config.Listen = fmt.Sprintf("%s:%s", DefaultHost, DefaultPort)
		} else {
			config.Listen = listenAddr
		}
	}

	if config.Cache.MaxSizeGB == 0 {
		config.Cache.MaxSizeGB = DefaultCacheMaxSizeGB
	}
	if config.Cache.TTLHours == 0 {
		config.Cache.TTLHours = DefaultCacheTTLHours
	}
	if config.Cache.CleanupIntervalMin == 0 {
		config.Cache.CleanupIntervalMin = DefaultCacheCleanupIntervalMin
	}
	config.Cache.MaxSize = config.Cache.MaxSizeGB * 1024 * 1024 * 1024
	config.Cache.TTL = time.Duration(config.Cache.TTLHours) * time.Hour
	config.Cache.CleanupInterval = time.Duration(config.Cache.CleanupIntervalMin) * time.Minute

	if config.Cache.Days == 0 {
		config.Cache.Days = DefaultCacheDays
	}

	if config.Security.RateLimitPerMinute == 0 {
		config.Security.RateLimitPerMinute = DefaultRateLimitPerMinute
	}

	config.Host, config.Port = splitListen(config.Listen)

	return config
}

// splitListen extracts host/port back out of a resolved listen address, so
// individual config keys can be read and round-tripped independently (the
// admin set-key contract operates key-by-key, not on the whole struct).
func splitListen(listen string) (host, port string) {
	idx := strings.LastIndex(listen, ":")
	if idx < 0 {
		return listen, ""
	}
	return listen[:idx], listen[idx+1:]
}

// YAMLConfig is the on-disk, human-editable configuration file shape.
type YAMLConfig struct {
	Server struct {
		Host  string `yaml:"host"`
		Port  string `yaml:"port"`
		Debug bool   `yaml:"debug"`
	} `yaml:"server"`

	Cache struct {
		Dir                string `yaml:"dir"`
		MaxSizeGB          int64  `yaml:"max_size_gb"`
		TTLHours           int    `yaml:"ttl_hours"`
		CleanupIntervalMin int    `yaml:"cleanup_interval_min"`
	} `yaml:"cache"`

	TLS struct {
		Enabled  bool   `yaml:"enabled"`
		CertFile string `yaml:"cert_file"`
		KeyFile  string `yaml:"key_file"`
	} `yaml:"tls"`

	Security struct {
		APIKey             string `yaml:"api_key"`
		EnableAPIAuth      bool   `yaml:"enable_api_auth"`
		RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	} `yaml:"security"`

	Proxy struct {
		CacheDays        int    `yaml:"cache_days"`
		RetentionEnabled bool   `yaml:"cache_retention_enabled"`
		PassthroughMode  bool   `yaml:"passthrough_mode"`
		AdminToken       string `yaml:"admin_token"`
		LogLevel         string `yaml:"log_level"`
		DatabasePath     string `yaml:"database_path"`
	} `yaml:"proxy"`
}

// LoadConfigFile loads configuration from a YAML file. It returns nil if the
// file does not exist.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := os.ExpandEnv(string(data))

	var yamlCfg YAMLConfig
	if err := yaml.Unmarshal([]byte(expandedData), &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return yamlConfigToConfig(&yamlCfg), nil
}

func yamlConfigToConfig(yamlCfg *YAMLConfig) *Config {
	cfg := &Config{
		Debug:    yamlCfg.Server.Debug,
		CacheDir: yamlCfg.Cache.Dir,
		Cache: CacheConfig{
			MaxSizeGB:          yamlCfg.Cache.MaxSizeGB,
			TTLHours:           yamlCfg.Cache.TTLHours,
			CleanupIntervalMin: yamlCfg.Cache.CleanupIntervalMin,
		},
		TLS: TLSConfig{
			Enabled:  yamlCfg.TLS.Enabled,
			CertFile: yamlCfg.TLS.CertFile,
			KeyFile:  yamlCfg.TLS.KeyFile,
		},
		Security: SecurityConfig{
			APIKey:             yamlCfg.Security.APIKey,
			EnableAPIAuth:      yamlCfg.Security.EnableAPIAuth,
			RateLimitPerMinute: yamlCfg.Security.RateLimitPerMinute,
		},
		PassthroughMode: yamlCfg.Proxy.PassthroughMode,
		AdminToken:      yamlCfg.Proxy.AdminToken,
		LogLevel:        yamlCfg.Proxy.LogLevel,
		DatabasePath:    yamlCfg.Proxy.DatabasePath,
	}
	cfg.Cache.Days = yamlCfg.Proxy.CacheDays
	cfg.Cache.RetentionEnabled = yamlCfg.Proxy.RetentionEnabled

	host := yamlCfg.Server.Host
	port := yamlCfg.Server.Port
	if host != "" || port != "" {
		if host == "" {
			host = DefaultHost
		}
		if port == "" {
			port = DefaultPort
		}
		cfg.Listen = fmt.Sprintf("%s:%s", host, port)
	}

	return cfg
}

// WriteConfigFile serializes config to path in the same YAML shape
// LoadConfigFile reads, creating parent directories as needed.
func WriteConfigFile(path string, config *Config) error {
	var yamlCfg YAMLConfig
	yamlCfg.Server.Host = config.Host
	yamlCfg.Server.Port = config.Port
	yamlCfg.Server.Debug = config.Debug

	yamlCfg.Cache.Dir = config.CacheDir
	yamlCfg.Cache.MaxSizeGB = config.Cache.MaxSizeGB
	yamlCfg.Cache.TTLHours = config.Cache.TTLHours
	yamlCfg.Cache.CleanupIntervalMin = config.Cache.CleanupIntervalMin

	yamlCfg.TLS.Enabled = config.TLS.Enabled
	yamlCfg.TLS.CertFile = config.TLS.CertFile
	yamlCfg.TLS.KeyFile = config.TLS.KeyFile

	yamlCfg.Security.APIKey = config.Security.APIKey
	yamlCfg.Security.EnableAPIAuth = config.Security.EnableAPIAuth
	yamlCfg.Security.RateLimitPerMinute = config.Security.RateLimitPerMinute

	yamlCfg.Proxy.CacheDays = config.Cache.Days
	yamlCfg.Proxy.RetentionEnabled = config.Cache.RetentionEnabled
	yamlCfg.Proxy.PassthroughMode = config.PassthroughMode
	yamlCfg.Proxy.AdminToken = config.AdminToken
	yamlCfg.Proxy.LogLevel = config.LogLevel
	yamlCfg.Proxy.DatabasePath = config.DatabasePath

	data, err := yaml.Marshal(&yamlCfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// FindConfigFile searches common locations for a configuration file. Returns
// the path to the first file found, or an empty string if none are found.
func FindConfigFile() string {
	if envPath := os.Getenv(EnvConfigFile); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	searchPaths := []string{
		DefaultConfigFileName,
		filepath.Join(".", DefaultConfigFileName),
		filepath.Join("/etc/distrocache", DefaultConfigFileName),
	}

	if home := os.Getenv("HOME"); home != "" {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "distrocache", DefaultConfigFileName),
			filepath.Join(home, ".distrocache.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// MergeConfigs merges two configurations, with non-zero values from
// 'override' taking precedence over 'base'.
func MergeConfigs(base, override *Config) *Config {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	result := *base

	if override.Debug {
		result.Debug = override.Debug
	}
	if override.CacheDir != "" {
		result.CacheDir = override.CacheDir
	}
	if override.Listen != "" {
		result.Listen = override.Listen
	}

	if override.Cache.MaxSizeGB > 0 {
		result.Cache.MaxSizeGB = override.Cache.MaxSizeGB
	}
	if override.Cache.TTLHours > 0 {
		result.Cache.TTLHours = override.Cache.TTLHours
	}
	if override.Cache.CleanupIntervalMin > 0 {
		result.Cache.CleanupIntervalMin = override.Cache.CleanupIntervalMin
	}

	if override.TLS.Enabled {
		result.TLS.Enabled = override.TLS.Enabled
	}
	if override.TLS.CertFile != "" {
		result.TLS.CertFile = override.TLS.CertFile
	}
	if override.TLS.KeyFile != "" {
		result.TLS.KeyFile = override.TLS.KeyFile
	}

	if override.Security.APIKey != "" {
		result.Security.APIKey = override.Security.APIKey
	}
	if override.Security.EnableAPIAuth {
		result.Security.EnableAPIAuth = override.Security.EnableAPIAuth
	}
	if override.Security.RateLimitPerMinute > 0 {
		result.Security.RateLimitPerMinute = override.Security.RateLimitPerMinute
	}

	if override.Cache.Days > 0 {
		result.Cache.Days = override.Cache.Days
	}
	if override.Cache.RetentionEnabled {
		result.Cache.RetentionEnabled = override.Cache.RetentionEnabled
	}
	if override.PassthroughMode {
		result.PassthroughMode = override.PassthroughMode
	}
	if override.AdminToken != "" {
		result.AdminToken = override.AdminToken
	}
	if override.LogLevel != "" {
		result.LogLevel = override.LogLevel
	}
	if override.DatabasePath != "" {
		result.DatabasePath = override.DatabasePath
	}

	return &result
}

// ValidateConfig ensures all required fields are set and internally
// consistent. Returns an error if validation fails.
func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if config.CacheDir == "" {
		return fmt.Errorf("cache directory must be specified")
	}

	if config.Listen == "" {
		return fmt.Errorf("listen address must be specified")
	}

	if config.TLS.Enabled {
		if config.TLS.CertFile == "" {
			return fmt.Errorf("TLS certificate file must be specified when TLS is enabled")
		}
		if config.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key file must be specified when TLS is enabled")
		}
		if _, err := os.Stat(config.TLS.CertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file not found: %s", config.TLS.CertFile)
		}
		if _, err := os.Stat(config.TLS.KeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file not found: %s", config.TLS.KeyFile)
		}
	}

	return nil
}

// GetConfigFilePaths returns the paths searched for configuration files.
// Useful for debugging and logging.
func GetConfigFilePaths() []string {
	paths := []string{
		DefaultConfigFileName,
		filepath.Join("/etc/distrocache", DefaultConfigFileName),
	}

	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths,
			filepath.Join(home, ".config", "distrocache", DefaultConfigFileName),
			filepath.Join(home, ".distrocache.yaml"),
		)
	}

	return paths
}

// IsConfigFileProvided reports whether a config file path was explicitly
// provided via CLI flag or environment variable.
func IsConfigFileProvided() bool {
	if os.Getenv(EnvConfigFile) != "" {
		return true
	}
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-config") || strings.HasPrefix(arg, "--config") {
			return true
		}
	}
	return false
}
