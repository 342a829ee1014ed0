package config

import (
	"fmt"
	"sync"
)

// recognizedKeys lists the option names exposed on the admin config
// surface; Get/Set operate on these by name instead of the struct
// field directly, the way a key→value map would.
var recognizedKeys = map[string]struct{}{
	"host": {}, "port": {}, "storage_path": {}, "storage_path_resolved": {},
	"cache_days": {}, "cache_retention_enabled": {}, "passthrough_mode": {},
	"admin_token": {}, "log_level": {}, "database_path": {},
}

// Store is the thread-safe, process-wide configuration holder: get/set
// operate on the in-memory copy, and set always round-trips through the
// on-disk file (read → modify → write) so externally edited, unrelated
// keys survive a single-key update.
type Store struct {
	mu   sync.Mutex
	path string
	cfg  *Config
}

// NewStore wraps an already-loaded Config with the admin get/set/reload
// surface, backed by the YAML file at path.
func NewStore(path string, cfg *Config) *Store {
	return &Store{path: path, cfg: cfg}
}

// Snapshot returns a copy of the current in-memory configuration.
func (s *Store) Snapshot() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.cfg
}

// Get returns one recognized key's current value as a string.
func (s *Store) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *Store) getLocked(key string) (string, error) {
	if _, ok := recognizedKeys[key]; !ok {
		return "", fmt.Errorf("unrecognized config key %q", key)
	}
	switch key {
	case "host":
		return s.cfg.Host, nil
	case "port":
		return s.cfg.Port, nil
	case "storage_path":
		return s.cfg.CacheDir, nil
	case "storage_path_resolved":
		return s.cfg.StoragePathResolved, nil
	case "cache_days":
		return fmt.Sprintf("%d", s.cfg.Cache.Days), nil
	case "cache_retention_enabled":
		return fmt.Sprintf("%t", s.cfg.Cache.RetentionEnabled), nil
	case "passthrough_mode":
		return fmt.Sprintf("%t", s.cfg.PassthroughMode), nil
	case "admin_token":
		return s.cfg.AdminToken, nil
	case "log_level":
		return s.cfg.LogLevel, nil
	case "database_path":
		return s.cfg.DatabasePath, nil
	}
	return "", fmt.Errorf("unhandled config key %q", key)
}

// All returns every recognized key's current value.
func (s *Store) All() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(recognizedKeys))
	for key := range recognizedKeys {
		v, _ := s.getLocked(key)
		out[key] = v
	}
	return out
}

// Set updates one recognized key, persisting it by reading the on-disk
// YAML file, applying the single change, and writing it back — so any
// unrelated keys an operator edited directly on disk are preserved. The
// whole read-modify-write happens under the store's lock so concurrent
// admin edits are serialized.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	onDisk, err := LoadConfigFile(s.path)
	if err != nil {
		return fmt.Errorf("reading config for update: %w", err)
	}
	if onDisk == nil {
		onDisk = &Config{}
	}

	if err := applyKey(onDisk, key, value); err != nil {
		return err
	}
	if err := WriteConfigFile(s.path, onDisk); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := applyKey(s.cfg, key, value); err != nil {
		return err
	}
	return nil
}

func applyKey(cfg *Config, key, value string) error {
	switch key {
	case "host":
		cfg.Host = value
	case "port":
		cfg.Port = value
	case "storage_path":
		cfg.CacheDir = value
	case "storage_path_resolved":
		cfg.StoragePathResolved = value
	case "cache_days":
		var days int
		if _, err := fmt.Sscanf(value, "%d", &days); err != nil || days < 1 {
			return fmt.Errorf("cache_days must be an integer >= 1, got %q", value)
		}
		cfg.Cache.Days = days
	case "cache_retention_enabled":
		cfg.Cache.RetentionEnabled = value == "true"
	case "passthrough_mode":
		cfg.PassthroughMode = value == "true"
	case "admin_token":
		cfg.AdminToken = value
	case "log_level":
		cfg.LogLevel = value
	case "database_path":
		cfg.DatabasePath = value
	default:
		return fmt.Errorf("unrecognized config key %q", key)
	}
	return nil
}

// Reload re-reads the on-disk file and replaces the in-memory config.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	onDisk, err := LoadConfigFile(s.path)
	if err != nil {
		return fmt.Errorf("reloading config: %w", err)
	}
	if onDisk == nil {
		return nil
	}
	onDisk = applyDefaults(onDisk)
	if err := ResolveStoragePath(onDisk); err != nil {
		return err
	}
	s.cfg = onDisk
	return nil
}
