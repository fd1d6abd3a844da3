// Package config loads server settings from defaults, an optional YAML
// file, a .env file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int    `yaml:"port" env:"PORT"`
	DataDir     string `yaml:"data_dir" env:"DATA_DIR"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	LogEncoding string `yaml:"log_encoding" env:"LOG_ENCODING"`

	CacheType        string        `yaml:"cache" env:"CACHE"`
	CacheMemoryTiles int           `yaml:"cache_memory_tiles" env:"CACHE_MEMORY_TILES"`
	CacheBigCacheMB  int           `yaml:"cache_bigcache_mb" env:"CACHE_BIGCACHE_MB"`
	CacheTTL         time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	CacheFileDir     string        `yaml:"cache_file_dir" env:"CACHE_FILE_DIR"`

	VipsMaxCacheMB  int `yaml:"vips_max_cache_mb" env:"VIPS_MAX_CACHE_MB"`
	VipsConcurrency int `yaml:"vips_concurrency" env:"VIPS_CONCURRENCY"`

	TileSize                  int           `yaml:"tile_size" env:"TILE_SIZE"`
	ViewportMaxTiles          int           `yaml:"viewport_max_tiles" env:"VIEWPORT_MAX_TILES"`
	ViewportFetchConcurrency  int           `yaml:"viewport_fetch_concurrency" env:"VIEWPORT_FETCH_CONCURRENCY"`
	ViewportPrefetchAncestors bool          `yaml:"viewport_prefetch_ancestors" env:"VIEWPORT_PREFETCH_ANCESTORS"`
	SessionTTL                time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`

	WarmupLevels  int `yaml:"warmup_levels" env:"WARMUP_LEVELS"`
	WarmupWorkers int `yaml:"warmup_workers" env:"WARMUP_WORKERS"`

	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	RemoteURL      string   `yaml:"remote_url" env:"REMOTE_URL"`

	TracingEnabled bool   `yaml:"tracing_enabled" env:"TRACING_ENABLED"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:                     8080,
		DataDir:                  "/data",
		LogLevel:                 "info",
		LogEncoding:              "json",
		CacheType:                "memory",
		CacheMemoryTiles:         2000,
		CacheBigCacheMB:          512,
		CacheTTL:                 time.Hour,
		VipsMaxCacheMB:           256,
		VipsConcurrency:          1,
		TileSize:                 256,
		ViewportFetchConcurrency: 8,
		SessionTTL:               10 * time.Minute,
		WarmupLevels:             1,
		WarmupWorkers:            1,
		OTLPEndpoint:             "localhost:4317",
	}
}

// Load builds the configuration. CONFIG_FILE names an optional YAML file.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.CacheFileDir == "" {
		cfg.CacheFileDir = filepath.Join(cfg.DataDir, "cache")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required"))
	}
	switch c.LogEncoding {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_ENCODING %q is not json or console", c.LogEncoding))
	}
	switch c.CacheType {
	case "memory":
		if c.CacheMemoryTiles <= 0 {
			errs = append(errs, errors.New("CACHE_MEMORY_TILES must be positive"))
		}
	case "bigcache":
		if c.CacheBigCacheMB < 0 || c.CacheTTL <= 0 {
			errs = append(errs, errors.New("CACHE_BIGCACHE_MB must not be negative and CACHE_TTL must be positive"))
		}
	case "file", "disabled":
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE %q", c.CacheType))
	}
	if c.TileSize <= 0 {
		errs = append(errs, fmt.Errorf("TILE_SIZE %d must be positive", c.TileSize))
	}
	if c.ViewportMaxTiles < 0 || c.ViewportFetchConcurrency < 0 {
		errs = append(errs, errors.New("viewport limits must not be negative"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.WarmupLevels < 0 || c.WarmupWorkers < 0 {
		errs = append(errs, errors.New("warmup settings must not be negative"))
	}
	if c.TracingEnabled && c.OTLPEndpoint == "" {
		errs = append(errs, errors.New("OTLP_ENDPOINT is required when tracing is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
