package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config selects and sizes the byte cache.
type Config struct {
	Type        string // memory, bigcache, file or disabled
	MemoryTiles int
	BigCacheMB  int
	TTL         time.Duration
	FileDir     string
}

// NewCache creates a cache instance based on the cache type
func NewCache(ctx context.Context, cfg Config, log *zap.Logger) (Cache, error) {
	switch cfg.Type {
	case "memory":
		log.Info("Using memory cache", zap.Int("max_tiles", cfg.MemoryTiles))
		return NewMemoryCache(cfg.MemoryTiles)
	case "bigcache":
		log.Info("Using bigcache", zap.Int("size_mb", cfg.BigCacheMB), zap.Duration("ttl", cfg.TTL))
		return NewBigCache(ctx, cfg.BigCacheMB, cfg.TTL)
	case "file":
		log.Info("Using file cache", zap.String("cache_dir", cfg.FileDir))
		return NewFileCache(cfg.FileDir)
	case "disabled":
		log.Info("Cache disabled")
		return NewNoopCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: memory, bigcache, file, disabled)", cfg.Type)
	}
}
