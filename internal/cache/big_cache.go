package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// BigCache keeps tiles off the Go heap, bounded in megabytes and expiring
// entries after a TTL.
type BigCache struct {
	store *bigcache.BigCache
}

func NewBigCache(ctx context.Context, sizeMB int, ttl time.Duration) (*BigCache, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	cfg := bigcache.Config{
		Shards:             64,
		LifeWindow:         ttl,
		CleanWindow:        ttl / 2,
		MaxEntriesInWindow: 1024,
		MaxEntrySize:       32 * 1024, // initial shard allocation only, larger tiles still fit
		HardMaxCacheSize:   sizeMB,
		Verbose:            false,
	}
	store, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigcache: %w", err)
	}
	return &BigCache{store: store}, nil
}

func (c *BigCache) Get(key TileKey) ([]byte, bool) {
	data, err := c.store.Get(key.String())
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *BigCache) Has(key TileKey) bool {
	_, err := c.store.Get(key.String())
	return err == nil
}

func (c *BigCache) Set(key TileKey, value []byte) {
	// Oversized entries are refused by bigcache and simply not cached.
	_ = c.store.Set(key.String(), value)
}

func (c *BigCache) Len() int {
	return c.store.Len()
}

func (c *BigCache) Clear() {
	_ = c.store.Reset()
}

func (c *BigCache) Close() error {
	return c.store.Close()
}
