package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache is an in-memory LRU bounded by tile count.
type MemoryCache struct {
	items *lru.Cache[TileKey, []byte]
}

// NewMemoryCache creates a new in-memory LRU cache
func NewMemoryCache(maxTiles int) (*MemoryCache, error) {
	items, err := lru.New[TileKey, []byte](maxTiles)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryCache{items: items}, nil
}

func (c *MemoryCache) Has(key TileKey) bool {
	return c.items.Contains(key)
}

func (c *MemoryCache) Get(key TileKey) ([]byte, bool) {
	return c.items.Get(key)
}

func (c *MemoryCache) Set(key TileKey, value []byte) {
	c.items.Add(key, value)
}

func (c *MemoryCache) Len() int {
	return c.items.Len()
}

func (c *MemoryCache) Clear() {
	c.items.Purge()
}
