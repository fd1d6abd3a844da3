package cache

type NoopCache struct{}

func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (c *NoopCache) Get(key TileKey) ([]byte, bool) {
	return nil, false
}

func (c *NoopCache) Set(key TileKey, value []byte) {
}

func (c *NoopCache) Has(key TileKey) bool {
	return false
}

func (c *NoopCache) Len() int {
	return 0
}

func (c *NoopCache) Clear() {
}
