// Package cache stores rendered tile bytes between requests.
package cache

import "fmt"

// TileKey identifies one rendered tile of one image.
type TileKey struct {
	ImageID  string
	TileSize int
	Z        int
	X        int
	Y        int
	Format   string
}

// String is the flat key used by stores that index by string.
func (k TileKey) String() string {
	return fmt.Sprintf("%s/%d/%d/%d/%d.%s", k.ImageID, k.TileSize, k.Z, k.X, k.Y, k.Format)
}

type Cache interface {
	Get(key TileKey) ([]byte, bool)
	Set(key TileKey, value []byte)
	Has(key TileKey) bool // Check if tile exists without reading it (lightweight check)
	Len() int
	Clear()
}
