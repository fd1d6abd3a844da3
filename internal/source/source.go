// Package source produces tile payloads for the viewport caches: rendered
// from local images, proxied from a remote tile server or synthesised.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"pyramidview/internal/cache"
	"pyramidview/internal/catalog"
	"pyramidview/internal/tiles"
)

// ErrOutOfRange is returned for coordinates that select no image pixels.
var ErrOutOfRange = errors.New("tile outside image")

// Tile is an encoded tile image.
type Tile struct {
	Data        []byte
	ContentType string
	ETag        string
}

func (t *Tile) Size() int {
	if t == nil {
		return 0
	}
	return len(t.Data)
}

type Source interface {
	FetchTile(ctx context.Context, imageID string, c tiles.Coord) (*Tile, error)
}

// Bind adapts src to the fetch function of a tile cache for one image.
func Bind(src Source, imageID string) tiles.FetchFunc[*Tile] {
	return func(ctx context.Context, c tiles.Coord) (*Tile, error) {
		return src.FetchTile(ctx, imageID, c)
	}
}

// checkRange rejects coordinates outside the pyramid or past the image edge.
func checkRange(p catalog.Pyramid, c tiles.Coord) error {
	if c.Z < p.MinZoom || c.Z > p.MaxZoom {
		return fmt.Errorf("%w: zoom %d not in [%d, %d]", ErrOutOfRange, c.Z, p.MinZoom, p.MaxZoom)
	}
	nx, ny := p.TilesAt(c.Z)
	if c.X < 0 || c.Y < 0 || c.X >= nx || c.Y >= ny {
		return fmt.Errorf("%w: %s beyond %dx%d tiles", ErrOutOfRange, c, nx, ny)
	}
	return nil
}

func cacheKey(imageID string, tileSize int, c tiles.Coord, format string) cache.TileKey {
	return cache.TileKey{
		ImageID:  imageID,
		TileSize: tileSize,
		Z:        c.Z,
		X:        c.X,
		Y:        c.Y,
		Format:   format,
	}
}

func generateETag(key cache.TileKey) string {
	hash := sha256.Sum256([]byte(key.String()))
	return hex.EncodeToString(hash[:])[:16]
}
