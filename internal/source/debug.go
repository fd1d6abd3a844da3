package source

import (
	"bytes"
	"context"
	"fmt"

	"github.com/fogleman/gg"

	"pyramidview/internal/cache"
	"pyramidview/internal/tiles"
)

// Debug draws a labelled checkerboard tile for any coordinate.
type Debug struct {
	tileSize int
}

func NewDebug(tileSize int) *Debug {
	if tileSize <= 0 {
		tileSize = tiles.DefaultTileSize
	}
	return &Debug{tileSize: tileSize}
}

func (d *Debug) FetchTile(ctx context.Context, imageID string, c tiles.Coord) (*Tile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := float64(d.tileSize)
	dc := gg.NewContext(d.tileSize, d.tileSize)
	if (c.X+c.Y)%2 == 0 {
		dc.SetRGB(0.87, 0.87, 0.87)
	} else {
		dc.SetRGB(0.75, 0.78, 0.82)
	}
	dc.Clear()

	dc.SetRGB(0.2, 0.2, 0.2)
	dc.SetLineWidth(2)
	dc.DrawRectangle(1, 1, size-2, size-2)
	dc.Stroke()
	dc.DrawStringAnchored(fmt.Sprintf("z=%d", c.Z), size/2, size/2-14, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("x=%d y=%d", c.X, c.Y), size/2, size/2+2, 0.5, 0.5)
	if imageID != "" {
		dc.DrawStringAnchored(imageID, size/2, size/2+18, 0.5, 0.5)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode debug tile: %w", err)
	}
	key := cache.TileKey{ImageID: imageID, TileSize: d.tileSize, Z: c.Z, X: c.X, Y: c.Y, Format: "png"}
	return &Tile{Data: buf.Bytes(), ContentType: "image/png", ETag: generateETag(key)}, nil
}
