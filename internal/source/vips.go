package source

import (
	"context"
	"fmt"
	"math"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"pyramidview/internal/cache"
	"pyramidview/internal/catalog"
	"pyramidview/internal/tiles"
)

const (
	jpegQuality = 82
	formatJPEG  = "jpeg"
)

// Vips renders tiles from the images of a catalog with libvips.
type Vips struct {
	catalog   *catalog.Catalog
	tileCache cache.Cache
	logger    *zap.Logger
	inflight  singleflight.Group
}

func NewVips(cat *catalog.Catalog, tileCache cache.Cache, logger *zap.Logger) *Vips {
	return &Vips{
		catalog:   cat,
		tileCache: tileCache,
		logger:    logger,
	}
}

func (r *Vips) FetchTile(ctx context.Context, imageID string, c tiles.Coord) (*Tile, error) {
	p, err := r.catalog.Pyramid(imageID)
	if err != nil {
		return nil, err
	}
	if err := checkRange(p, c); err != nil {
		return nil, err
	}

	key := cacheKey(imageID, p.TileSize, c, formatJPEG)
	if cached, ok := r.tileCache.Get(key); ok {
		return &Tile{Data: cached, ContentType: "image/jpeg", ETag: generateETag(key)}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Concurrent viewers asking for the same tile share one render.
	v, err, _ := r.inflight.Do(key.String(), func() (any, error) {
		data, err := r.render(imageID, p, c)
		if err != nil {
			return nil, err
		}
		r.tileCache.Set(key, data)
		return data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("render tile %s of %s: %w", c, imageID, err)
	}
	return &Tile{Data: v.([]byte), ContentType: "image/jpeg", ETag: generateETag(key)}, nil
}

func (r *Vips) render(imageID string, p catalog.Pyramid, c tiles.Coord) ([]byte, error) {
	path, err := r.catalog.Path(imageID)
	if err != nil {
		return nil, err
	}

	// Use AccessRandom for efficient tile extraction from large files
	image, err := catalog.Open(path, vips.AccessRandom)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer image.Close()

	tileSize := float64(p.TileSize)
	// Source pixels covered by one tile: the full tile size at zoom 0,
	// doubling with every coarser level.
	pixelsPerTile := tileSize * math.Pow(2, float64(-c.Z))

	// Clamp to image dimensions to handle edge tiles that extend beyond the image.
	startX := int(float64(c.X) * pixelsPerTile)
	startY := int(float64(c.Y) * pixelsPerTile)
	endX := int(math.Min(float64(startX)+pixelsPerTile, float64(image.Width())))
	endY := int(math.Min(float64(startY)+pixelsPerTile, float64(image.Height())))

	width := endX - startX
	height := endY - startY
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: empty area at %s", ErrOutOfRange, c)
	}

	if err := image.ExtractArea(startX, startY, width, height); err != nil {
		return nil, fmt.Errorf("failed to extract area: %w", err)
	}

	// Level-specific scale so all tiles of one zoom share a scale.
	if c.Z < 0 {
		resizeOpts := vips.DefaultResizeOptions()
		resizeOpts.Kernel = vips.KernelLanczos3
		if err := image.Resize(tileSize/pixelsPerTile, resizeOpts); err != nil {
			return nil, fmt.Errorf("failed to resize: %w", err)
		}
	}

	// Pad edge tiles to the full size, anchored at the top-left corner.
	if image.Width() < p.TileSize || image.Height() < p.TileSize {
		embedOpts := vips.DefaultEmbedOptions()
		embedOpts.Extend = vips.ExtendBackground
		// JPEG has no alpha channel
		embedOpts.Background = []float64{221, 221, 221} // #ddd
		if err := image.Embed(0, 0, p.TileSize, p.TileSize, embedOpts); err != nil {
			return nil, fmt.Errorf("failed to pad: %w", err)
		}
	}

	jpegOpts := vips.DefaultJpegsaveBufferOptions()
	jpegOpts.Q = jpegQuality
	jpegOpts.Interlace = false

	data, err := image.JpegsaveBuffer(jpegOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}

	r.logger.Debug("Rendered tile",
		zap.String("image_id", imageID),
		zap.Stringer("tile", c),
		zap.Int("bytes", len(data)))
	return data, nil
}
