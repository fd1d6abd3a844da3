// Package warmup pre-renders the coarse levels of every image so the first
// viewers of an image do not wait for the overview tiles.
package warmup

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pyramidview/internal/catalog"
	"pyramidview/internal/source"
	"pyramidview/internal/tiles"
)

type Stats struct {
	Rendered int64
	Failed   int64
}

// Run fetches the coarsest levels of each image through src with at most
// workers fetches in flight. It stops early when ctx is cancelled.
func Run(ctx context.Context, src source.Source, images []catalog.ImageInfo, tileSize, levels, workers int, log *zap.Logger) Stats {
	var stats Stats
	if len(images) == 0 || levels <= 0 {
		return stats
	}
	if workers <= 0 {
		workers = 1
	}

	log.Info("Starting tile warmup", zap.Int("levels", levels), zap.Int("images", len(images)))

	var rendered, failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

loop:
	for _, img := range images {
		p := catalog.NewPyramid(img.Width, img.Height, tileSize)
		last := min(p.MinZoom+levels-1, p.MaxZoom)

		for z := p.MinZoom; z <= last; z++ {
			nx, ny := p.TilesAt(z)
			for x := 0; x < nx; x++ {
				for y := 0; y < ny; y++ {
					if ctx.Err() != nil {
						break loop
					}
					imageID, c := img.ID, tiles.Coord{X: x, Y: y, Z: z}
					g.Go(func() error {
						if _, err := src.FetchTile(ctx, imageID, c); err != nil {
							failed.Add(1)
							log.Debug("Warmup tile failed", zap.String("image", imageID), zap.Stringer("tile", c), zap.Error(err))
							return nil
						}
						rendered.Add(1)
						return nil
					})
				}
			}
		}
	}

	g.Wait()
	stats.Rendered, stats.Failed = rendered.Load(), failed.Load()
	log.Info("Tile warmup completed", zap.Int64("rendered", stats.Rendered), zap.Int64("failed", stats.Failed))
	return stats
}
