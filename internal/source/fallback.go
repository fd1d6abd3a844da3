package source

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"pyramidview/internal/tiles"
)

// Fallback asks Primary first and Secondary when Primary fails.
// Cancellation and out-of-range errors are final.
type Fallback struct {
	Primary   Source
	Secondary Source
	Logger    *zap.Logger
}

func (f *Fallback) FetchTile(ctx context.Context, imageID string, c tiles.Coord) (*Tile, error) {
	tile, err := f.Primary.FetchTile(ctx, imageID, c)
	if err == nil {
		return tile, nil
	}
	if ctx.Err() != nil || errors.Is(err, ErrOutOfRange) {
		return nil, err
	}
	if f.Logger != nil {
		f.Logger.Debug("Primary source failed, falling back",
			zap.String("image_id", imageID),
			zap.Stringer("tile", c),
			zap.Error(err))
	}
	return f.Secondary.FetchTile(ctx, imageID, c)
}
