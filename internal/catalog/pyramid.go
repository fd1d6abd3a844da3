package catalog

import "math"

// Pyramid describes the zoom levels of one image. Zoom 0 is full resolution
// and MinZoom is the coarsest level, where the image fits in a single tile.
type Pyramid struct {
	Width    int `json:"width"`
	Height   int `json:"height"`
	TileSize int `json:"tileSize"`
	MinZoom  int `json:"minZoom"`
	MaxZoom  int `json:"maxZoom"`
}

func NewPyramid(width, height, tileSize int) Pyramid {
	return Pyramid{
		Width:    width,
		Height:   height,
		TileSize: tileSize,
		MinZoom:  MinZoom(width, height, tileSize),
		MaxZoom:  0,
	}
}

// MinZoom returns -ceil(log2(maxDim / tileSize)), never above zero.
func MinZoom(width, height, tileSize int) int {
	maxDim := math.Max(float64(width), float64(height))
	levels := int(math.Ceil(math.Log2(maxDim / float64(tileSize))))
	if levels < 0 {
		return 0
	}
	return -levels
}

// Levels is the number of zoom levels in the pyramid.
func (p Pyramid) Levels() int { return p.MaxZoom - p.MinZoom + 1 }

// RemoteZoom converts z to the numbering used by gigaview-style servers,
// where 0 is the coarsest level.
func (p Pyramid) RemoteZoom(z int) int { return z - p.MinZoom }

// TilesAt returns how many tiles cover the image at zoom z on each axis.
func (p Pyramid) TilesAt(z int) (nx, ny int) {
	size := float64(p.TileSize) * math.Pow(2, float64(-z))
	return int(math.Ceil(float64(p.Width) / size)), int(math.Ceil(float64(p.Height) / size))
}
