package tiles

import (
	"math"

	"github.com/paulmach/orb"
)

// Viewport is the visible region of world space together with its zoom.
// Bounds are in full-resolution pixels.
type Viewport struct {
	Zoom   float64
	Bounds orb.Bound
}

// NewViewport builds a viewport of widthPx x heightPx screen pixels centred on
// center. At zoom z one screen pixel covers 2^-z world pixels.
func NewViewport(center orb.Point, widthPx, heightPx int, zoom float64) Viewport {
	scale := math.Pow(2, -zoom)
	halfW := float64(widthPx) * scale / 2
	halfH := float64(heightPx) * scale / 2
	return Viewport{
		Zoom: zoom,
		Bounds: orb.Bound{
			Min: orb.Point{center[0] - halfW, center[1] - halfH},
			Max: orb.Point{center[0] + halfW, center[1] + halfH},
		},
	}
}

// Degenerate reports whether the viewport cannot select any tile: a
// non-finite zoom or bound, or bounds that are inverted or have no area.
func (v Viewport) Degenerate() bool {
	if !finite(v.Zoom) {
		return true
	}
	for _, f := range []float64{v.Bounds.Min[0], v.Bounds.Min[1], v.Bounds.Max[0], v.Bounds.Max[1]} {
		if !finite(f) {
			return true
		}
	}
	return v.Bounds.Max[0] <= v.Bounds.Min[0] || v.Bounds.Max[1] <= v.Bounds.Min[1]
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
