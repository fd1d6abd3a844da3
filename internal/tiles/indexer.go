package tiles

import (
	"math"
	"sort"
)

// Indexer converts viewports into tile coordinates for one image pyramid.
// MinZoom is the coarsest level, where the whole image is the single tile
// (0, 0). Width and Height are the full-resolution extent in pixels.
type Indexer struct {
	TileSize int
	MinZoom  int
	MaxZoom  int
	Width    int
	Height   int
}

// Zoom returns the integer level used to serve v: its zoom rounded up to the
// next finer level and clamped to [MinZoom, MaxZoom].
func (ix Indexer) Zoom(v Viewport) int {
	z := int(math.Ceil(v.Zoom))
	if z > ix.MaxZoom {
		z = ix.MaxZoom
	}
	if z < ix.MinZoom {
		z = ix.MinZoom
	}
	return z
}

// Bound returns the largest tile index on each axis that still starts inside
// the image at zoom z.
func (ix Indexer) Bound(z int) (maxX, maxY int) {
	size := worldSize(ix.TileSize, z)
	return int(math.Floor(float64(ix.Width) / size)), int(math.Floor(float64(ix.Height) / size))
}

// Indices returns the tiles at the viewport's effective zoom whose footprint
// intersects its bounds, with the edge rule and boundary clamp applied.
func (ix Indexer) Indices(v Viewport) []Coord {
	if v.Degenerate() {
		return nil
	}
	z := ix.Zoom(v)
	size := worldSize(ix.TileSize, z)

	// half-open index ranges
	minX := int(math.Floor(v.Bounds.Min[0] / size))
	minY := int(math.Floor(v.Bounds.Min[1] / size))
	maxX := int(math.Ceil(v.Bounds.Max[0] / size))
	maxY := int(math.Ceil(v.Bounds.Max[1] / size))

	if z <= ix.MinZoom {
		if minX <= 0 && maxX > 0 && minY <= 0 && maxY > 0 {
			return []Coord{{X: 0, Y: 0, Z: z}}
		}
		return nil
	}

	// Intersecting with the clamp range up front keeps a far zoomed-out
	// viewport from enumerating tiles that would all be dropped.
	bx, by := ix.Bound(z)
	minX, minY = max(minX, 0), max(minY, 0)
	maxX, maxY = min(maxX, bx+1), min(maxY, by+1)
	if minX >= maxX || minY >= maxY {
		return nil
	}

	out := make([]Coord, 0, (maxX-minX)*(maxY-minY))
	for y := minY; y < maxY; y++ {
		for x := minX; x < maxX; x++ {
			out = append(out, Coord{X: x, Y: y, Z: z})
		}
	}
	return out
}

// Valid reports whether c passes the edge rule and the boundary clamp.
func (ix Indexer) Valid(c Coord) bool {
	if c.Z <= ix.MinZoom {
		return c.X == 0 && c.Y == 0
	}
	if c.X < 0 || c.Y < 0 {
		return false
	}
	bx, by := ix.Bound(c.Z)
	return c.X <= bx && c.Y <= by
}

// Clamp drops every coordinate that fails Valid. The input is not modified.
func (ix Indexer) Clamp(coords []Coord) []Coord {
	out := make([]Coord, 0, len(coords))
	for _, c := range coords {
		if ix.Valid(c) {
			out = append(out, c)
		}
	}
	return out
}

// Expand returns one ring of neighbours just outside the bounding rectangle
// of coords, clamped to the image. Only coordinates at the zoom of the first
// element are considered; the coarsest level has no neighbours.
func (ix Indexer) Expand(coords []Coord) []Coord {
	if len(coords) == 0 {
		return nil
	}
	z := coords[0].Z
	if z <= ix.MinZoom {
		return nil
	}

	minX, minY := math.MaxInt, math.MaxInt
	maxX, maxY := math.MinInt, math.MinInt
	for _, c := range coords {
		if c.Z != z {
			continue
		}
		minX, maxX = min(minX, c.X), max(maxX, c.X)
		minY, maxY = min(minY, c.Y), max(maxY, c.Y)
	}

	ring := make([]Coord, 0, 2*(maxX-minX+3)+2*(maxY-minY+1))
	for x := minX - 1; x <= maxX+1; x++ {
		ring = append(ring, Coord{X: x, Y: minY - 1, Z: z}, Coord{X: x, Y: maxY + 1, Z: z})
	}
	for y := minY; y <= maxY; y++ {
		ring = append(ring, Coord{X: minX - 1, Y: y, Z: z}, Coord{X: maxX + 1, Y: y, Z: z})
	}
	return ix.Clamp(ring)
}

// Ancestors walks from the median of coords toward MinZoom and returns, for
// each coarser level, the containing tile and its neighbour ring.
func (ix Indexer) Ancestors(coords []Coord) []Coord {
	if len(coords) == 0 {
		return nil
	}
	z := coords[0].Z
	xs := make([]int, len(coords))
	ys := make([]int, len(coords))
	for i, c := range coords {
		xs[i], ys[i] = c.X, c.Y
	}
	mx, my := median(xs), median(ys)

	var out []Coord
	for level := z - 1; level >= ix.MinZoom; level-- {
		f := math.Pow(2, float64(level-z))
		c := Coord{X: int(math.Floor(mx * f)), Y: int(math.Floor(my * f)), Z: level}
		out = append(out, c)
		out = append(out, ix.Expand([]Coord{c})...)
	}
	return ix.Clamp(out)
}

func median(v []int) float64 {
	sort.Ints(v)
	n := len(v)
	if n%2 == 0 {
		return float64(v[n/2-1]+v[n/2]) / 2
	}
	return float64(v[n/2])
}

// dedupe removes repeated coordinates, keeping first occurrences in order.
func dedupe(coords []Coord) []Coord {
	seen := make(map[Coord]struct{}, len(coords))
	out := coords[:0:0]
	for _, c := range coords {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
