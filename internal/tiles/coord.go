// Package tiles maps viewports onto pyramid tiles and keeps a bounded,
// visibility-aware cache of the tiles a viewport needs.
//
// Zoom levels follow the image's own pixel grid: z = 0 is full resolution and
// each step down halves it, so a tile at zoom z spans tileSize * 2^-z pixels of
// the full-resolution image on each axis.
package tiles

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// DefaultTileSize is the edge length of a tile in pixels.
const DefaultTileSize = 256

// Coord identifies one tile of the pyramid. It is comparable and is used
// directly as a map key.
type Coord struct {
	X int
	Y int
	Z int
}

func (c Coord) String() string {
	return fmt.Sprintf("%d-%d-%d", c.Z, c.X, c.Y)
}

// worldSize returns the number of full-resolution pixels one tile spans at zoom z.
func worldSize(tileSize, z int) float64 {
	return float64(tileSize) * math.Pow(2, float64(-z))
}

// Footprint returns the world-space rectangle covered by the tile.
func (c Coord) Footprint(tileSize int) orb.Bound {
	size := worldSize(tileSize, c.Z)
	return orb.Bound{
		Min: orb.Point{float64(c.X) * size, float64(c.Y) * size},
		Max: orb.Point{float64(c.X+1) * size, float64(c.Y+1) * size},
	}
}

// Ancestor returns the tile at zoom z that contains c. z must not be finer than c.Z.
func (c Coord) Ancestor(z int) Coord {
	if z >= c.Z {
		return c
	}
	shift := uint(c.Z - z)
	return Coord{X: c.X >> shift, Y: c.Y >> shift, Z: z}
}

// Parent returns the containing tile one level coarser.
func (c Coord) Parent() Coord {
	return c.Ancestor(c.Z - 1)
}

// Overlaps reports whether the footprints of c and other intersect. Tiles at
// different zoom levels overlap when the finer one lies inside the coarser one.
func (c Coord) Overlaps(other Coord) bool {
	if c.Z >= other.Z {
		return c.Ancestor(other.Z) == other
	}
	return other.Ancestor(c.Z) == c
}
