package tiles

import (
	"math"
	"reflect"
	"sort"
	"testing"

	"github.com/paulmach/orb"
)

func testIndexer() Indexer {
	return Indexer{TileSize: 256, MinZoom: -3, MaxZoom: 0, Width: 2000, Height: 1500}
}

func bounds(minX, minY, maxX, maxY float64) orb.Bound {
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}

func sortCoords(c []Coord) []Coord {
	out := append([]Coord(nil), c...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Z != out[j].Z {
			return out[i].Z < out[j].Z
		}
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

func TestIndexer_FullCoverageAtFullResolution(t *testing.T) {
	ix := testIndexer()
	got := ix.Indices(Viewport{Zoom: 0, Bounds: bounds(0, 0, 2000, 1500)})

	var want []Coord
	for y := 0; y <= 5; y++ {
		for x := 0; x <= 7; x++ {
			want = append(want, Coord{X: x, Y: y, Z: 0})
		}
	}
	if !reflect.DeepEqual(sortCoords(got), sortCoords(want)) {
		t.Fatalf("unexpected indices: got %d coords %v", len(got), got)
	}
}

func TestIndexer_Zoom(t *testing.T) {
	ix := testIndexer()
	tests := []struct {
		zoom float64
		want int
	}{
		{zoom: 0, want: 0},
		{zoom: 3.5, want: 0},
		{zoom: -0.5, want: 0},
		{zoom: -1, want: -1},
		{zoom: -2.2, want: -2},
		{zoom: -3, want: -3},
		{zoom: -12, want: -3},
	}
	for _, tt := range tests {
		if got := ix.Zoom(Viewport{Zoom: tt.zoom}); got != tt.want {
			t.Errorf("Zoom(%v) = %d, want %d", tt.zoom, got, tt.want)
		}
	}
}

func TestIndexer_CoarsestLevelIsRootOnly(t *testing.T) {
	ix := testIndexer()

	t.Run("coversImage", func(t *testing.T) {
		got := ix.Indices(Viewport{Zoom: -3, Bounds: bounds(-5000, -5000, 9000, 9000)})
		want := []Coord{{X: 0, Y: 0, Z: -3}}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
	})

	t.Run("zoomedFarOut", func(t *testing.T) {
		got := ix.Indices(Viewport{Zoom: -20, Bounds: bounds(0, 0, 100, 100)})
		want := []Coord{{X: 0, Y: 0, Z: -3}}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
	})

	t.Run("outsideRoot", func(t *testing.T) {
		got := ix.Indices(Viewport{Zoom: -3, Bounds: bounds(3000, 3000, 4000, 4000)})
		if len(got) != 0 {
			t.Fatalf("expected no indices, got %v", got)
		}
	})

	t.Run("noExpansion", func(t *testing.T) {
		if got := ix.Expand([]Coord{{X: 0, Y: 0, Z: -3}}); len(got) != 0 {
			t.Fatalf("expected no neighbours at coarsest level, got %v", got)
		}
	})
}

func TestIndexer_IndicesStayInBounds(t *testing.T) {
	ix := testIndexer()
	for z := ix.MinZoom; z <= ix.MaxZoom; z++ {
		bx, by := ix.Bound(z)
		for _, off := range []float64{-3000, -700, -1, 0, 333, 1024, 1999, 5000} {
			v := Viewport{Zoom: float64(z), Bounds: bounds(off, off/2, off+900, off/2+700)}
			coords := ix.Indices(v)
			coords = append(coords, ix.Expand(coords)...)
			for _, c := range coords {
				if c.Z == ix.MinZoom {
					if c.X != 0 || c.Y != 0 {
						t.Errorf("z=%d off=%v: non-root coarsest tile %v", z, off, c)
					}
					continue
				}
				if c.X < 0 || c.Y < 0 || c.X > bx || c.Y > by {
					t.Errorf("z=%d off=%v: %v outside bound (%d,%d)", z, off, c, bx, by)
				}
			}
		}
	}
}

func TestIndexer_DegenerateViewport(t *testing.T) {
	ix := testIndexer()
	tests := map[string]Viewport{
		"zeroArea": {Zoom: 0, Bounds: bounds(10, 10, 10, 500)},
		"inverted": {Zoom: 0, Bounds: bounds(500, 500, 10, 10)},
		"nanZoom":  {Zoom: math.NaN(), Bounds: bounds(0, 0, 100, 100)},
		"infBound": {Zoom: 0, Bounds: bounds(0, 0, math.Inf(1), 100)},
	}
	for name, v := range tests {
		t.Run(name, func(t *testing.T) {
			if got := ix.Indices(v); len(got) != 0 {
				t.Fatalf("expected no indices, got %v", got)
			}
		})
	}
}

func TestIndexer_Expand(t *testing.T) {
	ix := Indexer{TileSize: 256, MinZoom: -6, MaxZoom: 0, Width: 10000, Height: 10000}

	t.Run("interior", func(t *testing.T) {
		core := []Coord{{2, 2, 0}, {3, 2, 0}, {2, 3, 0}, {3, 3, 0}}
		got := ix.Expand(core)
		if len(got) != 12 {
			t.Fatalf("expected 12 neighbours, got %d: %v", len(got), got)
		}
		for _, c := range got {
			if c.X < 1 || c.X > 4 || c.Y < 1 || c.Y > 4 {
				t.Errorf("neighbour %v outside ring", c)
			}
			if c.X >= 2 && c.X <= 3 && c.Y >= 2 && c.Y <= 3 {
				t.Errorf("neighbour %v inside core", c)
			}
		}
	})

	t.Run("topLeftCorner", func(t *testing.T) {
		core := []Coord{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}}
		got := sortCoords(ix.Expand(core))
		want := []Coord{{2, 0, 0}, {2, 1, 0}, {0, 2, 0}, {1, 2, 0}, {2, 2, 0}}
		if !reflect.DeepEqual(got, sortCoords(want)) {
			t.Fatalf("expected %v, got %v", want, got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := ix.Expand(nil); got != nil {
			t.Fatalf("expected nil, got %v", got)
		}
	})
}

func TestIndexer_Ancestors(t *testing.T) {
	ix := Indexer{TileSize: 256, MinZoom: -3, MaxZoom: 0, Width: 2000, Height: 1500}
	core := []Coord{{4, 2, 0}, {5, 2, 0}, {4, 3, 0}, {5, 3, 0}}
	got := ix.Ancestors(core)

	levels := map[int]bool{}
	for _, c := range got {
		if !ix.Valid(c) {
			t.Errorf("ancestor %v fails clamp", c)
		}
		levels[c.Z] = true
	}
	for z := -3; z <= -1; z++ {
		if !levels[z] {
			t.Errorf("expected an ancestor at zoom %d", z)
		}
	}

	want := Coord{X: 2, Y: 1, Z: -1}
	found := false
	for _, c := range got {
		if c == want {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %v among ancestors %v", want, got)
	}
}

func TestCoord_Overlaps(t *testing.T) {
	tests := []struct {
		a, b Coord
		want bool
	}{
		{a: Coord{1, 1, 0}, b: Coord{1, 1, 0}, want: true},
		{a: Coord{1, 1, 0}, b: Coord{1, 2, 0}, want: false},
		{a: Coord{1, 1, 0}, b: Coord{0, 0, -1}, want: true},
		{a: Coord{2, 3, 0}, b: Coord{1, 1, -1}, want: true},
		{a: Coord{2, 3, 0}, b: Coord{0, 0, -1}, want: false},
		{a: Coord{0, 0, -3}, b: Coord{7, 5, 0}, want: true},
		{a: Coord{1, 0, -2}, b: Coord{3, 0, 0}, want: false},
		{a: Coord{1, 0, -2}, b: Coord{4, 3, 0}, want: true},
	}
	for _, tt := range tests {
		if got := tt.a.Overlaps(tt.b); got != tt.want {
			t.Errorf("%v.Overlaps(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if got := tt.b.Overlaps(tt.a); got != tt.want {
			t.Errorf("%v.Overlaps(%v) = %v, want %v", tt.b, tt.a, got, tt.want)
		}
	}
}

func TestCoord_FootprintAndString(t *testing.T) {
	c := Coord{X: 1, Y: 2, Z: -1}
	got := c.Footprint(256)
	want := bounds(512, 1024, 1024, 1536)
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if s := c.String(); s != "-1-1-2" {
		t.Fatalf("unexpected key %q", s)
	}
}

func TestNewViewport(t *testing.T) {
	v := NewViewport(orb.Point{1000, 750}, 800, 600, -1)
	want := bounds(200, 150, 1800, 1350)
	if v.Bounds != want {
		t.Fatalf("expected %v, got %v", want, v.Bounds)
	}
	if v.Degenerate() {
		t.Fatal("expected usable viewport")
	}
}
