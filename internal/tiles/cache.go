package tiles

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrInvalidConfig is wrapped by every configuration error returned from New.
var ErrInvalidConfig = errors.New("invalid tile cache config")

const (
	// Without an explicit MaxSize the cache keeps this many viewports worth of tiles.
	screensRetained = 5

	defaultConcurrency = 8
)

// Config configures a Cache.
type Config[T any] struct {
	// Fetch loads the payload of a tile. Required.
	Fetch FetchFunc[T]

	// MaxSize bounds the number of cached tiles. Zero means five times the
	// number of tiles the current viewport needs.
	MaxSize int

	// MinZoom is rounded up and MaxZoom down to whole levels.
	MinZoom float64
	MaxZoom float64

	// Full-resolution image extent in pixels.
	Width  int
	Height int

	TileSize int

	OnTileLoad  func(*Tile[T])
	OnTileError func(*Tile[T], error)

	// Concurrency bounds simultaneous fetches. Defaults to 8.
	Concurrency int

	// PrefetchAncestors also requests the coarser tiles above the viewport.
	PrefetchAncestors bool

	Logger *zap.Logger
}

// UpdateResult summarises one Update call.
type UpdateResult struct {
	Zoom      int `json:"zoom"`
	Requested int `json:"requested"`
	Added     int `json:"added"`
	Evicted   int `json:"evicted"`
	Size      int `json:"size"`
	Bound     int `json:"bound,omitempty"`
}

// Cache holds the tiles of one image keyed by coordinate. Update and Finalize
// must not be called concurrently; Tiles may be read from any goroutine.
type Cache[T any] struct {
	indexer           Indexer
	maxSize           int
	prefetchAncestors bool
	loader            loader[T]
	log               *zap.Logger
	ctx               context.Context

	items map[Coord]*list.Element
	order *list.List // insertion order, oldest first
	tiles atomic.Pointer[[]*Tile[T]]
}

// New validates cfg and returns an empty cache.
func New[T any](cfg Config[T]) (*Cache[T], error) {
	if cfg.Fetch == nil {
		return nil, fmt.Errorf("%w: fetch function is required", ErrInvalidConfig)
	}
	if !finite(cfg.MinZoom) || !finite(cfg.MaxZoom) {
		return nil, fmt.Errorf("%w: zoom range must be finite", ErrInvalidConfig)
	}
	minZoom, maxZoom := int(math.Ceil(cfg.MinZoom)), int(math.Floor(cfg.MaxZoom))
	if minZoom > maxZoom {
		return nil, fmt.Errorf("%w: min zoom %d above max zoom %d", ErrInvalidConfig, minZoom, maxZoom)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: image extent %dx%d", ErrInvalidConfig, cfg.Width, cfg.Height)
	}
	if cfg.MaxSize < 0 {
		return nil, fmt.Errorf("%w: negative max size %d", ErrInvalidConfig, cfg.MaxSize)
	}
	tileSize := cfg.TileSize
	if tileSize == 0 {
		tileSize = DefaultTileSize
	}
	if tileSize < 0 {
		return nil, fmt.Errorf("%w: tile size %d", ErrInvalidConfig, tileSize)
	}
	concurrency := cfg.Concurrency
	if concurrency == 0 {
		concurrency = defaultConcurrency
	}
	if concurrency < 0 {
		return nil, fmt.Errorf("%w: concurrency %d", ErrInvalidConfig, concurrency)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	c := &Cache[T]{
		indexer: Indexer{
			TileSize: tileSize,
			MinZoom:  minZoom,
			MaxZoom:  maxZoom,
			Width:    cfg.Width,
			Height:   cfg.Height,
		},
		maxSize:           cfg.MaxSize,
		prefetchAncestors: cfg.PrefetchAncestors,
		loader: loader[T]{
			fetch:   cfg.Fetch,
			onLoad:  cfg.OnTileLoad,
			onError: cfg.OnTileError,
			sem:     semaphore.NewWeighted(int64(concurrency)),
		},
		log:   log,
		ctx:   context.Background(),
		items: make(map[Coord]*list.Element),
		order: list.New(),
	}
	c.tiles.Store(&[]*Tile[T]{})
	return c, nil
}

// Indexer returns the indexer derived from the cache configuration.
func (c *Cache[T]) Indexer() Indexer { return c.indexer }

// Tiles returns the cached tiles ordered from coarse to fine. The slice is
// replaced, never modified, by later updates.
func (c *Cache[T]) Tiles() []*Tile[T] {
	return *c.tiles.Load()
}

// Len returns the number of cached tiles.
func (c *Cache[T]) Len() int { return len(c.items) }

// Get returns the cached tile at coord.
func (c *Cache[T]) Get(coord Coord) (*Tile[T], bool) {
	e, ok := c.items[coord]
	if !ok {
		return nil, false
	}
	return e.Value.(*Tile[T]), true
}

// Update reconciles the cache with the tiles v needs: it recomputes
// visibility, creates and starts fetching missing tiles, evicts invisible
// tiles over the size bound and republishes the snapshot.
func (c *Cache[T]) Update(v Viewport) UpdateResult {
	for e := c.order.Front(); e != nil; e = e.Next() {
		e.Value.(*Tile[T]).setVisible(false)
	}

	res := UpdateResult{Size: len(c.items)}
	if v.Degenerate() {
		c.log.Debug("degenerate viewport", zap.Float64("zoom", v.Zoom))
		return res
	}

	ix := c.indexer
	res.Zoom = ix.Zoom(v)

	candidates := ix.Indices(v)
	if len(candidates) > 0 && candidates[0].Z != ix.MinZoom {
		ring := ix.Expand(candidates)
		if c.prefetchAncestors {
			ring = append(ring, ix.Ancestors(candidates)...)
		}
		candidates = append(candidates, ring...)
	}
	candidates = dedupe(ix.Clamp(candidates))
	if len(candidates) == 0 {
		c.log.Debug("viewport selects no tiles", zap.Int("zoom", res.Zoom))
		return res
	}
	candidates = c.clampToCandidates(candidates)
	res.Requested = len(candidates)

	overlaps := newOverlapIndex(candidates, ix.MinZoom)
	for e := c.order.Front(); e != nil; e = e.Next() {
		t := e.Value.(*Tile[T])
		if overlaps.hit(t.coord) {
			t.setVisible(true)
		}
	}

	for _, coord := range candidates {
		if _, ok := c.items[coord]; ok {
			continue
		}
		t := newTile(c.ctx, coord, c.clip(coord), c.loader)
		t.setVisible(true)
		c.items[coord] = c.order.PushBack(t)
		res.Added++
	}

	if res.Added > 0 {
		res.Bound = c.maxSize
		if res.Bound == 0 {
			res.Bound = screensRetained * len(candidates)
		}
		res.Evicted = c.resize(res.Bound)
		c.publish()
	}
	res.Size = len(c.items)

	c.log.Debug("viewport updated",
		zap.Int("zoom", res.Zoom),
		zap.Int("requested", res.Requested),
		zap.Int("added", res.Added),
		zap.Int("evicted", res.Evicted),
		zap.Int("size", res.Size),
	)
	return res
}

// clampToCandidates limits tiles at the viewport zoom to the largest index
// present in the set and to the image bound at that zoom.
func (c *Cache[T]) clampToCandidates(candidates []Coord) []Coord {
	z := candidates[0].Z
	maxX, maxY := math.MinInt, math.MinInt
	for _, cand := range candidates {
		if cand.Z == z {
			maxX, maxY = max(maxX, cand.X), max(maxY, cand.Y)
		}
	}
	bx, by := c.indexer.Bound(z)
	maxX, maxY = min(maxX, bx), min(maxY, by)

	out := candidates[:0]
	for _, cand := range candidates {
		if cand.Z != z || (cand.X <= maxX && cand.Y <= maxY) {
			out = append(out, cand)
		}
	}
	return out
}

// resize evicts invisible tiles, oldest first, until at most bound remain.
// Visible tiles are kept even if that leaves the cache over the bound.
func (c *Cache[T]) resize(bound int) int {
	evicted := 0
	for e := c.order.Front(); e != nil && len(c.items) > bound; {
		next := e.Next()
		t := e.Value.(*Tile[T])
		if !t.IsVisible() {
			c.order.Remove(e)
			delete(c.items, t.coord)
			t.release()
			evicted++
		}
		e = next
	}
	return evicted
}

func (c *Cache[T]) publish() {
	snapshot := make([]*Tile[T], 0, len(c.items))
	for e := c.order.Front(); e != nil; e = e.Next() {
		snapshot = append(snapshot, e.Value.(*Tile[T]))
	}
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].coord.Z < snapshot[j].coord.Z
	})
	c.tiles.Store(&snapshot)
}

// Finalize drops every tile and cancels outstanding fetches. The cache can
// be reused afterwards as if newly created.
func (c *Cache[T]) Finalize() {
	for e := c.order.Front(); e != nil; e = e.Next() {
		e.Value.(*Tile[T]).release()
	}
	c.items = make(map[Coord]*list.Element)
	c.order.Init()
	c.tiles.Store(&[]*Tile[T]{})
}

func (c *Cache[T]) clip(coord Coord) orb.Bound {
	b := coord.Footprint(c.indexer.TileSize)
	b.Max[0] = math.Min(b.Max[0], float64(c.indexer.Width))
	b.Max[1] = math.Min(b.Max[1], float64(c.indexer.Height))
	return b
}

// overlapIndex answers whether a coordinate overlaps any candidate without
// comparing it against every candidate.
type overlapIndex struct {
	candidates map[Coord]struct{}
	covered    map[Coord]struct{} // candidates and all their ancestors
	levels     []int
}

func newOverlapIndex(candidates []Coord, minZoom int) overlapIndex {
	idx := overlapIndex{
		candidates: make(map[Coord]struct{}, len(candidates)),
		covered:    make(map[Coord]struct{}, len(candidates)),
	}
	levels := make(map[int]struct{})
	for _, c := range candidates {
		idx.candidates[c] = struct{}{}
		levels[c.Z] = struct{}{}
		for a := c; ; a = a.Parent() {
			if _, ok := idx.covered[a]; ok {
				break
			}
			idx.covered[a] = struct{}{}
			if a.Z <= minZoom {
				break
			}
		}
	}
	for z := range levels {
		idx.levels = append(idx.levels, z)
	}
	return idx
}

func (idx overlapIndex) hit(c Coord) bool {
	if _, ok := idx.covered[c]; ok {
		return true
	}
	for _, z := range idx.levels {
		if z >= c.Z {
			continue
		}
		if _, ok := idx.candidates[c.Ancestor(z)]; ok {
			return true
		}
	}
	return false
}
