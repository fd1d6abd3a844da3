// Package viewer manages viewport sessions, each owning the tile cache of
// one image as seen by one client.
package viewer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"pyramidview/internal/catalog"
	"pyramidview/internal/metrics"
	"pyramidview/internal/source"
	"pyramidview/internal/tiles"
)

// TileInfo describes one cached tile of a session.
type TileInfo struct {
	X       int        `json:"x"`
	Y       int        `json:"y"`
	Z       int        `json:"z"`
	State   string     `json:"state"`
	Visible bool       `json:"visible"`
	Bounds  [4]float64 `json:"bounds"` // min x, min y, max x, max y
	Bytes   int        `json:"bytes,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// Session serializes viewport updates of one client against its cache.
type Session struct {
	id      string
	imageID string
	pyramid catalog.Pyramid
	created time.Time
	logger  *zap.Logger

	mu     sync.Mutex
	cache  *tiles.Cache[*source.Tile]
	last   tiles.UpdateResult
	closed bool
}

func (s *Session) ID() string { return s.id }
func (s *Session) ImageID() string { return s.imageID }
func (s *Session) Pyramid() catalog.Pyramid { return s.pyramid }
func (s *Session) CreatedAt() time.Time { return s.created }

// Update applies a viewport to the session cache.
func (s *Session) Update(v tiles.Viewport) (tiles.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tiles.UpdateResult{}, ErrNoSession
	}

	before := s.cache.Len()
	res := s.cache.Update(v)
	s.last = res

	metrics.ViewportUpdates.Inc()
	metrics.TilesRequested.Add(float64(res.Requested))
	metrics.TilesAdded.Add(float64(res.Added))
	metrics.TilesEvicted.Add(float64(res.Evicted))
	metrics.CachedTiles.Add(float64(res.Size - before))
	return res, nil
}

// LastUpdate returns the result of the most recent Update.
func (s *Session) LastUpdate() tiles.UpdateResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Tiles lists the cached tiles from coarse to fine.
func (s *Session) Tiles() []TileInfo {
	snapshot := s.cache.Tiles()
	out := make([]TileInfo, 0, len(snapshot))
	for _, t := range snapshot {
		out = append(out, describe(t))
	}
	return out
}

// Tile returns the cached tile at c.
func (s *Session) Tile(c tiles.Coord) (*tiles.Tile[*source.Tile], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	return s.cache.Get(c)
}

// Close cancels outstanding fetches and drops every tile. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	metrics.CachedTiles.Sub(float64(s.cache.Len()))
	metrics.Sessions.Dec()
	s.cache.Finalize()
	s.logger.Debug("Session closed")
}

func describe(t *tiles.Tile[*source.Tile]) TileInfo {
	c, b := t.Coord(), t.Bounds()
	info := TileInfo{
		X:       c.X,
		Y:       c.Y,
		Z:       c.Z,
		State:   t.State().String(),
		Visible: t.IsVisible(),
		Bounds:  [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]},
	}
	switch t.State() {
	case tiles.StateLoaded:
		data, _ := t.Data()
		info.Bytes = data.Size()
	case tiles.StateErrored:
		if err := t.Err(); err != nil {
			info.Error = err.Error()
		}
	}
	return info
}
