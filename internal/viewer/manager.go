package viewer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"pyramidview/internal/catalog"
	"pyramidview/internal/metrics"
	"pyramidview/internal/source"
	"pyramidview/internal/tiles"
)

var ErrNoSession = errors.New("viewport session not found")

// PyramidFunc resolves the pyramid of an image.
type PyramidFunc func(ctx context.Context, imageID string) (catalog.Pyramid, error)

// FirstPyramid asks each resolver in turn, moving on only while the image is
// not found.
func FirstPyramid(resolvers ...PyramidFunc) PyramidFunc {
	return func(ctx context.Context, imageID string) (catalog.Pyramid, error) {
		err := fmt.Errorf("%w: %s", catalog.ErrNotFound, imageID)
		for _, resolve := range resolvers {
			var p catalog.Pyramid
			p, err = resolve(ctx, imageID)
			if !errors.Is(err, catalog.ErrNotFound) {
				return p, err
			}
		}
		return catalog.Pyramid{}, err
	}
}

// Options configures the caches created for new sessions.
type Options struct {
	MaxTiles          int // zero lets each cache size itself from the viewport
	FetchConcurrency  int
	PrefetchAncestors bool
	TTL               time.Duration
}

// Manager owns the open sessions. Sessions idle for longer than the TTL
// are closed automatically.
type Manager struct {
	src      source.Source
	pyramids PyramidFunc
	opts     Options
	logger   *zap.Logger
	sessions *ttlcache.Cache[string, *Session]
}

func NewManager(src source.Source, pyramids PyramidFunc, opts Options, logger *zap.Logger) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	m := &Manager{
		src:      src,
		pyramids: pyramids,
		opts:     opts,
		logger:   logger,
		sessions: ttlcache.New[string, *Session](ttlcache.WithTTL[string, *Session](opts.TTL)),
	}
	m.sessions.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Session]) {
		if reason == ttlcache.EvictionReasonExpired {
			m.logger.Info("Session expired", zap.String("session_id", item.Key()))
		}
		item.Value().Close()
	})
	go m.sessions.Start()
	return m
}

// Create opens a session on imageID. maxSize overrides the configured cache
// bound when positive.
func (m *Manager) Create(ctx context.Context, imageID string, maxSize int) (*Session, error) {
	p, err := m.pyramids(ctx, imageID)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	log := m.logger.With(zap.String("session_id", id), zap.String("image_id", imageID))
	if maxSize <= 0 {
		maxSize = m.opts.MaxTiles
	}

	tileCache, err := tiles.New(tiles.Config[*source.Tile]{
		Fetch:             source.Bind(m.src, imageID),
		MaxSize:           maxSize,
		MinZoom:           float64(p.MinZoom),
		MaxZoom:           float64(p.MaxZoom),
		Width:             p.Width,
		Height:            p.Height,
		TileSize:          p.TileSize,
		Concurrency:       m.opts.FetchConcurrency,
		PrefetchAncestors: m.opts.PrefetchAncestors,
		OnTileLoad: func(t *tiles.Tile[*source.Tile]) {
			metrics.TilesLoaded.Inc()
			metrics.TileFetchLatency.Observe(t.FetchDuration().Seconds())
		},
		OnTileError: func(t *tiles.Tile[*source.Tile], err error) {
			metrics.TilesErrored.Inc()
			metrics.TileFetchLatency.Observe(t.FetchDuration().Seconds())
			log.Debug("Tile fetch failed", zap.Stringer("tile", t.Coord()), zap.Error(err))
		},
		Logger: log.Named("tiles"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tile cache: %w", err)
	}

	s := &Session{
		id:      id,
		imageID: imageID,
		pyramid: p,
		created: time.Now(),
		logger:  log,
		cache:   tileCache,
	}
	m.sessions.Set(id, s, ttlcache.DefaultTTL)
	metrics.Sessions.Inc()
	log.Info("Session created", zap.Int("min_zoom", p.MinZoom), zap.Int("max_size", maxSize))
	return s, nil
}

// Get returns the session and extends its lifetime.
func (m *Manager) Get(id string) (*Session, error) {
	item := m.sessions.Get(id)
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	return item.Value(), nil
}

// Delete closes and forgets the session.
func (m *Manager) Delete(id string) error {
	item := m.sessions.Get(id, ttlcache.WithDisableTouchOnHit[string, *Session]())
	if item == nil {
		return fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	m.sessions.Delete(id)
	item.Value().Close()
	return nil
}

func (m *Manager) Len() int { return m.sessions.Len() }

// Close closes every session and stops the expiry loop.
func (m *Manager) Close() {
	for _, item := range m.sessions.Items() {
		item.Value().Close()
	}
	m.sessions.DeleteAll()
	m.sessions.Stop()
}
