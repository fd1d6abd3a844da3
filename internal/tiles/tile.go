package tiles

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

var tracer = otel.Tracer("pyramidview/internal/tiles")

// State is the fetch lifecycle of a tile.
type State int32

const (
	StatePending State = iota
	StateLoaded
	StateErrored
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLoaded:
		return "loaded"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// FetchFunc produces the payload of one tile. It may block; ctx is cancelled
// when the tile leaves the cache.
type FetchFunc[T any] func(ctx context.Context, c Coord) (T, error)

// loader carries what a tile needs from its cache to run its fetch.
type loader[T any] struct {
	fetch   FetchFunc[T]
	onLoad  func(*Tile[T])
	onError func(*Tile[T], error)
	sem     *semaphore.Weighted
}

// Tile is one cached pyramid tile. Its payload moves from pending to loaded
// or errored exactly once; visibility is maintained by the owning cache.
type Tile[T any] struct {
	coord  Coord
	bounds orb.Bound

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	state   atomic.Int32
	visible atomic.Bool

	mu      sync.RWMutex
	data    T
	err     error
	elapsed time.Duration
}

// newTile creates the tile and starts its fetch.
func newTile[T any](parent context.Context, c Coord, bounds orb.Bound, l loader[T]) *Tile[T] {
	ctx, cancel := context.WithCancel(parent)
	t := &Tile[T]{
		coord:  c,
		bounds: bounds,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.load(l)
	return t
}

func (t *Tile[T]) load(l loader[T]) {
	ctx, span := tracer.Start(t.ctx, "tiles.fetch", trace.WithAttributes(
		attribute.Int("tile.x", t.coord.X),
		attribute.Int("tile.y", t.coord.Y),
		attribute.Int("tile.z", t.coord.Z),
	))
	defer span.End()

	start := time.Now()
	data, err := t.fetch(ctx, l)

	t.mu.Lock()
	t.data, t.err, t.elapsed = data, err, time.Since(start)
	t.mu.Unlock()

	if err != nil {
		t.state.Store(int32(StateErrored))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		t.state.Store(int32(StateLoaded))
	}
	close(t.done)

	// An evicted tile is no longer the entry for its coordinate.
	if t.ctx.Err() != nil {
		return
	}
	if err != nil {
		if l.onError != nil {
			l.onError(t, err)
		}
		return
	}
	if l.onLoad != nil {
		l.onLoad(t)
	}
}

func (t *Tile[T]) fetch(ctx context.Context, l loader[T]) (data T, err error) {
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return data, err
		}
		defer l.sem.Release(1)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch tile %s: panic: %v", t.coord, r)
		}
	}()
	return l.fetch(ctx, t.coord)
}

// release cancels an in-flight fetch and silences its callbacks.
func (t *Tile[T]) release() {
	t.cancel()
}

func (t *Tile[T]) Coord() Coord { return t.coord }

// Bounds is the tile footprint clipped to the image extent, in
// full-resolution pixels. Edge tiles are smaller than a full footprint.
func (t *Tile[T]) Bounds() orb.Bound { return t.bounds }

func (t *Tile[T]) State() State { return State(t.state.Load()) }

func (t *Tile[T]) IsVisible() bool { return t.visible.Load() }

func (t *Tile[T]) setVisible(v bool) { t.visible.Store(v) }

// Overlaps reports whether the tile's footprint intersects that of c.
func (t *Tile[T]) Overlaps(c Coord) bool { return t.coord.Overlaps(c) }

// Done is closed once the fetch has finished, successfully or not.
func (t *Tile[T]) Done() <-chan struct{} { return t.done }

// Data returns the payload and true once the tile is loaded.
func (t *Tile[T]) Data() (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data, t.State() == StateLoaded
}

// Err returns the fetch error of an errored tile.
func (t *Tile[T]) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// FetchDuration is how long the fetch took; zero while pending.
func (t *Tile[T]) FetchDuration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.elapsed
}

// Wait blocks until the fetch finishes or ctx is done and returns the fetch error.
func (t *Tile[T]) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
