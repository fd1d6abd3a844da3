package viewer

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"pyramidview/internal/catalog"
	"pyramidview/internal/source"
	"pyramidview/internal/tiles"
)

func testPyramids(ctx context.Context, imageID string) (catalog.Pyramid, error) {
	if imageID != "img" {
		return catalog.Pyramid{}, catalog.ErrNotFound
	}
	return catalog.NewPyramid(2000, 1500, 256), nil
}

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m := NewManager(source.NewDebug(256), testPyramids, opts, zaptest.NewLogger(t))
	t.Cleanup(m.Close)
	return m
}

func fullView() tiles.Viewport {
	return tiles.Viewport{Zoom: 0, Bounds: tiles.NewViewport([2]float64{1000, 750}, 2000, 1500, 0).Bounds}
}

func TestManager_SessionLifecycle(t *testing.T) {
	m := newTestManager(t, Options{})

	s, err := m.Create(context.Background(), "img", 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.Pyramid().MinZoom != -3 || s.ImageID() != "img" {
		t.Fatalf("unexpected session %+v", s.Pyramid())
	}
	got, err := m.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("expected the created session, got %v (%v)", got, err)
	}

	res, err := s.Update(fullView())
	if err != nil {
		t.Fatal(err)
	}
	if res.Requested != 48 || res.Size != 48 || s.LastUpdate() != res {
		t.Fatalf("unexpected update %+v", res)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, info := range s.Tiles() {
		tile, ok := s.Tile(tiles.Coord{X: info.X, Y: info.Y, Z: info.Z})
		if !ok {
			t.Fatalf("listed tile %+v not found", info)
		}
		if err := tile.Wait(ctx); err != nil {
			t.Fatalf("tile %v failed: %v", tile.Coord(), err)
		}
	}

	infos := s.Tiles()
	if len(infos) != 48 {
		t.Fatalf("expected 48 tiles, got %d", len(infos))
	}
	for _, info := range infos {
		if info.State != "loaded" || !info.Visible || info.Bytes == 0 {
			t.Fatalf("unexpected tile info %+v", info)
		}
		if info.X == 7 && info.Bounds[2] != 2000 {
			t.Fatalf("edge tile not clipped: %+v", info)
		}
	}

	if err := m.Delete(s.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := s.Update(fullView()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("closed session accepted an update: %v", err)
	}
	if len(s.Tiles()) != 0 {
		t.Fatal("closed session still lists tiles")
	}
	if err := m.Delete(s.ID()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("second delete: expected ErrNoSession, got %v", err)
	}
}

func TestManager_UnknownImage(t *testing.T) {
	m := newTestManager(t, Options{})
	if _, err := m.Create(context.Background(), "nope", 0); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if m.Len() != 0 {
		t.Fatal("failed create left a session")
	}
}

func TestManager_MaxSizeOverride(t *testing.T) {
	m := newTestManager(t, Options{MaxTiles: 500})

	s, err := m.Create(context.Background(), "img", 3)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Update(fullView())
	if err != nil {
		t.Fatal(err)
	}
	if res.Bound != 3 {
		t.Fatalf("expected bound 3, got %+v", res)
	}

	s, err = m.Create(context.Background(), "img", 0)
	if err != nil {
		t.Fatal(err)
	}
	if res, _ = s.Update(fullView()); res.Bound != 500 {
		t.Fatalf("expected configured bound 500, got %+v", res)
	}
}

func TestManager_IdleSessionsExpire(t *testing.T) {
	m := newTestManager(t, Options{TTL: 50 * time.Millisecond})

	s, err := m.Create(context.Background(), "img", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Update(fullView()); err != nil {
		t.Fatal(err)
	}

	// Updates on the session itself do not extend its lifetime, lookups do.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := s.Update(fullView()); errors.Is(err, ErrNoSession) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session did not expire")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestManager_Close(t *testing.T) {
	m := NewManager(source.NewDebug(256), testPyramids, Options{}, zaptest.NewLogger(t))
	var sessions []*Session
	for i := 0; i < 3; i++ {
		s, err := m.Create(context.Background(), "img", 0)
		if err != nil {
			t.Fatal(err)
		}
		sessions = append(sessions, s)
	}
	m.Close()

	if m.Len() != 0 {
		t.Fatalf("expected no sessions, got %d", m.Len())
	}
	for _, s := range sessions {
		if _, err := s.Update(fullView()); !errors.Is(err, ErrNoSession) {
			t.Fatalf("session %s still open", s.ID())
		}
	}
}

func TestFirstPyramid(t *testing.T) {
	boom := errors.New("remote down")
	remote := func(ctx context.Context, imageID string) (catalog.Pyramid, error) {
		switch imageID {
		case "remote":
			return catalog.NewPyramid(4000, 4000, 256), nil
		case "broken":
			return catalog.Pyramid{}, boom
		}
		return catalog.Pyramid{}, catalog.ErrNotFound
	}
	resolve := FirstPyramid(testPyramids, remote)
	ctx := context.Background()

	if p, err := resolve(ctx, "img"); err != nil || p.Width != 2000 {
		t.Fatalf("local image: %+v %v", p, err)
	}
	if p, err := resolve(ctx, "remote"); err != nil || p.Width != 4000 {
		t.Fatalf("remote image: %+v %v", p, err)
	}
	if _, err := resolve(ctx, "broken"); !errors.Is(err, boom) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if _, err := resolve(ctx, "nowhere"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := FirstPyramid()(ctx, "img"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("empty chain should report not found, got %v", err)
	}
}
