package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"pyramidview/internal/catalog"
	"pyramidview/internal/tiles"
	"pyramidview/internal/viewer"
)

const maxTileWait = 30 * time.Second

type createSessionRequest struct {
	ImageID string `json:"image_id"`
	MaxSize int    `json:"max_size"`
}

type sessionResponse struct {
	ID        string          `json:"id"`
	ImageID   string          `json:"image_id"`
	Pyramid   catalog.Pyramid `json:"pyramid"`
	CreatedAt time.Time       `json:"created_at"`
}

// viewportRequest carries either explicit world bounds or a screen-sized
// view around a center point.
type viewportRequest struct {
	Zoom *float64 `json:"zoom"`

	MinX *float64 `json:"min_x"`
	MinY *float64 `json:"min_y"`
	MaxX *float64 `json:"max_x"`
	MaxY *float64 `json:"max_y"`

	CenterX  *float64 `json:"center_x"`
	CenterY  *float64 `json:"center_y"`
	WidthPx  int      `json:"width_px"`
	HeightPx int      `json:"height_px"`
}

func (req viewportRequest) viewport() (tiles.Viewport, error) {
	if req.Zoom == nil {
		return tiles.Viewport{}, errors.New("zoom is required")
	}
	switch {
	case req.CenterX != nil && req.CenterY != nil:
		if req.WidthPx <= 0 || req.HeightPx <= 0 {
			return tiles.Viewport{}, errors.New("width_px and height_px must be positive")
		}
		return tiles.NewViewport(orb.Point{*req.CenterX, *req.CenterY}, req.WidthPx, req.HeightPx, *req.Zoom), nil
	case req.MinX != nil && req.MinY != nil && req.MaxX != nil && req.MaxY != nil:
		return tiles.Viewport{
			Zoom:   *req.Zoom,
			Bounds: orb.Bound{Min: orb.Point{*req.MinX, *req.MinY}, Max: orb.Point{*req.MaxX, *req.MaxY}},
		}, nil
	default:
		return tiles.Viewport{}, errors.New("either bounds or center and size are required")
	}
}

type viewportResponse struct {
	Result tiles.UpdateResult `json:"result"`
	Tiles  []viewer.TileInfo  `json:"tiles"`
}

func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ImageID == "" || req.MaxSize < 0 {
		http.Error(w, "image_id is required and max_size must not be negative", http.StatusBadRequest)
		return
	}

	s, err := h.sessions.Create(r.Context(), req.ImageID, req.MaxSize)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{ID: s.ID(), ImageID: s.ImageID(), Pyramid: s.Pyramid(), CreatedAt: s.CreatedAt()})
}

func (h *Handlers) HandleUpdateViewport(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "sid"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req viewportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	v, err := req.viewport()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.Update(v)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewportResponse{Result: res, Tiles: s.Tiles()})
}

func (h *Handlers) HandleSessionTiles(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "sid"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewportResponse{Result: s.LastUpdate(), Tiles: s.Tiles()})
}

// HandleSessionTile answers with the payload of a cached tile. The optional
// wait parameter holds the request until a pending fetch finishes.
func (h *Handlers) HandleSessionTile(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "sid"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var c tiles.Coord
	for _, p := range []struct {
		name string
		dst  *int
	}{{"z", &c.Z}, {"x", &c.X}, {"y", &c.Y}} {
		n, err := strconv.Atoi(chi.URLParam(r, p.name))
		if err != nil {
			http.Error(w, "Invalid tile coordinate "+p.name, http.StatusBadRequest)
			return
		}
		*p.dst = n
	}

	tile, ok := s.Tile(c)
	if !ok {
		http.Error(w, "Tile not cached", http.StatusNotFound)
		return
	}

	if raw := r.URL.Query().Get("wait"); raw != "" {
		wait, err := time.ParseDuration(raw)
		if err != nil || wait < 0 {
			http.Error(w, "Invalid wait duration", http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), min(wait, maxTileWait))
		err = tile.Wait(ctx)
		if err != nil && ctx.Err() != nil {
			h.logger.Debug("Tile still pending after wait",
				zap.String("session_id", chi.URLParam(r, "sid")),
				zap.Stringer("tile", tile.Coord()),
				zap.Duration("wait", wait),
				zap.Error(err))
		}
		cancel()
	}

	state := tile.State()
	w.Header().Set("X-Tile-State", state.String())
	switch state {
	case tiles.StatePending:
		w.WriteHeader(http.StatusAccepted)
	case tiles.StateErrored:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": tile.Err().Error()})
	default:
		data, _ := tile.Data()
		w.Header().Set("Cache-Control", "private, max-age=60")
		writeTile(w, r, data)
	}
}

func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "sid")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
