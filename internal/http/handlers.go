package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pyramidview/internal/cache"
	"pyramidview/internal/catalog"
	"pyramidview/internal/config"
	"pyramidview/internal/metrics"
	"pyramidview/internal/source"
	"pyramidview/internal/telemetry"
	"pyramidview/internal/tiles"
	"pyramidview/internal/viewer"
)

type Handlers struct {
	config    *config.Config
	logger    *zap.Logger
	catalog   *catalog.Catalog
	source    source.Source
	pyramids  viewer.PyramidFunc
	tileCache cache.Cache
	sessions  *viewer.Manager
}

// Deps are the components the handlers serve from. Pyramids defaults to the
// catalog and TileCache to a disabled cache.
type Deps struct {
	Catalog   *catalog.Catalog
	Source    source.Source
	Pyramids  viewer.PyramidFunc
	TileCache cache.Cache
	Sessions  *viewer.Manager
}

func New(config *config.Config, logger *zap.Logger, deps Deps) *Handlers {
	h := &Handlers{
		config:    config,
		logger:    logger,
		catalog:   deps.Catalog,
		source:    deps.Source,
		pyramids:  deps.Pyramids,
		tileCache: deps.TileCache,
		sessions:  deps.Sessions,
	}
	if h.pyramids == nil {
		h.pyramids = func(ctx context.Context, imageID string) (catalog.Pyramid, error) {
			return h.catalog.Pyramid(imageID)
		}
	}
	if h.tileCache == nil {
		h.tileCache = cache.NewNoopCache()
	}
	return h
}

// Router wires every route and middleware.
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.RequestLoggingMiddleware)
	if h.config.TracingEnabled {
		r.Use(telemetry.Middleware)
	}
	r.Use(h.corsHandler())

	r.Get("/healthz", h.HandleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		compressed := r.With(gzipMiddleware)
		compressed.Get("/images", h.HandleImages)
		compressed.Get("/images/{id}/meta", h.HandleImageMeta)

		r.Get("/images/{id}/tiles/{z}/{x}/{file}", h.HandleTile)
		r.Head("/images/{id}/tiles/{z}/{x}/{file}", h.HandleTile)

		r.Delete("/cache", h.HandleClearCache)

		r.Route("/sessions", func(r chi.Router) {
			r.With(gzipMiddleware).Post("/", h.HandleCreateSession)
			r.Route("/{sid}", func(r chi.Router) {
				r.With(gzipMiddleware).Put("/viewport", h.HandleUpdateViewport)
				r.With(gzipMiddleware).Get("/tiles", h.HandleSessionTiles)
				r.Get("/tiles/{z}/{x}/{y}", h.HandleSessionTile)
				r.Delete("/", h.HandleDeleteSession)
			})
		})
	})
	return r
}

func gzipMiddleware(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

func (h *Handlers) corsHandler() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"ETag", "X-Tile-Bytes", "X-Tile-State"},
		MaxAge:         300,
	}
	if len(h.config.AllowedOrigins) > 0 {
		opts.AllowedOrigins = h.config.AllowedOrigins
	} else {
		// Without configured origins only pages served from this host may call the API.
		opts.AllowOriginFunc = func(r *http.Request, origin string) bool {
			return origin == "http://"+r.Host || origin == "https://"+r.Host
		}
	}
	return cors.Handler(opts)
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		ip := h.extractIP(r)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", ip),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", wrapped.bytesWritten),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// HandleClearCache drops every rendered tile from the byte cache.
func (h *Handlers) HandleClearCache(w http.ResponseWriter, r *http.Request) {
	dropped := h.tileCache.Len()
	h.tileCache.Clear()
	h.logger.Info("Tile cache cleared", zap.Int("dropped", dropped))
	writeJSON(w, http.StatusOK, map[string]int{"dropped": dropped})
}

func (h *Handlers) HandleImages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Images())
}

func (h *Handlers) HandleImageMeta(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "id")
	p, err := h.pyramids(r.Context(), imageID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	meta := map[string]interface{}{
		"width":    p.Width,
		"height":   p.Height,
		"tileSize": p.TileSize,
		"minZoom":  p.MinZoom,
		"maxZoom":  p.MaxZoom,
		"levels":   p.Levels(),
		"format":   "jpeg",
	}
	// Remote images have no local file.
	if img, err := h.catalog.Get(imageID); err == nil {
		meta["bytes"] = img.Bytes
	}
	writeJSON(w, http.StatusOK, meta)
}

// HandleTile serves a tile straight from the source, outside any session.
func (h *Handlers) HandleTile(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "id")
	if _, err := h.pyramids(r.Context(), imageID); err != nil {
		h.writeError(w, err)
		return
	}

	z, err := strconv.Atoi(chi.URLParam(r, "z"))
	if err != nil {
		http.Error(w, "Invalid zoom level", http.StatusBadRequest)
		return
	}
	x, err := strconv.Atoi(chi.URLParam(r, "x"))
	if err != nil || x < 0 {
		http.Error(w, "Invalid x coordinate", http.StatusBadRequest)
		return
	}

	tileFile := chi.URLParam(r, "file")
	ext := filepath.Ext(tileFile)
	y, err := strconv.Atoi(strings.TrimSuffix(tileFile, ext))
	if err != nil || y < 0 {
		http.Error(w, "Invalid y coordinate", http.StatusBadRequest)
		return
	}
	if format := strings.TrimPrefix(ext, "."); format != "jpg" && format != "jpeg" {
		http.Error(w, "Invalid format", http.StatusBadRequest)
		return
	}

	tile, err := h.source.FetchTile(r.Context(), imageID, tiles.Coord{X: x, Y: y, Z: z})
	if err != nil {
		metrics.DirectTileRequests.WithLabelValues("error").Inc()
		h.writeError(w, err)
		return
	}
	metrics.DirectTileRequests.WithLabelValues("ok").Inc()

	w.Header().Set("Cache-Control", "public, max-age=31536000")
	writeTile(w, r, tile)
}

func writeTile(w http.ResponseWriter, r *http.Request, tile *source.Tile) {
	if tile.ETag != "" {
		w.Header().Set("ETag", `"`+tile.ETag+`"`)
		if r.Header.Get("If-None-Match") == `"`+tile.ETag+`"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.Header().Set("Content-Type", tile.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(tile.Size()))
	w.Header().Set("X-Tile-Bytes", strconv.Itoa(tile.Size()))

	// HEAD request doesn't send body
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Write(tile.Data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, viewer.ErrNoSession):
		status = http.StatusNotFound
	case errors.Is(err, source.ErrOutOfRange):
		status = http.StatusNotFound
	case errors.Is(err, tiles.ErrInvalidConfig):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Not for real production use due to potential spoofing
// but it's fine for a demo
func (h *Handlers) extractIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip != "" {
		return strings.Split(ip, ":")[0]
	}

	addr := r.RemoteAddr
	if addr != "" {
		return strings.Split(addr, ":")[0]
	}

	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
