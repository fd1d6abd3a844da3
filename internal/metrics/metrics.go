package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ViewportUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyramidview_viewport_updates_total",
		Help: "Total number of viewport updates applied to session caches",
	})

	TilesRequested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyramidview_tiles_requested_total",
		Help: "Total number of candidate tiles selected by viewport updates",
	})

	TilesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyramidview_tiles_added_total",
		Help: "Total number of tiles created in session caches",
	})

	TilesEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyramidview_tiles_evicted_total",
		Help: "Total number of tiles evicted from session caches",
	})

	TilesLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyramidview_tiles_loaded_total",
		Help: "Total number of tile fetches that succeeded",
	})

	TilesErrored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyramidview_tiles_errored_total",
		Help: "Total number of tile fetches that failed",
	})

	TileFetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pyramidview_tile_fetch_latency_seconds",
		Help:    "Latency of tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	CachedTiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pyramidview_cached_tiles",
		Help: "Number of tiles held by all session caches",
	})

	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pyramidview_sessions",
		Help: "Number of open viewport sessions",
	})

	DirectTileRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pyramidview_direct_tile_requests_total",
		Help: "Total number of tiles served by the direct tile route",
	}, []string{"status"})
)

// RegisterByteCache exports the number of rendered tiles held by c.
func RegisterByteCache(reg prometheus.Registerer, c interface{ Len() int }) prometheus.GaugeFunc {
	return promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pyramidview_byte_cache_tiles",
		Help: "Number of rendered tiles held by the byte cache",
	}, func() float64 { return float64(c.Len()) })
}
