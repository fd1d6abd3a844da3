package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cshum/vipsgen/vips"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"pyramidview/internal/cache"
	"pyramidview/internal/catalog"
	"pyramidview/internal/config"
	httphandlers "pyramidview/internal/http"
	"pyramidview/internal/logger"
	"pyramidview/internal/metrics"
	"pyramidview/internal/source"
	"pyramidview/internal/telemetry"
	"pyramidview/internal/viewer"
	"pyramidview/internal/warmup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer(ctx, "pyramidview", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Warn("Tracer shutdown failed", zap.Error(err))
			}
		}()
		log.Info("Tracing enabled", zap.String("endpoint", cfg.OTLPEndpoint))
	}

	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMB * 1024 * 1024,
		MaxCacheFiles:    0, // no disk cache
		MaxCacheSize:     0,
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(vipsConfig)
	defer vips.Shutdown()

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.VipsMaxCacheMB),
		zap.Int("concurrency", cfg.VipsConcurrency),
	)

	log.Info("Starting pyramidview server",
		zap.Int("port", cfg.Port),
		zap.String("data_dir", cfg.DataDir),
		zap.Int("tile_size", cfg.TileSize),
	)

	cat := catalog.New(cfg.DataDir, cfg.TileSize, catalog.VipsProbe, log.Named("catalog"))
	if err := cat.Scan(); err != nil {
		log.Warn("Initial scan failed", zap.Error(err))
	}

	tileCache, err := cache.NewCache(ctx, cache.Config{
		Type:        cfg.CacheType,
		MemoryTiles: cfg.CacheMemoryTiles,
		BigCacheMB:  cfg.CacheBigCacheMB,
		TTL:         cfg.CacheTTL,
		FileDir:     cfg.CacheFileDir,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize cache", zap.Error(err))
	}

	metrics.RegisterByteCache(prometheus.DefaultRegisterer, tileCache)

	local := source.NewVips(cat, tileCache, log.Named("vips"))
	var src source.Source = local
	var pyramids viewer.PyramidFunc = func(ctx context.Context, imageID string) (catalog.Pyramid, error) {
		return cat.Pyramid(imageID)
	}

	if cfg.RemoteURL != "" {
		remote, err := source.NewRemote(cfg.RemoteURL, nil, log.Named("remote"))
		if err != nil {
			log.Fatal("Failed to initialize remote source", zap.Error(err))
		}
		src = &source.Fallback{Primary: local, Secondary: remote, Logger: log.Named("fallback")}
		pyramids = viewer.FirstPyramid(pyramids, remote.Pyramid)
		log.Info("Remote fallback enabled", zap.String("url", cfg.RemoteURL))
	}

	sessions := viewer.NewManager(src, pyramids, viewer.Options{
		MaxTiles:          cfg.ViewportMaxTiles,
		FetchConcurrency:  cfg.ViewportFetchConcurrency,
		PrefetchAncestors: cfg.ViewportPrefetchAncestors,
		TTL:               cfg.SessionTTL,
	}, log.Named("viewer"))
	defer sessions.Close()

	handlers := httphandlers.New(cfg, log, httphandlers.Deps{
		Catalog:   cat,
		Source:    src,
		Pyramids:  pyramids,
		TileCache: tileCache,
		Sessions:  sessions,
	})

	if cfg.WarmupLevels > 0 {
		go warmup.Run(ctx, local, cat.Images(), cat.TileSize(), cfg.WarmupLevels, cfg.WarmupWorkers, log.Named("warmup"))
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handlers.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	<-ctx.Done()

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}
