package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/WongZhiYun/Lost-Found/api"
	"github.com/WongZhiYun/Lost-Found/cache"
	"github.com/WongZhiYun/Lost-Found/config"
	"github.com/WongZhiYun/Lost-Found/logger"
	"github.com/WongZhiYun/Lost-Found/search"
	"github.com/WongZhiYun/Lost-Found/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Initialize Storage
	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.URL, cfg.Database.Schema)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer store.Close()
	if cfg.Database.Driver == "memory" {
		log.Warn("Using the in-memory report store; results will be empty until reports are loaded")
	}

	var opts []search.Option
	fpCache, err := cache.Open(ctx, cfg.Cache.Backend, cfg.Cache.Size, cfg.Cache.TTL, cache.RedisConfig{
		Address:  cfg.Cache.Redis.Address,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
	if err != nil {
		log.Fatal("Failed to initialize fingerprint cache", zap.String("backend", cfg.Cache.Backend), zap.Error(err))
	}
	if fpCache != nil {
		if c, ok := fpCache.(io.Closer); ok {
			defer c.Close()
		}
		opts = append(opts, search.WithFingerprintCache(fpCache))
	}

	engine := search.NewEngine(store, search.Config{
		DefaultAlpha:      &cfg.Search.DefaultAlpha,
		PageSize:          cfg.Search.PageSize,
		MaxPageSize:       cfg.Search.MaxPageSize,
		ImageTopN:         cfg.Search.ImageTopN,
		Workers:           cfg.Search.Workers,
		ParallelThreshold: cfg.Search.ParallelThreshold,
	}, log, opts...)

	// Initialize Router
	handler := api.NewHandler(engine, log, cfg.Uploads.PublicURL, cfg.Search.MaxUploadBytes)
	router := api.NewRouter(handler, log, cfg.Server.AllowedOrigins)

	// Start Server
	server := &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: router,
	}

	go func() {
		log.Info("Search service running",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.Database.Driver),
			zap.String("schema", cfg.Database.Schema),
			zap.String("cache", cfg.Cache.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	log.Info("Server stopped")
}
