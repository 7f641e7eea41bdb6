package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/aitzol/tilescout/internal/adapters/http"
	"github.com/aitzol/tilescout/internal/adapters/inference"
	natsadapter "github.com/aitzol/tilescout/internal/adapters/nats"
	"github.com/aitzol/tilescout/internal/adapters/ollama"
	"github.com/aitzol/tilescout/internal/adapters/postgres"
	"github.com/aitzol/tilescout/internal/adapters/qdrant"
	"github.com/aitzol/tilescout/internal/adapters/tiles"
	"github.com/aitzol/tilescout/internal/adapters/valkey"
	"github.com/aitzol/tilescout/internal/core/ports"
	"github.com/aitzol/tilescout/internal/core/usecases"
	"github.com/aitzol/tilescout/internal/pkg/config"
	"github.com/aitzol/tilescout/internal/pkg/logging"
	"github.com/aitzol/tilescout/internal/pkg/metrics"
	"github.com/aitzol/tilescout/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("tilescout-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			case <-ctx.Done():
				return
			}
		}
	}()

	// Cache
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
		cache = nil
	} else {
		cacheSvc = cache
		defer cache.Close()
	}

	// NATS
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
		pub = nil
	} else {
		defer pub.Close()
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Vector store
	store, err := qdrant.New(cfg.Qdrant.Host, cfg.Qdrant.Port)
	if err != nil {
		log.Fatalf("qdrant: %v", err)
	}
	defer store.Close()

	// Embedding models
	embedder, err := ollama.NewEmbedder(cfg.Embedding.OllamaURL, cfg.Embedding.TextModel, cfg.Embedding.VisionModel, cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatalf("ollama: %v", err)
	}

	// Imagery pipeline
	fetcher := tiles.NewFetcher(cacheSvc)
	capturer := tiles.NewMosaicCapturer(fetcher, cfg.Tiles.URLTemplate)

	// Detection runtime
	runtime := inference.New(cfg.Detection.RuntimeURL, cfg.Detection.ModelPath, cfg.Detection.InputSize)

	// Repos
	runRepo := postgres.NewRunRepo(db)

	// Use cases
	rasterizeSvc := usecases.NewRasterizeService(cfg.Tiles.URLTemplate)
	ingestSvc := usecases.NewIngestService(store, embedder, fetcher, runRepo)
	searchSvc := usecases.NewSearchService(store, embedder)

	var events ports.EventPublisher
	if pub != nil {
		events = pub
	}
	detectSvc := usecases.NewDetectService(capturer, runtime, events, runRepo)
	defer detectSvc.Close()

	deps := &http.Dependencies{
		Rasterizer: rasterizeSvc,
		Ingest:     ingestSvc,
		Search:     searchSvc,
		Detect:     detectSvc,
		Runs:       runRepo,
		NATS:       natsConn,
		DB:         db,
		Cache:      cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    10 * 1024 * 1024, // search queries carry base64 images
		AppName:      "TileScout API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
