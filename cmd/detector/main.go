package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aitzol/tilescout/internal/adapters/inference"
	natsadapter "github.com/aitzol/tilescout/internal/adapters/nats"
	"github.com/aitzol/tilescout/internal/adapters/postgres"
	"github.com/aitzol/tilescout/internal/adapters/tiles"
	"github.com/aitzol/tilescout/internal/adapters/valkey"
	"github.com/aitzol/tilescout/internal/core/domain"
	"github.com/aitzol/tilescout/internal/core/ports"
	"github.com/aitzol/tilescout/internal/core/usecases"
	"github.com/aitzol/tilescout/internal/pkg/config"
	"github.com/aitzol/tilescout/internal/pkg/logging"
	"github.com/aitzol/tilescout/internal/pkg/telemetry"
)

// The detector consumes viewport-changed events and runs one detection
// pass per event. A pass already in flight means the event is dropped,
// not retried: the next viewport change will supersede it anyway.
func main() {
	cfg, err := config.Load("tilescout-detector")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		cacheSvc = cache
		defer cache.Close()
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer pub.Close()

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	fetcher := tiles.NewFetcher(cacheSvc)
	capturer := tiles.NewMosaicCapturer(fetcher, cfg.Tiles.URLTemplate)
	runtime := inference.New(cfg.Detection.RuntimeURL, cfg.Detection.ModelPath, cfg.Detection.InputSize)
	runRepo := postgres.NewRunRepo(db)

	detectSvc := usecases.NewDetectService(capturer, runtime, pub, runRepo)
	defer detectSvc.Close()

	err = sub.SubscribeViewports(ctx, func(ctx context.Context, vp *domain.Viewport) error {
		set, err := detectSvc.Detect(ctx, *vp)
		if err != nil {
			// An in-flight pass wins; drop this event rather than retry.
			if errors.Is(err, domain.ErrCaptureBusy) {
				slog.Debug("detection pass skipped", "viewport", vp.ID)
				return nil
			}
			slog.Error("detection pass failed", "viewport", vp.ID, "error", err)
			return err
		}
		slog.Info("detection pass complete",
			"viewport", vp.ID,
			"pass", set.PassID,
			"detections", len(set.Detections),
		)
		return nil
	})
	if err != nil {
		log.Fatalf("subscribe viewports: %v", err)
	}

	slog.Info("detector started", "nats", cfg.NATS.URL)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())
}
