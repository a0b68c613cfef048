package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	natsadapter "github.com/samirrijal/mapcore/internal/adapters/nats"
	"github.com/samirrijal/mapcore/internal/adapters/postgres"
	"github.com/samirrijal/mapcore/internal/adapters/viewport"
	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/usecases"
	"github.com/samirrijal/mapcore/internal/pkg/config"
	"github.com/samirrijal/mapcore/internal/pkg/logging"
	"github.com/samirrijal/mapcore/internal/pkg/metrics"
	"github.com/samirrijal/mapcore/internal/pkg/telemetry"
)

const (
	sweepInterval = time.Minute
	viewIdleLimit = 10 * time.Minute
)

func main() {
	cfg, err := config.Load("mapcore-relay")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, slog.String("service", "mapcore-relay"))

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

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

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

	relay := usecases.NewViewRelay(
		postgres.NewMarkerRepo(db),
		pub,
		viewport.Factory,
		usecases.ClustererOptions{
			GridSize:        cfg.Clustering.GridSize,
			MinClusterSize:  cfg.Clustering.MinClusterSize,
			MaxZoom:         cfg.Clustering.MaxZoom,
			ZoomMargin:      cfg.Clustering.ZoomMargin,
			RevealThreshold: cfg.Clustering.RevealThreshold,
			BoundsDebounce:  cfg.Clustering.BoundsDebounce,
		},
		cfg.Clustering.MaxMarkers,
		slog.Default(),
	)
	defer relay.Shutdown()

	if err := sub.SubscribeViewports(ctx, func(ctx context.Context, ev *domain.ViewportEvent) error {
		return dropInvalid(relay.HandleViewport(ctx, ev), "viewport", ev.ViewID)
	}); err != nil {
		log.Fatalf("subscribe viewports: %v", err)
	}
	if err := sub.SubscribeMarkerEvents(ctx, func(ctx context.Context, ev *domain.MarkerEvent) error {
		return dropInvalid(relay.HandleMarkerEvent(ctx, ev), "marker", ev.ID)
	}); err != nil {
		log.Fatalf("subscribe markers: %v", err)
	}

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := relay.Sweep(viewIdleLimit); n > 0 {
					slog.Info("idle views closed", "count", n, "live", relay.Len())
				}
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			case <-ctx.Done():
				return
			}
		}
	}()

	// Metrics and liveness only.
	app := fiber.New(fiber.Config{DisableStartupMessage: true, AppName: "mapcore relay"})
	app.Get("/metrics", metrics.Handler())
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "views": relay.Len(), "nats": pub.Connected()})
	})
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		if err := app.Listen(addr); err != nil {
			slog.Error("metrics listener stopped", "error", err)
		}
	}()

	slog.Info("cluster relay started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutting down relay", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = app.ShutdownWithContext(shutdownCtx)
}

// dropInvalid acknowledges malformed events instead of redelivering them.
func dropInvalid(err error, kind, id string) error {
	if errors.Is(err, domain.ErrInvalidInput) {
		slog.Warn("dropping invalid event", "kind", kind, "id", id, "error", err)
		return nil
	}
	return err
}
