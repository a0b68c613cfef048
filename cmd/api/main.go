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
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/mapcore/internal/adapters/graphhopper"
	"github.com/samirrijal/mapcore/internal/adapters/http"
	natsadapter "github.com/samirrijal/mapcore/internal/adapters/nats"
	"github.com/samirrijal/mapcore/internal/adapters/nominatim"
	"github.com/samirrijal/mapcore/internal/adapters/osrm"
	"github.com/samirrijal/mapcore/internal/adapters/postgres"
	"github.com/samirrijal/mapcore/internal/adapters/valkey"
	"github.com/samirrijal/mapcore/internal/adapters/viewport"
	"github.com/samirrijal/mapcore/internal/adapters/yandex"
	"github.com/samirrijal/mapcore/internal/core/ports"
	"github.com/samirrijal/mapcore/internal/core/usecases"
	"github.com/samirrijal/mapcore/internal/pkg/config"
	"github.com/samirrijal/mapcore/internal/pkg/logging"
	"github.com/samirrijal/mapcore/internal/pkg/metrics"
	"github.com/samirrijal/mapcore/internal/pkg/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load("mapcore-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, slog.String("service", "mapcore-api"))

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

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			case <-ctx.Done():
				return
			}
		}
	}()

	// Cache (optional)
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr, "mapcore:")
	if err != nil {
		slog.Warn("valkey unavailable, provider responses will not be cached", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	// NATS (optional)
	var publisher ports.EventPublisher
	var viewports http.ViewportPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, marker events will not be published", "error", err)
	} else {
		defer pub.Close()
		publisher, viewports = pub, pub
	}
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
	}

	// Providers
	geocoders := []ports.GeocodingProvider{
		nominatim.New(nominatim.Config{
			BaseURL:       cfg.Geocoding.NominatimURL,
			UserAgent:     cfg.Geocoding.NominatimUserAgent,
			RatePerSecond: cfg.Geocoding.NominatimRate,
			Timeout:       cfg.Geocoding.Timeout,
		}),
	}
	if cfg.Geocoding.YandexAPIKey != "" {
		geocoders = append(geocoders, yandex.New(yandex.Config{
			BaseURL: cfg.Geocoding.YandexURL,
			APIKey:  cfg.Geocoding.YandexAPIKey,
			Timeout: cfg.Geocoding.Timeout,
		}))
	}
	geocoding := usecases.NewGeocodingGateway(usecases.GeocodingConfig{
		DefaultProvider: cfg.Geocoding.DefaultProvider,
		Language:        cfg.Geocoding.Language,
		Timeout:         cfg.Geocoding.Timeout,
		CacheTTL:        cfg.Geocoding.CacheTTL,
	}, cacheSvc, slog.Default(), geocoders...)

	routers := []ports.RoutingProvider{
		osrm.New(osrm.Config{BaseURL: cfg.Routing.OSRMURL, Timeout: cfg.Routing.Timeout}),
	}
	if cfg.Routing.GraphHopperAPIKey != "" {
		routers = append(routers, graphhopper.New(graphhopper.Config{
			BaseURL: cfg.Routing.GraphHopperURL,
			APIKey:  cfg.Routing.GraphHopperAPIKey,
			Timeout: cfg.Routing.Timeout,
		}))
	}
	routing := usecases.NewRoutingGateway(usecases.RoutingConfig{
		DefaultProvider: cfg.Routing.DefaultProvider,
		Language:        cfg.Routing.Language,
		Timeout:         cfg.Routing.Timeout,
	}, slog.Default(), routers...)
	slog.Info("providers registered", "geocoding", geocoding.Providers(), "routing", routing.Providers())

	markers := usecases.NewMarkerService(
		postgres.NewMarkerRepo(db),
		publisher,
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

	deps := &http.Dependencies{
		Geocoding:     geocoding,
		Routing:       routing,
		Markers:       markers,
		Viewports:     viewports,
		NATS:          natsConn,
		DB:            db,
		Cache:         cache,
		Version:       version,
		HoverDebounce: cfg.Geocoding.HoverDebounce,
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    4 * 1024 * 1024, // batch marker uploads
		AppName:      "mapcore API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, If-None-Match",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "version", version)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
