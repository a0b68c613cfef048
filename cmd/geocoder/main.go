package main

import (
	"context"
	"errors"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/mapcore/internal/adapters/nats"
	"github.com/samirrijal/mapcore/internal/adapters/nominatim"
	"github.com/samirrijal/mapcore/internal/adapters/postgres"
	"github.com/samirrijal/mapcore/internal/adapters/yandex"
	"github.com/samirrijal/mapcore/internal/core/ports"
	"github.com/samirrijal/mapcore/internal/core/usecases"
	"github.com/samirrijal/mapcore/internal/pkg/config"
	"github.com/samirrijal/mapcore/internal/pkg/logging"
	"github.com/samirrijal/mapcore/internal/workflows"
)

const scheduleID = "mapcore-batch-geocode"

func main() {
	cfg, err := config.Load("mapcore-geocoder")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, slog.String("service", "mapcore-geocoder"))

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, placements will not be broadcast", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	// Providers, uncached
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
	gateway := usecases.NewGeocodingGateway(usecases.GeocodingConfig{
		DefaultProvider: cfg.Geocoding.DefaultProvider,
		Language:        cfg.Geocoding.Language,
		Timeout:         cfg.Geocoding.Timeout,
	}, nil, slog.Default(), geocoders...)

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	if cfg.Temporal.Interval > 0 {
		if err := ensureSchedule(ctx, c, cfg.Temporal); err != nil {
			slog.Error("batch geocode schedule", "error", err)
		}
	}

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.BatchGeocodeWorkflow)
	w.RegisterActivity(&workflows.GeocodingActivities{
		Markers:   postgres.NewMarkerRepo(db),
		Geocoder:  gateway,
		Publisher: publisher,
		Logger:    slog.Default(),
	})

	slog.Info("geocoder worker started", "task_queue", cfg.Temporal.TaskQueue, "providers", gateway.Providers())
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

// ensureSchedule registers a schedule that starts the batch workflow every
// cfg.Interval. An existing schedule is left untouched.
func ensureSchedule(ctx context.Context, c client.Client, cfg config.TemporalConfig) error {
	_, err := c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: scheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: cfg.Interval}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        scheduleID,
			Workflow:  workflows.BatchGeocodeWorkflowName,
			TaskQueue: cfg.TaskQueue,
			Args:      []any{workflows.BatchGeocodeInput{BatchSize: cfg.BatchSize}},
		},
	})
	if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return nil
	}
	return err
}
