package config_test

import (
	"strings"
	"testing"

	"github.com/samirrijal/mapcore/internal/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("mapcore-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Clustering.GridSize != 60 || cfg.Clustering.MinClusterSize != 2 || cfg.Clustering.MaxZoom != 16 {
		t.Errorf("unexpected clustering defaults: %+v", cfg.Clustering)
	}
	if cfg.Geocoding.DefaultProvider != "nominatim" {
		t.Errorf("expected nominatim default, got %q", cfg.Geocoding.DefaultProvider)
	}
	if cfg.Geocoding.Timeout.Seconds() != 10 {
		t.Errorf("expected 10s geocoding timeout, got %s", cfg.Geocoding.Timeout)
	}
	if cfg.Temporal.TaskQueue != "mapcore-geocoding" || cfg.Temporal.Interval.Minutes() != 5 {
		t.Errorf("unexpected temporal defaults: %+v", cfg.Temporal)
	}
	if cfg.Telemetry.ServiceName != "mapcore-test" {
		t.Errorf("expected service name from Load, got %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MAPCORE_CLUSTERING_GRID_SIZE", "120")
	t.Setenv("MAPCORE_ROUTING_DEFAULT_PROVIDER", "graphhopper")
	t.Setenv("MAPCORE_ROUTING_GRAPHHOPPER_API_KEY", "gh-key")

	cfg, err := config.Load("mapcore-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Clustering.GridSize != 120 {
		t.Errorf("expected grid size 120, got %d", cfg.Clustering.GridSize)
	}
	if cfg.Routing.DefaultProvider != "graphhopper" || cfg.Routing.GraphHopperAPIKey != "gh-key" {
		t.Errorf("unexpected routing config: %+v", cfg.Routing)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg, err := config.Load("mapcore-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.Server.Port = 0
	cfg.Clustering.GridSize = 5
	cfg.Geocoding.DefaultProvider = "yandex"

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"server.port", "clustering.grid_size", "geocoding.yandex_api_key"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in error, got:\n%s", want, msg)
		}
	}
}
