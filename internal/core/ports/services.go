package ports

import (
	"context"

	"github.com/samirrijal/mapcore/internal/core/domain"
)

// GeocodingProvider translates text to coordinates and back for one backend.
type GeocodingProvider interface {
	Name() string
	Search(ctx context.Context, query string, opts domain.GeocodingOptions) ([]domain.GeocodeResult, error)
	// Reverse returns domain.ErrAddressNotFound when the backend has no match.
	Reverse(ctx context.Context, coords domain.LngLat, opts domain.GeocodingOptions) (*domain.ReverseGeocodingResult, error)
}

// RoutingProvider computes routes through ordered waypoints for one backend.
type RoutingProvider interface {
	Name() string
	CalculateRoute(ctx context.Context, start, end domain.RoutePoint, waypoints []domain.RoutePoint, opts domain.RouteOptions) (*domain.RoutingResult, error)
}

// EventPublisher publishes map events to a message broker.
type EventPublisher interface {
	PublishMarkerEvent(ctx context.Context, ev *domain.MarkerEvent) error
	PublishSnapshot(ctx context.Context, viewID string, snap *domain.ClusterSnapshot) error
}

// EventSubscriber subscribes to map events from a message broker.
type EventSubscriber interface {
	SubscribeMarkerEvents(ctx context.Context, handler func(ctx context.Context, ev *domain.MarkerEvent) error) error
	SubscribeViewports(ctx context.Context, handler func(ctx context.Context, ev *domain.ViewportEvent) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
