package http

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/mapcore/internal/adapters/postgres"
	"github.com/samirrijal/mapcore/internal/adapters/valkey"
	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/usecases"
)

// ViewportPublisher announces client viewports to the cluster relay.
type ViewportPublisher interface {
	PublishViewport(ctx context.Context, ev *domain.ViewportEvent) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Geocoding *usecases.GeocodingGateway
	Routing   *usecases.RoutingGateway
	Markers   *usecases.MarkerService
	Viewports ViewportPublisher
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache
	Version   string
	// HoverDebounce delays reverse geocoding of WebSocket hover messages.
	HoverDebounce time.Duration
}
