package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/ports"
	"github.com/samirrijal/mapcore/internal/pkg/geospatial"
	"github.com/samirrijal/mapcore/internal/pkg/metrics"
	"github.com/samirrijal/mapcore/internal/pkg/telemetry"
)

// WalkingSpeed is the pace assumed for straight-line routes, in m/s.
const WalkingSpeed = 1.4

// StraightProvider is the provider name reported for straight-line routes.
const StraightProvider = "straight"

// RoutingConfig configures a RoutingGateway.
type RoutingConfig struct {
	DefaultProvider string
	Language        string
	// Timeout bounds each provider call. Zero means 10s.
	Timeout time.Duration
}

// RoutingGateway computes routes through registered providers.
type RoutingGateway struct {
	cfg    RoutingConfig
	logger *slog.Logger

	mu          sync.RWMutex
	providers   map[string]ports.RoutingProvider
	order       []string
	defaultName string
}

// NewRoutingGateway creates a gateway with the given providers. When
// cfg.DefaultProvider is empty the first provider becomes the default.
func NewRoutingGateway(cfg RoutingConfig, logger *slog.Logger, providers ...ports.RoutingProvider) *RoutingGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultNetTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &RoutingGateway{
		cfg:       cfg,
		logger:    logger.With("component", "routing"),
		providers: make(map[string]ports.RoutingProvider),
	}
	for _, p := range providers {
		g.AddProvider(p)
	}
	if cfg.DefaultProvider != "" {
		if err := g.SetDefaultProvider(cfg.DefaultProvider); err != nil {
			g.logger.Warn("default provider not registered", "provider", cfg.DefaultProvider)
		}
	}
	return g
}

// AddProvider registers p under p.Name().
func (g *RoutingGateway) AddProvider(p ports.RoutingProvider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	name := p.Name()
	if _, ok := g.providers[name]; !ok {
		g.order = append(g.order, name)
	}
	g.providers[name] = p
	if g.defaultName == "" {
		g.defaultName = name
	}
}

// SetDefaultProvider selects the provider used when a call names none.
func (g *RoutingGateway) SetDefaultProvider(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.providers[name]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrProviderNotFound, name)
	}
	g.defaultName = name
	return nil
}

// Providers lists registered provider names in registration order.
func (g *RoutingGateway) Providers() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

func (g *RoutingGateway) provider(name string) (ports.RoutingProvider, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if name == "" {
		name = g.defaultName
	}
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// CalculateRoute asks the named (or default) provider for a route from
// start to end through waypoints. Provider failures surface as
// ErrRoutingFailed.
func (g *RoutingGateway) CalculateRoute(ctx context.Context, start, end domain.RoutePoint, waypoints []domain.RoutePoint, opts domain.RouteOptions, providerName string) (*domain.RoutingResult, error) {
	p, err := g.provider(providerName)
	if err != nil {
		return nil, err
	}

	all := append([]domain.RoutePoint{start}, waypoints...)
	all = append(all, end)
	for i, wp := range all {
		if !wp.Coordinates.Point().Valid() {
			return nil, fmt.Errorf("%w: waypoint %d has invalid coordinates %v", domain.ErrInvalidInput, i, wp.Coordinates)
		}
	}
	if opts.Profile == "" {
		opts.Profile = domain.ProfileDriving
	}
	if opts.Language == "" {
		opts.Language = g.cfg.Language
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "routing.calculate",
		attribute.String("provider", p.Name()),
		attribute.String("profile", string(opts.Profile)),
		attribute.Int("waypoints", len(all)),
	)

	began := time.Now()
	res, err := p.CalculateRoute(ctx, start, end, waypoints, opts)
	if err == nil && (res == nil || len(res.Routes) == 0) {
		err = fmt.Errorf("%w: %s returned no routes", domain.ErrRoutingFailed, p.Name())
	}
	metrics.ObserveProvider(p.Name(), "route", began, err)
	telemetry.EndSpan(span, err)
	if err != nil {
		g.logger.Warn("route failed", "provider", p.Name(), "error", err)
		if errors.Is(err, domain.ErrRoutingFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrRoutingFailed, p.Name(), err)
	}

	if res.Provider == "" {
		res.Provider = p.Name()
	}
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now().UTC()
	}
	if len(res.Waypoints) == 0 {
		res.Waypoints = all
	}
	for i := range res.Routes {
		r := &res.Routes[i]
		if r.ID == "" {
			r.ID = p.Name() + "_" + uuid.NewString()
		}
		if r.Summary == "" {
			r.Summary = domain.RouteSummary(r.DistanceMeters, r.DurationSeconds)
		}
		if r.Bounds.IsEmpty() && len(r.Coordinates) > 0 {
			r.Bounds = geospatial.LineBounds(r.Coordinates)
		}
	}
	return res, nil
}

// CreateStraightRoute builds a single-step great-circle route without any
// network call, timed at walking speed.
func (g *RoutingGateway) CreateStraightRoute(start, end domain.RoutePoint) *domain.RoutingResult {
	return StraightRoute(start, end)
}

// StraightRoute is CreateStraightRoute without a gateway.
func StraightRoute(start, end domain.RoutePoint) *domain.RoutingResult {
	distance := geospatial.Distance(start.Coordinates, end.Coordinates)
	duration := distance / WalkingSpeed
	coords := []domain.LngLat{start.Coordinates, end.Coordinates}

	target := end.Name
	if target == "" {
		target = "пункту назначения"
	}

	return &domain.RoutingResult{
		Routes: []domain.Route{{
			ID:              StraightProvider + "_" + uuid.NewString(),
			Coordinates:     coords,
			DistanceMeters:  distance,
			DurationSeconds: duration,
			Steps: []domain.RouteStep{{
				Coordinates:     coords,
				Instruction:     "Двигайтесь к " + target,
				DistanceMeters:  distance,
				DurationSeconds: duration,
				Maneuver:        domain.Maneuver{Type: "depart"},
			}},
			Bounds:  geospatial.LineBounds(coords),
			Summary: domain.FormatDistance(distance) + " по прямой",
		}},
		Waypoints: []domain.RoutePoint{start, end},
		Provider:  StraightProvider,
		Timestamp: time.Now().UTC(),
	}
}

// FormatDistance renders meters for display.
func (g *RoutingGateway) FormatDistance(meters float64) string {
	return domain.FormatDistance(meters)
}

// FormatDuration renders seconds for display.
func (g *RoutingGateway) FormatDuration(seconds float64) string {
	return domain.FormatDuration(seconds)
}

// Direction names the compass sector of bearing.
func (g *RoutingGateway) Direction(bearing float64) string {
	return domain.CompassDirection(bearing)
}
