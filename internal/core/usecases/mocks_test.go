package usecases_test

import (
	"context"
	"errors"
	"sync"

	"github.com/samirrijal/mapcore/internal/core/domain"
)

// --- Mock GeocodingProvider ---

type mockGeocoder struct {
	name      string
	searchFn  func(ctx context.Context, query string, opts domain.GeocodingOptions) ([]domain.GeocodeResult, error)
	reverseFn func(ctx context.Context, coords domain.LngLat, opts domain.GeocodingOptions) (*domain.ReverseGeocodingResult, error)
	calls     int
}

func (m *mockGeocoder) Name() string { return m.name }

func (m *mockGeocoder) Search(ctx context.Context, query string, opts domain.GeocodingOptions) ([]domain.GeocodeResult, error) {
	m.calls++
	if m.searchFn != nil {
		return m.searchFn(ctx, query, opts)
	}
	return nil, nil
}

func (m *mockGeocoder) Reverse(ctx context.Context, coords domain.LngLat, opts domain.GeocodingOptions) (*domain.ReverseGeocodingResult, error) {
	m.calls++
	if m.reverseFn != nil {
		return m.reverseFn(ctx, coords, opts)
	}
	return nil, domain.ErrAddressNotFound
}

// --- Mock RoutingProvider ---

type mockRouter struct {
	name    string
	routeFn func(ctx context.Context, start, end domain.RoutePoint, waypoints []domain.RoutePoint, opts domain.RouteOptions) (*domain.RoutingResult, error)
	calls   int
}

func (m *mockRouter) Name() string { return m.name }

func (m *mockRouter) CalculateRoute(ctx context.Context, start, end domain.RoutePoint, waypoints []domain.RoutePoint, opts domain.RouteOptions) (*domain.RoutingResult, error) {
	m.calls++
	if m.routeFn != nil {
		return m.routeFn(ctx, start, end, waypoints, opts)
	}
	return nil, nil
}

// --- In-memory CacheService ---

var errCacheMiss = errors.New("cache miss")

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}
