package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/ports"
	"github.com/samirrijal/mapcore/internal/pkg/geospatial"
	"github.com/samirrijal/mapcore/internal/pkg/metrics"
	"github.com/samirrijal/mapcore/internal/pkg/telemetry"
)

const (
	defaultSearchLimit = 10
	defaultNetTimeout  = 10 * time.Second
)

// GeocodingConfig configures a GeocodingGateway.
type GeocodingConfig struct {
	DefaultProvider string
	// Language is used when a request does not set one.
	Language string
	// Timeout bounds each provider call. Zero means 10s.
	Timeout time.Duration
	// CacheTTL of zero disables caching.
	CacheTTL time.Duration
}

// GeocodingGateway routes geocoding requests to registered providers and
// normalizes their answers.
type GeocodingGateway struct {
	cfg    GeocodingConfig
	cache  ports.CacheService
	logger *slog.Logger

	mu          sync.RWMutex
	providers   map[string]ports.GeocodingProvider
	order       []string
	defaultName string
}

// NewGeocodingGateway creates a gateway with the given providers. When
// cfg.DefaultProvider is empty the first provider becomes the default.
func NewGeocodingGateway(cfg GeocodingConfig, cache ports.CacheService, logger *slog.Logger, providers ...ports.GeocodingProvider) *GeocodingGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultNetTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &GeocodingGateway{
		cfg:       cfg,
		cache:     cache,
		logger:    logger.With("component", "geocoding"),
		providers: make(map[string]ports.GeocodingProvider),
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

// AddProvider registers p under p.Name(), replacing any provider with that name.
func (g *GeocodingGateway) AddProvider(p ports.GeocodingProvider) {
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
func (g *GeocodingGateway) SetDefaultProvider(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.providers[name]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrProviderNotFound, name)
	}
	g.defaultName = name
	return nil
}

// DefaultProvider returns the name of the default provider.
func (g *GeocodingGateway) DefaultProvider() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.defaultName
}

// Providers lists registered provider names in registration order.
func (g *GeocodingGateway) Providers() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

func (g *GeocodingGateway) provider(name string) (ports.GeocodingProvider, error) {
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

// Search geocodes query. The returned results are ranked by relevance and
// filtered by opts.Types, opts.CountryCode and opts.BBox while being
// iterated, and can be iterated only once.
func (g *GeocodingGateway) Search(ctx context.Context, query string, opts domain.GeocodingOptions, providerName string) (*GeocodeResults, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultSearchLimit
	}
	if opts.Language == "" {
		opts.Language = g.cfg.Language
	}

	p, err := g.provider(providerName)
	if err != nil {
		return nil, err
	}

	cacheKey := searchCacheKey(p.Name(), query, opts)
	if raw, ok := g.cached(ctx, "geocode_search", cacheKey); ok {
		var results []domain.GeocodeResult
		if err := json.Unmarshal(raw, &results); err == nil {
			return newGeocodeResults(p.Name(), results, opts), nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "geocoding.search",
		attribute.String("provider", p.Name()),
		attribute.Int("limit", opts.Limit),
	)

	start := time.Now()
	results, err := p.Search(ctx, query, opts)
	metrics.ObserveProvider(p.Name(), "search", start, err)
	telemetry.EndSpan(span, err)
	if err != nil {
		g.logger.Warn("search failed", "provider", p.Name(), "error", err)
		return nil, geocodingError(p.Name(), err)
	}

	for i := range results {
		if results[i].Provider == "" {
			results[i].Provider = p.Name()
		}
	}
	g.store(ctx, cacheKey, results)

	return newGeocodeResults(p.Name(), results, opts), nil
}

// Reverse returns the address at coords. It fails with ErrAddressNotFound
// when the provider has no match.
func (g *GeocodingGateway) Reverse(ctx context.Context, coords domain.LngLat, opts domain.GeocodingOptions, providerName string) (*domain.ReverseGeocodingResult, error) {
	if !coords.Point().Valid() {
		return nil, fmt.Errorf("%w: coordinates %v", domain.ErrInvalidInput, coords)
	}
	if opts.Language == "" {
		opts.Language = g.cfg.Language
	}

	p, err := g.provider(providerName)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("geocode:reverse:%s:%s:%s",
		p.Name(), opts.Language, geospatial.CellKey(coords.Point(), geospatial.ReverseCacheLevel))
	if raw, ok := g.cached(ctx, "geocode_reverse", cacheKey); ok {
		var res domain.ReverseGeocodingResult
		if err := json.Unmarshal(raw, &res); err == nil {
			return &res, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "geocoding.reverse", attribute.String("provider", p.Name()))

	start := time.Now()
	res, err := p.Reverse(ctx, coords, opts)
	if errors.Is(err, domain.ErrAddressNotFound) {
		metrics.ObserveProvider(p.Name(), "reverse", start, nil)
		telemetry.EndSpan(span, nil)
		return nil, err
	}
	metrics.ObserveProvider(p.Name(), "reverse", start, err)
	telemetry.EndSpan(span, err)
	if err != nil {
		g.logger.Warn("reverse failed", "provider", p.Name(), "error", err)
		return nil, geocodingError(p.Name(), err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAddressNotFound, coords)
	}
	if res.Provider == "" {
		res.Provider = p.Name()
	}

	g.store(ctx, cacheKey, res)
	return res, nil
}

func (g *GeocodingGateway) cached(ctx context.Context, op, key string) ([]byte, bool) {
	if g.cache == nil || g.cfg.CacheTTL <= 0 {
		return nil, false
	}
	data, err := g.cache.Get(ctx, key)
	if err != nil || data == nil {
		metrics.CacheMisses.WithLabelValues(op).Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues(op).Inc()
	return data, true
}

func (g *GeocodingGateway) store(ctx context.Context, key string, v any) {
	if g.cache == nil || g.cfg.CacheTTL <= 0 {
		return
	}
	if data, err := json.Marshal(v); err == nil {
		_ = g.cache.Set(ctx, key, data, int(g.cfg.CacheTTL.Seconds()))
	}
}

func searchCacheKey(provider, query string, opts domain.GeocodingOptions) string {
	key := fmt.Sprintf("geocode:search:%s:%s:%s:%d:%s",
		provider, opts.Language, strings.ToLower(opts.CountryCode), opts.Limit, strings.ToLower(query))
	if opts.BBox != nil {
		key += fmt.Sprintf(":bbox=%.4f,%.4f,%.4f,%.4f", opts.BBox.MinLon, opts.BBox.MinLat, opts.BBox.MaxLon, opts.BBox.MaxLat)
	}
	if opts.Proximity != nil {
		key += fmt.Sprintf(":near=%.4f,%.4f", opts.Proximity.Lng(), opts.Proximity.Lat())
	}
	return key
}

func geocodingError(provider string, err error) error {
	if errors.Is(err, domain.ErrGeocodingFailed) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrGeocodingFailed, provider, err)
}

// GeocodeResults is a one-shot sequence of search results. Filtering and the
// limit are applied as the sequence is consumed.
type GeocodeResults struct {
	Provider string

	results  []domain.GeocodeResult
	opts     domain.GeocodingOptions
	consumed atomic.Bool
}

func newGeocodeResults(provider string, results []domain.GeocodeResult, opts domain.GeocodingOptions) *GeocodeResults {
	ranked := make([]domain.GeocodeResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Relevance > ranked[j].Relevance
	})
	return &GeocodeResults{Provider: provider, results: ranked, opts: opts}
}

// All yields the results. A second call yields nothing.
func (r *GeocodeResults) All() iter.Seq[domain.GeocodeResult] {
	return func(yield func(domain.GeocodeResult) bool) {
		if r.consumed.Swap(true) {
			return
		}
		n := 0
		for _, res := range r.results {
			if n >= r.opts.Limit {
				return
			}
			if !r.matches(res) {
				continue
			}
			n++
			if !yield(res) {
				return
			}
		}
	}
}

// Collect drains the sequence into a slice.
func (r *GeocodeResults) Collect() []domain.GeocodeResult {
	out := []domain.GeocodeResult{}
	for res := range r.All() {
		out = append(out, res)
	}
	return out
}

func (r *GeocodeResults) matches(res domain.GeocodeResult) bool {
	if len(r.opts.Types) > 0 && !r.opts.HasType(res.Type) {
		return false
	}
	if cc := r.opts.CountryCode; cc != "" && res.Address.CountryCode != "" &&
		!strings.EqualFold(cc, res.Address.CountryCode) {
		return false
	}
	if r.opts.BBox != nil && !r.opts.BBox.Contains(res.Coordinates.Point()) {
		return false
	}
	return true
}
