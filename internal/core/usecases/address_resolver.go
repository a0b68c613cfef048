package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/pkg/debounce"
)

// DefaultHoverDebounce is the quiet period before a hover triggers a lookup.
const DefaultHoverDebounce = 500 * time.Millisecond

// AddressResolver turns pointer positions into addresses. Hover lookups are
// debounced so only the last position of a burst reaches the provider.
type AddressResolver struct {
	geocoder *GeocodingGateway
	logger   *slog.Logger
	deb      *debounce.Debouncer

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewAddressResolver creates a resolver backed by gw. A zero wait uses
// DefaultHoverDebounce.
func NewAddressResolver(gw *GeocodingGateway, wait time.Duration, logger *slog.Logger) *AddressResolver {
	if wait <= 0 {
		wait = DefaultHoverDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AddressResolver{
		geocoder: gw,
		logger:   logger.With("component", "address_resolver"),
		deb:      debounce.New(wait),
	}
}

// Resolve looks up the address at coords immediately.
func (r *AddressResolver) Resolve(ctx context.Context, coords domain.LngLat, opts domain.GeocodingOptions) (*domain.ReverseGeocodingResult, error) {
	return r.geocoder.Reverse(ctx, coords, opts, "")
}

// Hover schedules a lookup of coords and reports it to fn. A later Hover
// replaces a pending one and cancels an in-flight lookup, so fn only ever
// sees the latest position. Lookups that find nothing report
// domain.ErrAddressNotFound.
func (r *AddressResolver) Hover(coords domain.LngLat, opts domain.GeocodingOptions, fn func(*domain.ReverseGeocodingResult, error)) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	r.deb.Trigger(func() {
		ctx, cancel := context.WithCancel(context.Background())
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			cancel()
			return
		}
		r.cancel = cancel
		r.mu.Unlock()
		defer cancel()

		res, err := r.geocoder.Reverse(ctx, coords, opts, "")
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, domain.ErrAddressNotFound) {
			r.logger.Warn("hover lookup failed", "lng", coords.Lng(), "lat", coords.Lat(), "error", err)
		}
		fn(res, err)
	})
}

// Cancel drops a pending or in-flight hover lookup.
func (r *AddressResolver) Cancel() {
	r.deb.Cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// Close cancels outstanding work and ignores further hovers.
func (r *AddressResolver) Close() {
	r.deb.Stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
