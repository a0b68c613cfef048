package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/ports"
	"github.com/samirrijal/mapcore/internal/core/usecases"
)

// GeocodingActivities holds the activity implementations for the batch
// geocoding workflow.
type GeocodingActivities struct {
	Markers   ports.MarkerRepository
	Geocoder  *usecases.GeocodingGateway
	Publisher ports.EventPublisher
	Logger    *slog.Logger
}

// ListPendingMarkers returns up to limit markers waiting for coordinates.
func (a *GeocodingActivities) ListPendingMarkers(ctx context.Context, limit int) ([]domain.Marker, error) {
	markers, err := a.Markers.ListPendingGeocode(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending markers: %w", err)
	}
	return markers, nil
}

// GeocodeAddress returns the best match for address. Addresses that cannot
// be found or are empty are not retried.
func (a *GeocodingActivities) GeocodeAddress(ctx context.Context, address, provider, language string) (domain.GeoPoint, error) {
	res, err := a.Geocoder.Search(ctx, address, domain.GeocodingOptions{Limit: 1, Language: language}, provider)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrProviderNotFound) {
			return domain.GeoPoint{}, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidInput", err)
		}
		return domain.GeoPoint{}, err
	}
	for r := range res.All() {
		return r.Coordinates.Point(), nil
	}
	return domain.GeoPoint{}, temporal.NewNonRetryableApplicationError(
		fmt.Sprintf("no match for %q", address), "AddressNotFound", domain.ErrAddressNotFound)
}

// SavePlacement stores the coordinates of a marker and announces it.
func (a *GeocodingActivities) SavePlacement(ctx context.Context, id string, p domain.GeoPoint) error {
	if err := a.Markers.SaveCoordinates(ctx, id, p); err != nil {
		return fmt.Errorf("save coordinates %s: %w", id, err)
	}
	if a.Publisher == nil {
		return nil
	}
	m, err := a.Markers.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("reload marker %s: %w", id, err)
	}
	if err := a.Publisher.PublishMarkerEvent(ctx, &domain.MarkerEvent{Action: domain.MarkerUpsert, Marker: m, ID: id}); err != nil {
		a.logger().Warn("failed to publish placed marker", "id", id, "error", err)
	}
	return nil
}

// MarkGeocodeFailed records why a marker could not be placed.
func (a *GeocodingActivities) MarkGeocodeFailed(ctx context.Context, id, reason string) error {
	if err := a.Markers.MarkGeocodeFailed(ctx, id, reason); err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	return nil
}

func (a *GeocodingActivities) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
