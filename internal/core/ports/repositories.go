package ports

import (
	"context"

	"github.com/samirrijal/mapcore/internal/core/domain"
)

// MarkerRepository persists map markers.
type MarkerRepository interface {
	Upsert(ctx context.Context, m *domain.Marker) error
	UpsertBatch(ctx context.Context, ms []domain.Marker) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Marker, error)
	ListInBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.Marker, error)
	// ListPendingGeocode returns markers with an address but no coordinates yet.
	ListPendingGeocode(ctx context.Context, limit int) ([]domain.Marker, error)
	SaveCoordinates(ctx context.Context, id string, p domain.GeoPoint) error
	MarkGeocodeFailed(ctx context.Context, id string, reason string) error
}
