package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/ports"
	"github.com/samirrijal/mapcore/internal/pkg/geospatial"
)

const (
	defaultMaxMarkers = 5000
	defaultViewWidth  = 1024
	defaultViewHeight = 768
)

// ClusterQuery describes a viewport to cluster server-side.
type ClusterQuery struct {
	Bounds domain.Bounds
	// Zoom below zero fits the zoom to Bounds.
	Zoom           int
	Size           domain.Size
	GridSize       int
	MinClusterSize int
}

// MarkerService persists markers, announces changes and clusters them for
// arbitrary viewports.
type MarkerService struct {
	repo       ports.MarkerRepository
	publisher  ports.EventPublisher
	newView    ports.ViewFactory
	clustering ClustererOptions
	maxMarkers int
	logger     *slog.Logger
}

// NewMarkerService creates a MarkerService. publisher may be nil.
func NewMarkerService(repo ports.MarkerRepository, publisher ports.EventPublisher, newView ports.ViewFactory, clustering ClustererOptions, maxMarkers int, logger *slog.Logger) *MarkerService {
	if maxMarkers <= 0 {
		maxMarkers = defaultMaxMarkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MarkerService{
		repo:       repo,
		publisher:  publisher,
		newView:    newView,
		clustering: clustering,
		maxMarkers: maxMarkers,
		logger:     logger.With("component", "markers"),
	}
}

// Upsert stores m, assigning an ID when it has none.
func (s *MarkerService) Upsert(ctx context.Context, m *domain.Marker) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, m); err != nil {
		return fmt.Errorf("upsert marker %s: %w", m.ID, err)
	}
	s.publish(ctx, &domain.MarkerEvent{Action: domain.MarkerUpsert, Marker: m, ID: m.ID})
	return nil
}

// UpsertBatch stores markers in one round trip. Invalid markers are rejected
// as a whole.
func (s *MarkerService) UpsertBatch(ctx context.Context, ms []domain.Marker) error {
	for i := range ms {
		if ms[i].ID == "" {
			ms[i].ID = uuid.NewString()
		}
		if err := ms[i].Validate(); err != nil {
			return err
		}
	}
	if err := s.repo.UpsertBatch(ctx, ms); err != nil {
		return fmt.Errorf("upsert %d markers: %w", len(ms), err)
	}
	for i := range ms {
		s.publish(ctx, &domain.MarkerEvent{Action: domain.MarkerUpsert, Marker: &ms[i], ID: ms[i].ID})
	}
	return nil
}

// Delete removes the marker with id.
func (s *MarkerService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: marker id is empty", domain.ErrInvalidInput)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete marker %s: %w", id, err)
	}
	s.publish(ctx, &domain.MarkerEvent{Action: domain.MarkerDelete, ID: id})
	return nil
}

// Get returns the marker with id or domain.ErrMarkerNotFound.
func (s *MarkerService) Get(ctx context.Context, id string) (*domain.Marker, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMarkerNotFound, id)
	}
	return m, nil
}

// ListInBounds returns up to limit markers inside b.
func (s *MarkerService) ListInBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.Marker, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("%w: bounds %+v", domain.ErrInvalidInput, b)
	}
	if limit <= 0 || limit > s.maxMarkers {
		limit = s.maxMarkers
	}
	return s.repo.ListInBounds(ctx, b, limit)
}

// Clusters groups the stored markers inside q.Bounds as a map of q.Size
// pixels would show them at q.Zoom.
func (s *MarkerService) Clusters(ctx context.Context, q ClusterQuery) (*domain.ClusterSnapshot, error) {
	if !q.Bounds.Valid() {
		return nil, fmt.Errorf("%w: bounds %+v", domain.ErrInvalidInput, q.Bounds)
	}
	if q.Size.Width <= 0 || q.Size.Height <= 0 {
		q.Size = domain.Size{Width: defaultViewWidth, Height: defaultViewHeight}
	}
	if q.Zoom < 0 {
		q.Zoom = geospatial.FitZoom(q.Bounds, q.Size, 0, geospatial.MinZoom, geospatial.MaxZoom)
	}
	q.Zoom = geospatial.ClampZoom(q.Zoom)

	markers, err := s.repo.ListInBounds(ctx, q.Bounds, s.maxMarkers)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}

	opts := s.clustering
	if q.GridSize != 0 {
		opts.GridSize = q.GridSize
	}
	if q.MinClusterSize != 0 {
		opts.MinClusterSize = q.MinClusterSize
	}

	c, err := NewClusterer(s.newView(q.Size, q.Bounds.Center(), q.Zoom), opts, s.logger)
	if err != nil {
		return nil, err
	}
	defer c.Destroy()

	if _, err := c.Add(markers...); err != nil {
		return nil, err
	}
	select {
	case <-c.Ready():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	snap := c.Snapshot()
	return &snap, nil
}

func (s *MarkerService) publish(ctx context.Context, ev *domain.MarkerEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishMarkerEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to publish marker event", "action", ev.Action, "id", ev.ID, "error", err)
	}
}
