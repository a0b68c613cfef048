package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/ports"
	"github.com/samirrijal/mapcore/internal/pkg/geospatial"
	"github.com/samirrijal/mapcore/internal/pkg/metrics"
)

const publishTimeout = 5 * time.Second

// ViewRelay keeps one Clusterer per live client view and publishes a new
// snapshot whenever the view moves or a marker inside it changes.
type ViewRelay struct {
	repo       ports.MarkerRepository
	publisher  ports.EventPublisher
	newView    ports.ViewFactory
	clustering ClustererOptions
	maxMarkers int
	logger     *slog.Logger

	mu    sync.Mutex
	views map[string]*liveView
}

type liveView struct {
	bounds    domain.Bounds
	clusterer *Clusterer
	stop      func()
	lastSeen  time.Time
}

// NewViewRelay creates a ViewRelay publishing snapshots through publisher.
func NewViewRelay(repo ports.MarkerRepository, publisher ports.EventPublisher, newView ports.ViewFactory, clustering ClustererOptions, maxMarkers int, logger *slog.Logger) *ViewRelay {
	if maxMarkers <= 0 {
		maxMarkers = defaultMaxMarkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewRelay{
		repo:       repo,
		publisher:  publisher,
		newView:    newView,
		clustering: clustering,
		maxMarkers: maxMarkers,
		logger:     logger.With("component", "relay"),
		views:      make(map[string]*liveView),
	}
}

// HandleViewport opens, moves or closes the view named by ev. Every open or
// move publishes a fresh snapshot before returning.
func (r *ViewRelay) HandleViewport(ctx context.Context, ev *domain.ViewportEvent) error {
	if ev.ViewID == "" {
		return fmt.Errorf("%w: view_id is required", domain.ErrInvalidInput)
	}
	if ev.Closed {
		r.Close(ev.ViewID)
		return nil
	}
	if !ev.Bounds.Valid() {
		return fmt.Errorf("%w: bounds %+v", domain.ErrInvalidInput, ev.Bounds)
	}

	size := domain.Size{Width: float64(ev.Width), Height: float64(ev.Height)}
	if size.Width <= 0 || size.Height <= 0 {
		size = domain.Size{Width: defaultViewWidth, Height: defaultViewHeight}
	}
	zoom := ev.Zoom
	if zoom < 0 {
		zoom = geospatial.FitZoom(ev.Bounds, size, 0, geospatial.MinZoom, geospatial.MaxZoom)
	}
	zoom = geospatial.ClampZoom(zoom)

	markers, err := r.repo.ListInBounds(ctx, ev.Bounds, r.maxMarkers)
	if err != nil {
		return fmt.Errorf("list markers: %w", err)
	}

	c, err := NewClusterer(r.newView(size, ev.Bounds.Center(), zoom), r.clustering, r.logger)
	if err != nil {
		return err
	}
	if _, err := c.Add(markers...); err != nil {
		c.Destroy()
		return err
	}
	select {
	case <-c.Ready():
	case <-ctx.Done():
		c.Destroy()
		return ctx.Err()
	}

	viewID := ev.ViewID
	snap := c.Snapshot()
	r.publish(ctx, viewID, &snap)
	stop := c.OnSnapshot(func(s domain.ClusterSnapshot) {
		pctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		r.publish(pctx, viewID, &s)
	})

	r.mu.Lock()
	old := r.views[viewID]
	r.views[viewID] = &liveView{bounds: ev.Bounds, clusterer: c, stop: stop, lastSeen: time.Now()}
	metrics.ActiveViews.Set(float64(len(r.views)))
	r.mu.Unlock()

	if old != nil {
		old.destroy()
	}
	return nil
}

// HandleMarkerEvent applies a marker change to every view it affects.
func (r *ViewRelay) HandleMarkerEvent(ctx context.Context, ev *domain.MarkerEvent) error {
	switch ev.Action {
	case domain.MarkerUpsert:
		if ev.Marker == nil {
			return fmt.Errorf("%w: upsert without marker", domain.ErrInvalidInput)
		}
		m := *ev.Marker
		for _, v := range r.snapshotViews() {
			if v.bounds.Contains(m.Point()) {
				if _, err := v.clusterer.Add(m); err != nil {
					r.logger.Debug("marker not applied", "id", m.ID, "error", err)
				}
			} else {
				// Moved out of the view, or never in it.
				v.clusterer.RemoveByID(m.ID)
			}
		}
	case domain.MarkerDelete:
		for _, v := range r.snapshotViews() {
			v.clusterer.RemoveByID(ev.ID)
		}
	default:
		return fmt.Errorf("%w: unknown marker action %q", domain.ErrInvalidInput, ev.Action)
	}
	return nil
}

// Close destroys the view with the given ID. Unknown IDs are ignored.
func (r *ViewRelay) Close(viewID string) {
	r.mu.Lock()
	v, ok := r.views[viewID]
	delete(r.views, viewID)
	metrics.ActiveViews.Set(float64(len(r.views)))
	r.mu.Unlock()

	if ok {
		v.destroy()
	}
}

// Sweep destroys views that saw no viewport update for longer than maxIdle
// and returns how many were removed.
func (r *ViewRelay) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	var stale []*liveView
	for id, v := range r.views {
		if v.lastSeen.Before(cutoff) {
			stale = append(stale, v)
			delete(r.views, id)
		}
	}
	metrics.ActiveViews.Set(float64(len(r.views)))
	r.mu.Unlock()

	for _, v := range stale {
		v.destroy()
	}
	return len(stale)
}

// Len returns the number of live views.
func (r *ViewRelay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Shutdown destroys every view.
func (r *ViewRelay) Shutdown() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*liveView)
	metrics.ActiveViews.Set(0)
	r.mu.Unlock()

	for _, v := range views {
		v.destroy()
	}
}

func (r *ViewRelay) snapshotViews() []*liveView {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*liveView, 0, len(r.views))
	for _, v := range r.views {
		out = append(out, v)
	}
	return out
}

func (r *ViewRelay) publish(ctx context.Context, viewID string, snap *domain.ClusterSnapshot) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishSnapshot(ctx, viewID, snap); err != nil {
		r.logger.Warn("failed to publish snapshot", "view_id", viewID, "error", err)
	}
}

func (v *liveView) destroy() {
	v.stop()
	v.clusterer.Destroy()
}
