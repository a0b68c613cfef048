package usecases

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/ports"
	"github.com/samirrijal/mapcore/internal/pkg/debounce"
	"github.com/samirrijal/mapcore/internal/pkg/geospatial"
	"github.com/samirrijal/mapcore/internal/pkg/metrics"
)

const (
	MinGridSize        = 10
	MaxGridSize        = 300
	MinMinClusterSize  = 2
	MaxMinClusterSize  = 100
	defaultGridSize    = 60
	defaultMinCluster  = 2
	defaultMaxZoom     = 16
	defaultZoomMargin  = 2
	defaultRevealLimit = 5
	defaultDebounce    = 300 * time.Millisecond
)

// ClustererOptions configures a Clusterer. Zero values take defaults.
type ClustererOptions struct {
	GridSize       int
	MinClusterSize int
	// MaxZoom is the highest zoom at which markers are still grouped.
	MaxZoom int
	// ZoomMargin is the pixel margin kept when zooming into a cluster.
	ZoomMargin int
	// RevealThreshold is the largest cluster whose members are shown in an
	// overlay on click instead of zooming in.
	RevealThreshold int
	BoundsDebounce  time.Duration
}

func (o *ClustererOptions) applyDefaults() {
	if o.GridSize == 0 {
		o.GridSize = defaultGridSize
	}
	if o.MinClusterSize == 0 {
		o.MinClusterSize = defaultMinCluster
	}
	if o.MaxZoom == 0 {
		o.MaxZoom = defaultMaxZoom
	}
	if o.ZoomMargin == 0 {
		o.ZoomMargin = defaultZoomMargin
	}
	if o.RevealThreshold == 0 {
		o.RevealThreshold = defaultRevealLimit
	}
	if o.BoundsDebounce == 0 {
		o.BoundsDebounce = defaultDebounce
	}
}

// ClickAction is what a click on a cluster did.
type ClickAction string

const (
	ClickReveal ClickAction = "reveal"
	ClickZoom   ClickAction = "zoom"
)

// ClickResult describes the outcome of Click.
type ClickResult struct {
	Action  ClickAction
	Cluster domain.ClusterGroup
}

// Clusterer groups markers that fall into the same pixel grid cell at the
// current zoom of a map view. It is safe for concurrent use.
type Clusterer struct {
	view   ports.MapView
	logger *slog.Logger
	opts   ClustererOptions

	mu             sync.Mutex
	markers        []domain.Marker
	index          map[string]int
	gridSize       int
	minClusterSize int
	ready          bool
	dirty          bool
	destroyed      bool
	snapshot       domain.ClusterSnapshot
	overlay        *OverlayController
	listeners      map[uint64]func(domain.ClusterSnapshot)
	nextListener   uint64
	unsubscribe    []func()

	generation uint64

	// notifyMu orders listener calls; delivered is the newest generation sent.
	notifyMu  sync.Mutex
	delivered uint64

	debouncer *debounce.Debouncer
	readyCh   chan struct{}
	done      chan struct{}
}

// NewClusterer creates a clusterer bound to view. Markers may be added
// before the view is ready; grouping starts once view.Ready() is closed.
func NewClusterer(view ports.MapView, opts ClustererOptions, logger *slog.Logger) (*Clusterer, error) {
	if view == nil {
		return nil, domain.ErrMapRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()
	if opts.GridSize < MinGridSize || opts.GridSize > MaxGridSize {
		return nil, fmt.Errorf("%w: grid size %d outside %d-%d", domain.ErrInvalidInput, opts.GridSize, MinGridSize, MaxGridSize)
	}
	if opts.MinClusterSize < MinMinClusterSize || opts.MinClusterSize > MaxMinClusterSize {
		return nil, fmt.Errorf("%w: min cluster size %d outside %d-%d", domain.ErrInvalidInput, opts.MinClusterSize, MinMinClusterSize, MaxMinClusterSize)
	}

	c := &Clusterer{
		view:           view,
		logger:         logger.With("component", "clusterer"),
		opts:           opts,
		index:          make(map[string]int),
		gridSize:       opts.GridSize,
		minClusterSize: opts.MinClusterSize,
		listeners:      make(map[uint64]func(domain.ClusterSnapshot)),
		debouncer:      debounce.New(opts.BoundsDebounce),
		readyCh:        make(chan struct{}),
		done:           make(chan struct{}),
	}

	go c.awaitReady()
	return c, nil
}

func (c *Clusterer) awaitReady() {
	select {
	case <-c.view.Ready():
	case <-c.done:
		return
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.ready = true
	c.unsubscribe = append(c.unsubscribe,
		c.view.Subscribe(ports.EventBoundsChange, func(ports.MapEvent) {
			c.debouncer.Trigger(c.recompute)
		}),
	)
	pending := c.dirty
	c.mu.Unlock()

	if pending {
		c.logger.Debug("flushing queued changes")
	}
	c.recompute()
	close(c.readyCh)
}

// Ready is closed once the clusterer has started grouping.
func (c *Clusterer) Ready() <-chan struct{} {
	return c.readyCh
}

// AttachOverlay sets the overlay used to reveal small clusters on click.
func (c *Clusterer) AttachOverlay(o *OverlayController) {
	c.mu.Lock()
	c.overlay = o
	c.mu.Unlock()
}

// Add inserts markers, replacing any with the same ID. Invalid markers are
// logged and skipped. It returns the number of markers accepted.
func (c *Clusterer) Add(markers ...domain.Marker) (int, error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return 0, domain.ErrDestroyed
	}
	added := 0
	for _, m := range markers {
		if err := m.Validate(); err != nil {
			c.logger.Warn("skipping marker", "id", m.ID, "error", err)
			continue
		}
		if i, ok := c.index[m.ID]; ok {
			c.markers[i] = m
		} else {
			c.index[m.ID] = len(c.markers)
			c.markers = append(c.markers, m)
		}
		added++
	}
	c.mu.Unlock()

	if added > 0 {
		c.changed()
	}
	return added, nil
}

// Remove deletes markers by identity. Unknown markers are ignored.
func (c *Clusterer) Remove(markers ...domain.Marker) int {
	ids := make([]string, len(markers))
	for i, m := range markers {
		ids[i] = m.ID
	}
	return c.RemoveByID(ids...)
}

// RemoveByID deletes markers by ID and returns how many were present.
func (c *Clusterer) RemoveByID(ids ...string) int {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return 0
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.index[id]; ok {
			drop[id] = true
		}
	}
	if len(drop) > 0 {
		kept := c.markers[:0]
		for _, m := range c.markers {
			if !drop[m.ID] {
				kept = append(kept, m)
			}
		}
		c.markers = kept
		c.reindex()
	}
	c.mu.Unlock()

	if len(drop) > 0 {
		c.changed()
	}
	return len(drop)
}

// RemoveAll clears every marker and cluster.
func (c *Clusterer) RemoveAll() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.markers = nil
	c.index = make(map[string]int)
	c.mu.Unlock()

	c.changed()
}

func (c *Clusterer) reindex() {
	c.index = make(map[string]int, len(c.markers))
	for i, m := range c.markers {
		c.index[m.ID] = i
	}
}

// Markers returns a copy of the current marker set in insertion order.
func (c *Clusterer) Markers() []domain.Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Marker, len(c.markers))
	copy(out, c.markers)
	return out
}

// Bounds returns the envelope of all markers and false if there are none.
func (c *Clusterer) Bounds() (domain.Bounds, bool) {
	c.mu.Lock()
	points := make([]domain.GeoPoint, len(c.markers))
	for i, m := range c.markers {
		points[i] = m.Point()
	}
	c.mu.Unlock()
	return geospatial.BoundsOf(points)
}

// FitToViewport moves the view so that every marker is visible. It waits
// for readiness and is a no-op when there are no markers.
func (c *Clusterer) FitToViewport(ctx context.Context, opts ports.FitOptions) error {
	select {
	case <-c.readyCh:
	case <-c.done:
		return domain.ErrDestroyed
	case <-ctx.Done():
		return ctx.Err()
	}

	b, ok := c.Bounds()
	if !ok {
		return nil
	}
	if err := c.view.SetBounds(ctx, b, opts); err != nil {
		return fmt.Errorf("fit to viewport: %w", err)
	}
	return nil
}

// GridSize returns the current cell size in pixels.
func (c *Clusterer) GridSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gridSize
}

// MinClusterSize returns the current minimum group size.
func (c *Clusterer) MinClusterSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minClusterSize
}

// SetGridSize changes the cell size. Values outside 10-300 are logged and
// ignored.
func (c *Clusterer) SetGridSize(px int) error {
	if px < MinGridSize || px > MaxGridSize {
		c.logger.Warn("grid size out of range, ignored", "grid_size", px, "min", MinGridSize, "max", MaxGridSize)
		return fmt.Errorf("%w: grid size %d outside %d-%d", domain.ErrInvalidInput, px, MinGridSize, MaxGridSize)
	}
	c.mu.Lock()
	c.gridSize = px
	c.mu.Unlock()

	c.changed()
	return nil
}

// SetMinClusterSize changes the minimum group size. Values outside 2-100 are
// logged and ignored.
func (c *Clusterer) SetMinClusterSize(n int) error {
	if n < MinMinClusterSize || n > MaxMinClusterSize {
		c.logger.Warn("min cluster size out of range, ignored", "min_cluster_size", n, "min", MinMinClusterSize, "max", MaxMinClusterSize)
		return fmt.Errorf("%w: min cluster size %d outside %d-%d", domain.ErrInvalidInput, n, MinMinClusterSize, MaxMinClusterSize)
	}
	c.mu.Lock()
	c.minClusterSize = n
	c.mu.Unlock()

	c.changed()
	return nil
}

// Refresh regroups all markers from scratch.
func (c *Clusterer) Refresh() {
	c.changed()
}

// Snapshot returns the result of the latest grouping pass.
func (c *Clusterer) Snapshot() domain.ClusterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// OnSnapshot registers fn to receive every new snapshot. Listeners run on the
// goroutine that triggered the pass.
func (c *Clusterer) OnSnapshot(fn func(domain.ClusterSnapshot)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Click handles a click on the cluster with the given ID: small clusters
// reveal their members in the attached overlay, larger ones zoom the view to
// the cluster bounds.
func (c *Clusterer) Click(ctx context.Context, clusterID string) (ClickResult, error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ClickResult{}, domain.ErrDestroyed
	}
	var group *domain.ClusterGroup
	for i := range c.snapshot.Clusters {
		if c.snapshot.Clusters[i].ID == clusterID {
			g := c.snapshot.Clusters[i]
			group = &g
			break
		}
	}
	overlay := c.overlay
	c.mu.Unlock()

	if group == nil {
		return ClickResult{}, fmt.Errorf("%w: unknown cluster %q", domain.ErrInvalidInput, clusterID)
	}

	if group.Size() <= c.opts.RevealThreshold {
		if overlay != nil {
			if err := overlay.Open(ctx, group.Anchor, clusterContent(*group)); err != nil {
				return ClickResult{}, fmt.Errorf("reveal cluster: %w", err)
			}
		}
		return ClickResult{Action: ClickReveal, Cluster: *group}, nil
	}

	err := c.view.SetBounds(ctx, group.Bounds, ports.FitOptions{
		Margin:         float64(c.opts.ZoomMargin),
		CheckZoomRange: true,
	})
	if err != nil {
		return ClickResult{}, fmt.Errorf("zoom to cluster: %w", err)
	}
	return ClickResult{Action: ClickZoom, Cluster: *group}, nil
}

func clusterContent(g domain.ClusterGroup) domain.Sections {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, m := range g.Members {
		title := m.Title
		if title == "" {
			title = m.ID
		}
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(title))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return domain.Sections{
		Header: fmt.Sprintf("Объектов: %d", g.Size()),
		Body:   b.String(),
	}
}

// Destroy stops all timers and subscriptions. It is safe to call repeatedly.
func (c *Clusterer) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	unsubs := c.unsubscribe
	c.unsubscribe = nil
	c.listeners = make(map[uint64]func(domain.ClusterSnapshot))
	c.markers = nil
	c.index = make(map[string]int)
	c.snapshot = domain.ClusterSnapshot{}
	c.mu.Unlock()

	c.debouncer.Stop()
	close(c.done)
	for _, u := range unsubs {
		u()
	}
}

// changed recomputes now if ready, otherwise marks the set for the first pass.
func (c *Clusterer) changed() {
	c.mu.Lock()
	if !c.ready {
		c.dirty = true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.debouncer.Cancel()
	c.recompute()
}

func (c *Clusterer) recompute() {
	c.mu.Lock()
	if c.destroyed || !c.ready {
		c.mu.Unlock()
		return
	}

	start := time.Now()
	zoom := c.view.Zoom()
	snap, err := c.group(zoom)
	if err != nil {
		c.logger.Error("clustering failed, showing markers individually", "error", err)
		metrics.ClusterRecomputeFailures.Inc()
		snap = c.ungrouped(zoom)
	}
	c.generation++
	snap.Generation = c.generation
	c.snapshot = snap
	c.dirty = false

	listeners := make([]func(domain.ClusterSnapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	metrics.ClusterRecomputeDuration.Observe(time.Since(start).Seconds())
	metrics.ClusterGroups.Observe(float64(len(snap.Clusters)))

	c.notify(snap, listeners)
}

// notify delivers snap unless a newer pass already reached the listeners.
func (c *Clusterer) notify(snap domain.ClusterSnapshot, listeners []func(domain.ClusterSnapshot)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.Generation <= c.delivered {
		metrics.ClusterStaleSnapshots.Inc()
		return
	}
	c.delivered = snap.Generation
	for _, fn := range listeners {
		fn(snap)
	}
}

type cell struct{ x, y int64 }

// group runs one grid pass. Callers hold c.mu.
func (c *Clusterer) group(zoom int) (snap domain.ClusterSnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during clustering: %v", r)
		}
	}()

	snap = c.ungrouped(zoom)
	if zoom > c.opts.MaxZoom || len(c.markers) < c.minClusterSize {
		return snap, nil
	}

	grid := float64(c.gridSize)
	cells := make(map[cell][]int)
	var order []cell
	for i, m := range c.markers {
		px := c.view.Project(m.Point(), zoom)
		if math.IsNaN(px.X) || math.IsNaN(px.Y) {
			c.logger.Warn("skipping unprojectable marker", "id", m.ID)
			continue
		}
		k := cell{int64(math.Floor(px.X / grid)), int64(math.Floor(px.Y / grid))}
		if _, ok := cells[k]; !ok {
			order = append(order, k)
		}
		cells[k] = append(cells[k], i)
	}

	grouped := make(map[int]bool)
	for _, k := range order {
		idx := cells[k]
		if len(idx) < c.minClusterSize {
			continue
		}
		members := make([]domain.Marker, len(idx))
		var sumLat, sumLon float64
		b := domain.BoundsFromPoint(c.markers[idx[0]].Point())
		for j, i := range idx {
			m := c.markers[i]
			members[j] = m
			sumLat += m.Latitude
			sumLon += m.Longitude
			b = b.Extend(m.Point())
			grouped[i] = true
		}
		n := float64(len(idx))
		snap.Clusters = append(snap.Clusters, domain.ClusterGroup{
			ID:      fmt.Sprintf("z%d_%d_%d", zoom, k.x, k.y),
			Anchor:  domain.GeoPoint{Lat: sumLat / n, Lon: sumLon / n},
			Members: members,
			Bounds:  b,
		})
	}

	singles := make([]domain.Marker, 0, len(c.markers)-len(grouped))
	for i, m := range c.markers {
		if !grouped[i] {
			singles = append(singles, m)
		}
	}
	snap.Singles = singles
	return snap, nil
}

func (c *Clusterer) ungrouped(zoom int) domain.ClusterSnapshot {
	singles := make([]domain.Marker, len(c.markers))
	copy(singles, c.markers)
	return domain.ClusterSnapshot{
		Zoom:           zoom,
		GridSize:       c.gridSize,
		MinClusterSize: c.minClusterSize,
		Clusters:       []domain.ClusterGroup{},
		Singles:        singles,
		ComputedAt:     time.Now().UTC(),
	}
}
