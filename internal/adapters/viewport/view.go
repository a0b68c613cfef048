// Package viewport is a headless Web Mercator map used wherever clustering or
// overlay placement runs without a browser: the API, the relay and tests.
package viewport

import (
	"context"
	"fmt"
	"sync"

	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/ports"
	"github.com/samirrijal/mapcore/internal/pkg/geospatial"
)

// Option configures a View.
type Option func(*View)

// WithZoomRange limits the zooms the view accepts.
func WithZoomRange(minZoom, maxZoom int) Option {
	return func(v *View) {
		v.minZoom = geospatial.ClampZoom(minZoom)
		v.maxZoom = geospatial.ClampZoom(maxZoom)
	}
}

// Ready marks the view ready at construction.
func Ready() Option {
	return func(v *View) { v.MarkReady() }
}

// View implements ports.MapView. Viewport changes apply immediately and
// events are dispatched synchronously on the caller's goroutine after the
// view's lock is released.
type View struct {
	ready     chan struct{}
	readyOnce sync.Once

	mu       sync.RWMutex
	center   domain.GeoPoint
	zoom     int
	size     domain.Size
	minZoom  int
	maxZoom  int
	overlays map[*Overlay]struct{}
	handlers map[ports.EventType]map[uint64]func(ports.MapEvent)
	nextSub  uint64
}

var _ ports.MapView = (*View)(nil)

// New returns a view of size centered on center at zoom. It is not ready
// until MarkReady is called unless the Ready option is given.
func New(size domain.Size, center domain.GeoPoint, zoom int, opts ...Option) *View {
	v := &View{
		ready:    make(chan struct{}),
		center:   center,
		size:     size,
		minZoom:  geospatial.MinZoom,
		maxZoom:  geospatial.MaxZoom,
		overlays: make(map[*Overlay]struct{}),
		handlers: make(map[ports.EventType]map[uint64]func(ports.MapEvent)),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.zoom = v.clamp(zoom)
	return v
}

// MarkReady closes the Ready channel. Calling it again is a no-op.
func (v *View) MarkReady() {
	v.readyOnce.Do(func() { close(v.ready) })
}

func (v *View) Ready() <-chan struct{} { return v.ready }

func (v *View) Zoom() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.zoom
}

func (v *View) Size() domain.Size {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.size
}

func (v *View) Center() domain.GeoPoint {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.center
}

func (v *View) Bounds() domain.Bounds {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.boundsLocked()
}

func (v *View) boundsLocked() domain.Bounds {
	c := geospatial.Project(v.center, v.zoom)
	nw := geospatial.Unproject(domain.Pixel{X: c.X - v.size.Width/2, Y: c.Y - v.size.Height/2}, v.zoom)
	se := geospatial.Unproject(domain.Pixel{X: c.X + v.size.Width/2, Y: c.Y + v.size.Height/2}, v.zoom)
	return domain.Bounds{MinLat: se.Lat, MinLon: nw.Lon, MaxLat: nw.Lat, MaxLon: se.Lon}
}

func (v *View) Project(p domain.GeoPoint, zoom int) domain.Pixel {
	return geospatial.Project(p, zoom)
}

func (v *View) GlobalPixelCenter() domain.Pixel {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return geospatial.Project(v.center, v.zoom)
}

// ToContainer converts a coordinate to pixels relative to the top-left
// corner of the map container.
func (v *View) ToContainer(p domain.GeoPoint) domain.Pixel {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.toContainerLocked(p)
}

func (v *View) toContainerLocked(p domain.GeoPoint) domain.Pixel {
	c := geospatial.Project(v.center, v.zoom)
	px := geospatial.Project(p, v.zoom)
	return domain.Pixel{
		X: px.X - (c.X - v.size.Width/2),
		Y: px.Y - (c.Y - v.size.Height/2),
	}
}

func (v *View) SetCenter(ctx context.Context, center domain.GeoPoint, zoom int, _ ports.PanOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !center.Valid() {
		return domain.ErrInvalidPosition
	}
	v.apply(center, zoom)
	return nil
}

func (v *View) SetGlobalPixelCenter(ctx context.Context, center domain.Pixel, zoom int, opts ports.PanOptions) error {
	return v.SetCenter(ctx, geospatial.Unproject(center, v.clamp(zoom)), zoom, opts)
}

func (v *View) SetBounds(ctx context.Context, b domain.Bounds, opts ports.FitOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.Valid() {
		return fmt.Errorf("%w: invalid bounds", domain.ErrInvalidInput)
	}

	v.mu.RLock()
	size := v.size
	minZoom, maxZoom := geospatial.MinZoom, geospatial.MaxZoom
	if opts.CheckZoomRange {
		minZoom, maxZoom = v.minZoom, v.maxZoom
	}
	v.mu.RUnlock()

	zoom := geospatial.FitZoom(b, size, opts.Margin, minZoom, maxZoom)

	nw := geospatial.Project(domain.GeoPoint{Lat: b.MaxLat, Lon: b.MinLon}, zoom)
	se := geospatial.Project(domain.GeoPoint{Lat: b.MinLat, Lon: b.MaxLon}, zoom)
	mid := domain.Pixel{X: (nw.X + se.X) / 2, Y: (nw.Y + se.Y) / 2}

	v.apply(geospatial.Unproject(mid, zoom), zoom)
	return nil
}

// Resize changes the container size and emits sizechange and boundschange.
func (v *View) Resize(size domain.Size) {
	v.mu.Lock()
	if v.size == size {
		v.mu.Unlock()
		return
	}
	v.size = size
	b := v.boundsLocked()
	z := v.zoom
	v.mu.Unlock()

	v.emit(ports.MapEvent{Type: ports.EventSizeChange, OldZoom: z, NewZoom: z, Bounds: b})
	v.emit(ports.MapEvent{Type: ports.EventBoundsChange, OldZoom: z, NewZoom: z, Bounds: b})
}

func (v *View) apply(center domain.GeoPoint, zoom int) {
	v.mu.Lock()
	zoom = v.clamp(zoom)
	oldZoom := v.zoom
	if v.center == center && oldZoom == zoom {
		v.mu.Unlock()
		return
	}
	v.center = center
	v.zoom = zoom
	b := v.boundsLocked()
	v.mu.Unlock()

	if oldZoom != zoom {
		v.emit(ports.MapEvent{Type: ports.EventZoomChange, OldZoom: oldZoom, NewZoom: zoom, Bounds: b})
	}
	v.emit(ports.MapEvent{Type: ports.EventBoundsChange, OldZoom: oldZoom, NewZoom: zoom, Bounds: b})
}

func (v *View) clamp(z int) int {
	if z < v.minZoom {
		return v.minZoom
	}
	if z > v.maxZoom {
		return v.maxZoom
	}
	return z
}

func (v *View) AddOverlay(ctx context.Context, spec ports.OverlaySpec) (ports.Overlay, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !spec.Position.Valid() {
		return nil, domain.ErrInvalidPosition
	}
	o := &Overlay{view: v, spec: spec}

	v.mu.Lock()
	v.overlays[o] = struct{}{}
	v.mu.Unlock()
	return o, nil
}

func (v *View) RemoveOverlay(ctx context.Context, o ports.Overlay) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ov, ok := o.(*Overlay)
	if !ok {
		return fmt.Errorf("%w: overlay does not belong to this view", domain.ErrInvalidInput)
	}
	v.mu.Lock()
	delete(v.overlays, ov)
	v.mu.Unlock()
	return nil
}

// Overlays returns the overlays currently on the map.
func (v *View) Overlays() []*Overlay {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*Overlay, 0, len(v.overlays))
	for o := range v.overlays {
		out = append(out, o)
	}
	return out
}

// UserClose simulates the user pressing an overlay's close button.
func (v *View) UserClose() {
	v.mu.RLock()
	b := v.boundsLocked()
	z := v.zoom
	v.mu.RUnlock()
	v.emit(ports.MapEvent{Type: ports.EventUserClose, OldZoom: z, NewZoom: z, Bounds: b})
}

func (v *View) Subscribe(t ports.EventType, handler func(ports.MapEvent)) func() {
	v.mu.Lock()
	v.nextSub++
	id := v.nextSub
	if v.handlers[t] == nil {
		v.handlers[t] = make(map[uint64]func(ports.MapEvent))
	}
	v.handlers[t][id] = handler
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.handlers[t], id)
			v.mu.Unlock()
		})
	}
}

func (v *View) emit(ev ports.MapEvent) {
	v.mu.RLock()
	hs := make([]func(ports.MapEvent), 0, len(v.handlers[ev.Type]))
	for _, h := range v.handlers[ev.Type] {
		hs = append(hs, h)
	}
	v.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}

// Overlay is an info window placed on a View.
type Overlay struct {
	view *View

	mu   sync.RWMutex
	spec ports.OverlaySpec
}

var _ ports.Overlay = (*Overlay)(nil)

// Spec returns the overlay's current description.
func (o *Overlay) Spec() ports.OverlaySpec {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.spec
}

// Bounds returns the overlay box in container pixels. Regular overlays sit
// centered above their anchor; panels span the bottom edge of the container.
func (o *Overlay) Bounds() domain.PixelBounds {
	spec := o.Spec()

	o.view.mu.RLock()
	size := o.view.size
	anchor := o.view.toContainerLocked(spec.Position)
	o.view.mu.RUnlock()

	if spec.Panel {
		return domain.PixelBounds{
			Min: domain.Pixel{X: 0, Y: size.Height - spec.Height},
			Max: domain.Pixel{X: size.Width, Y: size.Height},
		}
	}

	x := anchor.X + spec.Offset.X
	y := anchor.Y + spec.Offset.Y
	return domain.PixelBounds{
		Min: domain.Pixel{X: x - spec.Width/2, Y: y - spec.Height},
		Max: domain.Pixel{X: x + spec.Width/2, Y: y},
	}
}

func (o *Overlay) SetPosition(p domain.GeoPoint) error {
	if !p.Valid() {
		return domain.ErrInvalidPosition
	}
	o.mu.Lock()
	o.spec.Position = p
	o.mu.Unlock()
	return nil
}

func (o *Overlay) SetContent(html string, native any) error {
	o.mu.Lock()
	o.spec.HTML = html
	o.spec.Native = native
	o.mu.Unlock()
	return nil
}

// Factory builds a ready View. It satisfies ports.ViewFactory.
func Factory(size domain.Size, center domain.GeoPoint, zoom int) ports.MapView {
	return New(size, center, zoom, Ready())
}
