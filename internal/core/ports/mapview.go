package ports

import (
	"context"
	"time"

	"github.com/samirrijal/mapcore/internal/core/domain"
)

// EventType names a host map event.
type EventType string

const (
	EventBoundsChange EventType = "boundschange"
	EventZoomChange   EventType = "zoomchange"
	EventSizeChange   EventType = "sizechange"
	EventUserClose    EventType = "userclose"
)

// MapEvent is delivered to subscribers of a host map.
type MapEvent struct {
	Type    EventType
	OldZoom int
	NewZoom int
	Bounds  domain.Bounds
}

// PanOptions controls animated viewport changes.
type PanOptions struct {
	Duration     time.Duration
	UseMapMargin bool
}

// FitOptions controls fitting the viewport to a bounding box.
type FitOptions struct {
	// Margin is kept free on every edge, in pixels.
	Margin float64
	// Duration of the animation; zero applies immediately.
	Duration time.Duration
	// CheckZoomRange clamps the resulting zoom into the map's allowed range.
	CheckZoomRange bool
}

// OverlaySpec describes an info window to render.
type OverlaySpec struct {
	Position  domain.GeoPoint
	HTML      string
	Native    any
	Panel     bool
	Offset    domain.Pixel
	Width     float64
	Height    float64
	ZIndex    int
	CloseIcon bool
}

// Overlay is a rendered info window owned by the host map.
type Overlay interface {
	// Bounds returns the current shape in container pixels.
	Bounds() domain.PixelBounds
	SetPosition(p domain.GeoPoint) error
	SetContent(html string, native any) error
}

// MapView is the capability set the clusterer and overlay controller need
// from a map-rendering backend.
type MapView interface {
	// Ready is closed once the map can accept commands.
	Ready() <-chan struct{}

	Zoom() int
	Size() domain.Size
	Center() domain.GeoPoint
	Bounds() domain.Bounds

	// Project converts a coordinate into global pixel space at the given zoom.
	Project(p domain.GeoPoint, zoom int) domain.Pixel
	GlobalPixelCenter() domain.Pixel

	SetCenter(ctx context.Context, center domain.GeoPoint, zoom int, opts PanOptions) error
	SetGlobalPixelCenter(ctx context.Context, center domain.Pixel, zoom int, opts PanOptions) error
	SetBounds(ctx context.Context, b domain.Bounds, opts FitOptions) error

	AddOverlay(ctx context.Context, spec OverlaySpec) (Overlay, error)
	RemoveOverlay(ctx context.Context, o Overlay) error

	// Subscribe registers handler for t and returns a function removing it.
	Subscribe(t EventType, handler func(MapEvent)) (unsubscribe func())
}

// ViewFactory builds a ready MapView for a viewport that has no rendering
// backend, such as a cluster query made over HTTP.
type ViewFactory func(size domain.Size, center domain.GeoPoint, zoom int) MapView
