package viewport_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/samirrijal/mapcore/internal/adapters/viewport"
	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/ports"
)

var moscow = domain.GeoPoint{Lat: 55.7558, Lon: 37.6173}

func TestView_ReadyChannel(t *testing.T) {
	v := viewport.New(domain.Size{Width: 800, Height: 600}, moscow, 10)
	select {
	case <-v.Ready():
		t.Fatal("view should not be ready yet")
	default:
	}
	v.MarkReady()
	v.MarkReady()
	select {
	case <-v.Ready():
	case <-time.After(time.Second):
		t.Fatal("view should be ready")
	}
}

func TestView_BoundsContainCenter(t *testing.T) {
	v := viewport.New(domain.Size{Width: 800, Height: 600}, moscow, 12, viewport.Ready())
	b := v.Bounds()
	if !b.Contains(moscow) {
		t.Errorf("bounds %+v should contain center", b)
	}
	c := b.Center()
	if math.Abs(c.Lon-moscow.Lon) > 1e-9 {
		t.Errorf("expected symmetric longitude span, center %v", c)
	}
}

func TestView_SetCenterEmitsEvents(t *testing.T) {
	v := viewport.New(domain.Size{Width: 800, Height: 600}, moscow, 10, viewport.Ready())

	var got []ports.EventType
	var zoomEv ports.MapEvent
	v.Subscribe(ports.EventZoomChange, func(ev ports.MapEvent) {
		got = append(got, ev.Type)
		zoomEv = ev
	})
	unsub := v.Subscribe(ports.EventBoundsChange, func(ev ports.MapEvent) {
		got = append(got, ev.Type)
	})

	if err := v.SetCenter(context.Background(), moscow, 12, ports.PanOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != ports.EventZoomChange || got[1] != ports.EventBoundsChange {
		t.Fatalf("unexpected events %v", got)
	}
	if zoomEv.OldZoom != 10 || zoomEv.NewZoom != 12 {
		t.Errorf("unexpected zoom event %+v", zoomEv)
	}

	unsub()
	got = nil
	_ = v.SetCenter(context.Background(), domain.GeoPoint{Lat: 55.8, Lon: 37.6}, 12, ports.PanOptions{})
	if len(got) != 0 {
		t.Errorf("expected no events after unsubscribe, got %v", got)
	}
}

func TestView_SetCenterRejectsInvalid(t *testing.T) {
	v := viewport.New(domain.Size{Width: 800, Height: 600}, moscow, 10, viewport.Ready())
	if err := v.SetCenter(context.Background(), domain.GeoPoint{Lat: 95}, 10, ports.PanOptions{}); err == nil {
		t.Error("expected error for invalid center")
	}
}

func TestView_SetBoundsFitsWithMargin(t *testing.T) {
	v := viewport.New(domain.Size{Width: 800, Height: 600}, domain.GeoPoint{}, 3, viewport.Ready())
	target := domain.Bounds{MinLat: 55.70, MinLon: 37.50, MaxLat: 55.80, MaxLon: 37.70}

	if err := v.SetBounds(context.Background(), target, ports.FitOptions{Margin: 20}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := v.Bounds()
	for _, p := range []domain.GeoPoint{
		{Lat: target.MinLat, Lon: target.MinLon},
		{Lat: target.MaxLat, Lon: target.MaxLon},
	} {
		if !b.Contains(p) {
			t.Errorf("view bounds %+v should contain %v", b, p)
		}
	}
	if v.Zoom() < 10 {
		t.Errorf("expected city-level zoom, got %d", v.Zoom())
	}
}

func TestView_SetBoundsRespectsZoomRange(t *testing.T) {
	v := viewport.New(domain.Size{Width: 800, Height: 600}, moscow, 3,
		viewport.Ready(), viewport.WithZoomRange(0, 14))
	tiny := domain.BoundsFromPoint(moscow)

	_ = v.SetBounds(context.Background(), tiny, ports.FitOptions{CheckZoomRange: true})
	if v.Zoom() != 14 {
		t.Errorf("expected zoom clamped to 14, got %d", v.Zoom())
	}
}

func TestOverlay_BoundsAboveAnchor(t *testing.T) {
	v := viewport.New(domain.Size{Width: 800, Height: 600}, moscow, 12, viewport.Ready())
	o, err := v.AddOverlay(context.Background(), ports.OverlaySpec{
		Position: moscow, Width: 200, Height: 100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b := o.Bounds()
	if math.Abs(b.Min.X-300) > 1e-6 || math.Abs(b.Max.X-500) > 1e-6 {
		t.Errorf("unexpected x span %+v", b)
	}
	if math.Abs(b.Min.Y-200) > 1e-6 || math.Abs(b.Max.Y-300) > 1e-6 {
		t.Errorf("unexpected y span %+v", b)
	}
	if len(v.Overlays()) != 1 {
		t.Errorf("expected 1 overlay, got %d", len(v.Overlays()))
	}
	if err := v.RemoveOverlay(context.Background(), o); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v.Overlays()) != 0 {
		t.Errorf("expected 0 overlays, got %d", len(v.Overlays()))
	}
}

func TestOverlay_PanelSpansBottom(t *testing.T) {
	v := viewport.New(domain.Size{Width: 300, Height: 400}, moscow, 12, viewport.Ready())
	o, _ := v.AddOverlay(context.Background(), ports.OverlaySpec{
		Position: moscow, Panel: true, Width: 300, Height: 120,
	})
	b := o.Bounds()
	if b.Min.X != 0 || b.Max.X != 300 || b.Min.Y != 280 || b.Max.Y != 400 {
		t.Errorf("unexpected panel bounds %+v", b)
	}
}

func TestView_ResizeEmitsSizeChange(t *testing.T) {
	v := viewport.New(domain.Size{Width: 800, Height: 600}, moscow, 12, viewport.Ready())
	var n int
	v.Subscribe(ports.EventSizeChange, func(ports.MapEvent) { n++ })
	v.Resize(domain.Size{Width: 400, Height: 300})
	v.Resize(domain.Size{Width: 400, Height: 300})
	if n != 1 {
		t.Errorf("expected 1 sizechange, got %d", n)
	}
}
