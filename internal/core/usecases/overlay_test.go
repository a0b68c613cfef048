package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/samirrijal/mapcore/internal/adapters/viewport"
	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/ports"
	"github.com/samirrijal/mapcore/internal/core/usecases"
	"github.com/samirrijal/mapcore/internal/pkg/geospatial"
)

func newOverlay(t *testing.T, view ports.MapView, mutate func(*usecases.OverlayOptions)) *usecases.OverlayController {
	t.Helper()
	opts := usecases.DefaultOverlayOptions()
	opts.AutoPan = false
	opts.PanelMaxMapArea = 0
	if mutate != nil {
		mutate(&opts)
	}
	o, err := usecases.NewOverlayController(view, opts, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(o.Destroy)
	return o
}

func TestNewOverlayController_RequiresMap(t *testing.T) {
	_, err := usecases.NewOverlayController(nil, usecases.DefaultOverlayOptions(), nil)
	if !errors.Is(err, domain.ErrMapRequired) {
		t.Errorf("expected ErrMapRequired, got %v", err)
	}
}

func TestOverlay_OpenRendersSections(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, nil)

	err := o.Open(context.Background(), []float64{55.7558, 37.6173},
		domain.Sections{Header: "Салон", Body: "Стрижка", Footer: "10:00-20:00"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := o.State()
	if !st.IsOpen || st.Phase != domain.OverlayOpen {
		t.Errorf("expected open state, got %+v", st)
	}
	ovs := view.Overlays()
	if len(ovs) != 1 {
		t.Fatalf("expected 1 overlay, got %d", len(ovs))
	}
	want := `<div class="balloon-content"><div class="balloon-header">Салон</div>` +
		`<div class="balloon-body">Стрижка</div><div class="balloon-footer">10:00-20:00</div></div>`
	if got := ovs[0].Spec().HTML; got != want {
		t.Errorf("unexpected markup:\n got %s\nwant %s", got, want)
	}
}

func TestOverlay_OpenInvalidPositionNoStateChange(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, nil)

	if err := o.Open(context.Background(), moscowCenter, domain.Markup("first")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []any{
		[]float64{91, 0},
		map[string]any{"x": 1},
		"55.75,37.61",
		[]float64{1, 2, 3},
	}
	for _, pos := range bad {
		err := o.Open(context.Background(), pos, domain.Markup("second"))
		if !errors.Is(err, domain.ErrInvalidPosition) {
			t.Errorf("Open(%v): expected ErrInvalidPosition, got %v", pos, err)
		}
	}

	st := o.State()
	if !st.IsOpen || st.Content != domain.Markup("first") || *st.Position != moscowCenter {
		t.Errorf("state changed after invalid open: %+v", st)
	}
	if len(view.Overlays()) != 1 {
		t.Errorf("expected the first overlay to stay, got %d", len(view.Overlays()))
	}
}

func TestOverlay_SecondOpenReplacesFirst(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, nil)
	p1 := domain.GeoPoint{Lat: 55.7558, Lon: 37.6173}
	p2 := domain.GeoPoint{Lat: 55.7600, Lon: 37.6200}

	closes := 0
	o.On(usecases.OverlayEventClose, func(domain.OverlayState) { closes++ })

	if err := o.Open(context.Background(), p1, domain.Markup("c1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.Open(context.Background(), domain.LatLng{Lat: p2.Lat, Lng: p2.Lon}, domain.Markup("c2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ovs := view.Overlays()
	if len(ovs) != 1 {
		t.Fatalf("expected exactly 1 overlay, got %d", len(ovs))
	}
	if ovs[0].Spec().Position != p2 || ovs[0].Spec().HTML != "c2" {
		t.Errorf("expected overlay at p2 with c2, got %+v", ovs[0].Spec())
	}
	st := o.State()
	if *st.Position != p2 || st.Content != domain.Markup("c2") {
		t.Errorf("unexpected final state %+v", st)
	}
	if closes != 1 {
		t.Errorf("expected the first overlay to be closed once, got %d", closes)
	}
}

func TestOverlay_ConcurrentOpensLeaveOneOverlay(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, nil)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(i int) {
			_ = o.Open(context.Background(), domain.GeoPoint{Lat: 55.75 + float64(i)*0.001, Lon: 37.61}, domain.Markup("x"))
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	if n := len(view.Overlays()); n != 1 {
		t.Errorf("expected 1 overlay, got %d", n)
	}
}

func TestOverlay_ForceCloseIsImmediate(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, func(opts *usecases.OverlayOptions) { opts.CloseTimeout = time.Hour })
	_ = o.Open(context.Background(), moscowCenter, domain.Markup("x"))

	start := time.Now()
	if err := o.Close(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Errorf("forced close took %s", time.Since(start))
	}
	if o.State().IsOpen || len(view.Overlays()) != 0 {
		t.Error("expected overlay closed")
	}
}

func TestOverlay_DelayedClose(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, func(opts *usecases.OverlayOptions) { opts.CloseTimeout = 30 * time.Millisecond })
	_ = o.Open(context.Background(), moscowCenter, domain.Markup("x"))

	start := time.Now()
	if err := o.Close(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("expected close to wait for CloseTimeout")
	}
	if o.State().Phase != domain.OverlayClosed {
		t.Errorf("expected closed, got %s", o.State().Phase)
	}
}

func TestOverlay_ForceCloseCancelsDelayedClose(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, func(opts *usecases.OverlayOptions) { opts.CloseTimeout = time.Hour })
	_ = o.Open(context.Background(), moscowCenter, domain.Markup("x"))

	errc := make(chan error, 1)
	go func() { errc <- o.Close(context.Background(), false) }()
	waitFor(t, func() bool { return o.State().Phase == domain.OverlayClosing })

	if err := o.Close(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, domain.ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("delayed close never returned")
	}
	if o.State().IsOpen {
		t.Error("expected overlay closed")
	}
}

func TestOverlay_CloseCancelsPendingOpen(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, func(opts *usecases.OverlayOptions) { opts.OpenTimeout = time.Hour })

	errc := make(chan error, 1)
	go func() { errc <- o.Open(context.Background(), moscowCenter, domain.Markup("x")) }()
	waitFor(t, func() bool { return o.State().Phase == domain.OverlayOpening })

	if err := o.Close(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, domain.ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending open never returned")
	}
	if len(view.Overlays()) != 0 || o.State().Phase != domain.OverlayClosed {
		t.Errorf("expected nothing opened, state %+v", o.State())
	}
}

func TestOverlay_PanelModeOnLargeMap(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, func(opts *usecases.OverlayOptions) { opts.PanelMaxMapArea = 160000 })

	if err := o.Open(context.Background(), moscowCenter, domain.Markup("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !o.State().IsPanelMode {
		t.Error("expected panel mode on an 800x600 map")
	}
	spec := view.Overlays()[0].Spec()
	if !spec.Panel || spec.Width != 800 {
		t.Errorf("expected full-width panel spec, got %+v", spec)
	}

	before := view.Center()
	if err := o.AutoPan(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Center() != before {
		t.Error("auto pan must not run in panel mode")
	}
}

func TestOverlay_PanelModeThreshold(t *testing.T) {
	tests := []struct {
		name      string
		size      domain.Size
		threshold float64
		want      bool
	}{
		{"below threshold", domain.Size{Width: 300, Height: 400}, 160000, false},
		{"equal to threshold", domain.Size{Width: 400, Height: 400}, 160000, true},
		{"above threshold", domain.Size{Width: 1024, Height: 768}, 160000, true},
		{"disabled", domain.Size{Width: 1024, Height: 768}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := viewport.New(tt.size, moscowCenter, 12, viewport.Ready())
			o := newOverlay(t, view, func(opts *usecases.OverlayOptions) { opts.PanelMaxMapArea = tt.threshold })
			if err := o.Open(context.Background(), moscowCenter, domain.Markup("x")); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := o.State().IsPanelMode; got != tt.want {
				t.Errorf("panel mode = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOverlay_ZoomChangeCloses(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, nil)
	_ = o.Open(context.Background(), moscowCenter, domain.Markup("x"))

	_ = view.SetCenter(context.Background(), moscowCenter, 13, ports.PanOptions{})
	if o.State().IsOpen {
		t.Error("expected zoom change to close the overlay")
	}
}

func TestOverlay_ZoomChangeHonoursCloseTimeout(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, func(opts *usecases.OverlayOptions) { opts.CloseTimeout = 50 * time.Millisecond })
	_ = o.Open(context.Background(), moscowCenter, domain.Markup("x"))

	start := time.Now()
	_ = view.SetCenter(context.Background(), moscowCenter, 13, ports.PanOptions{})
	if time.Since(start) >= 50*time.Millisecond {
		t.Error("zoom change must not block on the delayed close")
	}
	if !o.State().IsOpen {
		t.Error("expected overlay to stay open until CloseTimeout elapses")
	}

	deadline := time.Now().Add(time.Second)
	for o.State().IsOpen {
		if time.Now().After(deadline) {
			t.Fatal("overlay never closed after zoom change")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("expected close to wait for CloseTimeout")
	}
}

func TestOverlay_StayOpenOnZoom(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, func(opts *usecases.OverlayOptions) { opts.StayOpenOnZoom = true })
	_ = o.Open(context.Background(), moscowCenter, domain.Markup("x"))

	_ = view.SetCenter(context.Background(), moscowCenter, 13, ports.PanOptions{})
	if !o.State().IsOpen {
		t.Error("expected overlay to stay open")
	}
}

func TestOverlay_UserCloseCloses(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, nil)
	_ = o.Open(context.Background(), moscowCenter, domain.Markup("x"))

	view.UserClose()
	if o.State().IsOpen {
		t.Error("expected user close to close the overlay")
	}
}

// nearLeftEdge returns a coordinate 50px from the left edge of an 800x600 view.
func nearLeftEdge(view *viewport.View) domain.GeoPoint {
	c := view.GlobalPixelCenter()
	return geospatial.Unproject(domain.Pixel{X: c.X - 350, Y: c.Y}, view.Zoom())
}

func TestOverlay_AutoPanBringsOverlayIntoView(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, nil)
	pos := nearLeftEdge(view)

	if err := o.Open(context.Background(), pos, domain.Markup("x"), usecases.WithSize(200, 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b := view.Overlays()[0].Bounds(); b.Min.X >= 34 {
		t.Fatalf("precondition: overlay should overflow the margin, got %+v", b)
	}

	if err := o.AutoPan(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := view.Overlays()[0].Bounds()
	if math.Abs(b.Min.X-34) > 0.5 {
		t.Errorf("expected overlay left edge at margin 34, got %.2f", b.Min.X)
	}
	if view.Zoom() != 12 {
		t.Errorf("auto pan must not change zoom, got %d", view.Zoom())
	}
}

func TestOverlay_AutoPanScheduledAfterOpen(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, func(opts *usecases.OverlayOptions) {
		opts.AutoPan = true
		opts.AutoPanDelay = 5 * time.Millisecond
	})
	pans := make(chan struct{}, 1)
	o.On(usecases.OverlayEventAutoPan, func(domain.OverlayState) {
		select {
		case pans <- struct{}{}:
		default:
		}
	})

	before := view.Center()
	_ = o.Open(context.Background(), nearLeftEdge(view), domain.Markup("x"), usecases.WithSize(200, 100))

	select {
	case <-pans:
	case <-time.After(time.Second):
		t.Fatal("auto pan never ran")
	}
	if view.Center() == before {
		t.Error("expected the map to pan")
	}
}

func TestOverlay_SetPositionAndContent(t *testing.T) {
	view := newView(12)
	o := newOverlay(t, view, nil)

	if err := o.SetPosition([2]float64{55.70, 37.60}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.State().IsOpen {
		t.Error("SetPosition must not open the overlay")
	}

	_ = o.Open(context.Background(), moscowCenter, domain.Markup("x"))
	p := domain.GeoPoint{Lat: 55.76, Lon: 37.62}
	if err := o.SetPosition(map[string]any{"latitude": p.Lat, "longitude": p.Lon}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.SetContent(domain.Markup("updated")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spec := view.Overlays()[0].Spec()
	if spec.Position != p || spec.HTML != "updated" {
		t.Errorf("expected overlay to follow updates, got %+v", spec)
	}
	if err := o.SetPosition("nowhere"); !errors.Is(err, domain.ErrInvalidPosition) {
		t.Errorf("expected ErrInvalidPosition, got %v", err)
	}
}

func TestOverlay_DestroyFromAnyState(t *testing.T) {
	view := newView(12)

	closed := newOverlay(t, view, nil)
	closed.Destroy()
	closed.Destroy()

	open := newOverlay(t, view, nil)
	_ = open.Open(context.Background(), moscowCenter, domain.Markup("x"))
	open.Destroy()
	if len(view.Overlays()) != 0 {
		t.Error("expected destroy to remove the overlay")
	}
	if err := open.Open(context.Background(), moscowCenter, domain.Markup("x")); !errors.Is(err, domain.ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}

	pending := newOverlay(t, view, func(opts *usecases.OverlayOptions) { opts.OpenTimeout = time.Hour })
	errc := make(chan error, 1)
	go func() { errc <- pending.Open(context.Background(), moscowCenter, domain.Markup("x")) }()
	waitFor(t, func() bool { return pending.State().Phase == domain.OverlayOpening })
	pending.Destroy()
	select {
	case err := <-errc:
		if err == nil {
			t.Error("expected pending open to fail after destroy")
		}
	case <-time.After(time.Second):
		t.Fatal("pending open never returned")
	}
}

func TestParsePosition(t *testing.T) {
	want := domain.GeoPoint{Lat: 55.7558, Lon: 37.6173}
	valid := []any{
		want,
		&want,
		domain.LatLng{Lat: 55.7558, Lng: 37.6173},
		domain.LngLat{37.6173, 55.7558},
		[2]float64{55.7558, 37.6173},
		[]float64{55.7558, 37.6173},
		[]any{55.7558, 37.6173},
		map[string]any{"lat": 55.7558, "lng": 37.6173},
		map[string]any{"latitude": 55.7558, "longitude": 37.6173},
		map[string]any{"lat": json.Number("55.7558"), "lng": json.Number("37.6173")},
	}
	for _, v := range valid {
		got, err := usecases.ParsePosition(v)
		if err != nil {
			t.Errorf("ParsePosition(%#v): unexpected error %v", v, err)
			continue
		}
		if got != want {
			t.Errorf("ParsePosition(%#v) = %v, want %v", v, got, want)
		}
	}

	invalid := []any{
		nil,
		"55.7558,37.6173",
		[]float64{55.7558},
		[]any{"a", "b"},
		map[string]any{"lat": 55.7558},
		[2]float64{-91, 0},
		[2]float64{0, 181},
		[2]float64{math.NaN(), 0},
		(*domain.GeoPoint)(nil),
	}
	for _, v := range invalid {
		if _, err := usecases.ParsePosition(v); !errors.Is(err, domain.ErrInvalidPosition) {
			t.Errorf("ParsePosition(%#v): expected ErrInvalidPosition, got %v", v, err)
		}
	}
}

func TestAutoPanOffset(t *testing.T) {
	size := domain.Size{Width: 800, Height: 600}
	tests := []struct {
		name  string
		shape domain.PixelBounds
		want  domain.Pixel
	}{
		{"inside", domain.PixelBounds{Min: domain.Pixel{X: 100, Y: 100}, Max: domain.Pixel{X: 300, Y: 200}}, domain.Pixel{}},
		{"left", domain.PixelBounds{Min: domain.Pixel{X: 10, Y: 100}, Max: domain.Pixel{X: 210, Y: 200}}, domain.Pixel{X: -24}},
		{"right", domain.PixelBounds{Min: domain.Pixel{X: 600, Y: 100}, Max: domain.Pixel{X: 800, Y: 200}}, domain.Pixel{X: 34}},
		{"top", domain.PixelBounds{Min: domain.Pixel{X: 100, Y: -50}, Max: domain.Pixel{X: 300, Y: 50}}, domain.Pixel{Y: -84}},
		{"bottom-right", domain.PixelBounds{Min: domain.Pixel{X: 700, Y: 500}, Max: domain.Pixel{X: 790, Y: 590}}, domain.Pixel{X: 24, Y: 24}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := usecases.AutoPanOffset(tt.shape, size, 34); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
