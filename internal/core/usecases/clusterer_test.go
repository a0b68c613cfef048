package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/mapcore/internal/adapters/viewport"
	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/ports"
	"github.com/samirrijal/mapcore/internal/core/usecases"
)

var moscowMarkers = []domain.Marker{
	{ID: "a", Latitude: 55.7558, Longitude: 37.6173, Title: "Салон на Тверской"},
	{ID: "b", Latitude: 55.7560, Longitude: 37.6175, Title: "Барбершоп"},
	{ID: "c", Latitude: 55.7562, Longitude: 37.6177, Title: "Маникюр"},
}

var moscowCenter = domain.GeoPoint{Lat: 55.7558, Lon: 37.6173}

func newView(zoom int) *viewport.View {
	return viewport.New(domain.Size{Width: 800, Height: 600}, moscowCenter, zoom, viewport.Ready())
}

func newClusterer(t *testing.T, view ports.MapView, opts usecases.ClustererOptions) *usecases.Clusterer {
	t.Helper()
	c, err := usecases.NewClusterer(view, opts, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(c.Destroy)
	select {
	case <-c.Ready():
	case <-time.After(time.Second):
		t.Fatal("clusterer never became ready")
	}
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNewClusterer_RequiresMap(t *testing.T) {
	_, err := usecases.NewClusterer(nil, usecases.ClustererOptions{}, nil)
	if !errors.Is(err, domain.ErrMapRequired) {
		t.Errorf("expected ErrMapRequired, got %v", err)
	}
}

func TestClusterer_MoscowScenario(t *testing.T) {
	c := newClusterer(t, newView(12), usecases.ClustererOptions{GridSize: 60, MinClusterSize: 2})

	n, err := c.Add(moscowMarkers...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 markers added, got %d", n)
	}

	snap := c.Snapshot()
	if len(snap.Clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(snap.Clusters))
	}
	if snap.Clusters[0].Size() != 3 {
		t.Errorf("expected 3 members, got %d", snap.Clusters[0].Size())
	}
	if len(snap.Singles) != 0 {
		t.Errorf("expected no singles, got %d", len(snap.Singles))
	}

	g := snap.Clusters[0]
	if g.Anchor.Lat < 55.75599 || g.Anchor.Lat > 55.76001 {
		t.Errorf("unexpected anchor %v", g.Anchor)
	}
	if g.Bounds.MinLat != 55.7558 || g.Bounds.MaxLon != 37.6177 {
		t.Errorf("unexpected bounds %+v", g.Bounds)
	}
}

func TestClusterer_BelowMinClusterSize(t *testing.T) {
	c := newClusterer(t, newView(12), usecases.ClustererOptions{MinClusterSize: 4})
	c.Add(moscowMarkers...)

	if _, ok := c.Bounds(); !ok {
		t.Error("expected bounds for non-empty marker set")
	}
	snap := c.Snapshot()
	if len(snap.Clusters) != 0 {
		t.Errorf("expected no clusters, got %d", len(snap.Clusters))
	}
	if len(snap.Singles) != 3 {
		t.Errorf("expected 3 singles, got %d", len(snap.Singles))
	}
}

func TestClusterer_AboveMaxZoomShowsSingles(t *testing.T) {
	c := newClusterer(t, newView(17), usecases.ClustererOptions{MaxZoom: 16})
	c.Add(moscowMarkers...)

	snap := c.Snapshot()
	if len(snap.Clusters) != 0 || len(snap.Singles) != 3 {
		t.Errorf("expected all singles above max zoom, got %d clusters %d singles",
			len(snap.Clusters), len(snap.Singles))
	}
}

func TestClusterer_SkipsMalformedMarkers(t *testing.T) {
	c := newClusterer(t, newView(12), usecases.ClustererOptions{})
	n, err := c.Add(
		moscowMarkers[0],
		domain.Marker{ID: "bad", Latitude: 123, Longitude: 37},
		domain.Marker{Latitude: 55, Longitude: 37},
		moscowMarkers[1],
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 accepted markers, got %d", n)
	}
	if len(c.Markers()) != 2 {
		t.Errorf("expected 2 markers, got %d", len(c.Markers()))
	}
}

func TestClusterer_SetGridSizeRange(t *testing.T) {
	c := newClusterer(t, newView(12), usecases.ClustererOptions{})

	for _, g := range []int{10, 60, 150, 300} {
		if err := c.SetGridSize(g); err != nil {
			t.Errorf("SetGridSize(%d): unexpected error %v", g, err)
		}
		if c.GridSize() != g {
			t.Errorf("expected grid size %d, got %d", g, c.GridSize())
		}
	}

	for _, g := range []int{-1, 0, 9, 301, 1000} {
		err := c.SetGridSize(g)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("SetGridSize(%d): expected ErrInvalidInput, got %v", g, err)
		}
		if c.GridSize() != 300 {
			t.Errorf("SetGridSize(%d) changed grid size to %d", g, c.GridSize())
		}
	}
}

func TestClusterer_SetMinClusterSizeRange(t *testing.T) {
	c := newClusterer(t, newView(12), usecases.ClustererOptions{})
	c.Add(moscowMarkers...)

	if err := c.SetMinClusterSize(1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if err := c.SetMinClusterSize(101); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if c.MinClusterSize() != 2 {
		t.Errorf("expected unchanged min size 2, got %d", c.MinClusterSize())
	}

	if err := c.SetMinClusterSize(4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Snapshot().Clusters) != 0 {
		t.Error("expected regrouping with the new minimum")
	}
}

func TestClusterer_RefreshIsIdempotent(t *testing.T) {
	c := newClusterer(t, newView(12), usecases.ClustererOptions{})
	c.Add(moscowMarkers...)
	c.Add(domain.Marker{ID: "far", Latitude: 59.9343, Longitude: 30.3351})

	c.Refresh()
	first := c.Snapshot()
	c.Refresh()
	second := c.Snapshot()

	if !reflect.DeepEqual(first.Clusters, second.Clusters) {
		t.Errorf("clusters differ after refresh:\n%+v\n%+v", first.Clusters, second.Clusters)
	}
	if !reflect.DeepEqual(first.Singles, second.Singles) {
		t.Errorf("singles differ after refresh")
	}
}

func TestClusterer_RemoveAndRemoveAll(t *testing.T) {
	c := newClusterer(t, newView(12), usecases.ClustererOptions{})
	c.Add(moscowMarkers...)

	if n := c.Remove(moscowMarkers[0]); n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
	if n := c.RemoveByID("missing"); n != 0 {
		t.Errorf("expected no-op for unknown id, got %d", n)
	}
	if got := c.Snapshot().Clusters[0].Size(); got != 2 {
		t.Errorf("expected cluster of 2, got %d", got)
	}

	c.RemoveAll()
	if _, ok := c.Bounds(); ok {
		t.Error("expected no bounds after RemoveAll")
	}
	snap := c.Snapshot()
	if len(snap.Clusters) != 0 || len(snap.Singles) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestClusterer_AddReplacesSameID(t *testing.T) {
	c := newClusterer(t, newView(12), usecases.ClustererOptions{})
	c.Add(moscowMarkers[0])
	moved := moscowMarkers[0]
	moved.Latitude = 59.9343
	c.Add(moved)

	ms := c.Markers()
	if len(ms) != 1 || ms[0].Latitude != 59.9343 {
		t.Errorf("expected replaced marker, got %+v", ms)
	}
}

func TestClusterer_QueuesUntilReady(t *testing.T) {
	view := viewport.New(domain.Size{Width: 800, Height: 600}, moscowCenter, 12)
	c, err := usecases.NewClusterer(view, usecases.ClustererOptions{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Destroy()

	c.Add(moscowMarkers...)
	if len(c.Snapshot().Clusters) != 0 {
		t.Fatal("expected no grouping before the map is ready")
	}

	view.MarkReady()
	select {
	case <-c.Ready():
	case <-time.After(time.Second):
		t.Fatal("clusterer never became ready")
	}
	if len(c.Snapshot().Clusters) != 1 {
		t.Errorf("expected queued markers to be grouped once ready")
	}
}

func TestClusterer_RegroupsOnBoundsChange(t *testing.T) {
	view := newView(12)
	c := newClusterer(t, view, usecases.ClustererOptions{BoundsDebounce: 10 * time.Millisecond})
	c.Add(moscowMarkers...)

	if err := view.SetCenter(context.Background(), moscowCenter, 16, ports.PanOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, func() bool { return c.Snapshot().Zoom == 16 })

	snap := c.Snapshot()
	if len(snap.Clusters) != 1 || snap.Clusters[0].Size() != 2 || len(snap.Singles) != 1 {
		t.Errorf("expected a pair and a single at zoom 16, got %d clusters %d singles",
			len(snap.Clusters), len(snap.Singles))
	}
}

func TestClusterer_OnSnapshot(t *testing.T) {
	c := newClusterer(t, newView(12), usecases.ClustererOptions{})
	var got []domain.ClusterSnapshot
	unsub := c.OnSnapshot(func(s domain.ClusterSnapshot) { got = append(got, s) })

	c.Add(moscowMarkers...)
	if len(got) != 1 || len(got[0].Clusters) != 1 {
		t.Fatalf("expected one snapshot with one cluster, got %+v", got)
	}

	unsub()
	c.Refresh()
	if len(got) != 1 {
		t.Errorf("expected no snapshots after unsubscribe, got %d", len(got))
	}
}

func TestClusterer_OnSnapshotNeverDeliversOlderPass(t *testing.T) {
	c := newClusterer(t, newView(12), usecases.ClustererOptions{})
	var (
		mu   sync.Mutex
		gens []uint64
	)
	c.OnSnapshot(func(s domain.ClusterSnapshot) {
		mu.Lock()
		gens = append(gens, s.Generation)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if i%2 == 0 {
					c.Refresh()
					continue
				}
				_, _ = c.Add(domain.Marker{ID: fmt.Sprintf("m%d-%d", w, i), Latitude: 55.75, Longitude: 37.61})
			}
		}(w)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(gens) == 0 {
		t.Fatal("expected snapshots")
	}
	for i := 1; i < len(gens); i++ {
		if gens[i] <= gens[i-1] {
			t.Fatalf("snapshot generation went from %d to %d", gens[i-1], gens[i])
		}
	}
	if last := gens[len(gens)-1]; last != c.Snapshot().Generation {
		t.Errorf("last delivered generation %d, current %d", last, c.Snapshot().Generation)
	}
}

func TestClusterer_FitToViewport(t *testing.T) {
	view := viewport.New(domain.Size{Width: 800, Height: 600}, domain.GeoPoint{}, 2, viewport.Ready())
	c := newClusterer(t, view, usecases.ClustererOptions{})
	c.Add(moscowMarkers...)
	c.Add(domain.Marker{ID: "spb", Latitude: 59.9343, Longitude: 30.3351})

	if err := c.FitToViewport(context.Background(), ports.FitOptions{Margin: 10}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := view.Bounds()
	for _, m := range c.Markers() {
		if !b.Contains(m.Point()) {
			t.Errorf("marker %s outside viewport %+v", m.ID, b)
		}
	}
}

func TestClusterer_ClickRevealsSmallCluster(t *testing.T) {
	view := newView(12)
	c := newClusterer(t, view, usecases.ClustererOptions{})
	opts := usecases.DefaultOverlayOptions()
	opts.AutoPan = false
	overlay, err := usecases.NewOverlayController(view, opts, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer overlay.Destroy()
	c.AttachOverlay(overlay)
	c.Add(moscowMarkers...)

	id := c.Snapshot().Clusters[0].ID
	res, err := c.Click(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Action != usecases.ClickReveal {
		t.Errorf("expected reveal, got %s", res.Action)
	}
	st := overlay.State()
	if !st.IsOpen || st.Position == nil || *st.Position != res.Cluster.Anchor {
		t.Errorf("expected overlay open at cluster anchor, got %+v", st)
	}
	if view.Zoom() != 12 {
		t.Errorf("reveal should not change zoom, got %d", view.Zoom())
	}
}

func TestClusterer_ClickZoomsLargeCluster(t *testing.T) {
	view := newView(12)
	c := newClusterer(t, view, usecases.ClustererOptions{})
	for i := 0; i < 6; i++ {
		c.Add(domain.Marker{
			ID:        string(rune('a' + i)),
			Latitude:  55.7558 + float64(i)*0.0001,
			Longitude: 37.6173 + float64(i)*0.0001,
		})
	}

	snap := c.Snapshot()
	if len(snap.Clusters) != 1 || snap.Clusters[0].Size() != 6 {
		t.Fatalf("expected one cluster of 6, got %+v", snap.Clusters)
	}

	res, err := c.Click(context.Background(), snap.Clusters[0].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Action != usecases.ClickZoom {
		t.Errorf("expected zoom, got %s", res.Action)
	}
	if view.Zoom() <= 12 {
		t.Errorf("expected zoom in, got %d", view.Zoom())
	}
}

func TestClusterer_ClickUnknownCluster(t *testing.T) {
	c := newClusterer(t, newView(12), usecases.ClustererOptions{})
	if _, err := c.Click(context.Background(), "nope"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestClusterer_Destroy(t *testing.T) {
	view := newView(12)
	c := newClusterer(t, view, usecases.ClustererOptions{BoundsDebounce: 10 * time.Millisecond})
	calls := 0
	c.OnSnapshot(func(domain.ClusterSnapshot) { calls++ })

	c.Destroy()
	c.Destroy()

	if _, err := c.Add(moscowMarkers...); !errors.Is(err, domain.ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}
	_ = view.SetCenter(context.Background(), moscowCenter, 14, ports.PanOptions{})
	time.Sleep(40 * time.Millisecond)
	if calls != 0 {
		t.Errorf("expected no snapshots after destroy, got %d", calls)
	}
}
