package geospatial_test

import (
	"math"
	"testing"

	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/pkg/geospatial"
)

func TestHaversine_SamePoint(t *testing.T) {
	if d := geospatial.Haversine(55.7558, 37.6173, 55.7558, 37.6173); d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	pairs := [][4]float64{
		{55.7558, 37.6173, 59.9343, 30.3351},
		{43.263, -2.935, 40.4168, -3.7038},
		{-33.8688, 151.2093, 51.5074, -0.1278},
		{0, 179.9, 0, -179.9},
	}
	for _, p := range pairs {
		ab := geospatial.Haversine(p[0], p[1], p[2], p[3])
		ba := geospatial.Haversine(p[2], p[3], p[0], p[1])
		if math.Abs(ab-ba) > 1e-6 {
			t.Errorf("distance not symmetric for %v: %f vs %f", p, ab, ba)
		}
	}
}

func TestHaversine_MoscowSaintPetersburg(t *testing.T) {
	d := geospatial.Haversine(55.7558, 37.6173, 59.9343, 30.3351)
	// ~634 km
	if d < 630000 || d > 640000 {
		t.Errorf("expected ~634km, got %.0fm", d)
	}
}

func TestProject_RoundTrip(t *testing.T) {
	p := domain.GeoPoint{Lat: 55.7558, Lon: 37.6173}
	for _, z := range []int{0, 5, 12, 18} {
		px := geospatial.Project(p, z)
		back := geospatial.Unproject(px, z)
		if math.Abs(back.Lat-p.Lat) > 1e-9 || math.Abs(back.Lon-p.Lon) > 1e-9 {
			t.Errorf("zoom %d: round trip %v -> %v", z, p, back)
		}
	}
}

func TestProject_OriginAtCenter(t *testing.T) {
	px := geospatial.Project(domain.GeoPoint{}, 0)
	if px.X != 128 || math.Abs(px.Y-128) > 1e-9 {
		t.Errorf("expected (128,128), got %v", px)
	}
}

func TestFitZoom(t *testing.T) {
	b := domain.Bounds{MinLat: 55.70, MinLon: 37.50, MaxLat: 55.80, MaxLon: 37.70}
	size := domain.Size{Width: 800, Height: 600}
	z := geospatial.FitZoom(b, size, 10, 0, 21)
	if z < 10 || z > 13 {
		t.Fatalf("unexpected zoom %d", z)
	}
	nw := geospatial.Project(domain.GeoPoint{Lat: b.MaxLat, Lon: b.MinLon}, z)
	se := geospatial.Project(domain.GeoPoint{Lat: b.MinLat, Lon: b.MaxLon}, z)
	if se.X-nw.X > 780 || se.Y-nw.Y > 580 {
		t.Errorf("bounds do not fit at zoom %d", z)
	}
	nw = geospatial.Project(domain.GeoPoint{Lat: b.MaxLat, Lon: b.MinLon}, z+1)
	se = geospatial.Project(domain.GeoPoint{Lat: b.MinLat, Lon: b.MaxLon}, z+1)
	if se.X-nw.X <= 780 && se.Y-nw.Y <= 580 {
		t.Errorf("zoom %d is not the largest fitting zoom", z)
	}
}

func TestBoundsOf(t *testing.T) {
	if _, ok := geospatial.BoundsOf(nil); ok {
		t.Error("expected no bounds for empty input")
	}
	b, ok := geospatial.BoundsOf([]domain.GeoPoint{
		{Lat: 55.7558, Lon: 37.6173},
		{Lat: 55.7562, Lon: 37.6177},
		{Lat: 55.7560, Lon: 37.6170},
	})
	if !ok {
		t.Fatal("expected bounds")
	}
	if b.MinLat != 55.7558 || b.MaxLat != 55.7562 || b.MinLon != 37.6170 || b.MaxLon != 37.6177 {
		t.Errorf("unexpected bounds %+v", b)
	}
}

func TestCellKey_NearbyPointsShareCell(t *testing.T) {
	a := geospatial.CellKey(domain.GeoPoint{Lat: 55.755800, Lon: 37.617300}, geospatial.ReverseCacheLevel)
	b := geospatial.CellKey(domain.GeoPoint{Lat: 55.755801, Lon: 37.617301}, geospatial.ReverseCacheLevel)
	c := geospatial.CellKey(domain.GeoPoint{Lat: 59.9343, Lon: 30.3351}, geospatial.ReverseCacheLevel)
	if a != b {
		t.Errorf("expected same cell, got %s and %s", a, b)
	}
	if a == c {
		t.Error("expected different cells for distant points")
	}
}
