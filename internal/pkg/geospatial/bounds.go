package geospatial

import (
	"github.com/paulmach/orb"

	"github.com/samirrijal/mapcore/internal/core/domain"
)

// BoundsOf returns the envelope of points and false when points is empty.
func BoundsOf(points []domain.GeoPoint) (domain.Bounds, bool) {
	if len(points) == 0 {
		return domain.Bounds{}, false
	}
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.Lon, p.Lat}
	}
	return FromOrb(mp.Bound()), true
}

// LineBounds returns the envelope of a [lng, lat] polyline.
func LineBounds(coords []domain.LngLat) domain.Bounds {
	if len(coords) == 0 {
		return domain.Bounds{}
	}
	ls := make(orb.LineString, len(coords))
	for i, c := range coords {
		ls[i] = orb.Point{c[0], c[1]}
	}
	return FromOrb(ls.Bound())
}

// FromOrb converts an orb bound (X = lon, Y = lat).
func FromOrb(b orb.Bound) domain.Bounds {
	return domain.Bounds{
		MinLat: b.Min.Lat(),
		MinLon: b.Min.Lon(),
		MaxLat: b.Max.Lat(),
		MaxLon: b.Max.Lon(),
	}
}

// ToOrb converts to an orb bound.
func ToOrb(b domain.Bounds) orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}
