package geospatial

import (
	"fmt"

	"github.com/golang/geo/s2"

	"github.com/samirrijal/mapcore/internal/core/domain"
)

// ReverseCacheLevel is the S2 level used to bucket reverse lookups (~40 m cells).
const ReverseCacheLevel = 18

// CellKey returns a stable S2 cell token for p at level, so that nearby
// coordinates share a cache key.
func CellKey(p domain.GeoPoint, level int) string {
	ll := s2.LatLngFromDegrees(p.Lat, p.Lon)
	cell := s2.CellIDFromLatLng(ll).Parent(level)
	return fmt.Sprintf("s2_%s", cell.ToToken())
}
