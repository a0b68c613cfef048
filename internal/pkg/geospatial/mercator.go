package geospatial

import (
	"math"

	"github.com/samirrijal/mapcore/internal/core/domain"
)

const (
	// TileSize is the pixel size of a Web Mercator tile.
	TileSize = 256
	MinZoom  = 0
	MaxZoom  = 21

	maxMercatorLat = 85.05112878
)

// WorldSize returns the width of the world in pixels at zoom.
func WorldSize(zoom int) float64 {
	return TileSize * math.Exp2(float64(zoom))
}

// Project converts a coordinate to global pixel space at zoom.
func Project(p domain.GeoPoint, zoom int) domain.Pixel {
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p.Lat))
	x := p.Lon/360.0 + 0.5
	sin := math.Sin(toRad(lat))
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi

	size := WorldSize(zoom)
	return domain.Pixel{X: x * size, Y: y * size}
}

// Unproject converts a global pixel at zoom back to a coordinate.
func Unproject(px domain.Pixel, zoom int) domain.GeoPoint {
	size := WorldSize(zoom)
	x := px.X/size - 0.5
	y := 0.5 - px.Y/size

	return domain.GeoPoint{
		Lat: 90 - 360*math.Atan(math.Exp(-y*2*math.Pi))/math.Pi,
		Lon: 360 * x,
	}
}

// FitZoom returns the largest zoom at which b fits into size minus margin on
// every edge, clamped to [minZoom, maxZoom].
func FitZoom(b domain.Bounds, size domain.Size, margin float64, minZoom, maxZoom int) int {
	w := size.Width - 2*margin
	h := size.Height - 2*margin
	if w <= 0 || h <= 0 {
		return minZoom
	}
	for z := maxZoom; z > minZoom; z-- {
		nw := Project(domain.GeoPoint{Lat: b.MaxLat, Lon: b.MinLon}, z)
		se := Project(domain.GeoPoint{Lat: b.MinLat, Lon: b.MaxLon}, z)
		if se.X-nw.X <= w && se.Y-nw.Y <= h {
			return z
		}
	}
	return minZoom
}

// ClampZoom limits z to the supported zoom range.
func ClampZoom(z int) int {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}
