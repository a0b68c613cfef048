package domain

import "math"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point has finite coordinates within WGS 84 ranges.
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// LngLat returns the point in provider wire order.
func (p GeoPoint) LngLat() LngLat {
	return LngLat{p.Lon, p.Lat}
}

// LngLat is a coordinate pair in [lng, lat] order, as used by GeoJSON and most
// geocoding/routing providers.
type LngLat [2]float64

func (c LngLat) Lng() float64 { return c[0] }
func (c LngLat) Lat() float64 { return c[1] }

// Point converts to a GeoPoint.
func (c LngLat) Point() GeoPoint {
	return GeoPoint{Lat: c[1], Lon: c[0]}
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// BoundsFromPoint returns a degenerate box containing only p.
func BoundsFromPoint(p GeoPoint) Bounds {
	return Bounds{MinLat: p.Lat, MinLon: p.Lon, MaxLat: p.Lat, MaxLon: p.Lon}
}

// Extend grows the box to include p.
func (b Bounds) Extend(p GeoPoint) Bounds {
	return Bounds{
		MinLat: math.Min(b.MinLat, p.Lat),
		MinLon: math.Min(b.MinLon, p.Lon),
		MaxLat: math.Max(b.MaxLat, p.Lat),
		MaxLon: math.Max(b.MaxLon, p.Lon),
	}
}

// Contains reports whether p lies inside the box (edges inclusive).
func (b Bounds) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Center returns the midpoint of the box.
func (b Bounds) Center() GeoPoint {
	return GeoPoint{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// IsEmpty reports whether b is the zero box.
func (b Bounds) IsEmpty() bool {
	return b == Bounds{}
}

// Valid reports whether both corners are valid and ordered.
func (b Bounds) Valid() bool {
	return GeoPoint{Lat: b.MinLat, Lon: b.MinLon}.Valid() &&
		GeoPoint{Lat: b.MaxLat, Lon: b.MaxLon}.Valid() &&
		b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon
}

// Pixel is a point in screen space. Depending on context it is either a global
// pixel coordinate at some zoom level or a position inside the map container.
type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PixelBounds is an axis-aligned box in container pixels.
type PixelBounds struct {
	Min Pixel `json:"min"`
	Max Pixel `json:"max"`
}

// Size is the map container size in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns Width*Height.
func (s Size) Area() float64 {
	return s.Width * s.Height
}
