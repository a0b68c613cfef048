package domain

import (
	"fmt"
	"time"
)

// Marker is a point entity displayed on the map (an ad, a master's salon...).
// The application owns markers; clusterers keep non-owning copies.
type Marker struct {
	ID          string    `json:"id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	IconKind    string    `json:"icon_kind,omitempty"`
	Address     string    `json:"address,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Point returns the marker position.
func (m Marker) Point() GeoPoint {
	return GeoPoint{Lat: m.Latitude, Lon: m.Longitude}
}

// Validate returns ErrInvalidInput if the marker cannot be placed on a map.
func (m Marker) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: marker id is empty", ErrInvalidInput)
	}
	if !m.Point().Valid() {
		return fmt.Errorf("%w: marker %s has invalid coordinates (%v, %v)",
			ErrInvalidInput, m.ID, m.Latitude, m.Longitude)
	}
	return nil
}

// NeedsGeocode reports whether the marker carries an address but has not
// been placed yet.
func (m Marker) NeedsGeocode() bool {
	return m.Address != "" && m.Latitude == 0 && m.Longitude == 0
}

// ClusterGroup is a transient aggregate of nearby markers produced by one
// clustering pass. It is replaced wholesale on the next pass.
type ClusterGroup struct {
	ID      string   `json:"id"`
	Anchor  GeoPoint `json:"anchor"`
	Members []Marker `json:"members"`
	Bounds  Bounds   `json:"bounds"`
}

// Size returns the number of member markers.
func (g ClusterGroup) Size() int {
	return len(g.Members)
}

// ClusterSnapshot is the result of a clustering pass.
type ClusterSnapshot struct {
	// Generation increases with every grouping pass of one clusterer.
	Generation     uint64         `json:"generation"`
	Zoom           int            `json:"zoom"`
	GridSize       int            `json:"grid_size"`
	MinClusterSize int            `json:"min_cluster_size"`
	Clusters       []ClusterGroup `json:"clusters"`
	Singles        []Marker       `json:"singles"`
	ComputedAt     time.Time      `json:"computed_at"`
}

// Marker event actions.
const (
	MarkerUpsert = "upsert"
	MarkerDelete = "delete"
)

// MarkerEvent is published when the application adds, updates or removes a marker.
type MarkerEvent struct {
	Action string  `json:"action"`
	Marker *Marker `json:"marker,omitempty"`
	ID     string  `json:"id,omitempty"`
}

// ViewportEvent describes a client viewport for which live clusters are maintained.
type ViewportEvent struct {
	ViewID string `json:"view_id"`
	Bounds Bounds `json:"bounds"`
	Zoom   int    `json:"zoom"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Closed bool   `json:"closed,omitempty"`
}
