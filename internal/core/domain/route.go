package domain

import "time"

// RoutePoint is a waypoint of a route request.
type RoutePoint struct {
	Coordinates LngLat `json:"coordinates"`
	Name        string `json:"name,omitempty"`
	Address     string `json:"address,omitempty"`
}

// Profile is the travel mode requested from a routing provider.
type Profile string

const (
	ProfileDriving Profile = "driving"
	ProfileWalking Profile = "walking"
	ProfileCycling Profile = "cycling"
	ProfileTruck   Profile = "truck"
)

// RouteOptions tune a routing request.
type RouteOptions struct {
	Profile         Profile `json:"profile,omitempty"`
	AvoidTolls      bool    `json:"avoid_tolls,omitempty"`
	AvoidHighways   bool    `json:"avoid_highways,omitempty"`
	AvoidFerries    bool    `json:"avoid_ferries,omitempty"`
	Language        string  `json:"language,omitempty"`
	Units           string  `json:"units,omitempty"` // metric | imperial
	Alternatives    bool    `json:"alternatives,omitempty"`
	MaxAlternatives int     `json:"max_alternatives,omitempty"`
}

// Maneuver describes the action at the start of a step.
type Maneuver struct {
	Type     string `json:"type"`
	Modifier string `json:"modifier,omitempty"`
	Exit     int    `json:"exit,omitempty"`
}

// RouteStep is a single turn-by-turn instruction.
type RouteStep struct {
	Coordinates     []LngLat `json:"coordinates"`
	Instruction     string   `json:"instruction"`
	DistanceMeters  float64  `json:"distance_meters"`
	DurationSeconds float64  `json:"duration_seconds"`
	Maneuver        Maneuver `json:"maneuver"`
	RoadName        string   `json:"road_name,omitempty"`
	Direction       string   `json:"direction,omitempty"`
}

// Route is a computed path between waypoints.
type Route struct {
	ID              string      `json:"id"`
	Coordinates     []LngLat    `json:"coordinates"`
	DistanceMeters  float64     `json:"distance_meters"`
	DurationSeconds float64     `json:"duration_seconds"`
	Steps           []RouteStep `json:"steps"`
	Bounds          Bounds      `json:"bounds"`
	IsAlternative   bool        `json:"is_alternative"`
	Summary         string      `json:"summary,omitempty"`
}

// RoutingResult holds the primary route followed by alternatives.
type RoutingResult struct {
	Routes    []Route      `json:"routes"`
	Waypoints []RoutePoint `json:"waypoints"`
	Provider  string       `json:"provider"`
	Timestamp time.Time    `json:"timestamp"`
}
