// Package osrm implements ports.RoutingProvider on top of the OSRM HTTP API.
package osrm

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/pkg/httpx"
)

// ProviderName is the name the router registers under.
const ProviderName = "osrm"

// Config configures a Router.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Router queries an OSRM server.
type Router struct {
	baseURL string
	client  *httpx.Client
}

// New creates a Router.
func New(cfg Config) *Router {
	return &Router{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpx.New(cfg.Timeout),
	}
}

func (r *Router) Name() string { return ProviderName }

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64  `json:"distance"`
		Duration float64  `json:"duration"`
		Geometry geometry `json:"geometry"`
		Legs     []struct {
			Steps []step `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

type geometry struct {
	Coordinates []domain.LngLat `json:"coordinates"`
}

type step struct {
	Name     string   `json:"name"`
	Distance float64  `json:"distance"`
	Duration float64  `json:"duration"`
	Geometry geometry `json:"geometry"`
	Maneuver struct {
		Type         string   `json:"type"`
		Modifier     string   `json:"modifier"`
		Exit         int      `json:"exit"`
		BearingAfter *float64 `json:"bearing_after"`
		Instruction  string   `json:"instruction"`
	} `json:"maneuver"`
}

// CalculateRoute implements ports.RoutingProvider.
func (r *Router) CalculateRoute(ctx context.Context, start, end domain.RoutePoint, waypoints []domain.RoutePoint, opts domain.RouteOptions) (*domain.RoutingResult, error) {
	all := make([]domain.RoutePoint, 0, len(waypoints)+2)
	all = append(all, start)
	all = append(all, waypoints...)
	all = append(all, end)

	coords := make([]string, len(all))
	for i, p := range all {
		coords[i] = ff(p.Coordinates.Lng()) + "," + ff(p.Coordinates.Lat())
	}

	q := url.Values{
		"geometries":   {"geojson"},
		"overview":     {"full"},
		"steps":        {"true"},
		"alternatives": {strconv.FormatBool(opts.Alternatives)},
	}
	if opts.Alternatives && opts.MaxAlternatives > 0 {
		q.Set("alternatives", strconv.Itoa(opts.MaxAlternatives))
	}

	endpoint := fmt.Sprintf("%s/route/v1/%s/%s", r.baseURL, profile(opts.Profile), strings.Join(coords, ";"))

	var resp routeResponse
	if err := r.client.GetJSON(ctx, endpoint, q, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "Ok" {
		msg := resp.Message
		if msg == "" {
			msg = "route not found"
		}
		return nil, fmt.Errorf("%w: osrm %s: %s", domain.ErrRoutingFailed, resp.Code, msg)
	}

	routes := make([]domain.Route, 0, len(resp.Routes))
	for i, rt := range resp.Routes {
		var steps []domain.RouteStep
		for _, leg := range rt.Legs {
			for _, s := range leg.Steps {
				steps = append(steps, s.toStep())
			}
		}
		routes = append(routes, domain.Route{
			Coordinates:     rt.Geometry.Coordinates,
			DistanceMeters:  rt.Distance,
			DurationSeconds: rt.Duration,
			Steps:           steps,
			IsAlternative:   i > 0,
			Summary:         domain.RouteSummary(rt.Distance, rt.Duration),
		})
	}

	return &domain.RoutingResult{
		Routes:    routes,
		Waypoints: all,
		Provider:  ProviderName,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (s step) toStep() domain.RouteStep {
	m := s.Maneuver
	instruction := m.Instruction
	if instruction == "" {
		instruction = Instruction(m.Type, m.Modifier)
	}
	out := domain.RouteStep{
		Coordinates:     s.Geometry.Coordinates,
		Instruction:     instruction,
		DistanceMeters:  s.Distance,
		DurationSeconds: s.Duration,
		Maneuver:        domain.Maneuver{Type: m.Type, Modifier: m.Modifier, Exit: m.Exit},
		RoadName:        s.Name,
	}
	if m.BearingAfter != nil {
		out.Direction = domain.CompassDirection(*m.BearingAfter)
	}
	return out
}

// Instruction is the Russian phrase for a maneuver OSRM sent without text.
func Instruction(maneuverType, modifier string) string {
	switch maneuverType {
	case "depart":
		return "Начните движение"
	case "turn":
		if modifier == "left" {
			return "Поверните налево"
		}
		return "Поверните направо"
	case "continue":
		return "Продолжайте движение прямо"
	case "arrive":
		return "Прибытие в пункт назначения"
	case "merge":
		return "Перестройтесь"
	case "ramp":
		return "Съезд"
	case "roundabout":
		return "Въезд на круговое движение"
	case "roundabout exit":
		return "Съезд с кругового движения"
	default:
		return "Продолжайте движение"
	}
}

// profile maps travel modes onto the OSRM profiles served by a default
// deployment.
func profile(p domain.Profile) string {
	switch p {
	case domain.ProfileWalking:
		return "foot"
	case domain.ProfileCycling:
		return "bike"
	default:
		return "driving"
	}
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
