// Package graphhopper implements ports.RoutingProvider on top of the
// GraphHopper Routing API.
package graphhopper

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
const ProviderName = "graphhopper"

// DefaultURL is the hosted API endpoint.
const DefaultURL = "https://graphhopper.com/api/1"

const maxAlternativePaths = 3

// Config configures a Router.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Router queries the GraphHopper API.
type Router struct {
	baseURL string
	apiKey  string
	client  *httpx.Client
}

// New creates a Router.
func New(cfg Config) *Router {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	return &Router{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  httpx.New(cfg.Timeout),
	}
}

func (r *Router) Name() string { return ProviderName }

type routeResponse struct {
	Info struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"info"`
	Paths []struct {
		Distance float64 `json:"distance"`
		Time     float64 `json:"time"`
		Points   struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"points"`
		Instructions []instruction `json:"instructions"`
	} `json:"paths"`
}

type instruction struct {
	Text       string  `json:"text"`
	Distance   float64 `json:"distance"`
	Time       float64 `json:"time"`
	Sign       int     `json:"sign"`
	StreetName string  `json:"street_name"`
	ExitNumber int     `json:"exit_number"`
	Interval   []int   `json:"interval"`
}

// CalculateRoute implements ports.RoutingProvider.
func (r *Router) CalculateRoute(ctx context.Context, start, end domain.RoutePoint, waypoints []domain.RoutePoint, opts domain.RouteOptions) (*domain.RoutingResult, error) {
	all := make([]domain.RoutePoint, 0, len(waypoints)+2)
	all = append(all, start)
	all = append(all, waypoints...)
	all = append(all, end)

	q := url.Values{
		"key":            {r.apiKey},
		"vehicle":        {vehicle(opts.Profile)},
		"instructions":   {"true"},
		"calc_points":    {"true"},
		"debug":          {"false"},
		"elevation":      {"false"},
		"points_encoded": {"false"},
	}
	if opts.Language != "" {
		q.Set("locale", opts.Language)
	}
	if opts.AvoidTolls {
		q.Set("ch.disable", "true")
	}
	if opts.AvoidHighways {
		q.Set("avoid", "motorway")
	}
	if opts.Alternatives {
		q.Set("alternative_route.max_paths", strconv.Itoa(maxAlternativePaths))
	}
	for _, p := range all {
		q.Add("point", ff(p.Coordinates.Lat())+","+ff(p.Coordinates.Lng()))
	}

	var resp routeResponse
	if err := r.client.GetJSON(ctx, r.baseURL+"/route", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Info.Errors) > 0 {
		return nil, fmt.Errorf("%w: graphhopper: %s", domain.ErrRoutingFailed, resp.Info.Errors[0].Message)
	}

	routes := make([]domain.Route, 0, len(resp.Paths))
	for i, p := range resp.Paths {
		coords := make([]domain.LngLat, 0, len(p.Points.Coordinates))
		for _, c := range p.Points.Coordinates {
			if len(c) >= 2 {
				coords = append(coords, domain.LngLat{c[0], c[1]})
			}
		}
		duration := p.Time / 1000
		steps := make([]domain.RouteStep, 0, len(p.Instructions))
		for _, in := range p.Instructions {
			steps = append(steps, in.toStep(coords))
		}
		routes = append(routes, domain.Route{
			Coordinates:     coords,
			DistanceMeters:  p.Distance,
			DurationSeconds: duration,
			Steps:           steps,
			IsAlternative:   i > 0,
			Summary:         domain.RouteSummary(p.Distance, duration),
		})
	}

	return &domain.RoutingResult{
		Routes:    routes,
		Waypoints: all,
		Provider:  ProviderName,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (in instruction) toStep(path []domain.LngLat) domain.RouteStep {
	typ, modifier := Maneuver(in.Sign)
	step := domain.RouteStep{
		Coordinates:     []domain.LngLat{},
		Instruction:     in.Text,
		DistanceMeters:  in.Distance,
		DurationSeconds: in.Time / 1000,
		Maneuver:        domain.Maneuver{Type: typ, Modifier: modifier, Exit: in.ExitNumber},
		RoadName:        in.StreetName,
	}
	// interval holds inclusive indices into the path points.
	if len(in.Interval) == 2 {
		from, to := in.Interval[0], in.Interval[1]
		if from >= 0 && from <= to && to < len(path) {
			step.Coordinates = path[from : to+1]
		}
	}
	return step
}

// Maneuver maps a GraphHopper instruction sign onto a maneuver type and
// modifier.
func Maneuver(sign int) (typ, modifier string) {
	switch sign {
	case 0:
		return "continue", ""
	case 1:
		return "turn", "slight right"
	case 2:
		return "turn", "right"
	case 3:
		return "turn", "sharp right"
	case -1:
		return "turn", "slight left"
	case -2:
		return "turn", "left"
	case -3:
		return "turn", "sharp left"
	case 4:
		return "arrive", ""
	case 5:
		return "depart", ""
	case 6:
		return "roundabout", ""
	case 7:
		return "roundabout exit", ""
	default:
		return "continue", ""
	}
}

func vehicle(p domain.Profile) string {
	switch p {
	case domain.ProfileWalking:
		return "foot"
	case domain.ProfileCycling:
		return "bike"
	case domain.ProfileTruck:
		return "truck"
	default:
		return "car"
	}
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
