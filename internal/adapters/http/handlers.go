package http

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/usecases"
	"github.com/samirrijal/mapcore/internal/pkg/geospatial"
)

const (
	maxQueryLen     = 200
	maxSearchRadius = 50000.0
)

// SearchResponse is the body of a forward geocoding response.
type SearchResponse struct {
	Provider string                 `json:"provider"`
	Results  []domain.GeocodeResult `json:"results"`
}

// GeocodeSearchHandler geocodes the q parameter.
func GeocodeSearchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := strings.TrimSpace(c.Query("q"))
		if query == "" {
			return errBadRequest(c, "q query parameter is required")
		}
		if len(query) > maxQueryLen {
			return errBadRequest(c, "query too long (max 200 characters)")
		}

		opts := domain.GeocodingOptions{
			Limit:       c.QueryInt("limit", 10),
			CountryCode: c.Query("country"),
			Language:    c.Query("lang"),
		}
		if opts.Limit <= 0 || opts.Limit > 50 {
			opts.Limit = 10
		}

		types, err := parseTypes(c.Query("types"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		opts.Types = types

		if raw := c.Query("bbox"); raw != "" {
			b, err := parseBBox(raw)
			if err != nil {
				return errBadRequest(c, err.Error())
			}
			opts.BBox = &b
		}
		if raw := c.Query("near"); raw != "" {
			p, err := parseLatLon(raw)
			if err != nil {
				return errBadRequest(c, err.Error())
			}
			near := p.LngLat()
			opts.Proximity = &near
		}
		// radius (meters) around near stands in for bbox.
		if raw := c.Query("radius"); raw != "" {
			r, err := strconv.ParseFloat(raw, 64)
			if err != nil || r <= 0 || r > maxSearchRadius {
				return errBadRequest(c, "radius must be between 0 and 50000 meters")
			}
			if opts.Proximity == nil {
				return errBadRequest(c, "radius requires near")
			}
			if opts.BBox == nil {
				b := geospatial.BoundingBox(opts.Proximity.Lat(), opts.Proximity.Lng(), r)
				opts.BBox = &b
			}
		}

		res, err := deps.Geocoding.Search(c.UserContext(), query, opts, c.Query("provider"))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(SearchResponse{Provider: res.Provider, Results: res.Collect()})
	}
}

// GeocodeReverseHandler returns the address at lat/lon.
func GeocodeReverseHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat, err := queryCoord(c, "lat")
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		lon, err := queryCoord(c, "lon")
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		opts := domain.GeocodingOptions{Language: c.Query("lang")}
		res, err := deps.Geocoding.Reverse(c.UserContext(), domain.LngLat{lon, lat}, opts, c.Query("provider"))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(res)
	}
}

// ProvidersHandler lists the registered geocoding and routing providers.
func ProvidersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"geocoding": fiber.Map{
				"default":   deps.Geocoding.DefaultProvider(),
				"providers": deps.Geocoding.Providers(),
			},
			"routing": fiber.Map{
				"providers": append(deps.Routing.Providers(), usecases.StraightProvider),
			},
		})
	}
}

// RouteRequest is the body of POST /v1/routes.
type RouteRequest struct {
	Start     domain.RoutePoint   `json:"start"`
	End       domain.RoutePoint   `json:"end"`
	Waypoints []domain.RoutePoint `json:"waypoints"`
	Options   domain.RouteOptions `json:"options"`
	Provider  string              `json:"provider"`
}

// CalculateRouteHandler computes a route through the requested provider.
// The provider "straight" answers without a network call.
func CalculateRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req RouteRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Waypoints) > 23 {
			return errBadRequest(c, "too many waypoints (max 23)")
		}
		profile, err := parseProfile(string(req.Options.Profile))
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		req.Options.Profile = profile

		if req.Provider == usecases.StraightProvider {
			if !req.Start.Coordinates.Point().Valid() || !req.End.Coordinates.Point().Valid() {
				return errBadRequest(c, "start and end must have valid coordinates")
			}
			return c.JSON(deps.Routing.CreateStraightRoute(req.Start, req.End))
		}

		res, err := deps.Routing.CalculateRoute(c.UserContext(), req.Start, req.End, req.Waypoints, req.Options, req.Provider)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(res)
	}
}

// StraightRouteHandler returns a straight-line walking route between from and to.
func StraightRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, err := parseLatLon(c.Query("from"))
		if err != nil {
			return errBadRequest(c, "from: "+err.Error())
		}
		to, err := parseLatLon(c.Query("to"))
		if err != nil {
			return errBadRequest(c, "to: "+err.Error())
		}
		start := domain.RoutePoint{Coordinates: from.LngLat()}
		end := domain.RoutePoint{Coordinates: to.LngLat(), Name: c.Query("to_name")}
		return c.JSON(deps.Routing.CreateStraightRoute(start, end))
	}
}

// ClustersHandler groups the markers inside bbox the way a map of
// width x height pixels shows them at zoom. Without zoom the zoom that fits
// bbox is used. format=geojson returns a FeatureCollection.
func ClustersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		b, err := parseBBox(c.Query("bbox"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		q := usecases.ClusterQuery{
			Bounds:         b,
			Zoom:           -1,
			Size:           domain.Size{Width: c.QueryFloat("width", 0), Height: c.QueryFloat("height", 0)},
			GridSize:       c.QueryInt("grid", 0),
			MinClusterSize: c.QueryInt("min_size", 0),
		}
		if raw := c.Query("zoom"); raw != "" {
			z, err := strconv.Atoi(raw)
			if err != nil || z < geospatial.MinZoom || z > geospatial.MaxZoom {
				return errBadRequest(c, "zoom must be an integer between 0 and 21")
			}
			q.Zoom = z
		}

		snap, err := deps.Markers.Clusters(c.UserContext(), q)
		if err != nil {
			return errFromDomain(c, err)
		}

		switch c.Query("format", "json") {
		case "json":
			return c.JSON(snap)
		case "geojson":
			data, err := clustersGeoJSON(snap).MarshalJSON()
			if err != nil {
				return errInternal(c, err.Error())
			}
			c.Set("X-Cluster-Zoom", strconv.Itoa(snap.Zoom))
			c.Set(fiber.HeaderContentType, "application/geo+json")
			return c.Send(data)
		default:
			return errBadRequest(c, "format must be json or geojson")
		}
	}
}

func clustersGeoJSON(snap *domain.ClusterSnapshot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, g := range snap.Clusters {
		f := geojson.NewFeature(orb.Point{g.Anchor.Lon, g.Anchor.Lat})
		f.ID = g.ID
		f.BBox = geojson.NewBBox(geospatial.ToOrb(g.Bounds))
		f.Properties["cluster"] = true
		f.Properties["point_count"] = g.Size()
		fc.Append(f)
	}
	for _, m := range snap.Singles {
		f := geojson.NewFeature(orb.Point{m.Longitude, m.Latitude})
		f.ID = m.ID
		f.Properties["cluster"] = false
		f.Properties["title"] = m.Title
		if m.IconKind != "" {
			f.Properties["icon_kind"] = m.IconKind
		}
		fc.Append(f)
	}
	return fc
}

// ListMarkersHandler returns the markers inside bbox.
func ListMarkersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		b, err := parseBBox(c.Query("bbox"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 100)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 500 {
			limit = 100
		}

		markers, err := deps.Markers.ListInBounds(c.UserContext(), b, 0)
		if err != nil {
			return errFromDomain(c, err)
		}

		total := len(markers)
		if offset >= total {
			markers = []domain.Marker{}
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			markers = markers[offset:end]
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: markers, Pagination: pg})
	}
}

// GetMarkerHandler returns a single marker by ID.
func GetMarkerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, err := deps.Markers.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(m)
	}
}

// UpsertMarkerHandler creates or replaces a marker. A marker with an
// address and no coordinates is stored and placed later by the geocoder.
func UpsertMarkerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var m domain.Marker
		if err := c.BodyParser(&m); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if m.Title == "" {
			return errBadRequest(c, "title is required")
		}
		if err := deps.Markers.Upsert(c.UserContext(), &m); err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(m)
	}
}

// UpsertMarkersHandler stores a batch of markers in one request.
func UpsertMarkersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Markers []domain.Marker `json:"markers"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Markers) == 0 {
			return errBadRequest(c, "markers must not be empty")
		}
		if len(req.Markers) > 1000 {
			return errBadRequest(c, "too many markers (max 1000)")
		}
		if err := deps.Markers.UpsertBatch(c.UserContext(), req.Markers); err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"count": len(req.Markers), "markers": req.Markers})
	}
}

// DeleteMarkerHandler removes a marker.
func DeleteMarkerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Markers.Delete(c.UserContext(), c.Params("id")); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
