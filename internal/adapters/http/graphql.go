package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/usecases"
)

func coordinateMap(c domain.LngLat) map[string]any {
	return map[string]any{"lng": c.Lng(), "lat": c.Lat()}
}

func coordinateList(cs []domain.LngLat) []map[string]any {
	out := make([]map[string]any, len(cs))
	for i, c := range cs {
		out[i] = coordinateMap(c)
	}
	return out
}

func addressMap(a domain.AddressComponents) map[string]any {
	return map[string]any{
		"country":      a.Country,
		"country_code": a.CountryCode,
		"region":       a.Region,
		"city":         a.City,
		"district":     a.District,
		"street":       a.Street,
		"house_number": a.HouseNumber,
		"postal_code":  a.PostalCode,
	}
}

func routeMap(r domain.Route) map[string]any {
	steps := make([]map[string]any, len(r.Steps))
	for i, s := range r.Steps {
		steps[i] = map[string]any{
			"instruction":      s.Instruction,
			"distance_meters":  s.DistanceMeters,
			"duration_seconds": s.DurationSeconds,
			"maneuver":         s.Maneuver.Type,
			"modifier":         s.Maneuver.Modifier,
			"road_name":        s.RoadName,
			"direction":        s.Direction,
		}
	}
	return map[string]any{
		"id":               r.ID,
		"summary":          r.Summary,
		"distance_meters":  r.DistanceMeters,
		"duration_seconds": r.DurationSeconds,
		"distance":         domain.FormatDistance(r.DistanceMeters),
		"duration":         domain.FormatDuration(r.DurationSeconds),
		"is_alternative":   r.IsAlternative,
		"coordinates":      coordinateList(r.Coordinates),
		"steps":            steps,
	}
}

func routingResultMap(res *domain.RoutingResult) map[string]any {
	routes := make([]map[string]any, len(res.Routes))
	for i, r := range res.Routes {
		routes[i] = routeMap(r)
	}
	return map[string]any{"provider": res.Provider, "routes": routes}
}

func markerMap(m domain.Marker) map[string]any {
	return map[string]any{
		"id":          m.ID,
		"title":       m.Title,
		"description": m.Description,
		"icon_kind":   m.IconKind,
		"address":     m.Address,
		"location":    coordinateMap(m.Point().LngLat()),
	}
}

func pointArg(p graphql.ResolveParams, latKey, lonKey string) domain.LngLat {
	lat, _ := p.Args[latKey].(float64)
	lon, _ := p.Args[lonKey].(float64)
	return domain.LngLat{lon, lat}
}

func stringArg(p graphql.ResolveParams, key string) string {
	s, _ := p.Args[key].(string)
	return s
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"lng": &graphql.Field{Type: graphql.Float},
			"lat": &graphql.Field{Type: graphql.Float},
		},
	})

	addressType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Address",
		Fields: graphql.Fields{
			"formatted":    &graphql.Field{Type: graphql.String},
			"country":      &graphql.Field{Type: graphql.String},
			"country_code": &graphql.Field{Type: graphql.String},
			"region":       &graphql.Field{Type: graphql.String},
			"city":         &graphql.Field{Type: graphql.String},
			"district":     &graphql.Field{Type: graphql.String},
			"street":       &graphql.Field{Type: graphql.String},
			"house_number": &graphql.Field{Type: graphql.String},
			"postal_code":  &graphql.Field{Type: graphql.String},
		},
	})

	geocodeResultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeocodeResult",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"name":         &graphql.Field{Type: graphql.String},
			"display_name": &graphql.Field{Type: graphql.String},
			"type":         &graphql.Field{Type: graphql.String},
			"relevance":    &graphql.Field{Type: graphql.Float},
			"provider":     &graphql.Field{Type: graphql.String},
			"location":     &graphql.Field{Type: coordinateType},
			"address":      &graphql.Field{Type: addressType},
		},
	})

	reverseType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ReverseGeocodingResult",
		Fields: graphql.Fields{
			"location": &graphql.Field{Type: coordinateType},
			"address":  &graphql.Field{Type: addressType},
			"poi":      &graphql.Field{Type: graphql.String},
			"provider": &graphql.Field{Type: graphql.String},
		},
	})

	stepType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RouteStep",
		Fields: graphql.Fields{
			"instruction":      &graphql.Field{Type: graphql.String},
			"distance_meters":  &graphql.Field{Type: graphql.Float},
			"duration_seconds": &graphql.Field{Type: graphql.Float},
			"maneuver":         &graphql.Field{Type: graphql.String},
			"modifier":         &graphql.Field{Type: graphql.String},
			"road_name":        &graphql.Field{Type: graphql.String},
			"direction":        &graphql.Field{Type: graphql.String},
		},
	})

	routeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Route",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"summary":          &graphql.Field{Type: graphql.String},
			"distance_meters":  &graphql.Field{Type: graphql.Float},
			"duration_seconds": &graphql.Field{Type: graphql.Float},
			"distance":         &graphql.Field{Type: graphql.String},
			"duration":         &graphql.Field{Type: graphql.String},
			"is_alternative":   &graphql.Field{Type: graphql.Boolean},
			"coordinates":      &graphql.Field{Type: graphql.NewList(coordinateType)},
			"steps":            &graphql.Field{Type: graphql.NewList(stepType)},
		},
	})

	routingResultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RoutingResult",
		Fields: graphql.Fields{
			"provider": &graphql.Field{Type: graphql.String},
			"routes":   &graphql.Field{Type: graphql.NewList(routeType)},
		},
	})

	markerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Marker",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"title":       &graphql.Field{Type: graphql.String},
			"description": &graphql.Field{Type: graphql.String},
			"icon_kind":   &graphql.Field{Type: graphql.String},
			"address":     &graphql.Field{Type: graphql.String},
			"location":    &graphql.Field{Type: coordinateType},
		},
	})

	clusterType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Cluster",
		Fields: graphql.Fields{
			"id":     &graphql.Field{Type: graphql.String},
			"size":   &graphql.Field{Type: graphql.Int},
			"anchor": &graphql.Field{Type: coordinateType},
		},
	})

	snapshotType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ClusterSnapshot",
		Fields: graphql.Fields{
			"zoom":      &graphql.Field{Type: graphql.Int},
			"grid_size": &graphql.Field{Type: graphql.Int},
			"clusters":  &graphql.Field{Type: graphql.NewList(clusterType)},
			"singles":   &graphql.Field{Type: graphql.NewList(markerType)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"geocode": &graphql.Field{
				Type:        graphql.NewList(geocodeResultType),
				Description: "Find places matching a free-text query",
				Args: graphql.FieldConfigArgument{
					"query":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"limit":    &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 10},
					"country":  &graphql.ArgumentConfig{Type: graphql.String},
					"lang":     &graphql.ArgumentConfig{Type: graphql.String},
					"provider": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					opts := domain.GeocodingOptions{
						Limit:       p.Args["limit"].(int),
						CountryCode: stringArg(p, "country"),
						Language:    stringArg(p, "lang"),
					}
					res, err := deps.Geocoding.Search(p.Context, stringArg(p, "query"), opts, stringArg(p, "provider"))
					if err != nil {
						return nil, err
					}
					var out []map[string]any
					for r := range res.All() {
						addr := addressMap(r.Address)
						addr["formatted"] = r.DisplayName
						out = append(out, map[string]any{
							"id":           r.ID,
							"name":         r.Name,
							"display_name": r.DisplayName,
							"type":         string(r.Type),
							"relevance":    r.Relevance,
							"provider":     r.Provider,
							"location":     coordinateMap(r.Coordinates),
							"address":      addr,
						})
					}
					return out, nil
				},
			},
			"reverse": &graphql.Field{
				Type:        reverseType,
				Description: "Address at a coordinate",
				Args: graphql.FieldConfigArgument{
					"lat":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lang":     &graphql.ArgumentConfig{Type: graphql.String},
					"provider": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					opts := domain.GeocodingOptions{Language: stringArg(p, "lang")}
					res, err := deps.Geocoding.Reverse(p.Context, pointArg(p, "lat", "lon"), opts, stringArg(p, "provider"))
					if err != nil {
						return nil, err
					}
					addr := addressMap(res.Address.AddressComponents)
					addr["formatted"] = res.Address.FormattedAddress
					out := map[string]any{
						"location": coordinateMap(res.Coordinates),
						"address":  addr,
						"provider": res.Provider,
					}
					if res.POI != nil {
						out["poi"] = res.POI.Name
					}
					return out, nil
				},
			},
			"route": &graphql.Field{
				Type:        routingResultType,
				Description: "Route between two points; provider \"straight\" skips the network",
				Args: graphql.FieldConfigArgument{
					"from_lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"from_lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"to_lat":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"to_lon":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"profile":  &graphql.ArgumentConfig{Type: graphql.String},
					"provider": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					start := domain.RoutePoint{Coordinates: pointArg(p, "from_lat", "from_lon")}
					end := domain.RoutePoint{Coordinates: pointArg(p, "to_lat", "to_lon")}
					provider := stringArg(p, "provider")
					if provider == usecases.StraightProvider {
						return routingResultMap(deps.Routing.CreateStraightRoute(start, end)), nil
					}
					profile, err := parseProfile(stringArg(p, "profile"))
					if err != nil {
						return nil, err
					}
					res, err := deps.Routing.CalculateRoute(p.Context, start, end, nil, domain.RouteOptions{Profile: profile}, provider)
					if err != nil {
						return nil, err
					}
					return routingResultMap(res), nil
				},
			},
			"clusters": &graphql.Field{
				Type:        snapshotType,
				Description: "Markers inside a bounding box grouped for a map of the given size",
				Args: graphql.FieldConfigArgument{
					"bbox":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String), Description: "minLon,minLat,maxLon,maxLat"},
					"zoom":   &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: -1},
					"width":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"height": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					b, err := parseBBox(stringArg(p, "bbox"))
					if err != nil {
						return nil, err
					}
					snap, err := deps.Markers.Clusters(p.Context, usecases.ClusterQuery{
						Bounds: b,
						Zoom:   p.Args["zoom"].(int),
						Size:   domain.Size{Width: float64(p.Args["width"].(int)), Height: float64(p.Args["height"].(int))},
					})
					if err != nil {
						return nil, err
					}
					clusters := make([]map[string]any, len(snap.Clusters))
					for i, g := range snap.Clusters {
						clusters[i] = map[string]any{
							"id":     g.ID,
							"size":   g.Size(),
							"anchor": coordinateMap(g.Anchor.LngLat()),
						}
					}
					singles := make([]map[string]any, len(snap.Singles))
					for i, m := range snap.Singles {
						singles[i] = markerMap(m)
					}
					return map[string]any{
						"zoom":      snap.Zoom,
						"grid_size": snap.GridSize,
						"clusters":  clusters,
						"singles":   singles,
					}, nil
				},
			},
			"marker": &graphql.Field{
				Type:        markerType,
				Description: "Get a marker by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					m, err := deps.Markers.Get(p.Context, stringArg(p, "id"))
					if err != nil {
						return nil, err
					}
					return markerMap(*m), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string         `json:"query"`
		OperationName string         `json:"operationName"`
		Variables     map[string]any `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Query == "" {
			return errBadRequest(c, "query is required")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})
		c.Set(fiber.HeaderCacheControl, "private, max-age=0")
		return c.JSON(result)
	}
}
