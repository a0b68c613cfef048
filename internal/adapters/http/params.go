package http

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/mapcore/internal/core/domain"
)

// parseLatLon parses "lat,lon".
func parseLatLon(s string) (domain.GeoPoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return domain.GeoPoint{}, fmt.Errorf("expected lat,lon, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return domain.GeoPoint{}, fmt.Errorf("bad latitude %q", parts[0])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return domain.GeoPoint{}, fmt.Errorf("bad longitude %q", parts[1])
	}
	p := domain.GeoPoint{Lat: lat, Lon: lon}
	if !p.Valid() {
		return domain.GeoPoint{}, fmt.Errorf("coordinates out of range: %s", s)
	}
	return p, nil
}

// parseBBox parses "minLon,minLat,maxLon,maxLat", the GeoJSON bbox order.
func parseBBox(s string) (domain.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.Bounds{}, fmt.Errorf("bbox must be minLon,minLat,maxLon,maxLat")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.Bounds{}, fmt.Errorf("bad bbox value %q", p)
		}
		v[i] = f
	}
	b := domain.Bounds{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	if !b.Valid() {
		return domain.Bounds{}, fmt.Errorf("bbox is out of range or inverted")
	}
	return b, nil
}

// queryCoord reads a required float query parameter. Zero is a valid value,
// so presence is checked on the raw string.
func queryCoord(c *fiber.Ctx, key string) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return f, nil
}

func parseTypes(s string) ([]domain.ResultType, error) {
	if s == "" {
		return nil, nil
	}
	var out []domain.ResultType
	for _, raw := range strings.Split(s, ",") {
		t, ok := domain.ParseResultType(strings.TrimSpace(raw))
		if !ok {
			return nil, fmt.Errorf("unknown result type %q", raw)
		}
		out = append(out, t)
	}
	return out, nil
}

func parseProfile(s string) (domain.Profile, error) {
	switch p := domain.Profile(s); p {
	case "":
		return domain.ProfileDriving, nil
	case domain.ProfileDriving, domain.ProfileWalking, domain.ProfileCycling, domain.ProfileTruck:
		return p, nil
	}
	return "", fmt.Errorf("unknown profile %q", s)
}
