// Package nominatim implements ports.GeocodingProvider on top of the
// OpenStreetMap Nominatim API.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/pkg/httpx"
)

// ProviderName is the name the geocoder registers under.
const ProviderName = "nominatim"

const unknownAddress = "Неизвестный адрес"

// Config configures a Geocoder.
type Config struct {
	BaseURL   string
	UserAgent string
	// RatePerSecond caps outgoing requests. The public instance allows 1.
	RatePerSecond float64
	Timeout       time.Duration
}

// Geocoder queries a Nominatim instance.
type Geocoder struct {
	baseURL string
	client  *httpx.Client
}

// New creates a Geocoder.
func New(cfg Config) *Geocoder {
	return &Geocoder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: httpx.New(cfg.Timeout,
			httpx.WithUserAgent(cfg.UserAgent),
			httpx.WithRateLimit(cfg.RatePerSecond, 1),
		),
	}
}

func (g *Geocoder) Name() string { return ProviderName }

type place struct {
	PlaceID     json.Number       `json:"place_id"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	DisplayName string            `json:"display_name"`
	Name        string            `json:"name"`
	Class       string            `json:"class"`
	Type        string            `json:"type"`
	Importance  float64           `json:"importance"`
	BoundingBox []string          `json:"boundingbox"`
	Address     map[string]string `json:"address"`
	NameDetails map[string]string `json:"namedetails"`
	ExtraTags   map[string]string `json:"extratags"`
	Error       string            `json:"error"`
}

// Search implements ports.GeocodingProvider.
func (g *Geocoder) Search(ctx context.Context, query string, opts domain.GeocodingOptions) ([]domain.GeocodeResult, error) {
	q := url.Values{
		"q":               {query},
		"format":          {"json"},
		"addressdetails":  {"1"},
		"limit":           {strconv.Itoa(opts.Limit)},
		"accept-language": {opts.Language},
	}
	if opts.CountryCode != "" {
		q.Set("countrycodes", strings.ToLower(opts.CountryCode))
	}
	if b := opts.BBox; b != nil {
		q.Set("viewbox", fmt.Sprintf("%s,%s,%s,%s", ff(b.MinLon), ff(b.MaxLat), ff(b.MaxLon), ff(b.MinLat)))
		q.Set("bounded", "1")
	}

	var places []place
	if err := g.client.GetJSON(ctx, g.baseURL+"/search", q, &places); err != nil {
		return nil, err
	}

	results := make([]domain.GeocodeResult, 0, len(places))
	for _, p := range places {
		r, err := p.toResult()
		if err != nil {
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// Reverse implements ports.GeocodingProvider.
func (g *Geocoder) Reverse(ctx context.Context, coords domain.LngLat, opts domain.GeocodingOptions) (*domain.ReverseGeocodingResult, error) {
	q := url.Values{
		"lat":             {ff(coords.Lat())},
		"lon":             {ff(coords.Lng())},
		"format":          {"json"},
		"addressdetails":  {"1"},
		"accept-language": {opts.Language},
	}

	var p place
	if err := g.client.GetJSON(ctx, g.baseURL+"/reverse", q, &p); err != nil {
		return nil, err
	}
	if p.Error != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrAddressNotFound, p.Error)
	}

	formatted := p.DisplayName
	if formatted == "" {
		formatted = unknownAddress
	}
	res := &domain.ReverseGeocodingResult{
		Coordinates: coords,
		Address: domain.ReverseAddress{
			AddressComponents: addressOf(p.Address),
			FormattedAddress:  formatted,
		},
		Provider: ProviderName,
	}
	if p.Class == "amenity" || p.Class == "shop" {
		name := p.NameDetails["name"]
		if name == "" {
			name = p.Name
		}
		res.POI = &domain.POI{Name: name, Category: p.Type, Tags: p.ExtraTags}
	}
	return res, nil
}

func (p place) toResult() (domain.GeocodeResult, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.GeocodeResult{}, err
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.GeocodeResult{}, err
	}

	name, _, _ := strings.Cut(p.DisplayName, ",")
	r := domain.GeocodeResult{
		ID:          p.PlaceID.String(),
		Name:        strings.TrimSpace(name),
		DisplayName: p.DisplayName,
		Coordinates: domain.LngLat{lon, lat},
		Type:        resultType(p.Type, p.Class),
		Relevance:   p.Importance,
		Address:     addressOf(p.Address),
		Provider:    ProviderName,
	}
	// boundingbox is [south, north, west, east].
	if len(p.BoundingBox) == 4 {
		var v [4]float64
		ok := true
		for i, s := range p.BoundingBox {
			if v[i], err = strconv.ParseFloat(s, 64); err != nil {
				ok = false
				break
			}
		}
		if ok {
			r.Bounds = &domain.Bounds{MinLat: v[0], MaxLat: v[1], MinLon: v[2], MaxLon: v[3]}
		}
	}
	return r, nil
}

func addressOf(a map[string]string) domain.AddressComponents {
	return domain.AddressComponents{
		Country:     a["country"],
		CountryCode: a["country_code"],
		Region:      first(a["state"], a["region"]),
		City:        first(a["city"], a["town"], a["village"]),
		District:    first(a["suburb"], a["district"]),
		Street:      a["road"],
		HouseNumber: a["house_number"],
		PostalCode:  a["postcode"],
	}
}

func resultType(typ, class string) domain.ResultType {
	switch typ {
	case "house", "building":
		return domain.ResultBuilding
	case "residential", "highway", "road":
		return domain.ResultAddress
	case "city", "town", "village":
		return domain.ResultCity
	case "primary", "secondary", "tertiary":
		return domain.ResultStreet
	}
	switch class {
	case "amenity", "shop", "tourism":
		return domain.ResultPOI
	}
	return domain.ResultAddress
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
