// Package yandex implements ports.GeocodingProvider on top of the Yandex
// HTTP geocoder.
package yandex

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

// ProviderName is the name the geocoder registers under.
const ProviderName = "yandex"

// DefaultURL is the public geocoder endpoint.
const DefaultURL = "https://geocode-maps.yandex.ru/1.x/"

// Config configures a Geocoder.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Geocoder queries the Yandex geocoder.
type Geocoder struct {
	baseURL string
	apiKey  string
	client  *httpx.Client
}

// New creates a Geocoder.
func New(cfg Config) *Geocoder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	return &Geocoder{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  httpx.New(cfg.Timeout),
	}
}

func (g *Geocoder) Name() string { return ProviderName }

type response struct {
	Response struct {
		GeoObjectCollection struct {
			FeatureMember []struct {
				GeoObject geoObject `json:"GeoObject"`
			} `json:"featureMember"`
		} `json:"GeoObjectCollection"`
	} `json:"response"`
}

type geoObject struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	MetaDataProperty struct {
		GeocoderMetaData struct {
			ID      string `json:"id"`
			Kind    string `json:"kind"`
			Text    string `json:"text"`
			Address struct {
				CountryCode string      `json:"country_code"`
				PostalCode  string      `json:"postal_code"`
				Formatted   string      `json:"formatted"`
				Components  []component `json:"Components"`
			} `json:"Address"`
		} `json:"GeocoderMetaData"`
	} `json:"metaDataProperty"`
	Point struct {
		Pos string `json:"pos"`
	} `json:"Point"`
}

type component struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// Search implements ports.GeocodingProvider.
func (g *Geocoder) Search(ctx context.Context, query string, opts domain.GeocodingOptions) ([]domain.GeocodeResult, error) {
	q := g.params(query, opts.Language, opts.Limit)
	if b := opts.BBox; b != nil {
		q.Set("bbox", fmt.Sprintf("%s,%s~%s,%s", ff(b.MinLon), ff(b.MinLat), ff(b.MaxLon), ff(b.MaxLat)))
		q.Set("rspn", "1")
	}

	var resp response
	if err := g.client.GetJSON(ctx, g.baseURL, q, &resp); err != nil {
		return nil, err
	}

	members := resp.Response.GeoObjectCollection.FeatureMember
	results := make([]domain.GeocodeResult, 0, len(members))
	for _, m := range members {
		r, err := m.GeoObject.toResult()
		if err != nil {
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// Reverse implements ports.GeocodingProvider.
func (g *Geocoder) Reverse(ctx context.Context, coords domain.LngLat, opts domain.GeocodingOptions) (*domain.ReverseGeocodingResult, error) {
	q := g.params(ff(coords.Lng())+","+ff(coords.Lat()), opts.Language, 1)

	var resp response
	if err := g.client.GetJSON(ctx, g.baseURL, q, &resp); err != nil {
		return nil, err
	}
	members := resp.Response.GeoObjectCollection.FeatureMember
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: %v", domain.ErrAddressNotFound, coords)
	}

	obj := members[0].GeoObject
	formatted := obj.Description
	if formatted == "" {
		formatted = obj.Name
	}
	if f := obj.MetaDataProperty.GeocoderMetaData.Address.Formatted; f != "" {
		formatted = f
	}
	return &domain.ReverseGeocodingResult{
		Coordinates: coords,
		Address: domain.ReverseAddress{
			AddressComponents: obj.address(),
			FormattedAddress:  formatted,
		},
		Provider: ProviderName,
	}, nil
}

func (g *Geocoder) params(geocode, lang string, limit int) url.Values {
	q := url.Values{
		"apikey":  {g.apiKey},
		"geocode": {geocode},
		"format":  {"json"},
		"results": {strconv.Itoa(limit)},
	}
	if lang != "" {
		q.Set("lang", lang)
	}
	return q
}

func (o geoObject) toResult() (domain.GeocodeResult, error) {
	coords, err := parsePos(o.Point.Pos)
	if err != nil {
		return domain.GeocodeResult{}, err
	}
	meta := o.MetaDataProperty.GeocoderMetaData
	id := meta.ID
	if id == "" {
		id = ff(coords.Lng()) + "_" + ff(coords.Lat())
	}
	display := o.Description
	if display == "" {
		display = o.Name
	}
	return domain.GeocodeResult{
		ID:          id,
		Name:        o.Name,
		DisplayName: display,
		Coordinates: coords,
		Type:        resultType(meta.Kind),
		Relevance:   1,
		Address:     o.address(),
		Provider:    ProviderName,
	}, nil
}

func (o geoObject) address() domain.AddressComponents {
	addr := o.MetaDataProperty.GeocoderMetaData.Address
	get := func(kind string) string {
		for _, c := range addr.Components {
			if c.Kind == kind {
				return c.Name
			}
		}
		return ""
	}
	return domain.AddressComponents{
		Country:     get("country"),
		CountryCode: strings.ToLower(addr.CountryCode),
		Region:      get("province"),
		City:        get("locality"),
		District:    get("district"),
		Street:      get("street"),
		HouseNumber: get("house"),
		PostalCode:  addr.PostalCode,
	}
}

// parsePos reads a "lng lat" pair.
func parsePos(pos string) (domain.LngLat, error) {
	parts := strings.Fields(pos)
	if len(parts) != 2 {
		return domain.LngLat{}, fmt.Errorf("malformed pos %q", pos)
	}
	lng, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return domain.LngLat{}, err
	}
	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return domain.LngLat{}, err
	}
	return domain.LngLat{lng, lat}, nil
}

func resultType(kind string) domain.ResultType {
	switch kind {
	case "house":
		return domain.ResultBuilding
	case "street":
		return domain.ResultStreet
	case "locality":
		return domain.ResultCity
	default:
		return domain.ResultAddress
	}
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
