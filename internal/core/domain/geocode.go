package domain

// ResultType is the common taxonomy every geocoding provider maps into.
type ResultType string

const (
	ResultAddress  ResultType = "address"
	ResultPOI      ResultType = "poi"
	ResultCity     ResultType = "city"
	ResultStreet   ResultType = "street"
	ResultBuilding ResultType = "building"
)

// ParseResultType returns the type for s and whether it is known.
func ParseResultType(s string) (ResultType, bool) {
	switch t := ResultType(s); t {
	case ResultAddress, ResultPOI, ResultCity, ResultStreet, ResultBuilding:
		return t, true
	}
	return "", false
}

// AddressComponents is a decomposed postal address.
type AddressComponents struct {
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Region      string `json:"region,omitempty"`
	City        string `json:"city,omitempty"`
	District    string `json:"district,omitempty"`
	Street      string `json:"street,omitempty"`
	HouseNumber string `json:"house_number,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
}

// GeocodeResult is a forward geocoding hit, normalized across providers.
type GeocodeResult struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Coordinates LngLat            `json:"coordinates"`
	Bounds      *Bounds           `json:"bounds,omitempty"`
	Type        ResultType        `json:"type"`
	Relevance   float64           `json:"relevance"`
	Address     AddressComponents `json:"address"`
	Provider    string            `json:"provider"`
}

// ReverseAddress is the address part of a reverse geocoding result.
type ReverseAddress struct {
	AddressComponents
	FormattedAddress string `json:"formatted_address"`
}

// POI describes a point of interest found at a reverse-geocoded location.
type POI struct {
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// ReverseGeocodingResult is the address found at a coordinate.
type ReverseGeocodingResult struct {
	Coordinates LngLat         `json:"coordinates"`
	Address     ReverseAddress `json:"address"`
	POI         *POI           `json:"poi,omitempty"`
	Provider    string         `json:"provider"`
}

// GeocodingOptions tune a search or reverse lookup.
type GeocodingOptions struct {
	Limit       int          `json:"limit,omitempty"`
	CountryCode string       `json:"country_code,omitempty"`
	Types       []ResultType `json:"types,omitempty"`
	Proximity   *LngLat      `json:"proximity,omitempty"`
	BBox        *Bounds      `json:"bbox,omitempty"`
	Language    string       `json:"language,omitempty"`
}

// HasType reports whether t passes the Types filter. An empty filter accepts all.
func (o GeocodingOptions) HasType(t ResultType) bool {
	if len(o.Types) == 0 {
		return true
	}
	for _, want := range o.Types {
		if want == t {
			return true
		}
	}
	return false
}
