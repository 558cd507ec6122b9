package domain

import "context"

// PointResolver reports which points fall inside inhabited, mapped areas.
// The result has one entry per input point, in input order.
type PointResolver interface {
	ResolveBatch(ctx context.Context, points []GeoPoint) ([]bool, error)
}

// AmenityCounter counts categorized points of interest within radiusM metres.
type AmenityCounter interface {
	CountAmenities(ctx context.Context, p GeoPoint, radiusM int) (AmenityCounts, error)
}

// PostcodeResult identifies the postal district around a point.
// Zero values mean the lookup found nothing.
type PostcodeResult struct {
	Outcode   string `json:"outcode,omitempty"`
	PlaceName string `json:"placeName,omitempty"`
}

// PostcodeLookup finds the nearest postcode for a point.
type PostcodeLookup interface {
	LookupPostcode(ctx context.Context, p GeoPoint) (PostcodeResult, error)
}

// Place is a named location returned by a geocoder.
type Place struct {
	Name        string   `json:"name"`
	FullName    string   `json:"fullName,omitempty"`
	PlaceType   string   `json:"placeType,omitempty"`
	Coordinates GeoPoint `json:"coordinates"`
	Relevance   float64  `json:"relevance,omitempty"` // 0.0–1.0 provider confidence
}

// Found reports whether the geocoder matched anything.
func (p Place) Found() bool { return p.Name != "" }

// AreaNameResolver names the place at a point. Used for presentation only.
type AreaNameResolver interface {
	ReverseGeocode(ctx context.Context, p GeoPoint) (Place, error)
}

// Geocoder resolves place names to coordinates and back.
type Geocoder interface {
	AreaNameResolver
	ForwardGeocode(ctx context.Context, query string) (Place, error)
}

// PlaceLabel returns the presentation name for an area. Town and city level
// matches get a compass prefix relative to centre, e.g. "North West Leeds".
func PlaceLabel(centre GeoPoint, area GeoPoint, place Place) string {
	if !place.Found() {
		return ""
	}
	switch place.PlaceType {
	case "place", "district":
		if dir := CardinalDirection(centre, area); dir != "" {
			return dir + " " + place.Name
		}
	}
	return place.Name
}
