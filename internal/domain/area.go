package domain

import (
	"fmt"
	"math"
)

// AreaType is a coarse urban-density band derived from distance to the anchor.
type AreaType string

const (
	AreaCityCentre  AreaType = "city_centre"
	AreaInnerSuburb AreaType = "inner_suburb"
	AreaOuterSuburb AreaType = "outer_suburb"
	AreaTown        AreaType = "town"
	AreaRural       AreaType = "rural"
)

// areaTypeOrder is the fixed density ordering used for adjacency checks.
var areaTypeOrder = []AreaType{AreaCityCentre, AreaInnerSuburb, AreaOuterSuburb, AreaTown, AreaRural}

// Index returns the position of t in the density ordering, or -1.
func (t AreaType) Index() int {
	for i, v := range areaTypeOrder {
		if v == t {
			return i
		}
	}
	return -1
}

// Valid reports whether t is one of the five bands.
func (t AreaType) Valid() bool { return t.Index() >= 0 }

// ClassifyAreaType maps distance from the anchor to a density band.
func ClassifyAreaType(distanceKm float64) AreaType {
	switch {
	case distanceKm < 3:
		return AreaCityCentre
	case distanceKm < 8:
		return AreaInnerSuburb
	case distanceKm < 15:
		return AreaOuterSuburb
	case distanceKm < 25:
		return AreaTown
	default:
		return AreaRural
	}
}

// AmenityCategory names a point-of-interest bucket.
type AmenityCategory string

const (
	AmenitySupermarkets     AmenityCategory = "supermarkets"
	AmenityHighStreet       AmenityCategory = "highStreet"
	AmenityPubsBars         AmenityCategory = "pubsBars"
	AmenityRestaurantsCafes AmenityCategory = "restaurantsCafes"
	AmenityParksGreenSpaces AmenityCategory = "parksGreenSpaces"
	AmenityGymsLeisure      AmenityCategory = "gymsLeisure"
	AmenityHealthcare       AmenityCategory = "healthcare"
	AmenityLibrariesCulture AmenityCategory = "librariesCulture"
	AmenityTrainStation     AmenityCategory = "trainStation"
	AmenityBusStop          AmenityCategory = "busStop"
	AmenitySchools          AmenityCategory = "schools"
)

// AmenityCategories lists every category an AmenityCounter reports.
var AmenityCategories = []AmenityCategory{
	AmenitySupermarkets,
	AmenityHighStreet,
	AmenityPubsBars,
	AmenityRestaurantsCafes,
	AmenityParksGreenSpaces,
	AmenityGymsLeisure,
	AmenityHealthcare,
	AmenityLibrariesCulture,
	AmenityTrainStation,
	AmenityBusStop,
	AmenitySchools,
}

// AmenitySearchRadiusM is the radius around a candidate within which
// amenities are counted.
const AmenitySearchRadiusM = 1000

// AmenityCounts holds raw point-of-interest counts by category.
type AmenityCounts map[AmenityCategory]int

// TransportSignals are derived from transport amenity counts.
type TransportSignals struct {
	TrainStationProximity float64 `json:"trainStationProximity"`
	BusFrequency          float64 `json:"busFrequency"`
}

// EnvironmentSignals describe the character of an area.
type EnvironmentSignals struct {
	Type               AreaType `json:"type"`
	GreenSpaceCoverage float64  `json:"greenSpaceCoverage"`
}

// AreaProfile is an enriched candidate. Profiles are treated as values:
// pipeline stages return new profiles rather than modifying their inputs.
type AreaProfile struct {
	ID                  string                      `json:"id"`
	Name                string                      `json:"name"`
	Outcode             string                      `json:"outcode,omitempty"`
	Coordinates         GeoPoint                    `json:"coordinates"`
	Amenities           AmenityCounts               `json:"amenities"`
	NormalizedAmenities map[AmenityCategory]float64 `json:"normalizedAmenities"`
	Transport           TransportSignals            `json:"transport"`
	Environment         EnvironmentSignals          `json:"environment"`
	CommuteEstimate     *float64                    `json:"commuteEstimate,omitempty"`
	CommuteBreakdown    map[CommuteMode]float64     `json:"commuteBreakdown,omitempty"`
	Unverified          bool                        `json:"unverified,omitempty"`
}

// Clone returns a deep copy of p.
func (p AreaProfile) Clone() AreaProfile {
	out := p
	if p.Amenities != nil {
		out.Amenities = make(AmenityCounts, len(p.Amenities))
		for k, v := range p.Amenities {
			out.Amenities[k] = v
		}
	}
	if p.NormalizedAmenities != nil {
		out.NormalizedAmenities = make(map[AmenityCategory]float64, len(p.NormalizedAmenities))
		for k, v := range p.NormalizedAmenities {
			out.NormalizedAmenities[k] = v
		}
	}
	if p.CommuteEstimate != nil {
		v := *p.CommuteEstimate
		out.CommuteEstimate = &v
	}
	if p.CommuteBreakdown != nil {
		out.CommuteBreakdown = make(map[CommuteMode]float64, len(p.CommuteBreakdown))
		for k, v := range p.CommuteBreakdown {
			out.CommuteBreakdown[k] = v
		}
	}
	return out
}

// BuildAreaProfile assembles the profile of a candidate from its amenity
// counts and postcode. The environment band is measured from anchor. Commute
// fields are set only when the preferences carry a work location.
func BuildAreaProfile(c CandidateArea, anchor GeoPoint, counts AmenityCounts, postcode PostcodeResult, prefs UserPreferenceProfile) AreaProfile {
	amenities := make(AmenityCounts, len(AmenityCategories))
	normalized := make(map[AmenityCategory]float64, len(AmenityCategories))
	for _, cat := range AmenityCategories {
		amenities[cat] = counts[cat]
		normalized[cat] = 0
	}
	for cat, n := range counts {
		amenities[cat] = n
		normalized[cat] = 0
	}

	p := AreaProfile{
		ID:                  c.ID,
		Name:                DisplayName(postcode, c.Coordinates),
		Outcode:             postcode.Outcode,
		Coordinates:         c.Coordinates,
		Amenities:           amenities,
		NormalizedAmenities: normalized,
		Transport: TransportSignals{
			TrainStationProximity: presence(amenities[AmenityTrainStation]),
			BusFrequency:          math.Min(float64(amenities[AmenityBusStop])/10, 1),
		},
		Environment: EnvironmentSignals{
			Type:               ClassifyAreaType(HaversineDistance(anchor, c.Coordinates)),
			GreenSpaceCoverage: math.Min(float64(amenities[AmenityParksGreenSpaces])/5, 1),
		},
		Unverified: c.Unverified,
	}

	if work := prefs.Commute.WorkLocation; work != nil {
		est := BestCommuteTime(c.Coordinates, work.Point(), prefs.Commute.Modes)
		p.CommuteEstimate = &est
		p.CommuteBreakdown = CommuteBreakdown(c.Coordinates, work.Point(), prefs.Commute.Modes)
	}
	return p
}

// DisplayName labels an area "<place>, <outcode>", falling back to the bare
// outcode, then to its coordinates.
func DisplayName(postcode PostcodeResult, p GeoPoint) string {
	switch {
	case postcode.PlaceName != "" && postcode.Outcode != "":
		return postcode.PlaceName + ", " + postcode.Outcode
	case postcode.Outcode != "":
		return postcode.Outcode
	default:
		return fmt.Sprintf("Area near [%.4f, %.4f]", p.Lat, p.Lng)
	}
}

func presence(n int) float64 {
	if n > 0 {
		return 1
	}
	return 0
}
