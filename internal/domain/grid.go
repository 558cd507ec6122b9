package domain

import (
	"fmt"
	"math"
)

// maxGridPoints bounds the bounding-box lattice before cropping.
const maxGridPoints = 250_000

// CandidateArea is a lattice point considered as a neighbourhood centre.
// Unverified marks candidates whose land check could not be completed.
type CandidateArea struct {
	ID          string   `json:"id"`
	Coordinates GeoPoint `json:"coordinates"`
	Unverified  bool     `json:"unverified,omitempty"`
}

// NewCandidateArea rounds p to 4 decimal places and derives the candidate ID.
func NewCandidateArea(p GeoPoint) CandidateArea {
	r := p.Rounded(coordinatePrecision)
	return CandidateArea{
		ID:          "area_" + formatCoordinate(r.Lat) + "_" + formatCoordinate(r.Lng),
		Coordinates: r,
	}
}

// GenerateCandidateAreas lays a hexagonal lattice over the circle of radiusKm
// around centre with spacingKm between neighbours. Rows run south to north and
// odd rows are shifted east by half a column. The centre is always a lattice
// point. Output order and IDs are deterministic for identical inputs.
func GenerateCandidateAreas(centre GeoPoint, radiusKm, spacingKm float64) ([]CandidateArea, error) {
	if err := validateGridInput(centre, radiusKm, spacingKm); err != nil {
		return nil, err
	}

	kmPerDegLng := KmPerDegreeLng(centre.Lat)
	spacingLat := spacingKm / KmPerDegreeLat
	spacingLng := spacingKm / kmPerDegLng
	rowSpacingLat := spacingLat * math.Sqrt(3) / 2

	rows := math.Floor(radiusKm / KmPerDegreeLat / rowSpacingLat)
	cols := math.Ceil(radiusKm/kmPerDegLng/spacingLng) + 1
	if (2*rows+1)*(2*cols+1) > maxGridPoints {
		return nil, fmt.Errorf("%w: spacing %vkm too fine for radius %vkm", ErrInvalidGeometry, spacingKm, radiusKm)
	}
	maxRow, maxCol := int(rows), int(cols)

	seen := make(map[string]struct{})
	var areas []CandidateArea
	for row := -maxRow; row <= maxRow; row++ {
		lngOffset := 0.0
		if row%2 != 0 {
			lngOffset = spacingLng / 2
		}
		for col := -maxCol; col <= maxCol; col++ {
			p := GeoPoint{
				Lat: centre.Lat + float64(row)*rowSpacingLat,
				Lng: centre.Lng + float64(col)*spacingLng + lngOffset,
			}
			if HaversineDistance(centre, p) > radiusKm {
				continue
			}
			a := NewCandidateArea(p)
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			areas = append(areas, a)
		}
	}
	return areas, nil
}

// RingFilter keeps candidates strictly further than innerKm from centre.
func RingFilter(centre GeoPoint, innerKm float64, areas []CandidateArea) []CandidateArea {
	out := make([]CandidateArea, 0, len(areas))
	for _, a := range areas {
		if HaversineDistance(centre, a.Coordinates) > innerKm {
			out = append(out, a)
		}
	}
	return out
}

// MergeCandidates appends extra to base, skipping IDs already present.
func MergeCandidates(base, extra []CandidateArea) []CandidateArea {
	seen := make(map[string]struct{}, len(base))
	out := make([]CandidateArea, 0, len(base)+len(extra))
	for _, a := range base {
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	for _, a := range extra {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

func validateGridInput(centre GeoPoint, radiusKm, spacingKm float64) error {
	if err := centre.Validate(); err != nil {
		return err
	}
	if !isFinite(radiusKm) || radiusKm <= 0 {
		return fmt.Errorf("%w: radius must be positive, got %v", ErrInvalidGeometry, radiusKm)
	}
	if !isFinite(spacingKm) || spacingKm <= 0 {
		return fmt.Errorf("%w: spacing must be positive, got %v", ErrInvalidGeometry, spacingKm)
	}
	if KmPerDegreeLng(centre.Lat) < 1e-6 {
		return fmt.Errorf("%w: latitude %v too close to a pole", ErrInvalidGeometry, centre.Lat)
	}
	return nil
}
