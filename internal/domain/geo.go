package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	earthRadiusKm = 6371.0

	// KmPerDegreeLat is the flat-earth conversion used for grid spacing.
	KmPerDegreeLat = 111.0

	coordinatePrecision = 4
)

// ErrInvalidGeometry is returned when a centre, radius, or spacing cannot
// produce a meaningful grid.
var ErrInvalidGeometry = errors.New("invalid geometry")

// GeoPoint is a WGS84 coordinate in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate reports whether the point is finite and within the valid
// latitude/longitude ranges.
func (p GeoPoint) Validate() error {
	if !isFinite(p.Lat) || !isFinite(p.Lng) {
		return fmt.Errorf("%w: coordinates must be finite (lat=%v, lng=%v)", ErrInvalidGeometry, p.Lat, p.Lng)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidGeometry, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidGeometry, p.Lng)
	}
	return nil
}

// Rounded returns the point rounded to the given number of decimal places.
func (p GeoPoint) Rounded(places int) GeoPoint {
	return GeoPoint{Lat: roundTo(p.Lat, places), Lng: roundTo(p.Lng, places)}
}

// HaversineDistance returns the great-circle distance between a and b in km.
// The result is symmetric and zero for identical points.
func HaversineDistance(a, b GeoPoint) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// KmPerDegreeLng returns the flat-earth length of one degree of longitude at lat.
func KmPerDegreeLng(lat float64) float64 {
	return KmPerDegreeLat * math.Cos(toRadians(lat))
}

// CardinalDirection names the compass sector of p relative to centre, e.g.
// "North East". It returns "" when p is within 0.015° latitude and 0.02°
// longitude of the centre on both axes.
func CardinalDirection(centre, p GeoPoint) string {
	const (
		latThreshold = 0.015
		lngThreshold = 0.02
	)
	latDiff := p.Lat - centre.Lat
	lngDiff := p.Lng - centre.Lng

	var ns, ew string
	switch {
	case latDiff > latThreshold:
		ns = "North"
	case latDiff < -latThreshold:
		ns = "South"
	}
	switch {
	case lngDiff > lngThreshold:
		ew = "East"
	case lngDiff < -lngThreshold:
		ew = "West"
	}

	switch {
	case ns != "" && ew != "":
		return ns + " " + ew
	case ns != "":
		return ns
	default:
		return ew
	}
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0
	}
	return r
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
