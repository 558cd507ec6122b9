// Package geoexport renders candidate grids and ranked areas as GeoJSON
// FeatureCollections for map display.
package geoexport

import (
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/citysieve/internal/domain"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Candidates returns one Point feature per candidate, with its id and
// verification state as properties.
func Candidates(candidates []domain.CandidateArea) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(candidates))}
	for _, c := range candidates {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       c.ID,
			Geometry: point(c.Coordinates),
			Properties: map[string]any{
				"unverified": c.Unverified,
			},
		})
	}
	return fc
}

// ScoredAreas returns one Point feature per ranked area, in rank order.
func ScoredAreas(areas []domain.ScoredArea) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(areas))}
	for i, s := range areas {
		props := map[string]any{
			"rank":       i + 1,
			"name":       s.Area.Name,
			"score":      s.Score,
			"highlights": s.Highlights,
			"areaType":   s.Area.Environment.Type,
		}
		if s.Area.Outcode != "" {
			props["outcode"] = s.Area.Outcode
		}
		if s.Area.CommuteEstimate != nil {
			props["commuteMinutes"] = *s.Area.CommuteEstimate
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         s.Area.ID,
			Geometry:   point(s.Area.Coordinates),
			Properties: props,
		})
	}
	return fc
}

// Marshal encodes a FeatureCollection.
func Marshal(fc *geojson.FeatureCollection) ([]byte, error) {
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("encode geojson: %w", err)
	}
	return data, nil
}

// GeoJSON orders positions longitude first.
func point(p domain.GeoPoint) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.Lng, p.Lat})
}
