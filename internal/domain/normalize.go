package domain

// NormalizeAmenities rescales each category against the largest count in the
// set (never below 1). It returns new profiles; the inputs are not modified.
// Scores are only comparable within one call.
func NormalizeAmenities(areas []AreaProfile) []AreaProfile {
	if len(areas) == 0 {
		return []AreaProfile{}
	}

	maxCounts := make(map[AmenityCategory]int)
	for _, a := range areas {
		for cat, n := range a.Amenities {
			if cur, ok := maxCounts[cat]; !ok || n > cur {
				maxCounts[cat] = n
			}
		}
	}
	for cat, n := range maxCounts {
		if n < 1 {
			maxCounts[cat] = 1
		}
	}

	out := make([]AreaProfile, len(areas))
	for i, a := range areas {
		p := a.Clone()
		p.NormalizedAmenities = make(map[AmenityCategory]float64, len(maxCounts))
		for cat, maxN := range maxCounts {
			p.NormalizedAmenities[cat] = clamp01(float64(a.Amenities[cat]) / float64(maxN))
		}
		out[i] = p
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
