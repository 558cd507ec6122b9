package domain

import (
	"math"
	"sort"
)

// TopResultsLimit is the maximum number of ranked areas returned.
const TopResultsLimit = 10

// Dimension names a scoring dimension.
type Dimension string

const (
	DimSupermarkets     Dimension = "supermarkets"
	DimHighStreet       Dimension = "highStreet"
	DimPubsBars         Dimension = "pubsBars"
	DimRestaurantsCafes Dimension = "restaurantsCafes"
	DimParksGreenSpaces Dimension = "parksGreenSpaces"
	DimGymsLeisure      Dimension = "gymsLeisure"
	DimHealthcare       Dimension = "healthcare"
	DimLibrariesCulture Dimension = "librariesCulture"
	DimPublicTransport  Dimension = "publicTransport"
	DimTrainStation     Dimension = "trainStation"
	DimPeaceAndQuiet    Dimension = "peaceAndQuiet"
	DimCommute          Dimension = "commute"
	DimFamilyProximity  Dimension = "familyProximity"
	DimSocialScene      Dimension = "socialScene"
)

// familyZeroMinutes is the travel time at which family proximity scores zero.
const familyZeroMinutes = 120.0

// ScoredArea is a ranked profile with its explanation.
type ScoredArea struct {
	Area       AreaProfile       `json:"area"`
	Score      float64           `json:"score"`
	Highlights []Dimension       `json:"highlights"`
	Breakdown  map[Dimension]int `json:"breakdown"`
	Weights    ScoringWeights    `json:"weights"`
}

// ScoringResult is the full outcome of a scoring run.
type ScoringResult struct {
	Top             []ScoredArea   `json:"top"`
	Rejected        []RejectedArea `json:"rejected"`
	PassedButNotTop []ScoredArea   `json:"passedButNotTop"`
}

type dimensionScore struct {
	dim    Dimension
	weight float64
	score  float64
}

// ScoreAndRankAreas normalizes the set, drops profiles failing hard filters,
// and returns at most TopResultsLimit areas by descending score.
func ScoreAndRankAreas(areas []AreaProfile, prefs UserPreferenceProfile) []ScoredArea {
	return Score(areas, prefs).Top
}

// Score runs normalization, hard filtering and ranking, and keeps the
// rejected and lower-ranked areas for explanation. Unanswered ratings are
// scored as neutral.
func Score(areas []AreaProfile, prefs UserPreferenceProfile) ScoringResult {
	prefs = prefs.WithDefaults()
	normalized := NormalizeAmenities(areas)
	filtered := ApplyHardFiltersWithReasons(normalized, prefs)
	weights := ExtractWeights(prefs)

	scored := make([]ScoredArea, 0, len(filtered.Passed))
	for _, a := range filtered.Passed {
		scored = append(scored, scoreArea(a, weights, prefs))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	res := ScoringResult{
		Top:             scored,
		Rejected:        filtered.Rejected,
		PassedButNotTop: []ScoredArea{},
	}
	if len(scored) > TopResultsLimit {
		res.Top = scored[:TopResultsLimit:TopResultsLimit]
		res.PassedButNotTop = scored[TopResultsLimit:]
	}
	return res
}

func scoreArea(a AreaProfile, w ScoringWeights, prefs UserPreferenceProfile) ScoredArea {
	n := a.NormalizedAmenities
	dims := []dimensionScore{
		{DimSupermarkets, w.Supermarkets, n[AmenitySupermarkets]},
		{DimHighStreet, w.HighStreet, n[AmenityHighStreet]},
		{DimPubsBars, w.PubsBars, n[AmenityPubsBars]},
		{DimRestaurantsCafes, w.RestaurantsCafes, n[AmenityRestaurantsCafes]},
		{DimParksGreenSpaces, w.ParksGreenSpaces, n[AmenityParksGreenSpaces]},
		{DimGymsLeisure, w.GymsLeisure, n[AmenityGymsLeisure]},
		{DimHealthcare, w.Healthcare, n[AmenityHealthcare]},
		{DimLibrariesCulture, w.LibrariesCulture, n[AmenityLibrariesCulture]},
		{DimPublicTransport, w.PublicTransport, a.Transport.BusFrequency},
		{DimTrainStation, w.TrainStation, a.Transport.TrainStationProximity},
		{DimPeaceAndQuiet, w.PeaceAndQuiet, peaceScore(a.Environment.Type)},
	}

	if limit := prefs.Commute.MaxCommuteTime; a.CommuteEstimate != nil && limit > 0 {
		dims = append(dims, dimensionScore{DimCommute, w.Commute, math.Max(0, 1-*a.CommuteEstimate/limit)})
	}

	if fam := prefs.Family.FamilyLocation; fam != nil {
		modes := prefs.Commute.Modes
		if len(modes) == 0 {
			modes = []CommuteMode{ModeDrive}
		}
		minutes := BestCommuteTime(a.Coordinates, fam.Point(), modes)
		dims = append(dims, dimensionScore{DimFamilyProximity, w.FamilyProximity, math.Max(0, 1-minutes/familyZeroMinutes)})
	}

	social := (n[AmenityPubsBars] + n[AmenityRestaurantsCafes]) / 2
	dims = append(dims, dimensionScore{DimSocialScene, w.SocialScene, social})

	breakdown := make(map[Dimension]int, len(dims))
	var weightedSum, totalWeight float64
	for i := range dims {
		dims[i].score = clamp01(dims[i].score)
		d := dims[i]
		breakdown[d.dim] = int(math.Round(d.score * 100))
		weightedSum += d.weight * d.score
		totalWeight += d.weight
	}

	score := 0.0
	if totalWeight > 0 {
		score = weightedSum / totalWeight * 100
	}

	return ScoredArea{
		Area:       a,
		Score:      math.Round(score*10) / 10,
		Highlights: highlights(dims),
		Breakdown:  breakdown,
		Weights:    w,
	}
}

// highlights picks up to three weighted dimensions with the best raw scores.
func highlights(dims []dimensionScore) []Dimension {
	weighted := make([]dimensionScore, 0, len(dims))
	for _, d := range dims {
		if d.weight > 0 {
			weighted = append(weighted, d)
		}
	}
	sort.SliceStable(weighted, func(i, j int) bool {
		return weighted[i].score > weighted[j].score
	})

	out := make([]Dimension, 0, 3)
	for i := 0; i < len(weighted) && i < 3; i++ {
		out = append(out, weighted[i].dim)
	}
	return out
}

// peaceScore is a fixed proxy by density band.
func peaceScore(t AreaType) float64 {
	switch t {
	case AreaRural, AreaTown:
		return 0.8
	case AreaOuterSuburb:
		return 0.6
	default:
		return 0.3
	}
}
