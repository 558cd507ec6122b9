package domain

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// onlyLikerts returns preferences with every rating at 1 except those given.
func onlyLikerts(set func(p *UserPreferenceProfile)) UserPreferenceProfile {
	p := UserPreferenceProfile{
		Family:      FamilyPreferences{FamilyProximityImportance: 1, SocialImportance: 1},
		Lifestyle:   LifestylePreferences{1, 1, 1, 1, 1, 1, 1, 1},
		Transport:   TransportPreferences{PublicTransportReliance: 1, TrainStationImportance: 1},
		Environment: EnvironmentPreferences{PeaceAndQuiet: 1},
	}
	if set != nil {
		set(&p)
	}
	return p
}

func TestScoreAndRankAreas_SupermarketOnly(t *testing.T) {
	a := AreaProfile{ID: "a", Name: "A", Amenities: AmenityCounts{AmenitySupermarkets: 10}}
	b := AreaProfile{ID: "b", Name: "B", Amenities: AmenityCounts{AmenitySupermarkets: 5}}
	prefs := onlyLikerts(func(p *UserPreferenceProfile) { p.Lifestyle.Supermarkets = 5 })

	ranked := ScoreAndRankAreas([]AreaProfile{b, a}, prefs)
	require.Len(t, ranked, 2)

	assert.Equal(t, "a", ranked[0].Area.ID)
	assert.Equal(t, 100.0, ranked[0].Score)
	assert.Equal(t, 50.0, ranked[1].Score)
	assert.Equal(t, ranked[0].Area.NormalizedAmenities[AmenitySupermarkets]*100, ranked[0].Score)
	assert.Equal(t, ranked[1].Area.NormalizedAmenities[AmenitySupermarkets]*100, ranked[1].Score)
	assert.Equal(t, []Dimension{DimSupermarkets}, ranked[0].Highlights)
}

func TestScoreAndRankAreas_ZeroTotalWeight(t *testing.T) {
	areas := []AreaProfile{{ID: "a", Amenities: AmenityCounts{AmenityPubsBars: 4}}}

	ranked := ScoreAndRankAreas(areas, onlyLikerts(nil))
	require.Len(t, ranked, 1)
	assert.Zero(t, ranked[0].Score)
	assert.Empty(t, ranked[0].Highlights)
}

func TestScore_RangeOrderAndTruncation(t *testing.T) {
	var areas []AreaProfile
	for i := 0; i < 14; i++ {
		areas = append(areas, AreaProfile{
			ID:   fmt.Sprintf("area-%d", i),
			Name: fmt.Sprintf("Area %d", i),
			Amenities: AmenityCounts{
				AmenitySupermarkets:     (i * 7) % 5,
				AmenityPubsBars:         (i * 3) % 11,
				AmenityRestaurantsCafes: i % 4,
				AmenityParksGreenSpaces: 14 - i,
			},
			Transport:   TransportSignals{BusFrequency: float64(i%10) / 10, TrainStationProximity: float64(i % 2)},
			Environment: EnvironmentSignals{Type: areaTypeOrder[i%5]},
		})
	}
	prefs := UserPreferenceProfile{}.WithDefaults()

	res := Score(areas, prefs)

	require.Len(t, res.Top, TopResultsLimit)
	assert.Len(t, res.PassedButNotTop, 4)
	assert.Empty(t, res.Rejected)
	assert.True(t, sort.SliceIsSorted(res.Top, func(i, j int) bool { return res.Top[i].Score > res.Top[j].Score }))
	for _, s := range append(res.Top, res.PassedButNotTop...) {
		assert.GreaterOrEqual(t, s.Score, 0.0)
		assert.LessOrEqual(t, s.Score, 100.0)
		assert.LessOrEqual(t, len(s.Highlights), 3)
	}
	assert.GreaterOrEqual(t, res.Top[TopResultsLimit-1].Score, res.PassedButNotTop[0].Score)
}

func TestScore_RejectedExposedSeparately(t *testing.T) {
	areas := []AreaProfile{
		{ID: "keep", Name: "Chorlton, M21", Environment: EnvironmentSignals{Type: AreaInnerSuburb}},
		{ID: "drop", Name: "Wythenshawe, M22", Environment: EnvironmentSignals{Type: AreaInnerSuburb}},
	}
	prefs := UserPreferenceProfile{Environment: EnvironmentPreferences{ExcludeAreas: []string{"wythenshawe"}}}.WithDefaults()

	res := Score(areas, prefs)
	require.Len(t, res.Top, 1)
	assert.Equal(t, "keep", res.Top[0].Area.ID)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "drop", res.Rejected[0].Area.ID)
}

func TestScore_NothingPasses(t *testing.T) {
	areas := []AreaProfile{profileOfType("a", AreaRural)}
	prefs := UserPreferenceProfile{Environment: EnvironmentPreferences{AreaTypes: []AreaType{AreaCityCentre}}}.WithDefaults()

	ranked := ScoreAndRankAreas(areas, prefs)
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
	assert.Empty(t, ScoreAndRankAreas(nil, prefs))
}

func TestScoreArea_HighlightsAndBreakdown(t *testing.T) {
	a := AreaProfile{ID: "a", Amenities: AmenityCounts{
		AmenitySupermarkets: 10, AmenityPubsBars: 5, AmenityParksGreenSpaces: 1, AmenityHealthcare: 8,
	}}
	b := AreaProfile{ID: "b", Amenities: AmenityCounts{
		AmenitySupermarkets: 10, AmenityPubsBars: 10, AmenityParksGreenSpaces: 5, AmenityHealthcare: 10,
	}}
	prefs := onlyLikerts(func(p *UserPreferenceProfile) {
		p.Lifestyle.Supermarkets = 5
		p.Lifestyle.PubsBars = 5
		p.Lifestyle.ParksGreenSpaces = 5
		p.Lifestyle.Healthcare = 5
	})

	res := Score([]AreaProfile{a, b}, prefs)
	var scoredA ScoredArea
	for _, s := range res.Top {
		if s.Area.ID == "a" {
			scoredA = s
		}
	}
	require.Equal(t, "a", scoredA.Area.ID)

	assert.Equal(t, []Dimension{DimSupermarkets, DimHealthcare, DimPubsBars}, scoredA.Highlights)
	assert.Equal(t, 100, scoredA.Breakdown[DimSupermarkets])
	assert.Equal(t, 50, scoredA.Breakdown[DimPubsBars])
	assert.Equal(t, 20, scoredA.Breakdown[DimParksGreenSpaces])
	assert.Equal(t, 25, scoredA.Breakdown[DimSocialScene])
	assert.Equal(t, 30, scoredA.Breakdown[DimPeaceAndQuiet])
	assert.NotContains(t, scoredA.Breakdown, DimCommute)
	assert.NotContains(t, scoredA.Breakdown, DimFamilyProximity)
	// (1 + 0.5 + 0.2 + 0.8) / 4
	assert.Equal(t, 62.5, scoredA.Score)
	assert.Equal(t, ExtractWeights(prefs), scoredA.Weights)
}

func TestScoreArea_CommuteAndFamily(t *testing.T) {
	home := GeoPoint{Lat: 53.4, Lng: -2.2}
	a := AreaProfile{ID: "a", Coordinates: home, CommuteEstimate: ptr(15.0)}
	prefs := onlyLikerts(func(p *UserPreferenceProfile) {
		p.Commute = CommutePreferences{DaysPerWeek: 5, MaxCommuteTime: 30, Modes: []CommuteMode{ModeTrain}}
		p.Family.FamilyLocation = &Location{Lat: home.Lat, Lng: home.Lng}
		p.Family.FamilyProximityImportance = 5
	})

	ranked := ScoreAndRankAreas([]AreaProfile{a}, prefs)
	require.Len(t, ranked, 1)
	s := ranked[0]

	assert.Equal(t, 50, s.Breakdown[DimCommute])
	// Train only: 10 minutes of station access at zero distance.
	assert.Equal(t, 92, s.Breakdown[DimFamilyProximity])
	assert.Equal(t, []Dimension{DimFamilyProximity, DimCommute}, s.Highlights)
	assert.InDelta(t, (0.5+110.0/120)/2*100, s.Score, 0.05)
}

func TestScoreArea_CommuteSkippedWithoutCap(t *testing.T) {
	a := AreaProfile{ID: "a", CommuteEstimate: ptr(15.0)}
	prefs := onlyLikerts(func(p *UserPreferenceProfile) { p.Commute.DaysPerWeek = 5 })

	ranked := ScoreAndRankAreas([]AreaProfile{a}, prefs)
	require.Len(t, ranked, 1)
	assert.NotContains(t, ranked[0].Breakdown, DimCommute)
}

func TestScore_UnansweredAndOutOfRangeRatingsStayInRange(t *testing.T) {
	areas := []AreaProfile{
		{ID: "a", Amenities: AmenityCounts{AmenitySupermarkets: 1}},
		{ID: "b", Amenities: AmenityCounts{AmenityPubsBars: 2}},
	}
	prefs := onlyLikerts(func(p *UserPreferenceProfile) {
		p.Lifestyle.Supermarkets = 9
		p.Family.SocialImportance = 0
		p.Transport.TrainStationImportance = -2
		p.Commute.DaysPerWeek = 7
	})

	res := Score(areas, prefs)
	require.Len(t, res.Top, 2)
	for _, s := range res.Top {
		assert.GreaterOrEqual(t, s.Score, 0.0, "area %s", s.Area.ID)
		assert.LessOrEqual(t, s.Score, 100.0, "area %s", s.Area.ID)

		w := s.Weights
		for _, v := range []float64{w.Supermarkets, w.SocialScene, w.TrainStation, w.Commute} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
	// Unanswered social importance scores as neutral.
	assert.Equal(t, 0.5, res.Top[0].Weights.SocialScene)
}
