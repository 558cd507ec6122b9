package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/citysieve/internal/domain"
	"github.com/couchcryptid/citysieve/internal/observability"
	"github.com/couchcryptid/citysieve/internal/pipeline"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	manchester = domain.GeoPoint{Lat: 53.48, Lng: -2.24}
	york       = domain.GeoPoint{Lat: 53.96, Lng: -1.08}
)

// A 5 km radius at 2 km spacing around manchester yields 19 lattice points,
// 12 of them further than 3 km from the centre.
const (
	testRadiusKm   = 5.0
	testCandidates = 19
	testRingCount  = 12
)

// --- fakes ---

type landResolver struct {
	water func(domain.GeoPoint) bool
}

func (r landResolver) ResolveBatch(_ context.Context, points []domain.GeoPoint) ([]bool, error) {
	out := make([]bool, len(points))
	for i, p := range points {
		out[i] = r.water == nil || !r.water(p)
	}
	return out, nil
}

type fakeCounter struct {
	mu     sync.Mutex
	calls  int
	failAt *domain.GeoPoint
	onCall func()
}

func (c *fakeCounter) CountAmenities(_ context.Context, p domain.GeoPoint, radiusM int) (domain.AmenityCounts, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.onCall != nil {
		c.onCall()
	}
	if radiusM != domain.AmenitySearchRadiusM {
		return nil, errors.New("unexpected radius")
	}
	if c.failAt != nil && *c.failAt == p {
		return nil, errors.New("overpass timeout")
	}
	// Busier towards the north east so the ranking is not a tie.
	n := int((p.Lat-53)*100) + int((p.Lng+3)*10)
	return domain.AmenityCounts{
		domain.AmenitySupermarkets: n % 5,
		domain.AmenityPubsBars:     n % 7,
		domain.AmenityBusStop:      n % 11,
	}, nil
}

type fakePostcodes struct {
	err error
}

func (f fakePostcodes) LookupPostcode(_ context.Context, _ domain.GeoPoint) (domain.PostcodeResult, error) {
	if f.err != nil {
		return domain.PostcodeResult{}, f.err
	}
	return domain.PostcodeResult{Outcode: "M20", PlaceName: "Didsbury"}, nil
}

type fakeGeocoder struct {
	places  map[string]domain.Place
	reverse domain.Place
}

func (g fakeGeocoder) ForwardGeocode(_ context.Context, query string) (domain.Place, error) {
	return g.places[query], nil
}

func (g fakeGeocoder) ReverseGeocode(_ context.Context, _ domain.GeoPoint) (domain.Place, error) {
	return g.reverse, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []pipeline.SearchRunEvent
}

func (c *capturePublisher) PublishSearchRun(_ context.Context, e pipeline.SearchRunEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

// --- helpers ---

func testConfig() pipeline.SearcherConfig {
	policy := domain.DefaultDensityPolicy()
	policy.StandardSpacingKm = 2
	policy.MinimumAcceptable = 1
	return pipeline.SearcherConfig{RadiusKm: testRadiusKm, Density: policy}
}

func newTestSearcher(counter domain.AmenityCounter, postcodes domain.PostcodeLookup, opts ...pipeline.SearcherOption) (*pipeline.Searcher, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	s := pipeline.NewSearcher(landResolver{}, counter, postcodes, testConfig(), discardLogger(), metrics, opts...)
	return s, metrics
}

func workPrefs() domain.UserPreferenceProfile {
	return domain.UserPreferenceProfile{
		Commute: domain.CommutePreferences{
			WorkLocation:   &domain.Location{Label: "Office", Lat: manchester.Lat, Lng: manchester.Lng},
			DaysPerWeek:    3,
			MaxCommuteTime: 60,
			Modes:          []domain.CommuteMode{domain.ModeTrain, domain.ModeCycle},
		},
	}
}

func allAreas(res pipeline.SearchResult) []domain.AreaProfile {
	var out []domain.AreaProfile
	for _, s := range res.Top {
		out = append(out, s.Area)
	}
	for _, s := range res.PassedButNotTop {
		out = append(out, s.Area)
	}
	for _, r := range res.Rejected {
		out = append(out, r.Area)
	}
	return out
}

// --- tests ---

func TestSearcher_Search_RanksCandidates(t *testing.T) {
	s, metrics := newTestSearcher(&fakeCounter{}, fakePostcodes{})

	res, err := s.Search(context.Background(), pipeline.SearchRequest{Preferences: workPrefs()})
	require.NoError(t, err)

	_, err = uuid.Parse(res.RunID)
	require.NoError(t, err, "run id should be a uuid")
	assert.Equal(t, pipeline.ModeFull, res.Mode)
	assert.Equal(t, manchester, res.Centre)
	assert.InDelta(t, testRadiusKm, res.RadiusKm, 0)
	assert.InDelta(t, 2, res.SpacingKm, 0)
	assert.Equal(t, testCandidates, res.TotalCandidates)
	assert.Equal(t, testCandidates, res.Enriched)
	assert.False(t, res.Partial)

	require.Len(t, res.Top, domain.TopResultsLimit)
	assert.Len(t, res.PassedButNotTop, testCandidates-domain.TopResultsLimit)
	assert.Empty(t, res.Rejected)
	for i := 1; i < len(res.Top); i++ {
		assert.GreaterOrEqual(t, res.Top[i-1].Score, res.Top[i].Score)
	}
	for _, a := range res.Top {
		assert.Equal(t, "Didsbury, M20", a.Area.Name)
		require.NotNil(t, a.Area.CommuteEstimate)
	}

	require.Len(t, res.Statuses, testCandidates)
	for id, status := range res.Statuses {
		assert.Equal(t, domain.StatusChecked, status, id)
	}
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SearchRuns.WithLabelValues("success")), 0)
	assert.InDelta(t, testCandidates, testutil.ToFloat64(metrics.CandidatesGenerated), 0)
}

func TestSearcher_Search_KeepsRequestID(t *testing.T) {
	s, _ := newTestSearcher(&fakeCounter{}, fakePostcodes{})

	res, err := s.Search(context.Background(), pipeline.SearchRequest{ID: "run-42", Mode: pipeline.ModeQuick, Preferences: workPrefs()})
	require.NoError(t, err)
	assert.Equal(t, "run-42", res.RunID)
	assert.Equal(t, pipeline.ModeQuick, res.Mode)
}

func TestSearcher_Search_FallbackAnchor(t *testing.T) {
	s, _ := newTestSearcher(&fakeCounter{}, fakePostcodes{})

	res, err := s.Search(context.Background(), pipeline.SearchRequest{})
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultAnchor, res.Centre)
	for _, a := range allAreas(res) {
		assert.Nil(t, a.CommuteEstimate, "no work location means no commute estimate")
	}
}

func TestSearcher_Search_FamilyLocationAnchor(t *testing.T) {
	s, _ := newTestSearcher(&fakeCounter{}, fakePostcodes{})
	prefs := domain.UserPreferenceProfile{
		Family: domain.FamilyPreferences{FamilyLocation: &domain.Location{Lat: york.Lat, Lng: york.Lng}},
	}

	res, err := s.Search(context.Background(), pipeline.SearchRequest{Preferences: prefs})
	require.NoError(t, err)
	assert.Equal(t, york, res.Centre)
}

func TestSearcher_Search_InvalidPreferences(t *testing.T) {
	s, metrics := newTestSearcher(&fakeCounter{}, fakePostcodes{})
	prefs := workPrefs()
	prefs.Lifestyle.PubsBars = 7

	_, err := s.Search(context.Background(), pipeline.SearchRequest{Preferences: prefs})
	require.ErrorIs(t, err, domain.ErrInvalidPreferences)
	assert.Contains(t, err.Error(), "lifestyle.pubsBars")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SearchRuns.WithLabelValues("error")), 0)
}

func TestSearcher_Search_InvalidRequest(t *testing.T) {
	s, _ := newTestSearcher(&fakeCounter{}, fakePostcodes{})

	tests := []struct {
		name string
		req  pipeline.SearchRequest
		want error
	}{
		{"negative radius", pipeline.SearchRequest{RadiusKm: -1}, pipeline.ErrInvalidRequest},
		{"unknown mode", pipeline.SearchRequest{Mode: "express"}, pipeline.ErrInvalidRequest},
		{"inner beyond outer", pipeline.SearchRequest{RadiusKm: 5, InnerRadiusKm: 8}, domain.ErrInvalidGeometry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Search(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSearcher_Search_DropsFailedCandidates(t *testing.T) {
	counter := &fakeCounter{failAt: &manchester}
	s, metrics := newTestSearcher(counter, fakePostcodes{})

	res, err := s.Search(context.Background(), pipeline.SearchRequest{Preferences: workPrefs()})
	require.NoError(t, err)

	assert.Equal(t, testCandidates, res.TotalCandidates)
	assert.Equal(t, testCandidates-1, res.Enriched)
	centreID := domain.NewCandidateArea(manchester).ID
	assert.Equal(t, domain.StatusPending, res.Statuses[centreID])
	for _, a := range allAreas(res) {
		assert.NotEqual(t, centreID, a.ID)
	}
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.EnrichmentFailures), 0)
}

func TestSearcher_Search_PostcodeFailureKeepsCandidate(t *testing.T) {
	s, _ := newTestSearcher(&fakeCounter{}, fakePostcodes{err: errors.New("postcodes.io down")})

	res, err := s.Search(context.Background(), pipeline.SearchRequest{Preferences: workPrefs()})
	require.NoError(t, err)
	assert.Equal(t, testCandidates, res.Enriched)
	for _, a := range allAreas(res) {
		assert.Contains(t, a.Name, "Area near [")
		assert.Empty(t, a.Outcode)
	}
}

func TestSearcher_Search_PostcodeFailureLoggedWithRunID(t *testing.T) {
	logger, buf := captureLogger()
	s := pipeline.NewSearcher(landResolver{}, &fakeCounter{}, fakePostcodes{err: errors.New("postcodes.io down")},
		testConfig(), logger, observability.NewMetricsForTesting())

	_, err := s.Search(context.Background(), pipeline.SearchRequest{ID: "run-42", Preferences: workPrefs()})
	require.NoError(t, err)

	lines := logLines(t, buf, "postcode lookup failed")
	require.Len(t, lines, testCandidates)
	for _, l := range lines {
		assert.Equal(t, "run-42", l["run_id"])
		assert.NotEmpty(t, l["candidate_id"])
	}
}

func TestSearcher_Search_DiscardsWater(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	west := landResolver{water: func(p domain.GeoPoint) bool { return p.Lng < manchester.Lng }}
	s := pipeline.NewSearcher(west, &fakeCounter{}, fakePostcodes{}, testConfig(), discardLogger(), metrics)

	res, err := s.Search(context.Background(), pipeline.SearchRequest{Preferences: workPrefs()})
	require.NoError(t, err)

	assert.Positive(t, res.Discarded)
	assert.Equal(t, testCandidates-res.Discarded, res.TotalCandidates)
	for _, a := range allAreas(res) {
		assert.GreaterOrEqual(t, a.Coordinates.Lng, manchester.Lng)
	}
	assert.InDelta(t, float64(res.Discarded), testutil.ToFloat64(metrics.CandidatesDiscarded), 0)
}

func TestSearcher_Search_HardFilterRejects(t *testing.T) {
	s, _ := newTestSearcher(&fakeCounter{}, fakePostcodes{})
	prefs := workPrefs()
	prefs.Environment.ExcludeAreas = []string{"didsbury"}

	res, err := s.Search(context.Background(), pipeline.SearchRequest{Preferences: prefs})
	require.NoError(t, err)

	assert.Empty(t, res.Top)
	assert.Len(t, res.Rejected, testCandidates)
	for _, r := range res.Rejected {
		assert.Contains(t, r.Reasons, domain.ReasonExcludedArea)
		assert.Equal(t, domain.StatusFiltered, res.Statuses[r.Area.ID])
	}
}

func TestSearcher_Search_Ring(t *testing.T) {
	s, _ := newTestSearcher(&fakeCounter{}, fakePostcodes{})

	res, err := s.Search(context.Background(), pipeline.SearchRequest{Preferences: workPrefs(), InnerRadiusKm: 3})
	require.NoError(t, err)

	assert.Equal(t, testRingCount, res.TotalCandidates)
	assert.InDelta(t, 3, res.InnerRadiusKm, 0)
	for _, a := range allAreas(res) {
		assert.Greater(t, domain.HaversineDistance(manchester, a.Coordinates), 3.0)
	}
}

func TestSearcher_Search_ConsideringAreas(t *testing.T) {
	geo := fakeGeocoder{places: map[string]domain.Place{
		"York": {Name: "York", PlaceType: "place", Coordinates: york},
	}}
	s, _ := newTestSearcher(&fakeCounter{}, fakePostcodes{}, pipeline.WithGeocoder(geo))
	prefs := workPrefs()
	prefs.Environment.ConsideringAreas = []string{"York", "Atlantis", "  "}

	res, err := s.Search(context.Background(), pipeline.SearchRequest{Preferences: prefs})
	require.NoError(t, err)

	assert.Equal(t, 2*testCandidates, res.TotalCandidates)
	nearYork := 0
	for _, a := range allAreas(res) {
		if domain.HaversineDistance(york, a.Coordinates) <= 5 {
			nearYork++
		}
	}
	assert.Equal(t, testCandidates, nearYork)
}

func TestSearcher_Search_ConsideringAreasIgnoredForRing(t *testing.T) {
	geo := fakeGeocoder{places: map[string]domain.Place{"York": {Name: "York", Coordinates: york}}}
	s, _ := newTestSearcher(&fakeCounter{}, fakePostcodes{}, pipeline.WithGeocoder(geo))
	prefs := workPrefs()
	prefs.Environment.ConsideringAreas = []string{"York"}

	res, err := s.Search(context.Background(), pipeline.SearchRequest{Preferences: prefs, InnerRadiusKm: 3})
	require.NoError(t, err)
	assert.Equal(t, testRingCount, res.TotalCandidates)
}

func TestSearcher_Search_NamesTopResults(t *testing.T) {
	geo := fakeGeocoder{reverse: domain.Place{Name: "Withington", PlaceType: "locality"}}
	s, _ := newTestSearcher(&fakeCounter{}, fakePostcodes{}, pipeline.WithGeocoder(geo))

	res, err := s.Search(context.Background(), pipeline.SearchRequest{Preferences: workPrefs()})
	require.NoError(t, err)

	for _, a := range res.Top {
		assert.Equal(t, "Withington", a.Area.Name)
	}
	for _, a := range res.PassedButNotTop {
		assert.Equal(t, "Didsbury, M20", a.Area.Name, "only the top results are renamed")
	}
}

func TestSearcher_Search_EnrichBudget(t *testing.T) {
	clock := clockwork.NewFakeClock()
	counter := &fakeCounter{onCall: func() { clock.Advance(time.Second) }}

	cfg := testConfig()
	cfg.EnrichBudget = 2 * time.Second
	metrics := observability.NewMetricsForTesting()
	s := pipeline.NewSearcher(landResolver{}, counter, fakePostcodes{}, cfg, discardLogger(), metrics, pipeline.WithClock(clock))

	res, err := s.Search(context.Background(), pipeline.SearchRequest{Preferences: workPrefs()})
	require.NoError(t, err)

	assert.True(t, res.Partial)
	assert.Equal(t, pipeline.DefaultEnrichBatchSize, res.Enriched)
	assert.Equal(t, testCandidates, res.TotalCandidates)

	pending := 0
	for _, status := range res.Statuses {
		if status == domain.StatusPending {
			pending++
		}
	}
	assert.Equal(t, testCandidates-pipeline.DefaultEnrichBatchSize, pending)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SearchRuns.WithLabelValues("partial")), 0)
}

func TestSearcher_Search_Publishes(t *testing.T) {
	pub := &capturePublisher{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	s, _ := newTestSearcher(&fakeCounter{}, fakePostcodes{}, pipeline.WithPublisher(pub), pipeline.WithClock(clock))

	res, err := s.Search(context.Background(), pipeline.SearchRequest{Preferences: workPrefs()})
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, res.RunID, ev.RunID)
	assert.Equal(t, clock.Now(), ev.CompletedAt)
	assert.Len(t, ev.TopResults, domain.TopResultsLimit)
	require.NotNil(t, ev.Preferences.Commute.WorkLocation)
	assert.Empty(t, ev.Preferences.Commute.WorkLocation.Label)
}

func TestSearcher_Search_ContextCanceled(t *testing.T) {
	s, _ := newTestSearcher(&fakeCounter{}, fakePostcodes{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Search(ctx, pipeline.SearchRequest{Preferences: workPrefs()})
	require.ErrorIs(t, err, context.Canceled)
}
