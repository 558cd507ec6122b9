package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	httpadapter "github.com/couchcryptid/citysieve/internal/adapter/http"
	"github.com/couchcryptid/citysieve/internal/domain"
	"github.com/couchcryptid/citysieve/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockSearcher struct {
	got pipeline.SearchRequest
	err error
}

func (m *mockSearcher) Search(_ context.Context, req pipeline.SearchRequest) (pipeline.SearchResult, error) {
	m.got = req
	if m.err != nil {
		return pipeline.SearchResult{}, m.err
	}
	return pipeline.SearchResult{RunID: "run-1", Mode: req.Mode, RadiusKm: 20}, nil
}

func newTestServer(readyErr error, searcher *mockSearcher) *httpadapter.Server {
	if searcher == nil {
		searcher = &mockSearcher{}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, searcher, logger)
}

func do(srv http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		r = bytes.NewReader(data)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := do(newTestServer(nil, nil), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := do(newTestServer(nil, nil), http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := do(newTestServer(fmt.Errorf("not ready yet"), nil), http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(newTestServer(nil, nil), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSearch(t *testing.T) {
	searcher := &mockSearcher{}
	body := `{"id":"abc","radiusKm":10,"preferences":{"lifestyle":{"pubsBars":5}}}`

	rec := do(newTestServer(nil, searcher), http.MethodPost, "/v1/search", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "abc", searcher.got.ID)
	assert.InDelta(t, 10, searcher.got.RadiusKm, 0)
	assert.Equal(t, domain.Likert(5), searcher.got.Preferences.Lifestyle.PubsBars)

	var res pipeline.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "run-1", res.RunID)
}

func TestSearch_InvalidBody(t *testing.T) {
	rec := do(newTestServer(nil, nil), http.MethodPost, "/v1/search", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid preferences", fmt.Errorf("%w: lifestyle.pubsBars", domain.ErrInvalidPreferences), http.StatusBadRequest},
		{"invalid geometry", domain.ErrInvalidGeometry, http.StatusBadRequest},
		{"invalid request", pipeline.ErrInvalidRequest, http.StatusBadRequest},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable},
		{"upstream", errors.New("land check: postcodes.io down"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestServer(nil, &mockSearcher{err: tt.err}), http.MethodPost, "/v1/search", `{}`)
			assert.Equal(t, tt.want, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestQuickSearch(t *testing.T) {
	searcher := &mockSearcher{}
	body := map[string]any{
		"answers": map[string]any{
			"isRemote":      true,
			"commuteModes":  []string{"train"},
			"topPriorities": []string{"pubsBars"},
		},
		"radiusKm": 15,
	}

	rec := do(newTestServer(nil, searcher), http.MethodPost, "/v1/quick-search", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, pipeline.ModeQuick, searcher.got.Mode)
	assert.InDelta(t, 15, searcher.got.RadiusKm, 0)
	prefs := searcher.got.Preferences
	assert.Nil(t, prefs.Commute.WorkLocation)
	assert.Equal(t, 0, prefs.Commute.DaysPerWeek)
	assert.Equal(t, domain.LikertHigh, prefs.Lifestyle.PubsBars)
	assert.Equal(t, domain.LikertLow, prefs.Lifestyle.Supermarkets)
}

func TestScore(t *testing.T) {
	areas := []domain.AreaProfile{
		{
			ID:          "quiet",
			Name:        "Quiet, SK8",
			Amenities:   domain.AmenityCounts{domain.AmenityPubsBars: 1},
			Environment: domain.EnvironmentSignals{Type: domain.AreaOuterSuburb},
		},
		{
			ID:          "lively",
			Name:        "Lively, M4",
			Amenities:   domain.AmenityCounts{domain.AmenityPubsBars: 20},
			Environment: domain.EnvironmentSignals{Type: domain.AreaOuterSuburb},
		},
	}
	body := map[string]any{
		"areas":       areas,
		"preferences": domain.UserPreferenceProfile{Lifestyle: domain.LifestylePreferences{PubsBars: 5}},
	}

	rec := do(newTestServer(nil, nil), http.MethodPost, "/v1/score", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res domain.ScoringResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Top, 2)
	assert.Equal(t, "lively", res.Top[0].Area.ID)
}

func TestScore_InvalidPreferences(t *testing.T) {
	body := `{"areas":[],"preferences":{"commute":{"daysPerWeek":9}}}`
	rec := do(newTestServer(nil, nil), http.MethodPost, "/v1/score", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "daysPerWeek")
}

func TestCandidates(t *testing.T) {
	rec := do(newTestServer(nil, nil), http.MethodGet, "/v1/candidates?lat=53.48&lng=-2.24&radius_km=5&spacing_km=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var fc struct {
		Type     string           `json:"type"`
		Features []map[string]any `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 19)
}

func TestCandidates_BadQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing lat", "lng=-2.24"},
		{"bad radius", "lat=53.48&lng=-2.24&radius_km=far"},
		{"latitude out of range", "lat=95&lng=-2.24"},
		{"negative spacing", "lat=53.48&lng=-2.24&spacing_km=-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestServer(nil, nil), http.MethodGet, "/v1/candidates?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestUnknownMethod(t *testing.T) {
	rec := do(newTestServer(nil, nil), http.MethodGet, "/v1/search", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
