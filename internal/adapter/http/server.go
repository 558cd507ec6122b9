package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/citysieve/internal/adapter/geoexport"
	"github.com/couchcryptid/citysieve/internal/domain"
	"github.com/couchcryptid/citysieve/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// Server exposes the search API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	searcher   pipeline.Searching
	logger     *slog.Logger
}

// NewServer creates an HTTP server. Searches can take a while, so the write
// timeout is generous.
func NewServer(addr string, ready sharedobs.ReadinessChecker, searcher pipeline.Searching, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		searcher: searcher,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/search", s.handleSearch)
	mux.HandleFunc("POST /v1/quick-search", s.handleQuickSearch)
	mux.HandleFunc("POST /v1/score", s.handleScore)
	mux.HandleFunc("GET /v1/candidates", s.handleCandidates)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req pipeline.SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.runSearch(w, r, req)
}

type quickSearchRequest struct {
	ID            string                    `json:"id,omitempty"`
	Answers       domain.QuickSurveyAnswers `json:"answers"`
	RadiusKm      float64                   `json:"radiusKm,omitempty"`
	InnerRadiusKm float64                   `json:"innerRadiusKm,omitempty"`
}

func (s *Server) handleQuickSearch(w http.ResponseWriter, r *http.Request) {
	var req quickSearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.runSearch(w, r, pipeline.SearchRequest{
		ID:            req.ID,
		Mode:          pipeline.ModeQuick,
		Preferences:   domain.BuildQuickProfile(req.Answers),
		RadiusKm:      req.RadiusKm,
		InnerRadiusKm: req.InnerRadiusKm,
	})
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, req pipeline.SearchRequest) {
	res, err := s.searcher.Search(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type scoreRequest struct {
	Areas       []domain.AreaProfile         `json:"areas"`
	Preferences domain.UserPreferenceProfile `json:"preferences"`
}

// handleScore rescores already enriched profiles without any upstream calls.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	prefs := req.Preferences.WithDefaults()
	if err := prefs.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Score(req.Areas, prefs))
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := parseFloat(q.Get("lat"), 0, "lat")
	lng, err2 := parseFloat(q.Get("lng"), 0, "lng")
	radius, err3 := parseFloat(q.Get("radius_km"), pipeline.DefaultRadiusKm, "radius_km")
	spacing, err4 := parseFloat(q.Get("spacing_km"), domain.DefaultDensityPolicy().StandardSpacingKm, "spacing_km")
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if !q.Has("lat") || !q.Has("lng") {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "lat and lng are required"})
		return
	}

	centre := domain.GeoPoint{Lat: lat, Lng: lng}
	if err := centre.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	candidates, err := domain.GenerateCandidateAreas(centre, radius, spacing)
	if err != nil {
		s.writeError(w, err)
		return
	}

	data, err := geoexport.Marshal(geoexport.Candidates(candidates))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // client went away
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps validation failures to 400 and everything else to 502,
// since the remaining failures come from upstream lookups.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPreferences),
		errors.Is(err, domain.ErrInvalidGeometry),
		errors.Is(err, pipeline.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("request abandoned", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "request cancelled"})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func parseFloat(raw string, def float64, name string) (float64, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
