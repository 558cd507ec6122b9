package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/citysieve/internal/domain"
	"github.com/couchcryptid/citysieve/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// DefaultAnchor centres searches whose preferences carry no work or family
// location (central Manchester).
var DefaultAnchor = domain.GeoPoint{Lat: 53.48, Lng: -2.24}

const (
	DefaultRadiusKm        = 20.0
	DefaultEnrichBatchSize = 4

	consideringRadiusKm  = 5.0
	consideringSpacingKm = 2.0
)

// Survey modes recorded on search runs.
const (
	ModeFull  = "full"
	ModeQuick = "quick"
)

// ErrInvalidRequest marks a search request rejected before any lookup ran.
var ErrInvalidRequest = errors.New("invalid search request")

// SearchRequest asks for the best areas for one set of preferences.
// InnerRadiusKm > 0 searches only the ring beyond it ("search more").
type SearchRequest struct {
	ID            string                       `json:"id,omitempty"`
	Mode          string                       `json:"mode,omitempty"`
	Preferences   domain.UserPreferenceProfile `json:"preferences"`
	RadiusKm      float64                      `json:"radiusKm,omitempty"`
	InnerRadiusKm float64                      `json:"innerRadiusKm,omitempty"`
}

// SearchResult is the outcome of a search run.
type SearchResult struct {
	RunID           string                         `json:"runId"`
	Mode            string                         `json:"mode"`
	Preferences     domain.UserPreferenceProfile   `json:"preferences"`
	Centre          domain.GeoPoint                `json:"centre"`
	RadiusKm        float64                        `json:"radiusKm"`
	InnerRadiusKm   float64                        `json:"innerRadiusKm,omitempty"`
	SpacingKm       float64                        `json:"spacingKm"`
	Densified       bool                           `json:"densified,omitempty"`
	TotalCandidates int                            `json:"totalCandidates"`
	Enriched        int                            `json:"enriched"`
	Discarded       int                            `json:"discarded"`
	Unverified      int                            `json:"unverified"`
	Top             []domain.ScoredArea            `json:"top"`
	Rejected        []domain.RejectedArea          `json:"rejected"`
	PassedButNotTop []domain.ScoredArea            `json:"passedButNotTop"`
	Statuses        map[string]domain.FilterStatus `json:"statuses"`
	Partial         bool                           `json:"partial,omitempty"`
	StartedAt       time.Time                      `json:"startedAt"`
	CompletedAt     time.Time                      `json:"completedAt"`
}

// EventPublisher receives a summary of every completed search run.
type EventPublisher interface {
	PublishSearchRun(ctx context.Context, event SearchRunEvent) error
}

// SearcherConfig holds the tunables of a Searcher. Zero values take defaults.
type SearcherConfig struct {
	RadiusKm        float64
	EnrichBatchSize int
	// EnrichBudget bounds the time spent enriching. Once spent, the remaining
	// candidates are skipped and the result is marked partial. Zero means no
	// limit.
	EnrichBudget time.Duration
	Density      domain.DensityPolicy
}

func (c SearcherConfig) withDefaults() SearcherConfig {
	if c.RadiusKm <= 0 {
		c.RadiusKm = DefaultRadiusKm
	}
	if c.EnrichBatchSize <= 0 {
		c.EnrichBatchSize = DefaultEnrichBatchSize
	}
	if c.Density == (domain.DensityPolicy{}) {
		c.Density = domain.DefaultDensityPolicy()
	}
	return c
}

// SearcherOption configures optional Searcher collaborators.
type SearcherOption func(*Searcher)

// WithGeocoder enables considering-area lookups and place naming of the top
// results.
func WithGeocoder(g domain.Geocoder) SearcherOption {
	return func(s *Searcher) { s.geocoder = g }
}

// WithPublisher publishes a SearchRunEvent after every successful run.
func WithPublisher(p EventPublisher) SearcherOption {
	return func(s *Searcher) { s.publisher = p }
}

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) SearcherOption {
	return func(s *Searcher) { s.clock = c }
}

// Searcher runs the full search: grid generation, land check, enrichment,
// filtering, scoring and naming.
type Searcher struct {
	resolver  domain.PointResolver
	counter   domain.AmenityCounter
	postcodes domain.PostcodeLookup
	geocoder  domain.Geocoder
	publisher EventPublisher
	cfg       SearcherConfig
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewSearcher creates a Searcher.
func NewSearcher(resolver domain.PointResolver, counter domain.AmenityCounter, postcodes domain.PostcodeLookup, cfg SearcherConfig, logger *slog.Logger, metrics *observability.Metrics, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		resolver:  resolver,
		counter:   counter,
		postcodes: postcodes,
		cfg:       cfg.withDefaults(),
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs one search. Validation failures wrap ErrInvalidRequest,
// domain.ErrInvalidPreferences or domain.ErrInvalidGeometry.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	start := s.clock.Now()
	res, err := s.search(ctx, req, start)
	s.metrics.SearchDuration.Observe(s.clock.Since(start).Seconds())
	if err != nil {
		s.metrics.SearchRuns.WithLabelValues("error").Inc()
		return SearchResult{}, err
	}

	outcome := "success"
	switch {
	case res.Partial:
		outcome = "partial"
	case len(res.Top) == 0:
		outcome = "empty"
	}
	s.metrics.SearchRuns.WithLabelValues(outcome).Inc()

	s.logger.Info("search complete",
		"run_id", res.RunID,
		"candidates", res.TotalCandidates,
		"enriched", res.Enriched,
		"top", len(res.Top),
		"rejected", len(res.Rejected),
		"partial", res.Partial,
		"duration", res.CompletedAt.Sub(res.StartedAt),
	)

	if s.publisher != nil {
		if err := s.publisher.PublishSearchRun(ctx, NewSearchRunEvent(res)); err != nil {
			s.logger.Warn("publish search run failed", "run_id", res.RunID, "error", err)
		}
	}
	return res, nil
}

func (s *Searcher) search(ctx context.Context, req SearchRequest, start time.Time) (SearchResult, error) {
	prefs := req.Preferences.WithDefaults()
	if err := prefs.Validate(); err != nil {
		return SearchResult{}, err
	}

	radius := req.RadiusKm
	if radius == 0 {
		radius = s.cfg.RadiusKm
	}
	if radius < 0 || req.InnerRadiusKm < 0 {
		return SearchResult{}, fmt.Errorf("%w: radius must not be negative", ErrInvalidRequest)
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeFull
	}
	if mode != ModeFull && mode != ModeQuick {
		return SearchResult{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, mode)
	}
	runID := req.ID
	if runID == "" {
		runID = uuid.NewString()
	}

	centre := prefs.Anchor(DefaultAnchor)
	logger := s.logger.With("run_id", runID)

	set, err := s.candidates(ctx, centre, radius, req.InnerRadiusKm, logger)
	if err != nil {
		return SearchResult{}, err
	}
	candidates := set.Candidates
	if req.InnerRadiusKm == 0 {
		extra, err := s.consideringAreas(ctx, prefs.Environment.ConsideringAreas, logger)
		if err != nil {
			return SearchResult{}, err
		}
		candidates = domain.MergeCandidates(candidates, extra)
	}

	s.metrics.CandidatesGenerated.Add(float64(set.RawCount))
	s.metrics.CandidatesDiscarded.Add(float64(set.Discarded))
	s.metrics.CandidatesUnverified.Add(float64(set.Unverified))
	if set.Densified {
		s.metrics.GridDensifications.Inc()
	}

	profiles, partial, err := s.enrich(ctx, centre, candidates, prefs, start, logger)
	if err != nil {
		return SearchResult{}, err
	}

	scoring := domain.Score(profiles, prefs)
	s.nameTopResults(ctx, centre, scoring.Top, logger)

	statuses := make(map[string]domain.FilterStatus, len(candidates))
	for _, c := range candidates {
		statuses[c.ID] = domain.StatusPending
	}
	for _, p := range profiles {
		statuses[p.ID] = domain.GetFilterStatus(p, prefs)
	}

	return SearchResult{
		RunID:           runID,
		Mode:            mode,
		Preferences:     prefs,
		Centre:          centre,
		RadiusKm:        radius,
		InnerRadiusKm:   req.InnerRadiusKm,
		SpacingKm:       set.SpacingKm,
		Densified:       set.Densified,
		TotalCandidates: len(candidates),
		Enriched:        len(profiles),
		Discarded:       set.Discarded,
		Unverified:      set.Unverified,
		Top:             scoring.Top,
		Rejected:        scoring.Rejected,
		PassedButNotTop: scoring.PassedButNotTop,
		Statuses:        statuses,
		Partial:         partial,
		StartedAt:       start,
		CompletedAt:     s.clock.Now(),
	}, nil
}

func (s *Searcher) candidates(ctx context.Context, centre domain.GeoPoint, radius, inner float64, logger *slog.Logger) (domain.CandidateSet, error) {
	if inner > 0 {
		return domain.GenerateValidRing(ctx, centre, inner, radius, s.resolver, s.cfg.Density, logger)
	}
	return domain.GenerateValidCandidates(ctx, centre, radius, s.resolver, s.cfg.Density, logger)
}

// consideringAreas builds a small land-checked grid around each named area
// the user is considering. Names that cannot be geocoded are skipped.
func (s *Searcher) consideringAreas(ctx context.Context, names []string, logger *slog.Logger) ([]domain.CandidateArea, error) {
	var out []domain.CandidateArea
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if s.geocoder == nil {
			logger.Debug("no geocoder configured, skipping considering area", "area", name)
			continue
		}

		place, err := s.geocoder.ForwardGeocode(ctx, name)
		if err != nil || !place.Found() {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("considering area not found", "area", name, "error", err)
			continue
		}

		grid, err := domain.GenerateCandidateAreas(place.Coordinates, consideringRadiusKm, consideringSpacingKm)
		if err != nil {
			logger.Warn("considering area grid failed", "area", name, "error", err)
			continue
		}
		res, err := domain.FilterValidCandidates(ctx, grid, s.resolver, s.cfg.Density.BatchSize, logger)
		if err != nil {
			return nil, fmt.Errorf("land check for %q: %w", name, err)
		}
		out = domain.MergeCandidates(out, res.Valid)
	}
	return out, nil
}

// enrich builds a profile for each candidate in batches. Candidates whose
// amenity lookup fails are dropped. Once the enrichment budget is spent the
// remaining batches are skipped and partial is true.
func (s *Searcher) enrich(ctx context.Context, anchor domain.GeoPoint, candidates []domain.CandidateArea, prefs domain.UserPreferenceProfile, start time.Time, logger *slog.Logger) (profiles []domain.AreaProfile, partial bool, err error) {
	profiles = make([]domain.AreaProfile, 0, len(candidates))
	batchSize := s.cfg.EnrichBatchSize

	for i := 0; i < len(candidates); i += batchSize {
		if s.cfg.EnrichBudget > 0 && s.clock.Since(start) >= s.cfg.EnrichBudget {
			logger.Warn("enrichment budget spent, scoring partial set",
				"enriched", len(profiles),
				"skipped", len(candidates)-i,
			)
			return profiles, true, nil
		}

		batch := candidates[i:min(i+batchSize, len(candidates))]
		results := make([]*domain.AreaProfile, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for j, c := range batch {
			g.Go(func() error {
				p, err := s.enrichOne(gctx, anchor, c, prefs, logger)
				if err != nil {
					if gctx.Err() == nil {
						logger.Warn("enrichment failed, dropping candidate", "candidate_id", c.ID, "error", err)
						s.metrics.EnrichmentFailures.Inc()
					}
					return nil
				}
				results[j] = &p
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		for _, p := range results {
			if p != nil {
				profiles = append(profiles, *p)
			}
		}
	}
	return profiles, false, nil
}

// enrichOne fetches amenities and postcode for one candidate concurrently.
// A failed postcode lookup only degrades the display name.
func (s *Searcher) enrichOne(ctx context.Context, anchor domain.GeoPoint, c domain.CandidateArea, prefs domain.UserPreferenceProfile, logger *slog.Logger) (domain.AreaProfile, error) {
	var (
		counts   domain.AmenityCounts
		postcode domain.PostcodeResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = s.counter.CountAmenities(gctx, c.Coordinates, domain.AmenitySearchRadiusM)
		if err != nil {
			return fmt.Errorf("count amenities: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		res, err := s.postcodes.LookupPostcode(gctx, c.Coordinates)
		if err != nil {
			logger.Debug("postcode lookup failed", "candidate_id", c.ID, "error", err)
			return nil
		}
		postcode = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.AreaProfile{}, err
	}

	return domain.BuildAreaProfile(c, anchor, counts, postcode, prefs), nil
}

// nameTopResults replaces the postcode-derived names of the top results with
// geocoded place names. Lookup failures keep the existing name.
func (s *Searcher) nameTopResults(ctx context.Context, centre domain.GeoPoint, top []domain.ScoredArea, logger *slog.Logger) {
	if s.geocoder == nil || len(top) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EnrichBatchSize)
	for i := range top {
		g.Go(func() error {
			area := &top[i].Area
			place, err := s.geocoder.ReverseGeocode(gctx, area.Coordinates)
			if err != nil {
				logger.Debug("reverse geocode failed", "candidate_id", area.ID, "error", err)
				return nil
			}
			if label := domain.PlaceLabel(centre, area.Coordinates, place); label != "" {
				area.Name = label
			}
			return nil
		})
	}
	_ = g.Wait()
}
