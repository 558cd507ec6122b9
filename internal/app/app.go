// Package app assembles the search stack shared by the service and the CLI.
package app

import (
	"log/slog"

	"github.com/couchcryptid/citysieve/internal/adapter/mapbox"
	"github.com/couchcryptid/citysieve/internal/adapter/overpass"
	"github.com/couchcryptid/citysieve/internal/adapter/postcodes"
	"github.com/couchcryptid/citysieve/internal/cache"
	"github.com/couchcryptid/citysieve/internal/config"
	"github.com/couchcryptid/citysieve/internal/domain"
	"github.com/couchcryptid/citysieve/internal/observability"
	"github.com/couchcryptid/citysieve/internal/pipeline"
)

// Stack holds the cached upstream clients a Searcher needs.
type Stack struct {
	Resolver  domain.PointResolver
	Counter   domain.AmenityCounter
	Postcodes domain.PostcodeLookup
	Geocoder  domain.Geocoder // nil when Mapbox is disabled
}

// NewStack builds the upstream clients described by cfg, each behind its own
// TTL cache.
func NewStack(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) Stack {
	pc := postcodes.NewClient(cfg.PostcodesBaseURL, cfg.PostcodesTimeout, cfg.PostcodesRateLimit, metrics, logger)
	op := overpass.NewClient(cfg.OverpassEndpoints, cfg.OverpassTimeout, metrics, logger,
		overpass.WithRateLimit(cfg.OverpassRateLimit))

	s := Stack{
		Resolver:  pc,
		Counter:   overpass.NewCachedCounter(op, cache.New[string, domain.AmenityCounts](cfg.CacheTTL, cfg.CacheSize, nil), metrics),
		Postcodes: postcodes.NewCachedLookup(pc, cache.New[string, domain.PostcodeResult](cfg.CacheTTL, cfg.CacheSize, nil), metrics),
	}

	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		s.Geocoder = mapbox.NewCachedGeocoder(client, cache.New[string, domain.Place](cfg.CacheTTL, cfg.CacheSize, nil), metrics)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.CacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}
	return s
}

// Searcher creates a Searcher over the stack. The geocoder option is added
// when the stack has one.
func (s Stack) Searcher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, opts ...pipeline.SearcherOption) *pipeline.Searcher {
	if s.Geocoder != nil {
		opts = append([]pipeline.SearcherOption{pipeline.WithGeocoder(s.Geocoder)}, opts...)
	}
	return pipeline.NewSearcher(s.Resolver, s.Counter, s.Postcodes, SearcherConfig(cfg), logger, metrics, opts...)
}

// SearcherConfig maps service configuration onto search tunables.
func SearcherConfig(cfg *config.Config) pipeline.SearcherConfig {
	policy := domain.DefaultDensityPolicy()
	policy.BatchSize = cfg.LandBatchSize
	return pipeline.SearcherConfig{
		RadiusKm:        cfg.SearchRadiusKm,
		EnrichBatchSize: cfg.EnrichBatchSize,
		EnrichBudget:    cfg.EnrichBudget,
		Density:         policy,
	}
}
