package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "citysieve"

// Metrics holds the Prometheus counters, histograms, and gauges for searches,
// upstream lookups, and the Kafka search worker.
type Metrics struct {
	// Search runs.
	SearchRuns           *prometheus.CounterVec // labels: outcome={success,empty,partial,error}
	SearchDuration       prometheus.Histogram
	CandidatesGenerated  prometheus.Counter
	CandidatesDiscarded  prometheus.Counter
	CandidatesUnverified prometheus.Counter
	GridDensifications   prometheus.Counter
	EnrichmentFailures   prometheus.Counter

	// Upstream API metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: service={overpass,postcodes,mapbox}, outcome={success,error,empty}
	UpstreamDuration *prometheus.HistogramVec // labels: service
	CacheLookups     *prometheus.CounterVec   // labels: cache={amenities,postcodes,geocode}, result={hit,miss}

	// Worker metrics.
	MessagesConsumed        prometheus.Counter
	MessagesProduced        prometheus.Counter
	TransformErrors         prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.SearchRuns,
		m.SearchDuration,
		m.CandidatesGenerated,
		m.CandidatesDiscarded,
		m.CandidatesUnverified,
		m.GridDensifications,
		m.EnrichmentFailures,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.CacheLookups,
		m.MessagesConsumed,
		m.MessagesProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	counter := func(name, h string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help(h)})
	}

	return &Metrics{
		SearchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_runs_total",
			Help:      help("Completed neighbourhood searches by outcome."),
		}, []string{"outcome"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      help("Duration of a full search run, from grid generation to ranking."),
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		}),
		CandidatesGenerated:  counter("candidates_generated_total", "Grid points generated before the land check."),
		CandidatesDiscarded:  counter("candidates_discarded_total", "Grid points dropped by the land check."),
		CandidatesUnverified: counter("candidates_unverified_total", "Grid points kept because their land check failed."),
		GridDensifications:   counter("grid_densifications_total", "Searches that regenerated the grid at a denser spacing."),
		EnrichmentFailures:   counter("enrichment_failures_total", "Candidates dropped because amenity enrichment failed."),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      help("Upstream API requests by service and outcome."),
		}, []string{"service", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      help("Upstream API request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"service"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      help("Upstream response cache lookups by cache and result."),
		}, []string{"cache", "result"}),
		MessagesConsumed: counter("messages_consumed_total", "Total search requests read from the request topic."),
		MessagesProduced: counter("messages_produced_total", "Total search runs written to the result topic."),
		TransformErrors:  counter("transform_errors_total", "Total search requests that could not be processed."),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 when the search worker is active, 0 when shut down."),
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      help("Number of search requests per batch extracted from Kafka."),
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      help("Duration of a complete extract-search-publish cycle."),
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
	}
}
