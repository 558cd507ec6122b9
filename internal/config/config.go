package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Public Overpass mirrors, tried in order.
const defaultOverpassEndpoints = "https://overpass-api.de/api/interpreter," +
	"https://overpass.kumi.systems/api/interpreter," +
	"https://overpass.openstreetmap.fr/api/interpreter"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka search worker.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaRequestTopic  string
	KafkaResultTopic   string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Overpass amenity counts.
	OverpassEndpoints []string
	OverpassTimeout   time.Duration
	OverpassRateLimit float64

	// postcodes.io land check and outcodes.
	PostcodesBaseURL   string
	PostcodesTimeout   time.Duration
	PostcodesRateLimit float64

	// Mapbox geocoding configuration.
	MapboxToken   string
	MapboxEnabled bool
	MapboxTimeout time.Duration

	// Upstream response caches.
	CacheTTL  time.Duration
	CacheSize int

	// Search behaviour.
	SearchRadiusKm    float64
	EnrichBatchSize   int
	LandBatchSize     int
	EnrichBudget      time.Duration
	SearchConcurrency int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}
	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaRequestTopic:  sharedcfg.EnvOrDefault("KAFKA_REQUEST_TOPIC", "area-search-requests"),
		KafkaResultTopic:   sharedcfg.EnvOrDefault("KAFKA_RESULT_TOPIC", "area-search-runs"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "citysieve"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		OverpassEndpoints:  splitList(sharedcfg.EnvOrDefault("OVERPASS_ENDPOINTS", defaultOverpassEndpoints)),
		PostcodesBaseURL:   strings.TrimRight(sharedcfg.EnvOrDefault("POSTCODES_BASE_URL", "https://api.postcodes.io"), "/"),
		MapboxToken:        os.Getenv("MAPBOX_TOKEN"),
	}

	durations := []struct {
		name string
		def  string
		dst  *time.Duration
	}{
		{"OVERPASS_TIMEOUT", "15s", &cfg.OverpassTimeout},
		{"POSTCODES_TIMEOUT", "10s", &cfg.PostcodesTimeout},
		{"MAPBOX_TIMEOUT", "5s", &cfg.MapboxTimeout},
		{"CACHE_TTL", "24h", &cfg.CacheTTL},
	}
	for _, d := range durations {
		if *d.dst, err = parsePositiveDuration(d.name, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.EnrichBudget, err = time.ParseDuration(sharedcfg.EnvOrDefault("ENRICH_BUDGET", "0s")); err != nil || cfg.EnrichBudget < 0 {
		return nil, errors.New("invalid ENRICH_BUDGET")
	}

	floats := []struct {
		name string
		def  string
		dst  *float64
	}{
		{"OVERPASS_RATE_LIMIT", "2", &cfg.OverpassRateLimit},
		{"POSTCODES_RATE_LIMIT", "10", &cfg.PostcodesRateLimit},
		{"SEARCH_RADIUS_KM", "20", &cfg.SearchRadiusKm},
	}
	for _, f := range floats {
		if *f.dst, err = parsePositiveFloat(f.name, f.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		name string
		def  string
		dst  *int
	}{
		{"CACHE_SIZE", "5000", &cfg.CacheSize},
		{"ENRICH_BATCH_SIZE", "4", &cfg.EnrichBatchSize},
		{"LAND_BATCH_SIZE", "100", &cfg.LandBatchSize},
		{"SEARCH_CONCURRENCY", "2", &cfg.SearchConcurrency},
	}
	for _, i := range ints {
		if *i.dst, err = parsePositiveInt(i.name, i.def); err != nil {
			return nil, err
		}
	}

	cfg.MapboxEnabled = cfg.MapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		cfg.MapboxEnabled = v == "true"
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaRequestTopic == "" {
			return nil, errors.New("KAFKA_REQUEST_TOPIC is required")
		}
		if cfg.KafkaResultTopic == "" {
			return nil, errors.New("KAFKA_RESULT_TOPIC is required")
		}
	}
	if len(cfg.OverpassEndpoints) == 0 {
		return nil, errors.New("OVERPASS_ENDPOINTS is required")
	}
	if cfg.LandBatchSize > 100 {
		return nil, errors.New("LAND_BATCH_SIZE must not exceed 100")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parsePositiveDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parsePositiveFloat(name, def string) (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(name, def), 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return f, nil
}

func parsePositiveInt(name, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(name, def))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
