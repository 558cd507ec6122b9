// Package overpass counts OpenStreetMap amenities around a point using the
// Overpass API.
package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/citysieve/internal/domain"
	"github.com/couchcryptid/citysieve/internal/observability"
	"golang.org/x/time/rate"
)

const (
	service   = "overpass"
	userAgent = "CitySieve/1.0"
)

// Client implements domain.AmenityCounter. Endpoints are tried in order until
// one answers; the pause before each fallback grows with its position.
type Client struct {
	endpoints  []string
	httpClient *http.Client
	limiter    *rate.Limiter
	retryPause time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit caps outbound requests per second across all endpoints.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetryPause sets the base pause before falling back to the next endpoint.
func WithRetryPause(d time.Duration) Option {
	return func(c *Client) {
		c.retryPause = d
	}
}

// NewClient creates an Overpass client.
func NewClient(endpoints []string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		retryPause: time.Second,
		metrics:    metrics,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CountAmenities counts categorized OSM nodes within radiusM metres of p.
func (c *Client) CountAmenities(ctx context.Context, p domain.GeoPoint, radiusM int) (domain.AmenityCounts, error) {
	body := url.Values{"data": {buildQuery(p, radiusM)}}.Encode()

	var errs []error
	for i, endpoint := range c.endpoints {
		if i > 0 {
			if err := sleep(ctx, c.retryPause*time.Duration(i)); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		counts, err := c.post(ctx, endpoint, body)
		if err == nil {
			return counts, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("overpass endpoint failed", "endpoint", endpoint, "error", err)
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("all overpass endpoints failed: %w", errors.Join(errs...))
}

func (c *Client) post(ctx context.Context, endpoint, body string) (domain.AmenityCounts, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.UpstreamDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(service, "error").Inc()
		return nil, fmt.Errorf("overpass request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.UpstreamRequests.WithLabelValues(service, "error").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("overpass API error: status %d: %s", resp.StatusCode, msg)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(service, "error").Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}
	c.metrics.UpstreamRequests.WithLabelValues(service, "success").Inc()
	return Categorize(out.Elements), nil
}

func buildQuery(p domain.GeoPoint, radiusM int) string {
	around := fmt.Sprintf("(around:%d,%.6f,%.6f)", radiusM, p.Lat, p.Lng)
	var b strings.Builder
	b.WriteString("[out:json][timeout:30];\n(\n")
	for _, sel := range selectors {
		fmt.Fprintf(&b, "  node%s%s;\n", sel, around)
	}
	b.WriteString(");\nout tags;")
	return b.String()
}

var selectors = []string{
	`["shop"]`,
	`["amenity"~"^(pub|bar|restaurant|cafe|pharmacy|hospital|doctors|library|theatre|cinema|school|kindergarten)$"]`,
	`["leisure"~"^(park|garden|fitness_centre|sports_centre)$"]`,
	`["railway"~"^(station|halt)$"]`,
	`["highway"="bus_stop"]`,
}

// Categorize tallies elements into amenity categories. One element may count
// towards several categories; every shop is also a high street shop.
func Categorize(elements []Element) domain.AmenityCounts {
	counts := make(domain.AmenityCounts, len(domain.AmenityCategories))
	for _, cat := range domain.AmenityCategories {
		counts[cat] = 0
	}

	for _, el := range elements {
		tags := el.Tags
		shop, amenity, leisure := tags["shop"], tags["amenity"], tags["leisure"]

		if shop == "supermarket" || shop == "convenience" {
			counts[domain.AmenitySupermarkets]++
		}
		if shop != "" {
			counts[domain.AmenityHighStreet]++
		}
		switch amenity {
		case "pub", "bar":
			counts[domain.AmenityPubsBars]++
		case "restaurant", "cafe":
			counts[domain.AmenityRestaurantsCafes]++
		case "pharmacy", "hospital", "doctors":
			counts[domain.AmenityHealthcare]++
		case "library", "theatre", "cinema":
			counts[domain.AmenityLibrariesCulture]++
		case "school", "kindergarten":
			counts[domain.AmenitySchools]++
		}
		switch leisure {
		case "park", "garden":
			counts[domain.AmenityParksGreenSpaces]++
		case "fitness_centre", "sports_centre":
			counts[domain.AmenityGymsLeisure]++
		}
		if r := tags["railway"]; r == "station" || r == "halt" {
			counts[domain.AmenityTrainStation]++
		}
		if tags["highway"] == "bus_stop" {
			counts[domain.AmenityBusStop]++
		}
	}
	return counts
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Overpass API response types.

type response struct {
	Elements []Element `json:"elements"`
}

// Element is an OSM node returned by Overpass.
type Element struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  float64           `json:"lat,omitempty"`
	Lon  float64           `json:"lon,omitempty"`
	Tags map[string]string `json:"tags,omitempty"`
}
