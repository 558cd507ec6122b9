// Package postcodes talks to postcodes.io for reverse postcode lookups and
// the bulk land check used by the candidate grid.
package postcodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/citysieve/internal/domain"
	"github.com/couchcryptid/citysieve/internal/observability"
	"golang.org/x/time/rate"
)

const (
	service   = "postcodes"
	userAgent = "CitySieve/1.0"

	// MaxBulkPoints is the postcodes.io limit for one bulk reverse lookup.
	MaxBulkPoints = 100

	bulkRadiusM = 1000
)

// Client implements domain.PointResolver and domain.PostcodeLookup.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a postcodes.io client. A non-positive rps disables rate
// limiting.
func NewClient(baseURL string, timeout time.Duration, rps float64, metrics *observability.Metrics, logger *slog.Logger) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		metrics:    metrics,
		logger:     logger,
	}
}

// ResolveBatch reports, for each point, whether a postcode exists within
// 1 km. Points at sea or in unmapped wilderness come back false. Inputs larger
// than MaxBulkPoints are split across several requests.
func (c *Client) ResolveBatch(ctx context.Context, points []domain.GeoPoint) ([]bool, error) {
	out := make([]bool, 0, len(points))
	for start := 0; start < len(points); start += MaxBulkPoints {
		chunk := points[start:min(start+MaxBulkPoints, len(points))]
		valid, err := c.resolveChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, valid...)
	}
	return out, nil
}

func (c *Client) resolveChunk(ctx context.Context, points []domain.GeoPoint) ([]bool, error) {
	payload := bulkRequest{Geolocations: make([]geolocation, len(points))}
	for i, p := range points {
		payload.Geolocations[i] = geolocation{Longitude: p.Lng, Latitude: p.Lat, Radius: bulkRadiusM, Limit: 1}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode bulk request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/postcodes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp bulkResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Result) != len(points) {
		return nil, fmt.Errorf("bulk lookup returned %d results for %d points", len(resp.Result), len(points))
	}

	valid := make([]bool, len(points))
	for i, r := range resp.Result {
		valid[i] = len(r.Result) > 0
	}
	return valid, nil
}

// LookupPostcode returns the outcode and ward (or district) nearest to p.
// A point with no nearby postcode yields a zero result and no error.
func (c *Client) LookupPostcode(ctx context.Context, p domain.GeoPoint) (domain.PostcodeResult, error) {
	params := url.Values{
		"lon": {strconv.FormatFloat(p.Lng, 'f', -1, 64)},
		"lat": {strconv.FormatFloat(p.Lat, 'f', -1, 64)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/postcodes?"+params.Encode(), http.NoBody)
	if err != nil {
		return domain.PostcodeResult{}, fmt.Errorf("create request: %w", err)
	}

	var resp reverseResponse
	if err := c.do(req, &resp); err != nil {
		return domain.PostcodeResult{}, err
	}
	if len(resp.Result) == 0 {
		return domain.PostcodeResult{}, nil
	}

	nearest := resp.Result[0]
	name := nearest.AdminWard
	if name == "" {
		name = nearest.AdminDistrict
	}
	return domain.PostcodeResult{Outcode: nearest.Outcode, PlaceName: name}, nil
}

func (c *Client) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.UpstreamDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(service, "error").Inc()
		return fmt.Errorf("postcodes request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.UpstreamRequests.WithLabelValues(service, "error").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("postcodes API error: status %d: %s", resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(service, "error").Inc()
		return fmt.Errorf("decode response: %w", err)
	}
	c.metrics.UpstreamRequests.WithLabelValues(service, "success").Inc()
	return nil
}

// postcodes.io request and response types.

type geolocation struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Radius    int     `json:"radius"`
	Limit     int     `json:"limit"`
}

type bulkRequest struct {
	Geolocations []geolocation `json:"geolocations"`
}

type bulkResponse struct {
	Status int          `json:"status"`
	Result []bulkResult `json:"result"`
}

type bulkResult struct {
	Query  geolocation `json:"query"`
	Result []postcode  `json:"result"`
}

type reverseResponse struct {
	Status int        `json:"status"`
	Result []postcode `json:"result"`
}

type postcode struct {
	Postcode      string `json:"postcode"`
	Outcode       string `json:"outcode"`
	AdminWard     string `json:"admin_ward"`
	AdminDistrict string `json:"admin_district"`
}
