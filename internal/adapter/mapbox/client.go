package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/citysieve/internal/domain"
	"github.com/couchcryptid/citysieve/internal/observability"
)

const service = "mapbox"

// Client implements domain.Geocoder using the Mapbox Geocoding API,
// restricted to Great Britain.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		metrics: metrics,
		logger:  logger,
	}
}

// ForwardGeocode resolves a free-text place name such as "Didsbury" to its
// best match.
func (c *Client) ForwardGeocode(ctx context.Context, query string) (domain.Place, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"country":      {"gb"},
		"limit":        {"1"},
		"types":        {"place,district,locality,neighborhood,postcode"},
	}
	return c.doRequest(ctx, u+"?"+params.Encode(), "forward")
}

// ReverseGeocode names the most specific place containing p.
func (c *Client) ReverseGeocode(ctx context.Context, p domain.GeoPoint) (domain.Place, error) {
	// Mapbox uses lng,lat order. Reverse lookups only accept limit with a
	// single type, so the most specific feature is taken from the full list.
	coord := fmt.Sprintf("%.6f,%.6f", p.Lng, p.Lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := url.Values{
		"access_token": {c.token},
		"types":        {"neighborhood,locality,place,district"},
	}
	return c.doRequest(ctx, u+"?"+params.Encode(), "reverse")
}

func (c *Client) doRequest(ctx context.Context, fullURL, method string) (domain.Place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.Place{}, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.UpstreamDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(service, "error").Inc()
		return domain.Place{}, fmt.Errorf("%s geocode request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.UpstreamRequests.WithLabelValues(service, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Place{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(service, "error").Inc()
		return domain.Place{}, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 {
		c.metrics.UpstreamRequests.WithLabelValues(service, "empty").Inc()
		c.logger.Debug("mapbox returned no features", "method", method)
		return domain.Place{}, nil
	}
	c.metrics.UpstreamRequests.WithLabelValues(service, "success").Inc()

	f := mapboxResp.Features[0]
	place := domain.Place{
		Name:      f.Text,
		FullName:  f.PlaceName,
		Relevance: f.Relevance,
	}
	if len(f.PlaceType) > 0 {
		place.PlaceType = f.PlaceType[0]
	}
	if len(f.Center) == 2 {
		place.Coordinates = domain.GeoPoint{Lat: f.Center[1], Lng: f.Center[0]}
	}
	return place, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lng, lat]
	PlaceName string    `json:"place_name"`
	PlaceType []string  `json:"place_type"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
