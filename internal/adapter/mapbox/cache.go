package mapbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/couchcryptid/citysieve/internal/cache"
	"github.com/couchcryptid/citysieve/internal/domain"
	"github.com/couchcryptid/citysieve/internal/observability"
)

const cacheName = "geocode"

// CachedGeocoder wraps a Geocoder with a TTL cache. Reverse lookups are keyed
// by coordinates rounded to 4 decimal places.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   cache.Store[string, domain.Place]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, store cache.Store[string, domain.Place], metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		cache:   store,
		metrics: metrics,
	}
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, query string) (domain.Place, error) {
	key := "fwd:" + strings.ToLower(strings.TrimSpace(query))
	return c.lookup(key, func() (domain.Place, error) {
		return c.inner.ForwardGeocode(ctx, query)
	})
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, p domain.GeoPoint) (domain.Place, error) {
	key := fmt.Sprintf("rev:%.4f,%.4f", p.Lat, p.Lng)
	return c.lookup(key, func() (domain.Place, error) {
		return c.inner.ReverseGeocode(ctx, p)
	})
}

func (c *CachedGeocoder) lookup(key string, fetch func() (domain.Place, error)) (domain.Place, error) {
	if place, ok := c.cache.Get(key); ok {
		c.metrics.CacheLookups.WithLabelValues(cacheName, "hit").Inc()
		return place, nil
	}
	c.metrics.CacheLookups.WithLabelValues(cacheName, "miss").Inc()

	place, err := fetch()
	if err != nil {
		return place, err
	}
	// Only cache matches so transient "not found" responses can be retried.
	if place.Found() {
		c.cache.Set(key, place)
	}
	return place, nil
}
