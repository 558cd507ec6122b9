package overpass

import (
	"context"
	"fmt"
	"math"

	"github.com/couchcryptid/citysieve/internal/cache"
	"github.com/couchcryptid/citysieve/internal/domain"
	"github.com/couchcryptid/citysieve/internal/observability"
)

const cacheName = "amenities"

// CachedCounter wraps an AmenityCounter with a TTL cache keyed by
// coordinates snapped to a 0.005° grid (about 500 m).
type CachedCounter struct {
	inner   domain.AmenityCounter
	cache   cache.Store[string, domain.AmenityCounts]
	metrics *observability.Metrics
}

// NewCachedCounter creates a cache decorator around an amenity counter.
func NewCachedCounter(inner domain.AmenityCounter, store cache.Store[string, domain.AmenityCounts], metrics *observability.Metrics) *CachedCounter {
	return &CachedCounter{inner: inner, cache: store, metrics: metrics}
}

func (c *CachedCounter) CountAmenities(ctx context.Context, p domain.GeoPoint, radiusM int) (domain.AmenityCounts, error) {
	key := fmt.Sprintf("%s:%s:%d", snap(p.Lat), snap(p.Lng), radiusM)
	if counts, ok := c.cache.Get(key); ok {
		c.metrics.CacheLookups.WithLabelValues(cacheName, "hit").Inc()
		return copyCounts(counts), nil
	}
	c.metrics.CacheLookups.WithLabelValues(cacheName, "miss").Inc()

	counts, err := c.inner.CountAmenities(ctx, p, radiusM)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, copyCounts(counts))
	return counts, nil
}

func snap(v float64) string {
	return fmt.Sprintf("%.3f", math.Round(v*200)/200)
}

func copyCounts(in domain.AmenityCounts) domain.AmenityCounts {
	out := make(domain.AmenityCounts, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
