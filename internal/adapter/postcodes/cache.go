package postcodes

import (
	"context"
	"fmt"

	"github.com/couchcryptid/citysieve/internal/cache"
	"github.com/couchcryptid/citysieve/internal/domain"
	"github.com/couchcryptid/citysieve/internal/observability"
)

const cacheName = "postcodes"

// CachedLookup wraps a PostcodeLookup with a TTL cache keyed by coordinates
// rounded to four decimal places. Empty results are not cached.
type CachedLookup struct {
	inner   domain.PostcodeLookup
	cache   cache.Store[string, domain.PostcodeResult]
	metrics *observability.Metrics
}

// NewCachedLookup creates a cache decorator around a postcode lookup.
func NewCachedLookup(inner domain.PostcodeLookup, store cache.Store[string, domain.PostcodeResult], metrics *observability.Metrics) *CachedLookup {
	return &CachedLookup{inner: inner, cache: store, metrics: metrics}
}

func (c *CachedLookup) LookupPostcode(ctx context.Context, p domain.GeoPoint) (domain.PostcodeResult, error) {
	key := fmt.Sprintf("%.4f,%.4f", p.Lat, p.Lng)
	if res, ok := c.cache.Get(key); ok {
		c.metrics.CacheLookups.WithLabelValues(cacheName, "hit").Inc()
		return res, nil
	}
	c.metrics.CacheLookups.WithLabelValues(cacheName, "miss").Inc()

	res, err := c.inner.LookupPostcode(ctx, p)
	if err != nil {
		return domain.PostcodeResult{}, err
	}
	if res.Outcode != "" {
		c.cache.Set(key, res)
	}
	return res, nil
}
