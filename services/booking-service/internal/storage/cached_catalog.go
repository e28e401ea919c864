package storage

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/apptbook/platform/services/booking-service/internal/availability"
	"github.com/apptbook/platform/services/booking-service/internal/model"
)

// CachedCatalog memoizes catalog reads for a short TTL. Slot listings read the
// same provider, organization and service rows on every request; those rows
// change rarely. Errors are never cached.
type CachedCatalog struct {
	next  availability.Catalog
	cache *cache.Cache
}

func NewCachedCatalog(next availability.Catalog, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedCatalog{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedCatalog) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	return cached(c, "provider:"+id, func() (model.Provider, error) { return c.next.GetProvider(ctx, id) })
}

func (c *CachedCatalog) GetOrganization(ctx context.Context, id string) (model.Organization, error) {
	return cached(c, "organization:"+id, func() (model.Organization, error) { return c.next.GetOrganization(ctx, id) })
}

func (c *CachedCatalog) GetService(ctx context.Context, id string) (model.Service, error) {
	return cached(c, "service:"+id, func() (model.Service, error) { return c.next.GetService(ctx, id) })
}

func (c *CachedCatalog) ListProvidersByOrganization(ctx context.Context, organizationID, serviceID string) ([]model.Provider, error) {
	return cached(c, "org-providers:"+organizationID+":"+serviceID, func() ([]model.Provider, error) {
		return c.next.ListProvidersByOrganization(ctx, organizationID, serviceID)
	})
}

// Flush drops every cached entry.
func (c *CachedCatalog) Flush() {
	c.cache.Flush()
}

func cached[T any](c *CachedCatalog, key string, load func() (T, error)) (T, error) {
	if v, found := c.cache.Get(key); found {
		return v.(T), nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.cache.Set(key, v, cache.DefaultExpiration)
	return v, nil
}
