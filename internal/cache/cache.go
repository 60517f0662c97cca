package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
)

// Cache stores Conditions per location key.
// Get returns only fresh entries; GetStale returns an entry whose data is at most maxAge old
// even after its TTL has elapsed, for use when the upstream is failing.
type Cache interface {
	Get(ctx context.Context, key string) (models.Conditions, bool, error)
	Set(ctx context.Context, key string, value models.Conditions, ttl time.Duration) error
	GetStale(ctx context.Context, key string, maxAge time.Duration) (models.Conditions, bool, error)
}

// Key returns the cache key for a location. Coordinates are rounded to two decimals
// (about 1 km), which is finer than the provider's grid.
func Key(loc models.Location) string {
	return fmt.Sprintf("%.2f,%.2f", loc.Latitude, loc.Longitude)
}

// InMemoryCache is a mutex-guarded map. Entries outlive their TTL for the retention period
// so they can be served stale; older entries are pruned on Set.
type InMemoryCache struct {
	mu        sync.Mutex
	data      map[string]cacheEntry
	retention time.Duration
	now       func() time.Time
}

type cacheEntry struct {
	value     models.Conditions
	expiresAt time.Time
	storedAt  time.Time
}

// NewInMemoryCache creates an in-memory cache that keeps expired entries for retention.
func NewInMemoryCache(retention time.Duration) *InMemoryCache {
	return &InMemoryCache{
		data:      make(map[string]cacheEntry),
		retention: retention,
		now:       time.Now,
	}
}

// Get returns the entry for key when present and unexpired.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Conditions, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok || !c.now().Before(entry.expiresAt) {
		return models.Conditions{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key until ttl elapses.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.Conditions, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.data[key] = cacheEntry{value: value, expiresAt: now.Add(ttl), storedAt: now}
	c.pruneLocked(now)
	return nil
}

// GetStale returns the entry for key if it was stored no more than maxAge ago.
func (c *InMemoryCache) GetStale(ctx context.Context, key string, maxAge time.Duration) (models.Conditions, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok || c.now().Sub(entry.storedAt) > maxAge {
		return models.Conditions{}, false, nil
	}
	return entry.value, true, nil
}

// Len returns the number of retained entries.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *InMemoryCache) pruneLocked(now time.Time) {
	for k, e := range c.data {
		if now.After(e.expiresAt.Add(c.retention)) {
			delete(c.data, k)
		}
	}
}
