package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
)

const (
	keyPrefix      = "conditions:"
	staleKeyPrefix = "conditions-stale:"

	// memcached treats expirations above 30 days as absolute unix times
	maxRelativeExp = 30 * 24 * 60 * 60
)

// MemcachedCache stores Conditions as JSON in memcached. Each Set writes a fresh copy with the
// TTL and a stale copy kept for the stale retention period.
type MemcachedCache struct {
	client         *memcache.Client
	staleRetention time.Duration
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated server list;
// timeout and maxIdleConns use the client defaults when zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, staleRetention time.Duration) *MemcachedCache {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, staleRetention: staleRetention}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Get implements Cache.Get. A miss is (false, nil).
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.Conditions, bool, error) {
	return c.load(ctx, keyPrefix+key)
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.Conditions, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(&memcache.Item{Key: keyPrefix + key, Value: raw, Expiration: expirationSeconds(ttl)}); err != nil {
		return err
	}
	if c.staleRetention <= 0 {
		return nil
	}
	return c.client.Set(&memcache.Item{
		Key:        staleKeyPrefix + key,
		Value:      raw,
		Expiration: expirationSeconds(ttl + c.staleRetention),
	})
}

// GetStale implements Cache.GetStale using the stale copy and the FetchedAt timestamp.
func (c *MemcachedCache) GetStale(ctx context.Context, key string, maxAge time.Duration) (models.Conditions, bool, error) {
	v, ok, err := c.load(ctx, staleKeyPrefix+key)
	if err != nil || !ok {
		return models.Conditions{}, false, err
	}
	if time.Since(v.FetchedAt) > maxAge {
		return models.Conditions{}, false, nil
	}
	return v, true, nil
}

func (c *MemcachedCache) load(ctx context.Context, key string) (models.Conditions, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Conditions{}, false, err
	}
	item, err := c.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.Conditions{}, false, nil
		}
		return models.Conditions{}, false, err
	}
	var v models.Conditions
	if err := json.Unmarshal(item.Value, &v); err != nil {
		return models.Conditions{}, false, err
	}
	return v, true, nil
}

func expirationSeconds(d time.Duration) int32 {
	sec := int32(d.Seconds())
	if sec <= 0 || sec > maxRelativeExp {
		return 3600
	}
	return sec
}

// Ping checks that memcached is reachable. Used by /health.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close releases idle connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
