//go:build integration
// +build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
)

func TestMemcachedCache_Integration(t *testing.T) {
	addrs := os.Getenv("MEMCACHED_ADDRS")
	if addrs == "" {
		t.Skip("MEMCACHED_ADDRS not set, skipping integration test")
	}
	c := NewMemcachedCache(addrs, time.Second, 2, time.Hour)
	defer c.Close()
	if err := c.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	ctx := context.Background()
	key := "integration-" + time.Now().Format("150405.000")
	val := models.Conditions{FetchedAt: time.Now().UTC(), Forecast: models.Forecast{Current: models.CurrentWeather{TemperatureC: 9.5}}}
	if err := c.Set(ctx, key, val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get() = (%v, %v), want hit", ok, err)
	}
	if got.Forecast.Current.TemperatureC != 9.5 {
		t.Errorf("Get() temperature = %v", got.Forecast.Current.TemperatureC)
	}
	if _, ok, err := c.GetStale(ctx, key, time.Hour); err != nil || !ok {
		t.Errorf("GetStale() = (%v, %v), want hit", ok, err)
	}
	if _, ok, _ := c.Get(ctx, "missing-"+key); ok {
		t.Error("Get() ok = true for missing key")
	}
}
