//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/aeris-dashboard-service/internal/cache"
	"github.com/kjstillabower/aeris-dashboard-service/internal/client"
	"github.com/kjstillabower/aeris-dashboard-service/internal/service"
	"github.com/kjstillabower/aeris-dashboard-service/internal/user"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	ForecastURL   string
	AirQualityURL string
	GeocodingURL  string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Open-Meteo needs no key, so tests run against it only when OPEN_METEO_INTEGRATION=1.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	if os.Getenv("OPEN_METEO_INTEGRATION") != "1" {
		t.Skip("OPEN_METEO_INTEGRATION not set, skipping integration test")
	}
	def := client.DefaultConfig()
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		ForecastURL:   envOr("OPEN_METEO_FORECAST_URL", def.ForecastURL),
		AirQualityURL: envOr("OPEN_METEO_AIR_QUALITY_URL", def.AirQualityURL),
		GeocodingURL:  envOr("OPEN_METEO_GEOCODING_URL", def.GeocodingURL),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SetupIntegrationClient creates an Open-Meteo client with short retries for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenMeteoClient {
	t.Helper()
	c := client.DefaultConfig()
	c.ForecastURL, c.AirQualityURL, c.GeocodingURL = cfg.ForecastURL, cfg.AirQualityURL, cfg.GeocodingURL
	c.Timeout = 10 * time.Second
	c.RetryAttempts = 2
	return client.NewOpenMeteoClient(c)
}

// SetupIntegrationService creates a dashboard service over a real client. The memcached
// backend is used when requested and reachable, otherwise the in-memory cache.
// Returns the service, its cache and a cleanup function.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig, logger *zap.Logger) (*service.DashboardService, cache.Cache, func()) {
	t.Helper()
	weatherClient := SetupIntegrationClient(t, cfg)

	var cacheSvc cache.Cache = cache.NewInMemoryCache(time.Hour)
	cleanup := func() {}
	if cfg.CacheBackend == "memcached" {
		mc := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2, time.Hour)
		if err := mc.Ping(); err == nil {
			cacheSvc = mc
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
		}
	}

	svc := service.NewDashboardService(weatherClient, cacheSvc, service.Config{
		CacheTTL:      5 * time.Minute,
		StaleCacheTTL: time.Hour,
	}, logger)
	return svc, cacheSvc, cleanup
}

// SetupUserService creates a user service over a fresh users file in a temp dir.
func SetupUserService(t *testing.T, logger *zap.Logger) *user.Service {
	t.Helper()
	store, err := user.OpenFileStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("OpenFileStore() error = %v", err)
	}
	return user.NewService(store, logger)
}

// RegisterWithLocation registers a user and saves a location on the profile.
func RegisterWithLocation(t *testing.T, users *user.Service, username string, lat, lon float64) {
	t.Helper()
	ctx := context.Background()
	if _, err := users.Register(ctx, user.RegisterRequest{Username: username, Email: username + "@example.com", Password: "integration"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	patch := map[string]json.RawMessage{
		"latitude":  json.RawMessage(strconv.FormatFloat(lat, 'f', -1, 64)),
		"longitude": json.RawMessage(strconv.FormatFloat(lon, 'f', -1, 64)),
	}
	if _, _, err := users.Update(ctx, username, patch); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
}
