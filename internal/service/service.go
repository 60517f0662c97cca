package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/aeris-dashboard-service/internal/advisory"
	"github.com/kjstillabower/aeris-dashboard-service/internal/cache"
	"github.com/kjstillabower/aeris-dashboard-service/internal/client"
	"github.com/kjstillabower/aeris-dashboard-service/internal/forecast"
	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
	"github.com/kjstillabower/aeris-dashboard-service/internal/observability"
)

// Config holds the dashboard service tunables.
type Config struct {
	CacheTTL time.Duration
	// StaleCacheTTL is the maximum age of conditions served after an upstream failure (0 disables).
	StaleCacheTTL time.Duration
	HourlySamples int
	DailySamples  int
	// CoalesceTimeout bounds a shared upstream fetch; 0 disables request coalescing.
	CoalesceTimeout time.Duration
}

// DashboardService loads per-location conditions with a cache-aside pattern and assembles
// dashboards from them.
type DashboardService struct {
	client client.WeatherClient
	cache  cache.Cache
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	coalescer *requestCoalescer // nil when disabled
}

// NewDashboardService creates a DashboardService. Non-positive sample counts default to
// 12 hourly and 7 daily samples.
func NewDashboardService(c client.WeatherClient, ch cache.Cache, cfg Config, logger *zap.Logger) *DashboardService {
	if cfg.HourlySamples <= 0 {
		cfg.HourlySamples = 12
	}
	if cfg.DailySamples <= 0 {
		cfg.DailySamples = 7
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DashboardService{client: c, cache: ch, cfg: cfg, logger: logger, now: time.Now}
	if cfg.CoalesceTimeout > 0 {
		s.coalescer = newRequestCoalescer(cfg.CoalesceTimeout)
	}
	return s
}

// LoadConditions returns cached conditions for loc, fetching them on a miss.
// A forecast failure falls back to stale cache when enabled. An air-quality failure is not
// fatal: the result carries no AirQuality and is not cached, so the next request retries.
func (s *DashboardService) LoadConditions(ctx context.Context, loc models.Location) (models.Conditions, error) {
	key := cache.Key(loc)
	logger := observability.LoggerFromContext(ctx, s.logger)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues("conditions").Inc()
		logger.Debug("cache hit", zap.String("key", key))
		return cached, nil
	}

	logger.Debug("cache miss, fetching upstream", zap.String("key", key))
	if s.coalescer == nil {
		return s.fetch(ctx, loc, key)
	}
	cond, shared, err := s.coalescer.Do(ctx, key, func(fetchCtx context.Context) (models.Conditions, error) {
		return s.fetch(fetchCtx, loc, key)
	})
	if shared {
		observability.CoalescedRequestsTotal.Inc()
	}
	return cond, err
}

// fetch loads conditions from upstream and caches complete results.
func (s *DashboardService) fetch(ctx context.Context, loc models.Location, key string) (models.Conditions, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)
	fc, err := s.client.GetForecast(ctx, loc)
	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues("forecast", string(client.CategorizeError(err))).Inc()
		if stale, ok := s.loadStale(ctx, key); ok {
			logger.Info("serving stale conditions", zap.String("key", key), zap.Duration("age", s.now().Sub(stale.FetchedAt)), zap.Error(err))
			return stale, nil
		}
		return models.Conditions{}, fmt.Errorf("fetch forecast for %s: %w", key, err)
	}

	cond := models.Conditions{Forecast: fc, FetchedAt: s.now().UTC()}
	aq, err := s.client.GetAirQuality(ctx, loc)
	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues("air_quality", string(client.CategorizeError(err))).Inc()
		logger.Warn("air quality unavailable", zap.String("key", key), zap.Error(err))
		return cond, nil
	}
	cond.AirQuality = &aq

	if err := s.cache.Set(ctx, key, cond, s.cfg.CacheTTL); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return cond, nil
}

func (s *DashboardService) loadStale(ctx context.Context, key string) (models.Conditions, bool) {
	if s.cfg.StaleCacheTTL <= 0 {
		return models.Conditions{}, false
	}
	stale, ok, err := s.cache.GetStale(ctx, key, s.cfg.StaleCacheTTL)
	if err != nil || !ok {
		return models.Conditions{}, false
	}
	observability.StaleCacheServesTotal.Inc()
	stale.Stale = true
	return stale, true
}

// GetDashboard assembles the dashboard for loc under the given advisory mode.
func (s *DashboardService) GetDashboard(ctx context.Context, loc models.Location, mode advisory.Mode) (models.Dashboard, error) {
	cond, err := s.LoadConditions(ctx, loc)
	if err != nil {
		return models.Dashboard{}, err
	}
	d := BuildDashboard(cond, loc, mode, s.now(), s.cfg.HourlySamples, s.cfg.DailySamples)

	observability.DashboardsTotal.WithLabelValues(mode.String()).Inc()
	for _, a := range d.Advisories {
		observability.AdvisoriesTotal.WithLabelValues(a.Severity.String()).Inc()
	}
	return d, nil
}

// BuildDashboard is the pure assembly step: window selection and advisory evaluation over
// already-loaded conditions. now is converted to the location's zone so that daily labels
// and the midnight anchor follow local time.
func BuildDashboard(cond models.Conditions, loc models.Location, mode advisory.Mode, now time.Time, hourlySamples, dailySamples int) models.Dashboard {
	local := now.In(cond.Zone())
	fc := cond.Forecast

	hourly := forecast.SelectHourly(fc.Hourly.Times, local, hourlySamples, fc.Hourly.TemperatureC, fc.Hourly.WindKmh)
	daily := forecast.SelectDaily(fc.Daily.Times, local, dailySamples, fc.Daily.MaxC, fc.Daily.MinC)

	d := models.Dashboard{
		Location: loc,
		Mode:     mode.String(),
		Current: models.CurrentBlock{
			TemperatureC: fc.Current.TemperatureC,
			WindKmh:      fc.Current.WindKmh,
			WeatherCode:  fc.Current.WeatherCode,
		},
		Hourly:      models.HourlyView{Labels: hourly.Labels, TemperatureC: hourly.Column(0), WindKmh: hourly.Column(1)},
		Weekly:      models.WeeklyView{Labels: daily.Labels, MaxC: daily.Column(0), MinC: daily.Column(1)},
		Advisories:  []advisory.Advisory{},
		Stale:       cond.Stale,
		GeneratedAt: now.UTC(),
	}

	aqi, uv, ok := currentAirQuality(cond.AirQuality, local)
	if !ok {
		return d
	}
	d.Current.AQI = &aqi
	d.Current.AQICategory = advisory.AQICategory(aqi)
	d.Current.UVIndex = &uv
	d.Current.UVCategory = advisory.UVCategory(uv)
	d.Advisories = advisory.Evaluate(advisory.Reading{
		AQI:          aqi,
		TemperatureC: fc.Current.TemperatureC,
		WindKmh:      fc.Current.WindKmh,
		UVIndex:      uv,
	}, mode)
	return d
}

// currentAirQuality returns the rounded European AQI at the current hour and the current UV
// index. ok is false when air quality is missing or the current sample is null.
func currentAirQuality(aq *models.AirQuality, now time.Time) (aqi, uv float64, ok bool) {
	if aq == nil || len(aq.EuropeanAQI) == 0 {
		return 0, 0, false
	}
	i := forecast.StartIndex(aq.Times, now)
	if i >= len(aq.EuropeanAQI) || math.IsNaN(aq.EuropeanAQI[i]) {
		return 0, 0, false
	}
	return math.Round(aq.EuropeanAQI[i]), aq.UVIndex, true
}

// categorizeCacheError returns a stable label for cache error metrics.
func categorizeCacheError(err error) string {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "network"):
		return "connection"
	default:
		return "unknown"
	}
}
