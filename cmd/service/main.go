package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/aeris-dashboard-service/internal/alerts"
	"github.com/kjstillabower/aeris-dashboard-service/internal/cache"
	"github.com/kjstillabower/aeris-dashboard-service/internal/chat"
	"github.com/kjstillabower/aeris-dashboard-service/internal/client"
	"github.com/kjstillabower/aeris-dashboard-service/internal/config"
	httphandler "github.com/kjstillabower/aeris-dashboard-service/internal/http"
	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
	"github.com/kjstillabower/aeris-dashboard-service/internal/observability"
	"github.com/kjstillabower/aeris-dashboard-service/internal/service"
	"github.com/kjstillabower/aeris-dashboard-service/internal/telegram"
	"github.com/kjstillabower/aeris-dashboard-service/internal/user"
)

const (
	warmTimeout             = 30 * time.Second
	inFlightCheckInterval   = 100 * time.Millisecond
	alertUserTimeout        = 30 * time.Second
	warmConcurrency         = 4
	serverReadWriteDeadline = 30 * time.Second
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient := client.NewOpenMeteoClient(client.Config{
		ForecastURL:             cfg.ForecastURL,
		AirQualityURL:           cfg.AirQualityURL,
		GeocodingURL:            cfg.GeocodingURL,
		Timeout:                 cfg.OpenMeteoTimeout,
		RetryAttempts:           cfg.RetryAttempts,
		RetryBaseDelay:          cfg.RetryBaseDelay,
		RetryMaxDelay:           cfg.RetryMaxDelay,
		BreakerFailureThreshold: cfg.BreakerFailureThreshold,
		BreakerTimeout:          cfg.BreakerTimeout,
		BreakerHalfOpenRequests: cfg.BreakerHalfOpenRequests,
	})
	if cfg.BreakerFailureThreshold > 0 {
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.BreakerFailureThreshold), zap.Duration("timeout", cfg.BreakerTimeout))
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.StaleCacheTTL)
		if err := mc.Ping(); err != nil {
			logger.Warn("memcached not reachable at startup", zap.String("addrs", cfg.MemcachedAddrs), zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache(cfg.StaleCacheTTL)
		logger.Info("cache backend: in_memory")
	}
	dashboards := service.NewDashboardService(weatherClient, cacheSvc, service.Config{
		CacheTTL:        cfg.CacheTTL,
		StaleCacheTTL:   cfg.StaleCacheTTL,
		HourlySamples:   cfg.HourlySamples,
		DailySamples:    cfg.DailySamples,
		CoalesceTimeout: cfg.CoalesceTimeout,
	}, logger)

	store, err := user.OpenFileStore(cfg.UsersFile)
	if err != nil {
		logger.Fatal("user store", zap.String("path", cfg.UsersFile), zap.Error(err))
	}
	users := user.NewService(store, logger)

	kb, err := chat.LoadKnowledgeBase(cfg.KnowledgeFile)
	if err != nil {
		logger.Fatal("knowledge base", zap.String("path", cfg.KnowledgeFile), zap.Error(err))
	}
	logger.Info("knowledge base loaded", zap.Int("terms", kb.Len()))
	responder := chat.NewResponder(kb, dashboards, weatherClient, users, logger)

	notifier := telegram.NewClient(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.TelegramTimeout)
	checker := alerts.NewChecker(users, dashboards, notifier, alerts.Config{
		Interval:       cfg.AlertInterval,
		ThrottleWindow: cfg.AlertThrottle,
		UserTimeout:    alertUserTimeout,
	}, logger)
	scheduler := alerts.NewScheduler(checker, cfg.AlertInterval, 0, logger)
	if cfg.AlertsEnabled {
		if err := scheduler.Start(); err != nil {
			logger.Fatal("alert scheduler", zap.Error(err))
		}
	} else {
		logger.Warn("alerts disabled; scheduler not started")
	}

	warmer := cache.NewWarmer(dashboards, logger, warmConcurrency)
	warm := func() {
		ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
		defer cancel()
		if err := warmer.Warm(ctx, warmLocations(ctx, cfg.WarmLocations, users, logger)); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
	}
	warm()
	warmCtx, stopWarming := context.WithCancel(context.Background())
	defer stopWarming()
	if cfg.WarmInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.WarmInterval)
			defer ticker.Stop()
			for {
				select {
				case <-warmCtx.Done():
					return
				case <-ticker.C:
					warm()
				}
			}
		}()
	}

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.HealthWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		UpstreamState:    weatherClient.BreakerState,
		AlertsRunning:    scheduler.IsRunning,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	observability.RegisterRateLimitGauges(cfg.HealthWindow)

	handler := httphandler.NewHandler(users, dashboards, responder, checker, healthConfig, logger)
	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httphandler.CORSMiddleware(cfg.CORSAllowedOrigins)(router),
		ReadTimeout:  serverReadWriteDeadline,
		WriteTimeout: serverReadWriteDeadline,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	httphandler.SetShuttingDown(true)
	stopWarming()
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// warmLocations merges the configured locations with every saved user location.
func warmLocations(ctx context.Context, configured []models.Location, users *user.Service, logger *zap.Logger) []models.Location {
	locs := append([]models.Location{}, configured...)
	all, err := users.List(ctx)
	if err != nil {
		logger.Warn("list users for cache warming", zap.Error(err))
		return locs
	}
	for _, u := range all {
		if loc, ok := u.Location(); ok {
			locs = append(locs, loc)
		}
	}
	return locs
}
