package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
	"github.com/kjstillabower/aeris-dashboard-service/internal/validation"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort string

	ForecastURL      string
	AirQualityURL    string
	GeocodingURL     string
	OpenMeteoTimeout time.Duration
	RequestTimeout   time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	CacheTTL              time.Duration
	StaleCacheTTL         time.Duration
	CoalesceTimeout       time.Duration // 0 disables request coalescing
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RetryAttempts           int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	RateLimitRPS            int
	RateLimitBurst          int
	BreakerFailureThreshold int
	BreakerTimeout          time.Duration
	BreakerHalfOpenRequests int

	HourlySamples int
	DailySamples  int
	WarmLocations []models.Location
	WarmInterval  time.Duration

	AlertsEnabled bool
	AlertInterval time.Duration
	AlertThrottle time.Duration

	TelegramBotToken string
	TelegramAPIURL   string
	TelegramTimeout  time.Duration

	UsersFile     string
	KnowledgeFile string

	CORSAllowedOrigins []string

	HealthWindow     time.Duration
	DegradedErrorPct int

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	OpenMeteo struct {
		ForecastURL   string `yaml:"forecast_url"`
		AirQualityURL string `yaml:"air_quality_url"`
		GeocodingURL  string `yaml:"geocoding_url"`
		Timeout       string `yaml:"timeout"`
	} `yaml:"open_meteo"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		StaleTTL  string `yaml:"stale_ttl"`
		Coalesce  string `yaml:"coalesce_timeout"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Warm struct {
			Interval  string            `yaml:"interval"`
			Locations []models.Location `yaml:"locations"`
		} `yaml:"warm"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		Breaker          struct {
			FailureThreshold *int   `yaml:"failure_threshold"`
			Timeout          string `yaml:"timeout"`
			HalfOpenRequests int    `yaml:"half_open_requests"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Dashboard struct {
		HourlySamples int `yaml:"hourly_samples"`
		DailySamples  int `yaml:"daily_samples"`
	} `yaml:"dashboard"`

	Alerts struct {
		Enabled  *bool  `yaml:"enabled"`
		Interval string `yaml:"interval"`
		Throttle string `yaml:"throttle"`
	} `yaml:"alerts"`

	Telegram struct {
		APIURL  string `yaml:"api_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"telegram"`

	Storage struct {
		UsersFile     string `yaml:"users_file"`
		KnowledgeFile string `yaml:"knowledge_file"`
	} `yaml:"storage"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Health struct {
		Window           string `yaml:"window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	TelegramBotToken string `yaml:"telegram_bot_token"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), an optional .env file
// and config/secrets.yaml. TELEGRAM_BOT_TOKEN comes from env or the secrets file. Call from
// project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.ForecastURL = firstNonEmpty(fc.OpenMeteo.ForecastURL, "https://api.open-meteo.com/v1/forecast")
	cfg.AirQualityURL = firstNonEmpty(fc.OpenMeteo.AirQualityURL, "https://air-quality-api.open-meteo.com/v1/air-quality")
	cfg.GeocodingURL = firstNonEmpty(fc.OpenMeteo.GeocodingURL, "https://geocoding-api.open-meteo.com/v1/search")
	cfg.OpenMeteoTimeout = parseDurationOrZero(fc.OpenMeteo.Timeout, 5*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 10*time.Minute)
	cfg.StaleCacheTTL = parseDuration(fc.Cache.StaleTTL, 6*time.Hour)
	cfg.CoalesceTimeout = parseDurationOrZero(fc.Cache.Coalesce, 5*time.Second)
	cfg.MemcachedAddrs = firstNonEmpty(strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.Warm.Interval, 0)
	cfg.WarmLocations = fc.Cache.Warm.Locations

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 50
	}
	cfg.BreakerFailureThreshold = 5
	if fc.Reliability.Breaker.FailureThreshold != nil {
		cfg.BreakerFailureThreshold = *fc.Reliability.Breaker.FailureThreshold
	}
	cfg.BreakerTimeout = parseDuration(fc.Reliability.Breaker.Timeout, 30*time.Second)
	cfg.BreakerHalfOpenRequests = fc.Reliability.Breaker.HalfOpenRequests
	if cfg.BreakerHalfOpenRequests <= 0 {
		cfg.BreakerHalfOpenRequests = 1
	}

	cfg.HourlySamples = fc.Dashboard.HourlySamples
	if cfg.HourlySamples <= 0 {
		cfg.HourlySamples = 12
	}
	cfg.DailySamples = fc.Dashboard.DailySamples
	if cfg.DailySamples <= 0 {
		cfg.DailySamples = 7
	}

	cfg.AlertsEnabled = true
	if fc.Alerts.Enabled != nil {
		cfg.AlertsEnabled = *fc.Alerts.Enabled
	}
	cfg.AlertInterval = parseDuration(fc.Alerts.Interval, 240*time.Minute)
	cfg.AlertThrottle = parseDuration(fc.Alerts.Throttle, 240*time.Minute)

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.TelegramBotToken == "" {
		secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(secretsData, &sec); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			cfg.TelegramBotToken = sec.TelegramBotToken
		}
	}
	cfg.TelegramAPIURL = firstNonEmpty(fc.Telegram.APIURL, "https://api.telegram.org")
	cfg.TelegramTimeout = parseDuration(fc.Telegram.Timeout, 10*time.Second)

	cfg.UsersFile = firstNonEmpty(os.Getenv("USERS_FILE"), fc.Storage.UsersFile, filepath.Join("data", "users.json"))
	cfg.KnowledgeFile = firstNonEmpty(fc.Storage.KnowledgeFile, filepath.Join("config", "knowledge.json"))

	cfg.CORSAllowedOrigins = fc.CORS.AllowedOrigins
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	cfg.HealthWindow = parseDuration(fc.Health.Window, time.Minute)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 20
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above OpenMeteoTimeout
// when needed so a handler never times out before its upstream call.
func validate(cfg *Config) error {
	if cfg.OpenMeteoTimeout <= 0 {
		return fmt.Errorf("open_meteo.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.OpenMeteoTimeout {
		cfg.RequestTimeout = cfg.OpenMeteoTimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.StaleCacheTTL < cfg.CacheTTL {
		return fmt.Errorf("cache.stale_ttl (%s) must not be shorter than cache.ttl (%s)", cfg.StaleCacheTTL, cfg.CacheTTL)
	}
	if cfg.BreakerFailureThreshold < 0 {
		return fmt.Errorf("reliability.circuit_breaker.failure_threshold must not be negative")
	}
	if cfg.AlertsEnabled && cfg.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN required when alerts are enabled (set env or config/secrets.yaml telegram_bot_token)")
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	for i, loc := range cfg.WarmLocations {
		if err := validation.ValidateCoordinates(loc.Latitude, loc.Longitude); err != nil {
			return fmt.Errorf("cache.warm.locations[%d]: %w", i, err)
		}
	}
	return nil
}
