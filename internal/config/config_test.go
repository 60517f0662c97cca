package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
)

const minimalEnvYAML = `
server:
  port: "8080"
open_meteo:
  timeout: "2s"
request:
  timeout: "5s"
cache:
  ttl: "5m"
  stale_ttl: "1h"
alerts:
  enabled: false
shutdown:
  timeout: "10s"
`

// inTempProject switches into a fresh directory with config/dev.yaml and clears env overrides.
func inTempProject(t *testing.T, yamlContent string) string {
	t.Helper()
	for _, k := range []string{"TELEGRAM_BOT_TOKEN", "ENV_NAME", "PORT", "CACHE_BACKEND", "MEMCACHED_ADDRS", "USERS_FILE"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	writeEnvFile(t, dir, yamlContent)
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(origWd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempProject(t, minimalEnvYAML)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"ServerPort", cfg.ServerPort, "8080"},
		{"OpenMeteoTimeout", cfg.OpenMeteoTimeout, 2 * time.Second},
		{"RequestTimeout", cfg.RequestTimeout, 5 * time.Second},
		{"CacheBackend", cfg.CacheBackend, "in_memory"},
		{"CacheTTL", cfg.CacheTTL, 5 * time.Minute},
		{"StaleCacheTTL", cfg.StaleCacheTTL, time.Hour},
		{"CoalesceTimeout", cfg.CoalesceTimeout, 5 * time.Second},
		{"RetryAttempts", cfg.RetryAttempts, 3},
		{"RateLimitRPS", cfg.RateLimitRPS, 20},
		{"RateLimitBurst", cfg.RateLimitBurst, 50},
		{"BreakerFailureThreshold", cfg.BreakerFailureThreshold, 5},
		{"BreakerTimeout", cfg.BreakerTimeout, 30 * time.Second},
		{"HourlySamples", cfg.HourlySamples, 12},
		{"DailySamples", cfg.DailySamples, 7},
		{"AlertsEnabled", cfg.AlertsEnabled, false},
		{"AlertInterval", cfg.AlertInterval, 240 * time.Minute},
		{"AlertThrottle", cfg.AlertThrottle, 240 * time.Minute},
		{"TelegramAPIURL", cfg.TelegramAPIURL, "https://api.telegram.org"},
		{"UsersFile", cfg.UsersFile, filepath.Join("data", "users.json")},
		{"KnowledgeFile", cfg.KnowledgeFile, filepath.Join("config", "knowledge.json")},
		{"DegradedErrorPct", cfg.DegradedErrorPct, 20},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 10 * time.Second},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Errorf("CORSAllowedOrigins = %v, want [*]", cfg.CORSAllowedOrigins)
	}
	if !strings.Contains(cfg.ForecastURL, "api.open-meteo.com") {
		t.Errorf("ForecastURL = %q", cfg.ForecastURL)
	}
}

func TestLoad_AlertsRequireTelegramToken(t *testing.T) {
	inTempProject(t, strings.Replace(minimalEnvYAML, "enabled: false", "enabled: true", 1))

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when alerts are enabled without a token")
	}
	if !strings.Contains(err.Error(), "TELEGRAM_BOT_TOKEN") {
		t.Errorf("Load() error = %v, want mention of TELEGRAM_BOT_TOKEN", err)
	}
}

func TestLoad_AlertsEnabledByDefault(t *testing.T) {
	inTempProject(t, strings.Replace(minimalEnvYAML, "alerts:\n  enabled: false\n", "", 1))
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.AlertsEnabled {
		t.Error("AlertsEnabled = false, want true when the section is omitted")
	}
	if cfg.TelegramBotToken != "123:abc" {
		t.Errorf("TelegramBotToken = %q, want from env", cfg.TelegramBotToken)
	}
}

func TestLoad_TelegramTokenFromSecrets(t *testing.T) {
	dir := inTempProject(t, strings.Replace(minimalEnvYAML, "enabled: false", "enabled: true", 1))
	writeSecretsFile(t, dir, "telegram_bot_token: from-secrets\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TelegramBotToken != "from-secrets" {
		t.Errorf("TelegramBotToken = %q, want from-secrets", cfg.TelegramBotToken)
	}
}

func TestLoad_EnvTokenWinsOverSecrets(t *testing.T) {
	dir := inTempProject(t, minimalEnvYAML)
	writeSecretsFile(t, dir, "telegram_bot_token: from-secrets\n")
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TelegramBotToken != "from-env" {
		t.Errorf("TelegramBotToken = %q, want from-env", cfg.TelegramBotToken)
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	dir := inTempProject(t, minimalEnvYAML)
	writeSecretsFile(t, dir, "telegram_bot_token: [unclosed\n")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for invalid secrets YAML")
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := inTempProject(t, minimalEnvYAML)
	os.Unsetenv("PORT")
	os.Unsetenv("CACHE_BACKEND")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=9191\nCACHE_BACKEND=memcached\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("PORT")
		os.Unsetenv("CACHE_BACKEND")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9191" {
		t.Errorf("ServerPort = %q, want 9191 from .env", cfg.ServerPort)
	}
	if cfg.CacheBackend != "memcached" {
		t.Errorf("CacheBackend = %q, want memcached from .env", cfg.CacheBackend)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	inTempProject(t, minimalEnvYAML)
	t.Setenv("PORT", "7070")
	t.Setenv("CACHE_BACKEND", " Memcached ")
	t.Setenv("MEMCACHED_ADDRS", "mc1:11211,mc2:11211")
	t.Setenv("USERS_FILE", "/tmp/u.json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "7070" || cfg.CacheBackend != "memcached" || cfg.MemcachedAddrs != "mc1:11211,mc2:11211" || cfg.UsersFile != "/tmp/u.json" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestLoad_EnvNameSelectsFile(t *testing.T) {
	dir := inTempProject(t, minimalEnvYAML)
	prod := strings.Replace(minimalEnvYAML, `port: "8080"`, `port: "80"`, 1)
	if err := os.WriteFile(filepath.Join(dir, "config", "prod.yaml"), []byte(prod), 0644); err != nil {
		t.Fatalf("write prod.yaml: %v", err)
	}
	t.Setenv("ENV_NAME", "prod")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "80" {
		t.Errorf("ServerPort = %q, want 80 from prod.yaml", cfg.ServerPort)
	}
}

func TestLoad_ConfigFileNotFound(t *testing.T) {
	inTempProject(t, minimalEnvYAML)
	t.Setenv("ENV_NAME", "missing")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("Load() error = %v, want config file not found", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	inTempProject(t, "server: [unclosed\n")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
}

func TestLoad_InvalidDurationsFallBack(t *testing.T) {
	yamlContent := `
open_meteo:
  timeout: "soon"
request:
  timeout: ""
cache:
  ttl: "-5m"
alerts:
  enabled: false
  interval: "often"
`
	inTempProject(t, yamlContent)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OpenMeteoTimeout != 5*time.Second {
		t.Errorf("OpenMeteoTimeout = %v, want 5s default", cfg.OpenMeteoTimeout)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s default", cfg.RequestTimeout)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL = %v, want 10m default", cfg.CacheTTL)
	}
	if cfg.AlertInterval != 240*time.Minute {
		t.Errorf("AlertInterval = %v, want 240m default", cfg.AlertInterval)
	}
}

func TestLoad_RequestTimeoutRaisedAboveUpstream(t *testing.T) {
	inTempProject(t, strings.Replace(minimalEnvYAML, `timeout: "5s"`, `timeout: "1s"`, 1))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout <= cfg.OpenMeteoTimeout {
		t.Errorf("RequestTimeout = %v, want above OpenMeteoTimeout %v", cfg.RequestTimeout, cfg.OpenMeteoTimeout)
	}
}

func TestLoad_BreakerThresholdZeroDisables(t *testing.T) {
	inTempProject(t, minimalEnvYAML+`reliability:
  circuit_breaker:
    failure_threshold: 0
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BreakerFailureThreshold != 0 {
		t.Errorf("BreakerFailureThreshold = %d, want 0", cfg.BreakerFailureThreshold)
	}
}

func TestLoad_WarmLocations(t *testing.T) {
	yamlContent := strings.Replace(minimalEnvYAML, `  stale_ttl: "1h"`, `  stale_ttl: "1h"
  warm:
    interval: 15m
    locations:
      - latitude: 51.5
        longitude: -0.12
        city: London`, 1)
	inTempProject(t, yamlContent)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WarmInterval != 15*time.Minute {
		t.Errorf("WarmInterval = %v, want 15m", cfg.WarmInterval)
	}
	if len(cfg.WarmLocations) != 1 || cfg.WarmLocations[0].City != "London" || cfg.WarmLocations[0].Latitude != 51.5 {
		t.Errorf("WarmLocations = %+v", cfg.WarmLocations)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			OpenMeteoTimeout: 2 * time.Second,
			RequestTimeout:   5 * time.Second,
			CacheBackend:     "in_memory",
			CacheTTL:         time.Minute,
			StaleCacheTTL:    time.Hour,
			DegradedErrorPct: 20,
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero upstream timeout", func(c *Config) { c.OpenMeteoTimeout = 0 }, "open_meteo.timeout"},
		{"unknown backend", func(c *Config) { c.CacheBackend = "redis" }, "cache.backend"},
		{"stale shorter than ttl", func(c *Config) { c.StaleCacheTTL = time.Second }, "stale_ttl"},
		{"negative breaker threshold", func(c *Config) { c.BreakerFailureThreshold = -1 }, "failure_threshold"},
		{"alerts without token", func(c *Config) { c.AlertsEnabled = true }, "TELEGRAM_BOT_TOKEN"},
		{"alerts with token", func(c *Config) { c.AlertsEnabled = true; c.TelegramBotToken = "t" }, ""},
		{"degraded pct above 100", func(c *Config) { c.DegradedErrorPct = 101 }, "degraded_error_pct"},
		{"warm location out of range", func(c *Config) {
			c.WarmLocations = []models.Location{{Latitude: 95, Longitude: 0}}
		}, "cache.warm.locations[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ProjectDevConfig(t *testing.T) {
	root := findProjectRoot(t)
	for _, k := range []string{"TELEGRAM_BOT_TOKEN", "ENV_NAME", "PORT", "CACHE_BACKEND", "MEMCACHED_ADDRS", "USERS_FILE"} {
		t.Setenv(k, "")
	}
	origWd, _ := os.Getwd()
	if err := os.Chdir(root); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with shipped config/dev.yaml error = %v", err)
	}
	if len(cfg.WarmLocations) == 0 {
		t.Error("shipped dev.yaml should list warm locations")
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
