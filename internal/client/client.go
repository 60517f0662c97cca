package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
	"github.com/kjstillabower/aeris-dashboard-service/internal/observability"
)

// WeatherClient fetches forecast, air-quality and geocoding data.
type WeatherClient interface {
	GetForecast(ctx context.Context, loc models.Location) (models.Forecast, error)
	GetAirQuality(ctx context.Context, loc models.Location) (models.AirQuality, error)
	Geocode(ctx context.Context, name string) (models.Location, error)
}

var (
	ErrLocationNotFound = errors.New("location not found")
	ErrBadRequest       = errors.New("bad request")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrCircuitOpen      = errors.New("circuit breaker open")
)

// Endpoint labels used for metrics and the circuit breaker name.
const (
	endpointForecast   = "forecast"
	endpointAirQuality = "air_quality"
	endpointGeocoding  = "geocoding"
)

// Config configures an OpenMeteoClient. Zero values fall back to defaults.
type Config struct {
	ForecastURL    string
	AirQualityURL  string
	GeocodingURL   string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// BreakerFailureThreshold is the number of consecutive failures that opens the breaker.
	// Zero disables the breaker.
	BreakerFailureThreshold int
	BreakerTimeout          time.Duration
	BreakerHalfOpenRequests int
}

// DefaultConfig returns production endpoints with the standard retry and breaker settings.
func DefaultConfig() Config {
	return Config{
		ForecastURL:             "https://api.open-meteo.com/v1/forecast",
		AirQualityURL:           "https://air-quality-api.open-meteo.com/v1/air-quality",
		GeocodingURL:            "https://geocoding-api.open-meteo.com/v1/search",
		Timeout:                 5 * time.Second,
		RetryAttempts:           3,
		RetryBaseDelay:          100 * time.Millisecond,
		RetryMaxDelay:           2 * time.Second,
		BreakerFailureThreshold: 5,
		BreakerTimeout:          30 * time.Second,
		BreakerHalfOpenRequests: 1,
	}
}

// OpenMeteoClient talks to the Open-Meteo forecast, air-quality and geocoding APIs.
type OpenMeteoClient struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewOpenMeteoClient builds a client. Missing URLs and non-positive durations take the
// DefaultConfig values.
func NewOpenMeteoClient(cfg Config) *OpenMeteoClient {
	def := DefaultConfig()
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = def.ForecastURL
	}
	if cfg.AirQualityURL == "" {
		cfg.AirQualityURL = def.AirQualityURL
	}
	if cfg.GeocodingURL == "" {
		cfg.GeocodingURL = def.GeocodingURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}

	c := &OpenMeteoClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BreakerFailureThreshold > 0 {
		c.breaker = newBreaker(cfg)
	}
	return c
}

func newBreaker(cfg Config) *gobreaker.CircuitBreaker {
	const name = "open_meteo"
	halfOpen := cfg.BreakerHalfOpenRequests
	if halfOpen <= 0 {
		halfOpen = 1
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	threshold := uint32(cfg.BreakerFailureThreshold)
	observability.SetCircuitBreakerState(name, gobreaker.StateClosed.String())
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(halfOpen),
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Rejected input and unknown places mean the upstream answered; they must not trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrBadRequest) || errors.Is(err, ErrLocationNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.RecordCircuitBreakerTransition(name, from.String(), to.String())
			observability.SetCircuitBreakerState(name, to.String())
		},
	})
}

// BreakerState reports the circuit breaker state, or "disabled" when none is configured.
func (c *OpenMeteoClient) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// GetForecast fetches current weather, 16 days of hourly and daily data in the location's zone.
func (c *OpenMeteoClient) GetForecast(ctx context.Context, loc models.Location) (models.Forecast, error) {
	params := coordParams(loc)
	params.Set("current_weather", "true")
	params.Set("hourly", "temperature_2m,windspeed_10m")
	params.Set("daily", "temperature_2m_max,temperature_2m_min")
	params.Set("forecast_days", "16")
	params.Set("timezone", "auto")

	var payload forecastPayload
	if err := c.fetch(ctx, endpointForecast, c.cfg.ForecastURL, params, &payload); err != nil {
		return models.Forecast{}, err
	}
	return payload.toModel()
}

// GetAirQuality fetches hourly pollutant series and the current UV index.
func (c *OpenMeteoClient) GetAirQuality(ctx context.Context, loc models.Location) (models.AirQuality, error) {
	params := coordParams(loc)
	params.Set("hourly", "pm2_5,pm10,european_aqi")
	params.Set("current", "uv_index")
	params.Set("timezone", "auto")

	var payload airQualityPayload
	if err := c.fetch(ctx, endpointAirQuality, c.cfg.AirQualityURL, params, &payload); err != nil {
		return models.AirQuality{}, err
	}
	return payload.toModel()
}

// Geocode resolves a place name to its best match.
func (c *OpenMeteoClient) Geocode(ctx context.Context, name string) (models.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Location{}, fmt.Errorf("%w: empty place name", ErrLocationNotFound)
	}
	params := url.Values{}
	params.Set("name", name)
	params.Set("count", "1")
	params.Set("format", "json")

	var payload geocodingPayload
	if err := c.fetch(ctx, endpointGeocoding, c.cfg.GeocodingURL, params, &payload); err != nil {
		return models.Location{}, err
	}
	if len(payload.Results) == 0 {
		return models.Location{}, fmt.Errorf("%w: %s", ErrLocationNotFound, name)
	}
	r := payload.Results[0]
	return models.Location{Latitude: r.Latitude, Longitude: r.Longitude, City: r.Name}, nil
}

func coordParams(loc models.Location) url.Values {
	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", loc.Latitude))
	params.Set("longitude", fmt.Sprintf("%.4f", loc.Longitude))
	return params
}

// fetch performs a GET with retries and decodes the JSON body into out.
func (c *OpenMeteoClient) fetch(ctx context.Context, endpoint, rawURL string, params url.Values, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.WithLabelValues(endpoint).Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		body, err := c.callThroughBreaker(ctx, endpoint, rawURL, params)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("parse %s response: %w", endpoint, err)
			}
			return nil
		}

		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenMeteoClient) callThroughBreaker(ctx context.Context, endpoint, rawURL string, params url.Values) ([]byte, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, endpoint, rawURL, params)
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callAPI(ctx, endpoint, rawURL, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.UpstreamCallsTotal.WithLabelValues(endpoint, "circuit_open").Inc()
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (c *OpenMeteoClient) callAPI(ctx context.Context, endpoint, rawURL string, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := buildRequest(reqCtx, rawURL, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.UpstreamDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if err := errorFromResponse(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func buildRequest(ctx context.Context, rawURL string, params url.Values) (*http.Request, error) {
	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// errorFromResponse maps a non-2xx status to a sentinel. Open-Meteo reports request
// problems as 400 with {"error":true,"reason":"..."}.
func errorFromResponse(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusBadRequest:
		var apiErr struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.Reason != "" {
			return fmt.Errorf("%w: %s", ErrBadRequest, apiErr.Reason)
		}
		return ErrBadRequest
	case code == http.StatusNotFound:
		return ErrLocationNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded")
}

func (c *OpenMeteoClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.cfg.RetryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.cfg.RetryMaxDelay) {
		delay = float64(c.cfg.RetryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func extractCorrelationID(ctx context.Context) string {
	if corrID, ok := ctx.Value("correlation_id").(string); ok {
		return corrID
	}
	return ""
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}
