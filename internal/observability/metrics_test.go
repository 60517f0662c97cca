package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies that label dimensions match usage across the client, http,
// service, cache, alerts and chat packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/dashboard/{username}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/dashboard/{username}").Observe(0.01)
	UpstreamCallsTotal.WithLabelValues("forecast", "success").Inc()
	UpstreamDuration.WithLabelValues("air_quality", "success").Observe(0.1)
	UpstreamRetriesTotal.WithLabelValues("forecast").Inc()
	UpstreamErrorsTotal.WithLabelValues("forecast", "timeout").Inc()
	CacheHitsTotal.WithLabelValues("conditions").Inc()
	CacheErrorsTotal.WithLabelValues("get", "timeout").Inc()
	StaleCacheServesTotal.Inc()
	CoalescedRequestsTotal.Inc()
	DashboardsTotal.WithLabelValues("Balanced").Inc()
	AdvisoriesTotal.WithLabelValues("good").Inc()
	AlertsTotal.WithLabelValues("sent").Inc()
	ChatQueriesTotal.WithLabelValues("live").Inc()
}

func TestCircuitBreakerState(t *testing.T) {
	tests := []struct {
		state string
		want  float64
	}{
		{"closed", 0},
		{"half-open", 1},
		{"open", 2},
	}
	for _, tt := range tests {
		SetCircuitBreakerState("test_breaker", tt.state)
		if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("test_breaker")); got != tt.want {
			t.Errorf("state %q gauge = %v, want %v", tt.state, got, tt.want)
		}
	}

	before := testutil.ToFloat64(CircuitBreakerTransitionsTotal.WithLabelValues("test_breaker", "closed", "open"))
	RecordCircuitBreakerTransition("test_breaker", "closed", "open")
	after := testutil.ToFloat64(CircuitBreakerTransitionsTotal.WithLabelValues("test_breaker", "closed", "open"))
	if after != before+1 {
		t.Errorf("transitions = %v, want %v", after, before+1)
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format including the rate-limit gauges.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	RegisterRateLimitGauges(time.Minute)
	RegisterRateLimitGauges(time.Minute) // second call is a no-op

	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"httpRequestsTotal", "rateLimitRequestsInWindow", "rateLimitRejectsInWindow"} {
		if !strings.Contains(body, name) {
			t.Errorf("MetricsHandler response missing %s", name)
		}
	}
}
