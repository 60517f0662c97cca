package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kjstillabower/aeris-dashboard-service/internal/advisory"
	"github.com/kjstillabower/aeris-dashboard-service/internal/alerts"
	"github.com/kjstillabower/aeris-dashboard-service/internal/chat"
	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
	"github.com/kjstillabower/aeris-dashboard-service/internal/observability"
	"github.com/kjstillabower/aeris-dashboard-service/internal/traffic"
	"github.com/kjstillabower/aeris-dashboard-service/internal/user"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// UserService is the account and profile API used by the handlers.
type UserService interface {
	Register(ctx context.Context, req user.RegisterRequest) (user.User, error)
	Login(ctx context.Context, req user.LoginRequest) (user.User, error)
	Get(ctx context.Context, username string) (user.User, error)
	Update(ctx context.Context, username string, patch map[string]json.RawMessage) (user.User, []string, error)
}

// DashboardService assembles dashboards.
type DashboardService interface {
	GetDashboard(ctx context.Context, loc models.Location, mode advisory.Mode) (models.Dashboard, error)
}

// ChatResponder answers chat queries.
type ChatResponder interface {
	Respond(ctx context.Context, query, username string) chat.Reply
}

// AlertService sends test alerts and reports alert state.
type AlertService interface {
	SendTest(ctx context.Context, username string) error
	Status(ctx context.Context, username string) (alerts.Status, error)
}

// HealthConfig holds the inputs for the health handler. Nil funcs skip their check.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// UpstreamState reports the Open-Meteo circuit breaker state ("closed", "open", ...).
	UpstreamState func() string
	// CachePing checks cache reachability. Set when the backend is memcached.
	CachePing     func() error
	AlertsRunning func() bool
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	users            UserService
	dashboards       DashboardService
	chat             ChatResponder
	alerts           AlertService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	validate         *validator.Validate
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. alertSvc may be nil when alerts are disabled.
func NewHandler(
	users UserService,
	dashboards DashboardService,
	responder ChatResponder,
	alertSvc AlertService,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		users:        users,
		dashboards:   dashboards,
		chat:         responder,
		alerts:       alertSvc,
		healthConfig: healthConfig,
		logger:       logger,
		validate:     validator.New(),
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"openMeteo": "healthy"}
	if cfg := h.healthConfig; cfg != nil {
		if cfg.UpstreamState != nil {
			switch cfg.UpstreamState() {
			case "open":
				checks["openMeteo"] = "unhealthy"
			case "half-open":
				checks["openMeteo"] = "recovering"
			}
		}
		if cfg.CachePing != nil {
			if cfg.CachePing() == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
		if cfg.AlertsRunning != nil {
			if cfg.AlertsRunning() {
				checks["alerts"] = "running"
			} else {
				checks["alerts"] = "stopped"
			}
		}
	}
	writeJSON(w, r, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > circuit open > error rate breach > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	cfg := h.healthConfig
	if cfg == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if cfg.UpstreamState != nil && cfg.UpstreamState() == "open" {
		return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open"}
	}
	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(cfg.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(cfg.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code. The body is encoded
// before the header is sent; an encoding failure is logged and answered with a 500 envelope.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		observability.LoggerFromContext(r.Context(), zap.L()).Error("encode response failed",
			zap.Int("status", status),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorEnvelope(r, "INTERNAL", "Internal error"))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// writeError writes the failure envelope: success=false and a human message for the
// dashboard, plus a stable code and the request's correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, r, status, errorEnvelope(r, code, message))
}

func errorEnvelope(r *http.Request, code, message string) map[string]interface{} {
	return map[string]interface{}{
		"success": false,
		"msg":     message,
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	}
}

// decodeJSON reads a bounded JSON body into v. An empty body decodes as {}.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return false
	}
	return true
}

// writeUserError maps user service sentinels onto responses.
func (h *Handler) writeUserError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, user.ErrMissingFields):
		writeError(w, r, http.StatusBadRequest, "MISSING_FIELDS", "Missing fields")
	case errors.Is(err, user.ErrUsernameTaken):
		writeError(w, r, http.StatusBadRequest, "USERNAME_TAKEN", "Username already exists")
	case errors.Is(err, user.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
	case errors.Is(err, user.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, user.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	default:
		observability.LoggerFromContext(r.Context(), h.logger).Error("user operation failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Internal error")
	}
}
