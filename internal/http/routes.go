package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/aeris-dashboard-service/internal/observability"
)

// NewRouter registers every route. Routes that call Open-Meteo or Telegram are rate limited
// and bounded by requestTimeout; limiter may be nil.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	upstream := func(fn http.HandlerFunc) http.Handler {
		return RateLimitMiddleware(limiter)(TimeoutMiddleware(requestTimeout)(fn))
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	router.HandleFunc("/register", h.PostRegister).Methods(http.MethodPost)
	router.HandleFunc("/login", h.PostLogin).Methods(http.MethodPost)
	router.HandleFunc("/user/{username}", h.GetUser).Methods(http.MethodGet)
	router.HandleFunc("/update_user", h.PostUpdateUser).Methods(http.MethodPost)
	router.HandleFunc("/alerts_status/{username}", h.GetAlertsStatus).Methods(http.MethodGet)

	router.Handle("/dashboard/{username}", upstream(h.GetDashboard)).Methods(http.MethodGet)
	router.Handle("/chat", upstream(h.PostChat)).Methods(http.MethodPost)
	router.Handle("/test_telegram_alert", upstream(h.PostTestTelegramAlert)).Methods(http.MethodPost)
	return router
}
