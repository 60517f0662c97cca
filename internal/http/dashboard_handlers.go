package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/aeris-dashboard-service/internal/advisory"
	"github.com/kjstillabower/aeris-dashboard-service/internal/alerts"
	"github.com/kjstillabower/aeris-dashboard-service/internal/client"
	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
	"github.com/kjstillabower/aeris-dashboard-service/internal/observability"
	"github.com/kjstillabower/aeris-dashboard-service/internal/traffic"
	"github.com/kjstillabower/aeris-dashboard-service/internal/user"
	"github.com/kjstillabower/aeris-dashboard-service/internal/validation"
)

// ChatRequest is the body of POST /chat. Username is optional and enables the saved location.
type ChatRequest struct {
	Query    string `json:"query" validate:"max=500"`
	Username string `json:"username" validate:"omitempty,max=64"`
}

// GetDashboard handles GET /dashboard/{username}. Optional lat, lon and city query parameters
// override the saved location; mode overrides the saved advisory mode.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := h.users.Get(ctx, strings.TrimSpace(mux.Vars(r)["username"]))
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}

	q := r.URL.Query()
	loc, ok, err := locationFromQuery(q)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}
	if !ok {
		loc, ok = u.Location()
	}
	if !ok {
		writeError(w, r, http.StatusBadRequest, "LOCATION_NOT_SET", "Please set your location first")
		return
	}

	mode := u.AdvisoryMode()
	if m := strings.TrimSpace(q.Get("mode")); m != "" {
		if !advisory.IsValidMode(m) {
			writeError(w, r, http.StatusBadRequest, "INVALID_MODE", "Unknown mode: "+m)
			return
		}
		mode = advisory.ParseMode(m)
	}

	d, err := h.dashboards.GetDashboard(ctx, loc, mode)
	if err != nil {
		traffic.RecordError()
		writeServiceError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"success":   true,
		"dashboard": d,
	})
}

// locationFromQuery reads lat/lon/city. It reports false when neither coordinate is given.
func locationFromQuery(q url.Values) (models.Location, bool, error) {
	latRaw, lonRaw := strings.TrimSpace(q.Get("lat")), strings.TrimSpace(q.Get("lon"))
	if latRaw == "" && lonRaw == "" {
		return models.Location{}, false, nil
	}
	if latRaw == "" || lonRaw == "" {
		return models.Location{}, false, errors.New("lat and lon must be given together")
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return models.Location{}, false, validation.ErrLatitudeRange
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return models.Location{}, false, validation.ErrLongitudeRange
	}
	if err := validation.ValidateCoordinates(lat, lon); err != nil {
		return models.Location{}, false, err
	}
	loc := models.Location{Latitude: lat, Longitude: lon}
	if c := q.Get("city"); strings.TrimSpace(c) != "" {
		city, err := validation.ValidateCity(c)
		if err != nil {
			return models.Location{}, false, err
		}
		loc.City = city
	}
	return loc, true, nil
}

// writeServiceError maps upstream failures: provider rejections of the location are 400,
// everything else is 503. The underlying error is logged at DEBUG.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, client.ErrBadRequest) || errors.Is(err, client.ErrLocationNotFound) {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", "Location not supported by the weather provider")
	} else {
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	}
	observability.LoggerFromContext(r.Context(), nil).Debug("upstream error", zap.Error(err))
}

// PostChat handles POST /chat.
func (h *Handler) PostChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, map[string]interface{}{"success": false, "response": "Query too long"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, r, http.StatusBadRequest, map[string]interface{}{"success": false, "response": "Empty query"})
		return
	}
	reply := h.chat.Respond(r.Context(), req.Query, strings.TrimSpace(req.Username))
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"success":  true,
		"response": reply.Text,
	})
}

// PostTestTelegramAlert handles POST /test_telegram_alert.
func (h *Handler) PostTestTelegramAlert(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		writeError(w, r, http.StatusServiceUnavailable, "ALERTS_DISABLED", "Alerts are disabled")
		return
	}
	var body struct {
		Username string `json:"username"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	err := h.alerts.SendTest(r.Context(), strings.TrimSpace(body.Username))
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, map[string]interface{}{"success": true})
	case errors.Is(err, alerts.ErrNotLinked):
		writeError(w, r, http.StatusBadRequest, "NOT_LINKED", "User not linked")
	default:
		observability.LoggerFromContext(r.Context(), h.logger).Warn("test alert failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "TELEGRAM_FAILED", "Telegram failed")
	}
}

// alertsStatusResponse flattens the status next to the success flag.
type alertsStatusResponse struct {
	Success bool `json:"success"`
	alerts.Status
}

// GetAlertsStatus handles GET /alerts_status/{username}.
func (h *Handler) GetAlertsStatus(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		writeError(w, r, http.StatusServiceUnavailable, "ALERTS_DISABLED", "Alerts are disabled")
		return
	}
	st, err := h.alerts.Status(r.Context(), strings.TrimSpace(mux.Vars(r)["username"]))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
			return
		}
		h.writeUserError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, alertsStatusResponse{Success: true, Status: st})
}
