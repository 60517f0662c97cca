package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/kjstillabower/aeris-dashboard-service/internal/user"
)

// PostRegister handles POST /register.
func (h *Handler) PostRegister(w http.ResponseWriter, r *http.Request) {
	var req user.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.users.Register(r.Context(), req)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"msg":     "Registered successfully",
		"user":    u,
	})
}

// PostLogin handles POST /login.
func (h *Handler) PostLogin(w http.ResponseWriter, r *http.Request) {
	var req user.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.users.Login(r.Context(), req)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"msg":     "Login successful",
		"user":    u,
	})
}

// GetUser handles GET /user/{username}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), strings.TrimSpace(mux.Vars(r)["username"]))
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    u,
	})
}

// PostUpdateUser handles POST /update_user. The body is the username plus any profile fields
// to change; a JSON null clears a field.
func (h *Handler) PostUpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if !decodeJSON(w, r, &patch) {
		return
	}
	var username string
	if raw, ok := patch["username"]; ok {
		_ = json.Unmarshal(raw, &username)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		writeError(w, r, http.StatusBadRequest, "MISSING_FIELDS", "Username is required")
		return
	}

	u, fields, err := h.users.Update(r.Context(), username, patch)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"success":        true,
		"msg":            "User updated",
		"user":           u,
		"updated_fields": fields,
	})
}
