package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/upswake/upswake/internal/api/common"
	"github.com/upswake/upswake/internal/auth"
)

type SystemHandler struct {
	Deps *common.Dependencies
}

func NewSystemHandler(deps *common.Dependencies) *SystemHandler {
	return &SystemHandler{Deps: deps}
}

// Login handles POST /api/v1/login
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.SendError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON payload", nil)
		return
	}

	if req.Username == "" || req.Password == "" {
		common.SendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Username and password are required", nil)
		return
	}

	response, err := h.Deps.Auth.Login(req.Username, req.Password)
	if err != nil {
		common.SendError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials", nil)
		return
	}

	common.SendJSON(w, http.StatusOK, response)
}

// ListNotificationLog handles GET /api/v1/notifications?limit=N
func (h *SystemHandler) ListNotificationLog(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			common.SendError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	records, err := h.Deps.Store.ListNotificationLog(r.Context(), limit)
	if common.HandleStoreError(w, r, err, "Notification log") {
		return
	}
	common.SendListResponse(w, records, len(records))
}
