package handlers

import (
	"net/http"

	"github.com/upswake/upswake/internal/api/common"
)

type DeviceHandler struct {
	Deps *common.Dependencies
}

func NewDeviceHandler(deps *common.Dependencies) *DeviceHandler {
	return &DeviceHandler{Deps: deps}
}

// List handles GET /api/v1/devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.Deps.Store.ListDevices(r.Context())
	if common.HandleStoreError(w, r, err, "Device") {
		return
	}
	common.SendListResponse(w, devices, len(devices))
}

// Get handles GET /api/v1/devices/{id}
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	dev, err := h.Deps.Store.GetDevice(r.Context(), id)
	if common.HandleStoreError(w, r, err, "Device") {
		return
	}
	common.SendJSON(w, http.StatusOK, dev)
}

type renameRequest struct {
	DisplayName string `json:"display_name"`
}

// Rename handles PATCH /api/v1/devices/{id}. Devices are registered by the
// monitoring engine, never created through the API; only the display name is
// editable.
func (h *DeviceHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	req, ok := common.DecodeJSON[renameRequest](w, r)
	if !ok {
		return
	}
	if req.DisplayName == "" {
		common.SendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "display_name is required", nil)
		return
	}

	if common.HandleStoreError(w, r, h.Deps.Store.UpdateDeviceDisplayName(r.Context(), id, req.DisplayName), "Device") {
		return
	}

	dev, err := h.Deps.Store.GetDevice(r.Context(), id)
	if common.HandleStoreError(w, r, err, "Device") {
		return
	}
	common.SendJSON(w, http.StatusOK, dev)
}

// GetState handles GET /api/v1/devices/{id}/state
func (h *DeviceHandler) GetState(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	state, err := h.Deps.Store.GetDeviceState(r.Context(), id)
	if common.HandleStoreError(w, r, err, "Device state") {
		return
	}
	common.SendJSON(w, http.StatusOK, state)
}

// ListStates handles GET /api/v1/devices/states
func (h *DeviceHandler) ListStates(w http.ResponseWriter, r *http.Request) {
	states, err := h.Deps.Store.ListDeviceStates(r.Context())
	if common.HandleStoreError(w, r, err, "Device state") {
		return
	}
	common.SendListResponse(w, states, len(states))
}
