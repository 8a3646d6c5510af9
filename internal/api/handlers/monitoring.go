package handlers

import (
	"net/http"

	"github.com/upswake/upswake/internal/api/common"
	"github.com/upswake/upswake/internal/ups"
)

type MonitoringHandler struct {
	Deps *common.Dependencies
}

func NewMonitoringHandler(deps *common.Dependencies) *MonitoringHandler {
	return &MonitoringHandler{Deps: deps}
}

// Status handles GET /api/v1/monitoring
func (h *MonitoringHandler) Status(w http.ResponseWriter, r *http.Request) {
	common.SendJSON(w, http.StatusOK, map[string]any{
		"running": h.Deps.Monitor.IsRunning(),
	})
}

// Start handles POST /api/v1/monitoring/start
func (h *MonitoringHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.Deps.Monitor.Start(r.Context()); err != nil {
		common.SendError(w, r, http.StatusInternalServerError, "MONITOR_ERROR", "Failed to start monitoring", err.Error())
		return
	}
	common.SendJSON(w, http.StatusOK, map[string]any{"running": true})
}

// Stop handles POST /api/v1/monitoring/stop
func (h *MonitoringHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.Deps.Monitor.Stop()
	common.SendJSON(w, http.StatusOK, map[string]any{"running": false})
}

// CheckNow handles POST /api/v1/monitoring/check. It runs one fallback-scan
// cycle synchronously and reports when the sweep has completed.
func (h *MonitoringHandler) CheckNow(w http.ResponseWriter, r *http.Request) {
	if err := h.Deps.Monitor.CheckAllNow(r.Context()); err != nil {
		common.SendError(w, r, http.StatusInternalServerError, "MONITOR_ERROR", "Check cycle failed", err.Error())
		return
	}
	common.SendJSON(w, http.StatusOK, map[string]any{"status": "completed"})
}

type testTransitionRequest struct {
	NewState ups.OperationalState `json:"new_state"`
	OldState ups.OperationalState `json:"old_state"`
}

// TestTransition handles POST /api/v1/devices/{id}/test-notification. It
// injects a synthetic transition straight into the dispatch pipeline so
// operators can verify channel configuration end to end.
func (h *MonitoringHandler) TestTransition(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	req, ok := common.DecodeJSON[testTransitionRequest](w, r)
	if !ok {
		return
	}
	if req.NewState == "" {
		req.NewState = ups.StateOnBattery
	}
	if req.OldState == "" {
		req.OldState = ups.StateOnline
	}

	results, err := h.Deps.Monitor.ForceTransitionTest(r.Context(), id, req.NewState, req.OldState)
	if common.HandleStoreError(w, r, err, "Device") {
		return
	}
	common.SendListResponse(w, results, len(results))
}
