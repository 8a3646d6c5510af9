package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/upswake/upswake/internal/auth"
	"github.com/upswake/upswake/internal/config"
	"github.com/upswake/upswake/internal/notify"
	"github.com/upswake/upswake/internal/store"
	"github.com/upswake/upswake/internal/ups"
)

func setupRouter(t *testing.T, st *MockStore, mon *MockMonitor) (http.Handler, string) {
	t.Helper()

	authService, err := auth.NewService("12345678901234567890123456789012", "admin", "test-password", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	router := NewRouter(RouterDeps{
		Config:  &config.Config{},
		Auth:    authService,
		Store:   st,
		Monitor: mon,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	login, err := authService.Login("admin", "test-password")
	if err != nil {
		t.Fatal(err)
	}
	return router, login.Token
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthAndReady(t *testing.T) {
	router, _ := setupRouter(t, &MockStore{}, &MockMonitor{})

	w := doJSON(t, router, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %s", resp.Status)
	}

	if w := doJSON(t, router, "GET", "/ready", "", nil); w.Code != http.StatusOK {
		t.Errorf("ready: expected 200, got %d", w.Code)
	}
}

func TestReady_DatabaseDown(t *testing.T) {
	authService, _ := auth.NewService("12345678901234567890123456789012", "admin", "test-password", time.Hour)
	router := NewRouter(RouterDeps{
		Config:  &config.Config{},
		Auth:    authService,
		Store:   &MockStore{},
		Monitor: &MockMonitor{},
		Ping:    func(context.Context) error { return context.DeadlineExceeded },
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	w := doJSON(t, router, "GET", "/ready", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestLogin(t *testing.T) {
	router, _ := setupRouter(t, &MockStore{}, &MockMonitor{})

	w := doJSON(t, router, "POST", "/api/v1/login", "", auth.LoginRequest{Username: "admin", Password: "test-password"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp auth.LoginResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" {
		t.Error("expected token in response")
	}

	w = doJSON(t, router, "POST", "/api/v1/login", "", auth.LoginRequest{Username: "admin", Password: "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router, token := setupRouter(t, &MockStore{}, &MockMonitor{})

	if w := doJSON(t, router, "GET", "/api/v1/agents/", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", w.Code)
	}
	if w := doJSON(t, router, "GET", "/api/v1/agents/", "garbage-token", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: expected 401, got %d", w.Code)
	}
	if w := doJSON(t, router, "GET", "/api/v1/agents/", token, nil); w.Code != http.StatusOK {
		t.Errorf("valid token: expected 200, got %d", w.Code)
	}
}

func TestAgentCRUD(t *testing.T) {
	agentID := uuid.New()
	st := &MockStore{
		ListAgentsFunc: func(context.Context) ([]store.Agent, error) {
			return []store.Agent{{ID: agentID, Name: "rack-a", Host: "10.0.0.5", Port: 3493}}, nil
		},
		GetAgentFunc: func(_ context.Context, id uuid.UUID) (store.Agent, error) {
			if id != agentID {
				return store.Agent{}, store.ErrNotFound
			}
			return store.Agent{ID: agentID, Name: "rack-a", Host: "10.0.0.5", Port: 3493}, nil
		},
	}
	router, token := setupRouter(t, st, &MockMonitor{})

	w := doJSON(t, router, "GET", "/api/v1/agents/", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var listResp struct {
		Data  []store.Agent `json:"data"`
		Total int           `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&listResp); err != nil {
		t.Fatal(err)
	}
	if listResp.Total != 1 {
		t.Errorf("expected total 1, got %d", listResp.Total)
	}

	w = doJSON(t, router, "POST", "/api/v1/agents/", token, store.Agent{Name: "rack-b", Host: "10.0.0.6"})
	if w.Code != http.StatusCreated {
		t.Errorf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created store.Agent
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Port != 3493 {
		t.Errorf("create should default port to 3493, got %d", created.Port)
	}

	// Missing host fails validation.
	w = doJSON(t, router, "POST", "/api/v1/agents/", token, store.Agent{Name: "rack-c"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid create: expected 400, got %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/v1/agents/"+uuid.New().String(), token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown agent: expected 404, got %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/v1/agents/not-a-uuid", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad uuid: expected 400, got %d", w.Code)
	}
}

func TestDeviceRename(t *testing.T) {
	devID := uuid.New()
	renamed := ""
	st := &MockStore{
		GetDeviceFunc: func(_ context.Context, id uuid.UUID) (store.Device, error) {
			if id != devID {
				return store.Device{}, store.ErrNotFound
			}
			return store.Device{ID: devID, Name: "ups1", DisplayName: renamed}, nil
		},
		UpdateDeviceDisplayNameFunc: func(_ context.Context, id uuid.UUID, displayName string) error {
			if id != devID {
				return store.ErrNotFound
			}
			renamed = displayName
			return nil
		},
	}
	router, token := setupRouter(t, st, &MockMonitor{})

	w := doJSON(t, router, "PATCH", "/api/v1/devices/"+devID.String(), token, map[string]string{"display_name": "Server room UPS"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if renamed != "Server room UPS" {
		t.Errorf("display name not updated: %q", renamed)
	}

	w = doJSON(t, router, "PATCH", "/api/v1/devices/"+devID.String(), token, map[string]string{"display_name": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty name: expected 400, got %d", w.Code)
	}
}

func TestSubscriberValidation(t *testing.T) {
	router, token := setupRouter(t, &MockStore{}, &MockMonitor{})

	valid := store.SubscriberWithPreferences{
		Subscriber: store.Subscriber{Name: "ops"},
		Preferences: store.Preferences{
			NotifyEnabled:  true,
			BatteryAlerts:  true,
			DiscordWebhook: "https://discord.com/api/webhooks/1/abc",
		},
	}
	if w := doJSON(t, router, "POST", "/api/v1/subscribers/", token, valid); w.Code != http.StatusCreated {
		t.Errorf("valid subscriber: expected 201, got %d", w.Code)
	}

	invalid := valid
	invalid.DiscordWebhook = "not-a-url"
	if w := doJSON(t, router, "POST", "/api/v1/subscribers/", token, invalid); w.Code != http.StatusBadRequest {
		t.Errorf("bad webhook: expected 400, got %d", w.Code)
	}

	invalid = valid
	invalid.EmailRecipients = []string{"nope"}
	if w := doJSON(t, router, "POST", "/api/v1/subscribers/", token, invalid); w.Code != http.StatusBadRequest {
		t.Errorf("bad email: expected 400, got %d", w.Code)
	}
}

func TestMonitoringControl(t *testing.T) {
	mon := &MockMonitor{}
	router, token := setupRouter(t, &MockStore{}, mon)

	w := doJSON(t, router, "GET", "/api/v1/monitoring/", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", w.Code)
	}

	if w := doJSON(t, router, "POST", "/api/v1/monitoring/start", token, nil); w.Code != http.StatusOK {
		t.Errorf("start: expected 200, got %d", w.Code)
	}
	if !mon.Running {
		t.Error("monitor not started")
	}

	if w := doJSON(t, router, "POST", "/api/v1/monitoring/check", token, nil); w.Code != http.StatusOK {
		t.Errorf("check: expected 200, got %d", w.Code)
	}

	if w := doJSON(t, router, "POST", "/api/v1/monitoring/stop", token, nil); w.Code != http.StatusOK {
		t.Errorf("stop: expected 200, got %d", w.Code)
	}
	if mon.Running {
		t.Error("monitor not stopped")
	}
}

func TestTestTransitionEndpoint(t *testing.T) {
	devID := uuid.New()
	var gotNew, gotOld ups.OperationalState
	mon := &MockMonitor{
		ForceTransitionFunc: func(_ context.Context, id uuid.UUID, newState, oldState ups.OperationalState) ([]notify.SubscriberResult, error) {
			if id != devID {
				return nil, store.ErrNotFound
			}
			gotNew, gotOld = newState, oldState
			return nil, nil
		},
	}
	router, token := setupRouter(t, &MockStore{}, mon)

	w := doJSON(t, router, "POST", "/api/v1/devices/"+devID.String()+"/test-notification", token, map[string]string{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	// Defaults simulate a power-loss transition.
	if gotNew != ups.StateOnBattery || gotOld != ups.StateOnline {
		t.Errorf("default transition = %s -> %s, want online -> on_battery", gotOld, gotNew)
	}

	w = doJSON(t, router, "POST", "/api/v1/devices/"+uuid.New().String()+"/test-notification", token, map[string]string{})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown device: expected 404, got %d", w.Code)
	}
}
