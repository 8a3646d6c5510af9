package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/upswake/upswake/internal/api/common"
	"github.com/upswake/upswake/internal/api/handlers"
	"github.com/upswake/upswake/internal/auth"
	"github.com/upswake/upswake/internal/config"
	"github.com/upswake/upswake/internal/middleware"
)

// RouterDeps carries everything the router needs; there is no package-level
// state.
type RouterDeps struct {
	Config  *config.Config
	Auth    *auth.Service
	Store   common.Store
	Monitor common.Monitor
	Ping    func(ctx context.Context) error
	Logger  *slog.Logger
}

// NewRouter creates and configures the API router
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	// CORS (if enabled)
	if deps.Config.CORS.Enabled {
		r.Use(middleware.CORS(
			deps.Config.CORS.AllowedOrigins,
			deps.Config.CORS.AllowedMethods,
			deps.Config.CORS.AllowedHeaders,
			deps.Config.CORS.MaxAgeSeconds,
		))
	}

	handlerDeps := &common.Dependencies{
		Store:    deps.Store,
		Auth:     deps.Auth,
		Monitor:  deps.Monitor,
		Validate: validator.New(),
		Logger:   logger,
	}

	healthHandler := NewHealthHandler(deps.Ping)
	systemHandler := handlers.NewSystemHandler(handlerDeps)
	agentHandler := handlers.NewAgentHandler(handlerDeps)
	deviceHandler := handlers.NewDeviceHandler(handlerDeps)
	subscriberHandler := handlers.NewSubscriberHandler(handlerDeps)
	monitoringHandler := handlers.NewMonitoringHandler(handlerDeps)

	// Public routes (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoint
		r.Post("/login", systemHandler.Login)

		// Protected routes (require JWT)
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(deps.Auth))

			// Agents (upsd endpoints)
			r.Route("/agents", func(r chi.Router) {
				r.Get("/", agentHandler.List)
				r.Post("/", agentHandler.Create)
				r.Get("/{id}", agentHandler.Get)
				r.Put("/{id}", agentHandler.Update)
				r.Delete("/{id}", agentHandler.Delete)
			})

			// Devices (auto-registered by the monitoring engine)
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", deviceHandler.List)
				r.Get("/states", deviceHandler.ListStates)
				r.Get("/{id}", deviceHandler.Get)
				r.Patch("/{id}", deviceHandler.Rename)
				r.Get("/{id}/state", deviceHandler.GetState)
				r.Post("/{id}/test-notification", monitoringHandler.TestTransition)
			})

			// Subscribers and their channel preferences
			r.Route("/subscribers", func(r chi.Router) {
				r.Get("/", subscriberHandler.List)
				r.Post("/", subscriberHandler.Create)
				r.Put("/{id}", subscriberHandler.Update)
				r.Delete("/{id}", subscriberHandler.Delete)
			})

			// Monitoring engine control
			r.Route("/monitoring", func(r chi.Router) {
				r.Get("/", monitoringHandler.Status)
				r.Post("/start", monitoringHandler.Start)
				r.Post("/stop", monitoringHandler.Stop)
				r.Post("/check", monitoringHandler.CheckNow)
			})

			// Notification audit log
			r.Get("/notifications", systemHandler.ListNotificationLog)
		})
	})

	return r
}
