package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/upswake/upswake/internal/api"
	"github.com/upswake/upswake/internal/auth"
	"github.com/upswake/upswake/internal/config"
	"github.com/upswake/upswake/internal/database"
	"github.com/upswake/upswake/internal/monitor"
	"github.com/upswake/upswake/internal/notify"
	"github.com/upswake/upswake/internal/store"
	"github.com/upswake/upswake/internal/upsd"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	logger := initLogger(cfg.Logging)
	logger.Info("Starting upswake server",
		"version", "1.0.0",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection
	pool, err := database.Connect(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("DB init failed: %v", err)
	}
	defer pool.Close()

	// Run embedded migrations (compiled into the binary)
	if err := database.RunMigrations(&cfg.Database); err != nil {
		log.Fatalf("Migrations failed: %v", err)
	}

	// Initialize authentication service
	authService, err := auth.NewService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AdminUsername,
		cfg.Auth.AdminPassword,
		cfg.Auth.GetJWTExpiry(),
	)
	if err != nil {
		log.Fatalf("Failed to initialize auth service: %v", err)
	}

	// Durable store and write-through state cache
	pg := store.NewPostgres(pool)
	states := store.NewStateStore(pg, logger)

	// Notification channels and dispatcher
	httpClient := &http.Client{Timeout: 10 * time.Second}
	channels := notify.Channels{
		Discord: notify.NewDiscordAdapter(httpClient),
		Slack:   notify.NewSlackAdapter(httpClient),
		Email: notify.NewEmailAdapter(notify.SMTPConfig{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			From:     cfg.Notify.SMTPFrom,
			Username: cfg.Notify.SMTPUsername,
			Password: cfg.Notify.SMTPPassword,
		}),
	}
	dispatcher := notify.NewDispatcher(pg, channels, cfg.Notify.MaxAttempts, cfg.Notify.GetBackoffUnit(), logger)

	// Monitoring engine
	upsdClient := upsd.NewClient(cfg.Monitor.GetDialTimeout(), cfg.Monitor.GetCommandTimeout(), logger)
	monitorService := monitor.NewService(pg, states, monitor.NewUpsdProtocol(upsdClient), dispatcher, cfg.Monitor, logger)

	if err := monitorService.Start(ctx); err != nil {
		logger.Error("Failed to start monitoring", "error", err)
	}

	// Create API router
	router := api.NewRouter(api.RouterDeps{
		Config:  cfg,
		Auth:    authService,
		Store:   pg,
		Monitor: monitorService,
		Ping:    pool.Ping,
		Logger:  logger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)

		var err error
		if cfg.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the watch loops first so no new notifications start mid-shutdown.
	monitorService.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped gracefully")
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
