// Package monitor implements the UPS state-monitoring engine: per-agent
// session management with automatic reconnection, per-device watch loops,
// and the session-independent polling fallback sweep.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/upswake/upswake/internal/config"
	"github.com/upswake/upswake/internal/notify"
	"github.com/upswake/upswake/internal/store"
	"github.com/upswake/upswake/internal/ups"
)

// ProtocolSession is the live-session surface the watchers consume.
type ProtocolSession interface {
	ListDevices(ctx context.Context) ([]string, error)
	GetVariables(ctx context.Context, deviceName string) (map[string]string, error)
	Closed() <-chan struct{}
	Close() error
}

// ProtocolClient connects to agents and performs stateless sweeps.
type ProtocolClient interface {
	Connect(ctx context.Context, agent store.Agent) (ProtocolSession, error)
	FetchAll(ctx context.Context, agent store.Agent) (map[string]map[string]string, error)
}

// Notifier receives detected transitions.
type Notifier interface {
	Dispatch(ctx context.Context, dev store.Device, newState, oldState ups.OperationalState) []notify.SubscriberResult
}

// Service owns all monitoring state: the session registry, the watch loops,
// and the fallback scanner. Construct one per process (or per test); there
// are no package-level singletons.
type Service struct {
	querier  store.Querier
	states   *store.StateStore
	client   ProtocolClient
	notifier Notifier
	cfg      config.MonitorConfig
	logger   *slog.Logger

	sessions *sessionRegistry

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService wires the monitoring engine.
func NewService(
	querier store.Querier,
	states *store.StateStore,
	client ProtocolClient,
	notifier Notifier,
	cfg config.MonitorConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		querier:  querier,
		states:   states,
		client:   client,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "monitor"),
		sessions: newSessionRegistry(),
	}
}

// Start launches one connection loop per configured agent plus the fallback
// scanner. It is idempotent; a second call while running is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	agents, err := s.querier.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.logger.Info("monitoring starting",
		"agents", len(agents),
		"tick", s.cfg.GetTickInterval(),
		"fallback_interval", s.cfg.GetFallbackInterval(),
		"reconnect_delay", s.cfg.GetReconnectDelay(),
	)

	for _, agent := range agents {
		s.wg.Add(1)
		go func(agent store.Agent) {
			defer s.wg.Done()
			s.runAgent(runCtx, agent)
		}(agent)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runScanner(runCtx)
	}()

	return nil
}

// Stop cancels all watch loops and closes all sessions. In-flight channel
// deliveries are allowed to complete or exhaust their retries. Idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("monitoring stopped")
}

// IsRunning reports whether the monitoring loops are active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CheckAllNow runs one fallback-scan cycle synchronously, independent of the
// background timers.
func (s *Service) CheckAllNow(ctx context.Context) error {
	return s.scanOnce(ctx)
}

// ForceTransitionTest bypasses detection and invokes the dispatcher directly
// for a registered device. It exists for operational testing of channel
// configuration.
func (s *Service) ForceTransitionTest(ctx context.Context, deviceID uuid.UUID, newState, oldState ups.OperationalState) ([]notify.SubscriberResult, error) {
	devices, err := s.querier.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	for _, dev := range devices {
		if dev.ID == deviceID {
			s.logger.Info("forced transition test",
				"device", dev.Name,
				"transition", notify.Describe(newState, oldState),
			)
			return s.notifier.Dispatch(ctx, dev, newState, oldState), nil
		}
	}
	return nil, store.ErrNotFound
}

// resolveDevice promotes a virtual device to its durable record, registering
// it on first sight. Registration failures leave the device virtual; the
// watcher keeps operating on the cache until a later tick succeeds.
func (s *Service) resolveDevice(ctx context.Context, dev store.Device, logger *slog.Logger) store.Device {
	if !dev.Virtual {
		return dev
	}

	existing, err := s.querier.FindDeviceByAgentAndName(ctx, dev.AgentID, dev.Name)
	if err == nil {
		return existing
	}
	if !errors.Is(err, store.ErrNotFound) {
		logger.Warn("device lookup failed, staying virtual", "error", err)
		return dev
	}

	created, err := s.querier.InsertDevice(ctx, dev.AgentID, dev.Name, dev.DisplayName)
	if err != nil {
		logger.Warn("device registration failed, staying virtual", "error", err)
		return dev
	}

	logger.Info("device registered", "device_id", created.ID)
	return created
}

// sleepCtx waits for the duration or context cancellation, reporting whether
// the full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
