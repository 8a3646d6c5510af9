package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/upswake/upswake/internal/ups"
)

// ErrNotFound is returned by read operations when no matching row exists.
var ErrNotFound = errors.New("store: not found")

// Querier is the narrow durable-store surface the monitoring core consumes.
type Querier interface {
	GetDeviceState(ctx context.Context, deviceID uuid.UUID) (DeviceState, error)
	UpsertDeviceState(ctx context.Context, deviceID uuid.UUID, state ups.OperationalState, ts time.Time) error
	FindDeviceByAgentAndName(ctx context.Context, agentID uuid.UUID, name string) (Device, error)
	InsertDevice(ctx context.Context, agentID uuid.UUID, name, displayName string) (Device, error)
	ListAgents(ctx context.Context) ([]Agent, error)
	ListDevices(ctx context.Context) ([]Device, error)
	ListSubscribersWithNotificationsEnabled(ctx context.Context) ([]Subscriber, error)
	GetSubscriberPreferences(ctx context.Context, subscriberID uuid.UUID) (Preferences, error)
	AppendNotificationLog(ctx context.Context, record NotificationRecord) error
}

// StateStore tracks the last known operational state per device. Reads prefer
// the durable row and fall back to the in-memory cache; writes go through the
// cache first so readers stay consistent even when the durable write fails.
// The cache is authoritative for the life of the process.
type StateStore struct {
	querier Querier
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[DeviceKey]ups.OperationalState
}

// NewStateStore creates a state store backed by the given durable querier.
func NewStateStore(querier Querier, logger *slog.Logger) *StateStore {
	return &StateStore{
		querier: querier,
		logger:  logger.With("component", "statestore"),
		cache:   make(map[DeviceKey]ups.OperationalState),
	}
}

// Get returns the last known state for a device. The second return value is
// false when the device has never been observed, which callers treat as a
// first observation. Durable-read errors degrade to the cache.
func (s *StateStore) Get(ctx context.Context, dev Device) (ups.OperationalState, bool) {
	if !dev.Virtual {
		ds, err := s.querier.GetDeviceState(ctx, dev.ID)
		if err == nil {
			return ds.State, true
		}
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("durable state read failed, falling back to cache",
				"device_id", dev.ID,
				"device", dev.Name,
				"error", err,
			)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.cache[dev.Key()]
	return state, ok
}

// Set records a new state for a device. The cache is updated first; the
// durable upsert is best-effort and a failure is logged, not retried.
func (s *StateStore) Set(ctx context.Context, dev Device, state ups.OperationalState) {
	s.mu.Lock()
	s.cache[dev.Key()] = state
	s.mu.Unlock()

	if dev.Virtual {
		// No durable identity yet; the cache carries the observation until
		// registration succeeds.
		return
	}

	if err := s.querier.UpsertDeviceState(ctx, dev.ID, state, time.Now().UTC()); err != nil {
		s.logger.Error("durable state write failed, cache remains authoritative",
			"device_id", dev.ID,
			"device", dev.Name,
			"state", state,
			"error", err,
		)
	}
}

// CacheSize returns the number of devices with a cached observation.
func (s *StateStore) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}
