package api

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/upswake/upswake/internal/notify"
	"github.com/upswake/upswake/internal/store"
	"github.com/upswake/upswake/internal/ups"
)

// MockStore implements common.Store with overridable function fields.
// Unset fields return empty results or ErrNotFound.
type MockStore struct {
	ListAgentsFunc              func(ctx context.Context) ([]store.Agent, error)
	GetAgentFunc                func(ctx context.Context, id uuid.UUID) (store.Agent, error)
	CreateAgentFunc             func(ctx context.Context, a store.Agent) (store.Agent, error)
	UpdateAgentFunc             func(ctx context.Context, a store.Agent) (store.Agent, error)
	DeleteAgentFunc             func(ctx context.Context, id uuid.UUID) error
	ListDevicesFunc             func(ctx context.Context) ([]store.Device, error)
	GetDeviceFunc               func(ctx context.Context, id uuid.UUID) (store.Device, error)
	UpdateDeviceDisplayNameFunc func(ctx context.Context, id uuid.UUID, displayName string) error
	GetDeviceStateFunc          func(ctx context.Context, deviceID uuid.UUID) (store.DeviceState, error)
	ListDeviceStatesFunc        func(ctx context.Context) ([]store.DeviceState, error)
	ListSubscribersFunc         func(ctx context.Context) ([]store.SubscriberWithPreferences, error)
	CreateSubscriberFunc        func(ctx context.Context, s store.SubscriberWithPreferences) (uuid.UUID, error)
	UpdateSubscriberFunc        func(ctx context.Context, s store.SubscriberWithPreferences) error
	DeleteSubscriberFunc        func(ctx context.Context, id uuid.UUID) error
	ListNotificationLogFunc     func(ctx context.Context, limit int) ([]store.NotificationRecord, error)
}

func (m *MockStore) ListAgents(ctx context.Context) ([]store.Agent, error) {
	if m.ListAgentsFunc != nil {
		return m.ListAgentsFunc(ctx)
	}
	return nil, nil
}

func (m *MockStore) GetAgent(ctx context.Context, id uuid.UUID) (store.Agent, error) {
	if m.GetAgentFunc != nil {
		return m.GetAgentFunc(ctx, id)
	}
	return store.Agent{}, store.ErrNotFound
}

func (m *MockStore) CreateAgent(ctx context.Context, a store.Agent) (store.Agent, error) {
	if m.CreateAgentFunc != nil {
		return m.CreateAgentFunc(ctx, a)
	}
	a.ID = uuid.New()
	return a, nil
}

func (m *MockStore) UpdateAgent(ctx context.Context, a store.Agent) (store.Agent, error) {
	if m.UpdateAgentFunc != nil {
		return m.UpdateAgentFunc(ctx, a)
	}
	return a, nil
}

func (m *MockStore) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	if m.DeleteAgentFunc != nil {
		return m.DeleteAgentFunc(ctx, id)
	}
	return nil
}

func (m *MockStore) ListDevices(ctx context.Context) ([]store.Device, error) {
	if m.ListDevicesFunc != nil {
		return m.ListDevicesFunc(ctx)
	}
	return nil, nil
}

func (m *MockStore) GetDevice(ctx context.Context, id uuid.UUID) (store.Device, error) {
	if m.GetDeviceFunc != nil {
		return m.GetDeviceFunc(ctx, id)
	}
	return store.Device{}, store.ErrNotFound
}

func (m *MockStore) UpdateDeviceDisplayName(ctx context.Context, id uuid.UUID, displayName string) error {
	if m.UpdateDeviceDisplayNameFunc != nil {
		return m.UpdateDeviceDisplayNameFunc(ctx, id, displayName)
	}
	return store.ErrNotFound
}

func (m *MockStore) GetDeviceState(ctx context.Context, deviceID uuid.UUID) (store.DeviceState, error) {
	if m.GetDeviceStateFunc != nil {
		return m.GetDeviceStateFunc(ctx, deviceID)
	}
	return store.DeviceState{}, store.ErrNotFound
}

func (m *MockStore) ListDeviceStates(ctx context.Context) ([]store.DeviceState, error) {
	if m.ListDeviceStatesFunc != nil {
		return m.ListDeviceStatesFunc(ctx)
	}
	return nil, nil
}

func (m *MockStore) ListSubscribers(ctx context.Context) ([]store.SubscriberWithPreferences, error) {
	if m.ListSubscribersFunc != nil {
		return m.ListSubscribersFunc(ctx)
	}
	return nil, nil
}

func (m *MockStore) CreateSubscriber(ctx context.Context, s store.SubscriberWithPreferences) (uuid.UUID, error) {
	if m.CreateSubscriberFunc != nil {
		return m.CreateSubscriberFunc(ctx, s)
	}
	return uuid.New(), nil
}

func (m *MockStore) UpdateSubscriber(ctx context.Context, s store.SubscriberWithPreferences) error {
	if m.UpdateSubscriberFunc != nil {
		return m.UpdateSubscriberFunc(ctx, s)
	}
	return nil
}

func (m *MockStore) DeleteSubscriber(ctx context.Context, id uuid.UUID) error {
	if m.DeleteSubscriberFunc != nil {
		return m.DeleteSubscriberFunc(ctx, id)
	}
	return nil
}

func (m *MockStore) ListNotificationLog(ctx context.Context, limit int) ([]store.NotificationRecord, error) {
	if m.ListNotificationLogFunc != nil {
		return m.ListNotificationLogFunc(ctx, limit)
	}
	return nil, nil
}

// Querier methods not exercised over HTTP.

func (m *MockStore) UpsertDeviceState(context.Context, uuid.UUID, ups.OperationalState, time.Time) error {
	return nil
}

func (m *MockStore) FindDeviceByAgentAndName(context.Context, uuid.UUID, string) (store.Device, error) {
	return store.Device{}, store.ErrNotFound
}

func (m *MockStore) InsertDevice(context.Context, uuid.UUID, string, string) (store.Device, error) {
	return store.Device{}, store.ErrNotFound
}

func (m *MockStore) ListSubscribersWithNotificationsEnabled(context.Context) ([]store.Subscriber, error) {
	return nil, nil
}

func (m *MockStore) GetSubscriberPreferences(context.Context, uuid.UUID) (store.Preferences, error) {
	return store.Preferences{}, store.ErrNotFound
}

func (m *MockStore) AppendNotificationLog(context.Context, store.NotificationRecord) error {
	return nil
}

// MockMonitor implements common.Monitor.
type MockMonitor struct {
	Running             bool
	CheckAllNowFunc     func(ctx context.Context) error
	ForceTransitionFunc func(ctx context.Context, deviceID uuid.UUID, newState, oldState ups.OperationalState) ([]notify.SubscriberResult, error)
}

func (m *MockMonitor) Start(context.Context) error { m.Running = true; return nil }
func (m *MockMonitor) Stop()                       { m.Running = false }
func (m *MockMonitor) IsRunning() bool             { return m.Running }

func (m *MockMonitor) CheckAllNow(ctx context.Context) error {
	if m.CheckAllNowFunc != nil {
		return m.CheckAllNowFunc(ctx)
	}
	return nil
}

func (m *MockMonitor) ForceTransitionTest(ctx context.Context, deviceID uuid.UUID, newState, oldState ups.OperationalState) ([]notify.SubscriberResult, error) {
	if m.ForceTransitionFunc != nil {
		return m.ForceTransitionFunc(ctx, deviceID, newState, oldState)
	}
	return nil, store.ErrNotFound
}
