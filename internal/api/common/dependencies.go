package common

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/upswake/upswake/internal/auth"
	"github.com/upswake/upswake/internal/notify"
	"github.com/upswake/upswake/internal/store"
	"github.com/upswake/upswake/internal/ups"
)

// Store is the durable surface the API handlers consume. *store.Postgres
// satisfies it; tests swap in fakes.
type Store interface {
	store.Querier

	GetAgent(ctx context.Context, id uuid.UUID) (store.Agent, error)
	CreateAgent(ctx context.Context, a store.Agent) (store.Agent, error)
	UpdateAgent(ctx context.Context, a store.Agent) (store.Agent, error)
	DeleteAgent(ctx context.Context, id uuid.UUID) error

	GetDevice(ctx context.Context, id uuid.UUID) (store.Device, error)
	UpdateDeviceDisplayName(ctx context.Context, id uuid.UUID, displayName string) error
	ListDeviceStates(ctx context.Context) ([]store.DeviceState, error)

	ListSubscribers(ctx context.Context) ([]store.SubscriberWithPreferences, error)
	CreateSubscriber(ctx context.Context, s store.SubscriberWithPreferences) (uuid.UUID, error)
	UpdateSubscriber(ctx context.Context, s store.SubscriberWithPreferences) error
	DeleteSubscriber(ctx context.Context, id uuid.UUID) error

	ListNotificationLog(ctx context.Context, limit int) ([]store.NotificationRecord, error)
}

// Monitor is the control surface of the monitoring engine.
type Monitor interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
	CheckAllNow(ctx context.Context) error
	ForceTransitionTest(ctx context.Context, deviceID uuid.UUID, newState, oldState ups.OperationalState) ([]notify.SubscriberResult, error)
}

// Dependencies holds common dependencies for API handlers
type Dependencies struct {
	Store    Store
	Auth     *auth.Service
	Monitor  Monitor
	Validate *validator.Validate
	Logger   *slog.Logger
}
