// Package store provides the durable Postgres store and the write-through
// state cache used by the monitoring core.
package store

import (
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/upswake/upswake/internal/ups"
)

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Agent is a upsd endpoint fronting one or more UPS devices. Agents are
// managed through the API; the monitoring core only reads them.
type Agent struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      string     `db:"name" json:"name" validate:"required"`
	Host      string     `db:"host" json:"host" validate:"required,hostname|ip"`
	Port      int        `db:"port" json:"port" validate:"gte=0,lte=65535"`
	Username  string     `db:"username" json:"username,omitempty"`
	Password  string     `db:"password" json:"-"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// Addr returns the host:port dial target for the agent.
func (a Agent) Addr() string {
	port := a.Port
	if port <= 0 {
		port = 3493
	}
	return joinHostPort(a.Host, port)
}

// Device is one monitored UPS, identified within an agent's namespace.
// A device observed over a session before it has a durable row is carried as
// a virtual placeholder (Virtual=true, ID=uuid.Nil) until registration
// promotes it.
type Device struct {
	ID          uuid.UUID `db:"id" json:"id"`
	AgentID     uuid.UUID `db:"agent_id" json:"agent_id"`
	Name        string    `db:"name" json:"name"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Virtual     bool      `db:"-" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Key returns the (agent, name) identity that is stable across promotion
// from virtual to durable.
func (d Device) Key() DeviceKey {
	return DeviceKey{AgentID: d.AgentID, Name: d.Name}
}

// Label returns the display name, falling back to the upsd device name.
func (d Device) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name
}

// DeviceKey identifies a device independent of durable registration.
type DeviceKey struct {
	AgentID uuid.UUID
	Name    string
}

// DeviceState is the last known operational state of a device.
type DeviceState struct {
	DeviceID  uuid.UUID            `db:"device_id" json:"device_id"`
	State     ups.OperationalState `db:"state" json:"state"`
	ChangedAt time.Time            `db:"changed_at" json:"changed_at"`
}

// Subscriber is an operator who may receive notifications.
type Subscriber struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      string     `db:"name" json:"name" validate:"required"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// SubscriberWithPreferences joins a subscriber row with its preferences, the
// shape the API reads and writes.
type SubscriberWithPreferences struct {
	Subscriber
	Preferences
}

// Preferences are a subscriber's alert flags and channel endpoints.
type Preferences struct {
	NotifyEnabled    bool     `db:"notify_enabled" json:"notify_enabled"`
	BatteryAlerts    bool     `db:"battery_alerts" json:"battery_alerts"`
	LowBatteryAlerts bool     `db:"low_battery_alerts" json:"low_battery_alerts"`
	DiscordWebhook   string   `db:"discord_webhook" json:"discord_webhook,omitempty" validate:"omitempty,url"`
	SlackWebhook     string   `db:"slack_webhook" json:"slack_webhook,omitempty" validate:"omitempty,url"`
	EmailRecipients  []string `db:"email_recipients" json:"email_recipients,omitempty" validate:"dive,email"`
}

// ChannelOutcome records one channel's delivery result for the audit log.
type ChannelOutcome struct {
	Channel  string `json:"channel"`
	Success  bool   `json:"success"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// NotificationRecord is the write-once audit entry for one subscriber and
// one transition.
type NotificationRecord struct {
	ID            uuid.UUID            `db:"id" json:"id"`
	DeviceID      uuid.UUID            `db:"device_id" json:"device_id"`
	DeviceName    string               `db:"device_name" json:"device_name"`
	SubscriberID  uuid.UUID            `db:"subscriber_id" json:"subscriber_id"`
	PreviousState ups.OperationalState `db:"previous_state" json:"previous_state"`
	NewState      ups.OperationalState `db:"new_state" json:"new_state"`
	Outcomes      []ChannelOutcome     `db:"outcomes" json:"outcomes"`
	CreatedAt     time.Time            `db:"created_at" json:"created_at"`
}
