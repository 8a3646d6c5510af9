package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upswake/upswake/internal/ups"
)

// Postgres implements Querier plus the CRUD surface used by the HTTP API.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps a pgx pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// GetDeviceState reads the durable last-known state for a device.
func (p *Postgres) GetDeviceState(ctx context.Context, deviceID uuid.UUID) (DeviceState, error) {
	const q = `
		SELECT device_id, state, changed_at
		FROM device_states
		WHERE device_id = $1
	`

	var ds DeviceState
	err := p.pool.QueryRow(ctx, q, deviceID).Scan(&ds.DeviceID, &ds.State, &ds.ChangedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeviceState{}, ErrNotFound
	}
	if err != nil {
		return DeviceState{}, fmt.Errorf("get device state: %w", err)
	}
	return ds, nil
}

// UpsertDeviceState inserts or replaces the single current-state row for a
// device. At most one row per device exists at any time.
func (p *Postgres) UpsertDeviceState(ctx context.Context, deviceID uuid.UUID, state ups.OperationalState, ts time.Time) error {
	const q = `
		INSERT INTO device_states (device_id, state, changed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_id)
		DO UPDATE SET state = EXCLUDED.state, changed_at = EXCLUDED.changed_at
	`

	if _, err := p.pool.Exec(ctx, q, deviceID, state, ts); err != nil {
		return fmt.Errorf("upsert device state: %w", err)
	}
	return nil
}

// FindDeviceByAgentAndName looks up a durable device record by its identity
// within an agent's namespace.
func (p *Postgres) FindDeviceByAgentAndName(ctx context.Context, agentID uuid.UUID, name string) (Device, error) {
	const q = `
		SELECT id, agent_id, name, display_name, created_at
		FROM devices
		WHERE agent_id = $1 AND name = $2
	`

	var d Device
	err := p.pool.QueryRow(ctx, q, agentID, name).Scan(&d.ID, &d.AgentID, &d.Name, &d.DisplayName, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, ErrNotFound
	}
	if err != nil {
		return Device{}, fmt.Errorf("find device: %w", err)
	}
	return d, nil
}

// InsertDevice registers a device, resolving a concurrent duplicate insert to
// the existing row instead of erroring.
func (p *Postgres) InsertDevice(ctx context.Context, agentID uuid.UUID, name, displayName string) (Device, error) {
	const q = `
		INSERT INTO devices (id, agent_id, name, display_name, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (agent_id, name) DO NOTHING
	`

	if _, err := p.pool.Exec(ctx, q, uuid.New(), agentID, name, displayName); err != nil {
		return Device{}, fmt.Errorf("insert device: %w", err)
	}

	// Re-read so a conflicting concurrent insert resolves to whichever row won.
	return p.FindDeviceByAgentAndName(ctx, agentID, name)
}

// ListAgents returns all configured agents.
func (p *Postgres) ListAgents(ctx context.Context) ([]Agent, error) {
	const q = `
		SELECT id, name, host, port, username, password, created_at, updated_at
		FROM agents
		WHERE deleted_at IS NULL
		ORDER BY name
	`

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Host, &a.Port, &a.Username, &a.Password, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// ListDevices returns all durable device records.
func (p *Postgres) ListDevices(ctx context.Context) ([]Device, error) {
	const q = `
		SELECT id, agent_id, name, display_name, created_at
		FROM devices
		ORDER BY name
	`

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.AgentID, &d.Name, &d.DisplayName, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// ListSubscribersWithNotificationsEnabled returns subscribers whose global
// notification flag is on.
func (p *Postgres) ListSubscribersWithNotificationsEnabled(ctx context.Context) ([]Subscriber, error) {
	const q = `
		SELECT id, name, created_at, updated_at
		FROM subscribers
		WHERE notify_enabled AND deleted_at IS NULL
		ORDER BY name
	`

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list enabled subscribers: %w", err)
	}
	defer rows.Close()

	var subs []Subscriber
	for rows.Next() {
		var s Subscriber
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// GetSubscriberPreferences returns one subscriber's alert flags and channel
// endpoints.
func (p *Postgres) GetSubscriberPreferences(ctx context.Context, subscriberID uuid.UUID) (Preferences, error) {
	const q = `
		SELECT notify_enabled, battery_alerts, low_battery_alerts,
		       COALESCE(discord_webhook, ''), COALESCE(slack_webhook, ''),
		       COALESCE(email_recipients, '{}')
		FROM subscribers
		WHERE id = $1 AND deleted_at IS NULL
	`

	var prefs Preferences
	err := p.pool.QueryRow(ctx, q, subscriberID).Scan(
		&prefs.NotifyEnabled,
		&prefs.BatteryAlerts,
		&prefs.LowBatteryAlerts,
		&prefs.DiscordWebhook,
		&prefs.SlackWebhook,
		&prefs.EmailRecipients,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Preferences{}, ErrNotFound
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("get subscriber preferences: %w", err)
	}
	return prefs, nil
}

// AppendNotificationLog writes one audit record. Records are write-once and
// never updated or deleted.
func (p *Postgres) AppendNotificationLog(ctx context.Context, record NotificationRecord) error {
	const q = `
		INSERT INTO notification_log
			(id, device_id, device_name, subscriber_id, previous_state, new_state, outcomes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	outcomes, err := json.Marshal(record.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	id := record.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var deviceID any
	if record.DeviceID != uuid.Nil {
		deviceID = record.DeviceID
	}

	if _, err := p.pool.Exec(ctx, q,
		id, deviceID, record.DeviceName, record.SubscriberID,
		record.PreviousState, record.NewState, outcomes, createdAt,
	); err != nil {
		return fmt.Errorf("append notification log: %w", err)
	}
	return nil
}
