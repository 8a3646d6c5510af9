package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CRUD surface consumed by the HTTP API handlers. The monitoring core never
// touches these; it sees only the Querier interface.

// GetAgent returns one agent by ID.
func (p *Postgres) GetAgent(ctx context.Context, id uuid.UUID) (Agent, error) {
	const q = `
		SELECT id, name, host, port, username, password, created_at, updated_at
		FROM agents
		WHERE id = $1 AND deleted_at IS NULL
	`

	var a Agent
	err := p.pool.QueryRow(ctx, q, id).Scan(&a.ID, &a.Name, &a.Host, &a.Port, &a.Username, &a.Password, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

// CreateAgent inserts a new agent.
func (p *Postgres) CreateAgent(ctx context.Context, a Agent) (Agent, error) {
	const q = `
		INSERT INTO agents (id, name, host, port, username, password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, name, host, port, username, password, created_at, updated_at
	`

	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var out Agent
	err := p.pool.QueryRow(ctx, q, id, a.Name, a.Host, a.Port, a.Username, a.Password).
		Scan(&out.ID, &out.Name, &out.Host, &out.Port, &out.Username, &out.Password, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return Agent{}, fmt.Errorf("create agent: %w", err)
	}
	return out, nil
}

// UpdateAgent replaces an agent's mutable fields.
func (p *Postgres) UpdateAgent(ctx context.Context, a Agent) (Agent, error) {
	const q = `
		UPDATE agents
		SET name = $2, host = $3, port = $4, username = $5, password = $6, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING id, name, host, port, username, password, created_at, updated_at
	`

	var out Agent
	err := p.pool.QueryRow(ctx, q, a.ID, a.Name, a.Host, a.Port, a.Username, a.Password).
		Scan(&out.ID, &out.Name, &out.Host, &out.Port, &out.Username, &out.Password, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("update agent: %w", err)
	}
	return out, nil
}

// DeleteAgent soft-deletes an agent.
func (p *Postgres) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE agents SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	tag, err := p.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDevice returns one device by ID.
func (p *Postgres) GetDevice(ctx context.Context, id uuid.UUID) (Device, error) {
	const q = `
		SELECT id, agent_id, name, display_name, created_at
		FROM devices
		WHERE id = $1
	`

	var d Device
	err := p.pool.QueryRow(ctx, q, id).Scan(&d.ID, &d.AgentID, &d.Name, &d.DisplayName, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, ErrNotFound
	}
	if err != nil {
		return Device{}, fmt.Errorf("get device: %w", err)
	}
	return d, nil
}

// UpdateDeviceDisplayName renames a device for display purposes.
func (p *Postgres) UpdateDeviceDisplayName(ctx context.Context, id uuid.UUID, displayName string) error {
	const q = `UPDATE devices SET display_name = $2 WHERE id = $1`

	tag, err := p.pool.Exec(ctx, q, id, displayName)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSubscribers returns all subscribers with their preferences, including
// those with notifications disabled.
func (p *Postgres) ListSubscribers(ctx context.Context) ([]SubscriberWithPreferences, error) {
	const q = `
		SELECT id, name, notify_enabled, battery_alerts, low_battery_alerts,
		       COALESCE(discord_webhook, ''), COALESCE(slack_webhook, ''),
		       COALESCE(email_recipients, '{}'), created_at, updated_at
		FROM subscribers
		WHERE deleted_at IS NULL
		ORDER BY name
	`

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var subs []SubscriberWithPreferences
	for rows.Next() {
		var s SubscriberWithPreferences
		if err := rows.Scan(
			&s.ID, &s.Name,
			&s.NotifyEnabled, &s.BatteryAlerts, &s.LowBatteryAlerts,
			&s.DiscordWebhook, &s.SlackWebhook, &s.EmailRecipients,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// CreateSubscriber inserts a subscriber with preferences.
func (p *Postgres) CreateSubscriber(ctx context.Context, s SubscriberWithPreferences) (uuid.UUID, error) {
	const q = `
		INSERT INTO subscribers
			(id, name, notify_enabled, battery_alerts, low_battery_alerts,
			 discord_webhook, slack_webhook, email_recipients, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`

	id := s.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	if _, err := p.pool.Exec(ctx, q,
		id, s.Name, s.NotifyEnabled, s.BatteryAlerts, s.LowBatteryAlerts,
		nullable(s.DiscordWebhook), nullable(s.SlackWebhook), s.EmailRecipients,
	); err != nil {
		return uuid.Nil, fmt.Errorf("create subscriber: %w", err)
	}
	return id, nil
}

// UpdateSubscriber replaces a subscriber's preferences.
func (p *Postgres) UpdateSubscriber(ctx context.Context, s SubscriberWithPreferences) error {
	const q = `
		UPDATE subscribers
		SET name = $2, notify_enabled = $3, battery_alerts = $4, low_battery_alerts = $5,
		    discord_webhook = $6, slack_webhook = $7, email_recipients = $8, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := p.pool.Exec(ctx, q,
		s.ID, s.Name, s.NotifyEnabled, s.BatteryAlerts, s.LowBatteryAlerts,
		nullable(s.DiscordWebhook), nullable(s.SlackWebhook), s.EmailRecipients,
	)
	if err != nil {
		return fmt.Errorf("update subscriber: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubscriber soft-deletes a subscriber.
func (p *Postgres) DeleteSubscriber(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE subscribers SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	tag, err := p.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListNotificationLog returns the most recent audit entries, newest first.
func (p *Postgres) ListNotificationLog(ctx context.Context, limit int) ([]NotificationRecord, error) {
	const q = `
		SELECT id, COALESCE(device_id, '00000000-0000-0000-0000-000000000000'), device_name,
		       subscriber_id, previous_state, new_state, outcomes, created_at
		FROM notification_log
		ORDER BY created_at DESC
		LIMIT $1
	`

	if limit <= 0 {
		limit = 100
	}

	rows, err := p.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list notification log: %w", err)
	}
	defer rows.Close()

	var records []NotificationRecord
	for rows.Next() {
		var r NotificationRecord
		if err := rows.Scan(
			&r.ID, &r.DeviceID, &r.DeviceName, &r.SubscriberID,
			&r.PreviousState, &r.NewState, &r.Outcomes, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListDeviceStates returns the current state row for every registered device.
func (p *Postgres) ListDeviceStates(ctx context.Context) ([]DeviceState, error) {
	const q = `
		SELECT device_id, state, changed_at
		FROM device_states
		ORDER BY changed_at DESC
	`

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list device states: %w", err)
	}
	defer rows.Close()

	var states []DeviceState
	for rows.Next() {
		var ds DeviceState
		if err := rows.Scan(&ds.DeviceID, &ds.State, &ds.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan device state: %w", err)
		}
		states = append(states, ds)
	}
	return states, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
