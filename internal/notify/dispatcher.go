package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/upswake/upswake/internal/store"
	"github.com/upswake/upswake/internal/ups"
)

// WebhookSender is one webhook-style channel adapter.
type WebhookSender interface {
	Send(ctx context.Context, url, title, body string, color int) error
}

// EmailSender delivers a message to a recipient list.
type EmailSender interface {
	Send(ctx context.Context, recipients []string, title, body string) error
}

// Channels bundles the three delivery adapters.
type Channels struct {
	Discord WebhookSender
	Slack   WebhookSender
	Email   EmailSender
}

// SubscriberResult reports one subscriber's per-channel outcomes. It exists
// for diagnostics and tests; callers must not treat failures as fatal.
type SubscriberResult struct {
	SubscriberID uuid.UUID
	Outcomes     []store.ChannelOutcome
}

// Dispatcher fans one detected transition out to every matching subscriber.
type Dispatcher struct {
	querier     store.Querier
	channels    Channels
	maxAttempts int
	backoffUnit time.Duration
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher. maxAttempts bounds delivery attempts
// per channel; backoffUnit scales the linear backoff (attempt n waits
// n*backoffUnit before the next try).
func NewDispatcher(querier store.Querier, channels Channels, maxAttempts int, backoffUnit time.Duration, logger *slog.Logger) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoffUnit <= 0 {
		backoffUnit = time.Second
	}
	return &Dispatcher{
		querier:     querier,
		channels:    channels,
		maxAttempts: maxAttempts,
		backoffUnit: backoffUnit,
		logger:      logger.With("component", "dispatcher"),
	}
}

// Dispatch notifies every subscriber whose preferences match the transition
// and writes one audit record per notified subscriber. Channel failures are
// recorded, never escalated; an audit write failure is only logged.
//
// Delivery is detached from the caller's cancellation: once a transition is
// handed to the dispatcher, every channel attempt completes or exhausts its
// retries and the audit record is written, even while the engine is shutting
// down. Callers that must not outlive shutdown wait on Dispatch returning.
func (d *Dispatcher) Dispatch(ctx context.Context, dev store.Device, newState, oldState ups.OperationalState) []SubscriberResult {
	ctx = context.WithoutCancel(ctx)

	subscribers, err := d.querier.ListSubscribersWithNotificationsEnabled(ctx)
	if err != nil {
		d.logger.Error("failed to load subscribers, transition not delivered",
			"device", dev.Name,
			"new_state", newState,
			"error", err,
		)
		return nil
	}

	msg := ComposeMessage(dev, newState, oldState)

	var results []SubscriberResult
	for _, sub := range subscribers {
		prefs, err := d.querier.GetSubscriberPreferences(ctx, sub.ID)
		if err != nil {
			d.logger.Error("failed to load subscriber preferences",
				"subscriber_id", sub.ID,
				"error", err,
			)
			continue
		}

		if !applicable(prefs, newState, oldState) {
			continue
		}

		outcomes := d.deliver(ctx, prefs, msg)
		d.audit(ctx, dev, sub.ID, newState, oldState, outcomes)
		results = append(results, SubscriberResult{SubscriberID: sub.ID, Outcomes: outcomes})
	}

	return results
}

// applicable evaluates the three independent transition predicates. The
// online-recovery predicate is deliberately not gated by a preference flag.
func applicable(prefs store.Preferences, newState, oldState ups.OperationalState) bool {
	battery := prefs.BatteryAlerts && newState == ups.StateOnBattery && oldState != ups.StateOnBattery
	lowBattery := prefs.LowBatteryAlerts && newState == ups.StateLowBattery && oldState != ups.StateLowBattery
	recovery := newState == ups.StateOnline && oldState != ups.StateOnline
	return battery || lowBattery || recovery
}

// deliver attempts every configured channel independently and concurrently;
// one channel's failure or backoff never delays or cancels the others.
func (d *Dispatcher) deliver(ctx context.Context, prefs store.Preferences, msg Message) []store.ChannelOutcome {
	type delivery struct {
		channel string
		send    func(context.Context) error
	}

	var deliveries []delivery
	if prefs.DiscordWebhook != "" && d.channels.Discord != nil {
		url := prefs.DiscordWebhook
		deliveries = append(deliveries, delivery{"discord", func(ctx context.Context) error {
			return d.channels.Discord.Send(ctx, url, msg.Title, msg.Body, msg.Color)
		}})
	}
	if prefs.SlackWebhook != "" && d.channels.Slack != nil {
		url := prefs.SlackWebhook
		deliveries = append(deliveries, delivery{"slack", func(ctx context.Context) error {
			return d.channels.Slack.Send(ctx, url, msg.Title, msg.Body, msg.Color)
		}})
	}
	if len(prefs.EmailRecipients) > 0 && d.channels.Email != nil {
		recipients := prefs.EmailRecipients
		deliveries = append(deliveries, delivery{"email", func(ctx context.Context) error {
			return d.channels.Email.Send(ctx, recipients, msg.Title, msg.Body)
		}})
	}

	outcomes := make([]store.ChannelOutcome, len(deliveries))
	var wg sync.WaitGroup
	for i, dl := range deliveries {
		wg.Add(1)
		go func(i int, dl delivery) {
			defer wg.Done()
			outcomes[i] = d.attempt(ctx, dl.channel, dl.send)
		}(i, dl)
	}
	wg.Wait()

	return outcomes
}

// attempt runs one channel's delivery with bounded retry and linear backoff.
func (d *Dispatcher) attempt(ctx context.Context, channel string, send func(context.Context) error) store.ChannelOutcome {
	outcome := store.ChannelOutcome{Channel: channel}

	err := retry.Do(ctx, retry.WithMaxRetries(uint64(d.maxAttempts-1), linearBackoff(d.backoffUnit)), func(ctx context.Context) error {
		outcome.Attempts++
		if err := send(ctx); err != nil {
			d.logger.Warn("channel delivery attempt failed",
				"channel", channel,
				"attempt", outcome.Attempts,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})

	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Success = true
	return outcome
}

// linearBackoff waits n*unit after the n-th failed attempt.
func linearBackoff(unit time.Duration) retry.Backoff {
	n := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return time.Duration(n) * unit, false
	})
}

// audit writes the per-subscriber record covering the transition.
func (d *Dispatcher) audit(ctx context.Context, dev store.Device, subscriberID uuid.UUID, newState, oldState ups.OperationalState, outcomes []store.ChannelOutcome) {
	record := store.NotificationRecord{
		DeviceID:      dev.ID,
		DeviceName:    dev.Name,
		SubscriberID:  subscriberID,
		PreviousState: oldState,
		NewState:      newState,
		Outcomes:      outcomes,
		CreatedAt:     time.Now().UTC(),
	}

	if err := d.querier.AppendNotificationLog(ctx, record); err != nil {
		d.logger.Error("failed to append notification audit record",
			"device", dev.Name,
			"subscriber_id", subscriberID,
			"error", err,
		)
	}
}

// Describe renders the transition for logs.
func Describe(newState, oldState ups.OperationalState) string {
	return fmt.Sprintf("%s -> %s", oldState.Label(), newState.Label())
}
