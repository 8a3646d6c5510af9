package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/upswake/upswake/internal/store"
	"github.com/upswake/upswake/internal/ups"
)

// fakeQuerier backs the dispatcher with in-memory subscriber data.
type fakeQuerier struct {
	store.Querier

	subscribers []store.Subscriber
	prefs       map[uuid.UUID]store.Preferences
	listErr     error
	auditErr    error

	mu      sync.Mutex
	records []store.NotificationRecord
}

func (f *fakeQuerier) ListSubscribersWithNotificationsEnabled(context.Context) ([]store.Subscriber, error) {
	return f.subscribers, f.listErr
}

func (f *fakeQuerier) GetSubscriberPreferences(_ context.Context, id uuid.UUID) (store.Preferences, error) {
	prefs, ok := f.prefs[id]
	if !ok {
		return store.Preferences{}, store.ErrNotFound
	}
	return prefs, nil
}

func (f *fakeQuerier) AppendNotificationLog(_ context.Context, record store.NotificationRecord) error {
	if f.auditErr != nil {
		return f.auditErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeQuerier) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// fakeWebhook counts send attempts and fails a configurable number of times.
type fakeWebhook struct {
	mu       sync.Mutex
	calls    int
	failures int // -1 means always fail
}

func (f *fakeWebhook) Send(context.Context, string, string, string, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures < 0 || f.calls <= f.failures {
		return errors.New("send failed")
	}
	return nil
}

func (f *fakeWebhook) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEmail struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmail) Send(context.Context, []string, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func testDispatcher(q store.Querier, ch Channels) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(q, ch, 3, time.Millisecond, logger)
}

func oneSubscriber(prefs store.Preferences) *fakeQuerier {
	id := uuid.New()
	return &fakeQuerier{
		subscribers: []store.Subscriber{{ID: id, Name: "ops"}},
		prefs:       map[uuid.UUID]store.Preferences{id: prefs},
	}
}

func testDevice() store.Device {
	return store.Device{ID: uuid.New(), AgentID: uuid.New(), Name: "ups1"}
}

func TestDispatch_BatteryTransitionNotifiesAndAudits(t *testing.T) {
	q := oneSubscriber(store.Preferences{
		NotifyEnabled:   true,
		BatteryAlerts:   true,
		DiscordWebhook:  "https://example.com/hook/a",
		SlackWebhook:    "https://example.com/hook/b",
		EmailRecipients: []string{"ops@example.com"},
	})
	discord := &fakeWebhook{}
	slack := &fakeWebhook{}
	email := &fakeEmail{}
	d := testDispatcher(q, Channels{Discord: discord, Slack: slack, Email: email})

	results := d.Dispatch(context.Background(), testDevice(), ups.StateOnBattery, ups.StateOnline)

	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if got := len(results[0].Outcomes); got != 3 {
		t.Fatalf("outcomes = %d, want one per configured channel (3)", got)
	}
	for _, o := range results[0].Outcomes {
		if !o.Success || o.Attempts != 1 {
			t.Errorf("channel %s: success=%v attempts=%d, want success on first attempt", o.Channel, o.Success, o.Attempts)
		}
	}
	if q.recordCount() != 1 {
		t.Fatalf("audit records = %d, want exactly 1", q.recordCount())
	}
	rec := q.records[0]
	if rec.PreviousState != ups.StateOnline || rec.NewState != ups.StateOnBattery {
		t.Errorf("audit transition = %s -> %s, want online -> on_battery", rec.PreviousState, rec.NewState)
	}
}

func TestDispatch_RecoveryBypassesPreferenceFlags(t *testing.T) {
	// Battery and low-battery alerts disabled; the recovery notice is
	// unconditional.
	q := oneSubscriber(store.Preferences{
		NotifyEnabled:  true,
		DiscordWebhook: "https://example.com/hook/a",
	})
	discord := &fakeWebhook{}
	d := testDispatcher(q, Channels{Discord: discord})

	results := d.Dispatch(context.Background(), testDevice(), ups.StateOnline, ups.StateOnBattery)

	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if discord.callCount() == 0 {
		t.Fatal("recovery transition did not reach the channel")
	}
}

func TestDispatch_NoPredicateSkipsSubscriberEntirely(t *testing.T) {
	q := oneSubscriber(store.Preferences{
		NotifyEnabled:  true,
		DiscordWebhook: "https://example.com/hook/a",
	})
	discord := &fakeWebhook{}
	d := testDispatcher(q, Channels{Discord: discord})

	// Battery alerts disabled, so an on-battery transition matches nothing.
	results := d.Dispatch(context.Background(), testDevice(), ups.StateOnBattery, ups.StateOnline)

	if len(results) != 0 {
		t.Fatalf("results = %d, want 0", len(results))
	}
	if discord.callCount() != 0 {
		t.Fatal("skipped subscriber still reached a channel")
	}
	if q.recordCount() != 0 {
		t.Fatal("skipped subscriber produced an audit record")
	}
}

func TestDispatch_RepeatedStateDoesNotFire(t *testing.T) {
	q := oneSubscriber(store.Preferences{
		NotifyEnabled:  true,
		BatteryAlerts:  true,
		DiscordWebhook: "https://example.com/hook/a",
	})
	d := testDispatcher(q, Channels{Discord: &fakeWebhook{}})

	if results := d.Dispatch(context.Background(), testDevice(), ups.StateOnBattery, ups.StateOnBattery); len(results) != 0 {
		t.Fatalf("on_battery -> on_battery fired %d subscribers, want 0", len(results))
	}
}

func TestDispatch_RetryBoundAndSiblingIsolation(t *testing.T) {
	q := oneSubscriber(store.Preferences{
		NotifyEnabled:  true,
		BatteryAlerts:  true,
		DiscordWebhook: "https://example.com/hook/a",
		SlackWebhook:   "https://example.com/hook/b",
	})
	discord := &fakeWebhook{failures: -1} // never succeeds
	slack := &fakeWebhook{}
	d := testDispatcher(q, Channels{Discord: discord, Slack: slack})

	results := d.Dispatch(context.Background(), testDevice(), ups.StateOnBattery, ups.StateOnline)

	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if discord.callCount() != 3 {
		t.Fatalf("failing channel attempted %d times, want exactly 3", discord.callCount())
	}

	var discordOutcome, slackOutcome *store.ChannelOutcome
	for i := range results[0].Outcomes {
		switch results[0].Outcomes[i].Channel {
		case "discord":
			discordOutcome = &results[0].Outcomes[i]
		case "slack":
			slackOutcome = &results[0].Outcomes[i]
		}
	}
	if discordOutcome == nil || discordOutcome.Success || discordOutcome.Attempts != 3 || discordOutcome.Error == "" {
		t.Errorf("discord outcome = %+v, want 3 failed attempts with error", discordOutcome)
	}
	if slackOutcome == nil || !slackOutcome.Success {
		t.Errorf("slack outcome = %+v, sibling should be unaffected", slackOutcome)
	}
	if q.recordCount() != 1 {
		t.Fatalf("audit records = %d, want 1 regardless of channel failure", q.recordCount())
	}
}

func TestDispatch_TransientFailureRecovers(t *testing.T) {
	q := oneSubscriber(store.Preferences{
		NotifyEnabled:  true,
		BatteryAlerts:  true,
		DiscordWebhook: "https://example.com/hook/a",
	})
	discord := &fakeWebhook{failures: 2} // fails twice, then succeeds
	d := testDispatcher(q, Channels{Discord: discord})

	results := d.Dispatch(context.Background(), testDevice(), ups.StateOnBattery, ups.StateOnline)

	o := results[0].Outcomes[0]
	if !o.Success || o.Attempts != 3 {
		t.Fatalf("outcome = %+v, want success on third attempt", o)
	}
}

func TestDispatch_ShutdownDoesNotCutDeliveryShort(t *testing.T) {
	q := oneSubscriber(store.Preferences{
		NotifyEnabled:  true,
		BatteryAlerts:  true,
		DiscordWebhook: "https://example.com/hook/a",
		SlackWebhook:   "https://example.com/hook/b",
	})
	discord := &fakeWebhook{failures: -1} // never succeeds
	slack := &fakeWebhook{}
	d := testDispatcher(q, Channels{Discord: discord, Slack: slack})

	// The engine cancels its run context on shutdown; a transition already
	// handed to the dispatcher must still exhaust its retries and be audited.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := d.Dispatch(ctx, testDevice(), ups.StateOnBattery, ups.StateOnline)

	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if discord.callCount() != 3 {
		t.Fatalf("failing channel attempted %d times under cancelled context, want all 3", discord.callCount())
	}
	for _, o := range results[0].Outcomes {
		if o.Error == context.Canceled.Error() {
			t.Errorf("channel %s aborted by caller cancellation: %q", o.Channel, o.Error)
		}
		if o.Channel == "slack" && !o.Success {
			t.Errorf("slack outcome = %+v, want delivered despite cancelled caller", o)
		}
	}
	if q.recordCount() != 1 {
		t.Fatalf("audit records = %d, want 1 written under cancelled context", q.recordCount())
	}
}

func TestDispatch_AuditFailureIsNotEscalated(t *testing.T) {
	q := oneSubscriber(store.Preferences{
		NotifyEnabled:  true,
		BatteryAlerts:  true,
		DiscordWebhook: "https://example.com/hook/a",
	})
	q.auditErr = errors.New("disk full")
	d := testDispatcher(q, Channels{Discord: &fakeWebhook{}})

	results := d.Dispatch(context.Background(), testDevice(), ups.StateOnBattery, ups.StateOnline)

	if len(results) != 1 || !results[0].Outcomes[0].Success {
		t.Fatal("audit failure must not affect delivery results")
	}
}

func TestDispatch_GenericFallbackMessage(t *testing.T) {
	dev := testDevice()
	msg := ComposeMessage(dev, ups.StateBypass, ups.StateOnline)
	if msg.Color != colorInfo {
		t.Errorf("fallback color = %#x, want informational", msg.Color)
	}

	msg = ComposeMessage(dev, ups.StateLowBattery, ups.StateOnBattery)
	if msg.Color != colorCritical {
		t.Errorf("low battery color = %#x, want critical", msg.Color)
	}
}
