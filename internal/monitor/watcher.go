package monitor

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/upswake/upswake/internal/notify"
	"github.com/upswake/upswake/internal/store"
	"github.com/upswake/upswake/internal/ups"
)

// statusVariable is the upsd variable carrying the raw status token.
const statusVariable = "ups.status"

// watchDevice is the per-device watch loop. The tick interval is the base
// period plus a jitter chosen once at spawn time, so a reconnect storm does
// not synchronize all watchers against one agent. Ticks for one device are
// strictly sequential.
func (s *Service) watchDevice(ctx context.Context, sess ProtocolSession, agent store.Agent, name string) {
	logger := s.logger.With("agent", agent.Name, "device", name)

	jitter := time.Duration(rand.Int64N(int64(s.cfg.GetTickJitterMax()) + 1))
	ticker := time.NewTicker(s.cfg.GetTickInterval() + jitter)
	defer ticker.Stop()

	minSpacing := s.cfg.GetMinSpacing()
	dev := store.Device{AgentID: agent.ID, Name: name, DisplayName: name, Virtual: true}
	var lastCheck time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// The spacing floor holds independent of the timer: skip silently
			// if this device was checked too recently.
			if !lastCheck.IsZero() && time.Since(lastCheck) < minSpacing {
				continue
			}
			lastCheck = time.Now()
			dev = s.checkDevice(ctx, sess, dev, logger)
		}
	}
}

// checkDevice performs one watch tick and returns the (possibly promoted)
// device identity for the next tick. A fetch error abandons the tick with no
// state mutation.
func (s *Service) checkDevice(ctx context.Context, sess ProtocolSession, dev store.Device, logger *slog.Logger) store.Device {
	vars, err := sess.GetVariables(ctx, dev.Name)
	if err != nil {
		logger.Warn("variable fetch failed, tick abandoned", "error", err)
		return dev
	}

	state := ups.DecodeStatus(vars[statusVariable])
	dev = s.resolveDevice(ctx, dev, logger)

	prev, seen := s.states.Get(ctx, dev)
	if !seen {
		// First observation: seed the store, do not notify.
		logger.Info("first observation", "state", state)
		s.states.Set(ctx, dev, state)
		return dev
	}

	if prev == state {
		return dev
	}

	logger.Info("state transition detected", "transition", notify.Describe(state, prev))
	s.notifier.Dispatch(ctx, dev, state, prev)
	s.states.Set(ctx, dev, state)
	return dev
}
