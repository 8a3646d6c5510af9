package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/upswake/upswake/internal/notify"
	"github.com/upswake/upswake/internal/store"
	"github.com/upswake/upswake/internal/ups"
)

// runScanner drives the polling fallback sweep on its fixed interval. It is
// the safety net covering devices whose session-based watcher is unavailable
// or not yet established.
func (s *Service) runScanner(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.GetFallbackInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.scanOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("fallback scan cycle failed", "error", err)
			}
		}
	}
}

// scanOnce sweeps every configured agent with one stateless bulk fetch and
// compares every durable device against the committed state.
//
// The scanner and the per-device watchers are independent detectors over the
// same StateStore. Both read the committed state before deciding "changed",
// with no mutual exclusion, so both can observe the same stale previous
// value and fire a duplicate notification for one transition. That narrow
// at-least-once window is accepted; do not serialize the two paths to close
// it.
func (s *Service) scanOnce(ctx context.Context) error {
	agents, err := s.querier.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	devices, err := s.querier.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	byAgent := make(map[uuid.UUID][]store.Device)
	for _, dev := range devices {
		byAgent[dev.AgentID] = append(byAgent[dev.AgentID], dev)
	}

	for _, agent := range agents {
		live, err := s.client.FetchAll(ctx, agent)
		if err != nil {
			s.logger.Warn("fallback sweep failed for agent",
				"agent", agent.Name,
				"error", err,
			)
			continue
		}

		for _, dev := range byAgent[agent.ID] {
			vars, ok := live[dev.Name]
			if !ok {
				// No live entry for this durable record; skip.
				continue
			}

			state := ups.DecodeStatus(vars[statusVariable])

			// Get prefers the durable row over the cache.
			prev, seen := s.states.Get(ctx, dev)
			if !seen {
				s.logger.Info("fallback first observation",
					"agent", agent.Name,
					"device", dev.Name,
					"state", state,
				)
				s.states.Set(ctx, dev, state)
				continue
			}

			if prev == state {
				continue
			}

			s.logger.Info("fallback detected state transition",
				"agent", agent.Name,
				"device", dev.Name,
				"transition", notify.Describe(state, prev),
			)
			s.notifier.Dispatch(ctx, dev, state, prev)
			s.states.Set(ctx, dev, state)
		}
	}

	return nil
}
