package monitor

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/upswake/upswake/internal/store"
)

// sessionRegistry tracks the single live session per agent. Registering a
// replacement closes whatever it displaces, so duplicate watcher sets cannot
// survive a reconnect.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]ProtocolSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[uuid.UUID]ProtocolSession)}
}

// put installs a session for an agent, closing any prior one.
func (r *sessionRegistry) put(agentID uuid.UUID, sess ProtocolSession) {
	r.mu.Lock()
	prior := r.sessions[agentID]
	r.sessions[agentID] = sess
	r.mu.Unlock()

	if prior != nil && prior != sess {
		prior.Close()
	}
}

// remove drops an agent's session if it is still the registered one.
func (r *sessionRegistry) remove(agentID uuid.UUID, sess ProtocolSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[agentID] == sess {
		delete(r.sessions, agentID)
	}
}

// size returns the number of live sessions.
func (r *sessionRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// runAgent owns one agent's session lifecycle: connect, enumerate, spawn
// watchers, wait for failure, tear everything down, reconnect after the
// fixed delay. It retries forever; a powered-down agent is expected to
// return.
func (s *Service) runAgent(ctx context.Context, agent store.Agent) {
	logger := s.logger.With("agent", agent.Name, "addr", agent.Addr())
	delay := s.cfg.GetReconnectDelay()

	for {
		if ctx.Err() != nil {
			return
		}

		sess, err := s.client.Connect(ctx, agent)
		if err != nil {
			logger.Warn("agent connection failed, scheduling retry",
				"retry_in", delay,
				"error", err,
			)
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}

		s.sessions.put(agent.ID, sess)

		names, err := sess.ListDevices(ctx)
		if err != nil {
			// Enumeration failure is a connection failure; same retry policy.
			logger.Warn("device enumeration failed, scheduling retry",
				"retry_in", delay,
				"error", err,
			)
			sess.Close()
			s.sessions.remove(agent.ID, sess)
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}

		logger.Info("session ready", "devices", len(names))

		watchCtx, cancelWatchers := context.WithCancel(ctx)
		var watchers sync.WaitGroup
		for _, name := range names {
			watchers.Add(1)
			go func(name string) {
				defer watchers.Done()
				s.watchDevice(watchCtx, sess, agent, name)
			}(name)
		}

		select {
		case <-ctx.Done():
			cancelWatchers()
			sess.Close()
			watchers.Wait()
			s.sessions.remove(agent.ID, sess)
			return
		case <-sess.Closed():
			// Watchers must be fully torn down before a replacement session
			// is established for this agent.
			cancelWatchers()
			watchers.Wait()
			s.sessions.remove(agent.ID, sess)
			logger.Warn("session closed unexpectedly, scheduling reconnect",
				"retry_in", delay,
			)
			if !sleepCtx(ctx, delay) {
				return
			}
		}
	}
}
