package optimistic

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sylphx/lens/pkg/logger"
	"github.com/sylphx/lens/pkg/models"
	"github.com/sylphx/lens/pkg/telemetry"
)

// Options tune the manager. Zero values take the defaults used in
// production: 10s op timeout, 5s sweep interval.
type Options struct {
	OpTimeout     time.Duration
	SweepInterval time.Duration
	Runner        EffectRunner
}

// Manager tracks optimistic state per session. All methods are safe
// for concurrent use; operation ids are monotonic across sessions.
type Manager struct {
	opTimeout time.Duration
	sweepEach time.Duration
	runner    EffectRunner

	nextID atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*SessionState

	// LastTouched drives session retention; unix nanoseconds.
	touched map[string]int64
}

// NewManager builds a manager.
func NewManager(opts Options) *Manager {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 10 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Second
	}
	return &Manager{
		opTimeout: opts.OpTimeout,
		sweepEach: opts.SweepInterval,
		runner:    opts.Runner,
		sessions:  make(map[string]*SessionState),
		touched:   make(map[string]int64),
	}
}

func (m *Manager) session(id string) *SessionState {
	s, ok := m.sessions[id]
	if !ok {
		s = &SessionState{SessionStatus: models.SessionIdle}
		m.sessions[id] = s
	}
	m.touched[id] = time.Now().UTC().UnixNano()
	return s
}

func (m *Manager) run(effects []Effect) {
	if m.runner != nil && len(effects) > 0 {
		m.runner.Run(effects)
	}
}

// Apply validates the operation, records it as pending and returns its
// id. The projection effect carries the replayed view.
func (m *Manager) Apply(sessionID string, op Operation) (uint64, error) {
	if err := op.Validate(); err != nil {
		return 0, err
	}
	id := m.nextID.Add(1)

	m.mu.Lock()
	s := m.session(sessionID)
	s.Pending = append(s.Pending, PendingOp{ID: id, Op: op, TS: time.Now().UTC().UnixNano()})
	proj := s.Project()
	m.mu.Unlock()

	telemetry.OptimisticPending.Inc()
	m.run([]Effect{
		{Kind: EffectPatchState, Session: sessionID, Projection: &proj},
		{Kind: EffectScheduleTimeout, Session: sessionID, OpID: id, Timeout: m.opTimeout},
		{Kind: EffectLog, Session: sessionID, Level: "debug", Message: "optimistic_applied",
			Fields: []any{"session", sessionID, "op", string(op.Kind), "id", id}},
	})
	return id, nil
}

// Project returns the current client-facing view of a session. An
// unknown session projects as empty and idle.
func (m *Manager) Project(sessionID string) Projection {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Projection{SessionStatus: models.SessionIdle}
	}
	m.touched[sessionID] = time.Now().UTC().UnixNano()
	return s.Project()
}

// Confirm drops a pending operation after the server acknowledged it.
// A non-nil serverData is the canonical record; it replaces the
// optimistic placeholder in authoritative state. Unknown ids are
// tolerated; confirmations can race reconciliation.
func (m *Manager) Confirm(sessionID string, opID uint64, serverData *models.Message) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	pending, found := removePending(s, opID)
	var proj Projection
	if found {
		// The server saw the operation, so it becomes part of the
		// authoritative state rather than vanishing from the view.
		absorb(s, pending.Op)
		if serverData != nil {
			replacePlaceholder(s, pending.Op, serverData)
		}
		proj = s.Project()
	}
	m.mu.Unlock()
	if !found {
		logger.Debug("optimistic_confirm_unknown", "session", sessionID, "id", opID)
		return
	}
	telemetry.OptimisticPending.Dec()
	m.run([]Effect{
		{Kind: EffectCancelTimeout, Session: sessionID, OpID: opID},
		{Kind: EffectPatchState, Session: sessionID, Projection: &proj},
	})
}

// Rollback drops a pending operation the server rejected and restores
// any state its inverse can still repair. Unknown ids are tolerated.
func (m *Manager) Rollback(sessionID string, opID uint64) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	pending, found := removePending(s, opID)
	var proj Projection
	if found {
		if inv, ok := pending.Op.Inverse(); ok && inv.Kind == OpUpdateSessionStatus {
			s.SessionStatus = inv.SessionStatus
		}
		proj = s.Project()
	}
	m.mu.Unlock()
	if !found {
		logger.Debug("optimistic_rollback_unknown", "session", sessionID, "id", opID)
		return
	}
	telemetry.OptimisticPending.Dec()
	telemetry.OptimisticRollbacks.Inc()
	m.run([]Effect{
		{Kind: EffectCancelTimeout, Session: sessionID, OpID: opID},
		{Kind: EffectPatchState, Session: sessionID, Projection: &proj},
		{Kind: EffectLog, Session: sessionID, Level: "warn", Message: "optimistic_rolled_back",
			Fields: []any{"session", sessionID, "op", string(pending.Op.Kind), "id", opID}},
	})
}

// removePending deletes the pending entry with id, preserving order.
func removePending(s *SessionState, id uint64) (PendingOp, bool) {
	for i, p := range s.Pending {
		if p.ID == id {
			s.Pending = append(s.Pending[:i], s.Pending[i+1:]...)
			return p, true
		}
	}
	return PendingOp{}, false
}

// absorb folds a confirmed operation into the authoritative state.
// Duplicates are skipped; a reconcile event may have landed first.
func absorb(s *SessionState, op Operation) {
	switch op.Kind {
	case OpAddMessage:
		if !s.hasServerMessage(op.Message.ID) {
			s.ServerMessages = append(s.ServerMessages, *op.Message)
		}
	case OpAddToQueue:
		if !s.hasServerQueued(op.Message.ID) {
			s.ServerQueue = append(s.ServerQueue, *op.Message)
		}
	case OpUpdateMessageStatus:
		for i := range s.ServerMessages {
			if s.ServerMessages[i].ID == op.MessageID {
				s.ServerMessages[i].Status = op.Status
				return
			}
		}
		for i := range s.ServerQueue {
			if s.ServerQueue[i].ID == op.MessageID {
				s.ServerQueue[i].Status = op.Status
				return
			}
		}
	case OpMoveToQueue:
		for i := range s.ServerMessages {
			if s.ServerMessages[i].ID == op.MessageID {
				msg := s.ServerMessages[i]
				s.ServerMessages = append(s.ServerMessages[:i], s.ServerMessages[i+1:]...)
				if !s.hasServerQueued(msg.ID) {
					s.ServerQueue = append(s.ServerQueue, msg)
				}
				return
			}
		}
	case OpMoveToConversation:
		for i := range s.ServerQueue {
			if s.ServerQueue[i].ID == op.MessageID {
				msg := s.ServerQueue[i]
				s.ServerQueue = append(s.ServerQueue[:i], s.ServerQueue[i+1:]...)
				if !s.hasServerMessage(msg.ID) {
					s.ServerMessages = append(s.ServerMessages, msg)
				}
				return
			}
		}
	case OpRemoveFromQueue:
		for i := range s.ServerQueue {
			if s.ServerQueue[i].ID == op.MessageID {
				s.ServerQueue = append(s.ServerQueue[:i], s.ServerQueue[i+1:]...)
				return
			}
		}
	case OpClearQueue:
		s.ServerQueue = nil
	case OpUpdateSessionStatus:
		s.SessionStatus = op.SessionStatus
	}
}

// replacePlaceholder swaps the optimistic placeholder message for the
// server's canonical record. The placeholder is matched by the pending
// op's message id or by its optimistic flag.
func replacePlaceholder(s *SessionState, op Operation, canonical *models.Message) {
	if op.Message == nil {
		return
	}
	var list *[]models.Message
	switch op.Kind {
	case OpAddMessage:
		list = &s.ServerMessages
	case OpAddToQueue:
		list = &s.ServerQueue
	default:
		return
	}
	for i := range *list {
		m := &(*list)[i]
		if m.ID == op.Message.ID || (m.Optimistic && m.ID == canonical.ID) {
			*m = *canonical
			return
		}
	}
}

// EvictSession drops all state for a session.
func (m *Manager) EvictSession(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	var dropped int
	if ok {
		dropped = len(s.Pending)
		delete(m.sessions, sessionID)
		delete(m.touched, sessionID)
	}
	m.mu.Unlock()
	for i := 0; i < dropped; i++ {
		telemetry.OptimisticPending.Dec()
	}
	if ok {
		logger.Info("optimistic_session_evicted", "session", sessionID, "pending_dropped", dropped)
	}
}

// Sessions returns every tracked session id with its last-touched
// time. The retention job uses this to evict idle sessions.
func (m *Manager) Sessions() map[string]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Time, len(m.touched))
	for id, ns := range m.touched {
		out[id] = time.Unix(0, ns)
	}
	return out
}

// SweepOnce rolls back every pending operation older than the op
// timeout and returns how many were swept.
func (m *Manager) SweepOnce(now time.Time) int {
	cutoff := now.Add(-m.opTimeout).UnixNano()

	m.mu.Lock()
	type expired struct {
		session string
		id      uint64
	}
	var stale []expired
	for sessionID, s := range m.sessions {
		for _, p := range s.Pending {
			if p.TS < cutoff {
				stale = append(stale, expired{sessionID, p.ID})
			}
		}
	}
	m.mu.Unlock()

	for _, e := range stale {
		telemetry.OptimisticTimeouts.Inc()
		logger.Warn("optimistic_op_timed_out", "session", e.session, "id", e.id)
		m.Rollback(e.session, e.id)
	}
	return len(stale)
}

// Start runs the timeout sweeper until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.sweepEach)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.SweepOnce(now)
		}
	}
}
