package optimistic

import (
	"reflect"

	"github.com/sylphx/lens/pkg/models"
	"github.com/sylphx/lens/pkg/telemetry"
)

// EventType enumerates the server events a session reconciles.
type EventType string

const (
	EventMessageAdded         EventType = "message-added"
	EventQueueMessageAdded    EventType = "queue-message-added"
	EventQueueCleared         EventType = "queue-cleared"
	EventSessionStatusChanged EventType = "session-status-changed"
)

// ServerEvent is one authoritative state change pushed by the server.
type ServerEvent struct {
	Type    EventType            `json:"type"`
	Message *models.Message      `json:"message,omitempty"`
	Status  models.SessionStatus `json:"status,omitempty"`
}

// Reconcile folds a server event into the authoritative state and
// converges any pending speculation the event contradicts or confirms.
// An event that matches a pending op by id or by message content both
// applies the event and drops the pending entry, so the projection
// never double-counts. The content match also self-heals guessed-wrong
// placement: a pending add-message whose content the server placed on
// the queue is retired and the message lives where the server put it.
// A queue-cleared event rolls back every still-pending add-to-queue.
func (m *Manager) Reconcile(sessionID string, ev ServerEvent) {
	m.mu.Lock()
	s := m.session(sessionID)

	var confirmed, rolledBack []uint64
	switch ev.Type {
	case EventMessageAdded:
		if ev.Message != nil {
			if !s.hasServerMessage(ev.Message.ID) {
				s.ServerMessages = append(s.ServerMessages, *ev.Message)
			}
			confirmed = retireMatching(s, func(op Operation) bool {
				switch op.Kind {
				case OpAddMessage, OpAddToQueue:
					return sameMessage(op.Message, ev.Message)
				case OpMoveToConversation:
					return op.MessageID == ev.Message.ID
				}
				return false
			})
		}
	case EventQueueMessageAdded:
		if ev.Message != nil {
			if !s.hasServerQueued(ev.Message.ID) {
				s.ServerQueue = append(s.ServerQueue, *ev.Message)
			}
			confirmed = retireMatching(s, func(op Operation) bool {
				switch op.Kind {
				case OpAddToQueue, OpAddMessage:
					return sameMessage(op.Message, ev.Message)
				case OpMoveToQueue:
					return op.MessageID == ev.Message.ID
				}
				return false
			})
		}
	case EventQueueCleared:
		s.ServerQueue = nil
		confirmed = retireMatching(s, func(op Operation) bool {
			return op.Kind == OpClearQueue
		})
		rolledBack = retireAll(s, func(op Operation) bool {
			return op.Kind == OpAddToQueue
		})
	case EventSessionStatusChanged:
		s.SessionStatus = ev.Status
		confirmed = retireMatching(s, func(op Operation) bool {
			return op.Kind == OpUpdateSessionStatus && op.SessionStatus == ev.Status
		})
	}
	proj := s.Project()
	m.mu.Unlock()

	telemetry.OptimisticReconciles.Inc()
	for range confirmed {
		telemetry.OptimisticPending.Dec()
	}
	for range rolledBack {
		telemetry.OptimisticPending.Dec()
		telemetry.OptimisticRollbacks.Inc()
	}
	effects := []Effect{{Kind: EffectPatchState, Session: sessionID, Projection: &proj}}
	for _, id := range confirmed {
		effects = append(effects, Effect{Kind: EffectCancelTimeout, Session: sessionID, OpID: id})
	}
	for _, id := range rolledBack {
		effects = append(effects,
			Effect{Kind: EffectCancelTimeout, Session: sessionID, OpID: id},
			Effect{Kind: EffectLog, Session: sessionID, Level: "warn", Message: "optimistic_rolled_back",
				Fields: []any{"session", sessionID, "id", id, "reason", string(ev.Type)}})
	}
	m.run(effects)
}

// sameMessage matches a pending message against a server event's
// message, by id when both carry one, else by body content.
func sameMessage(pending, event *models.Message) bool {
	if pending == nil || event == nil {
		return false
	}
	if pending.ID == event.ID {
		return true
	}
	return pending.Body != nil && reflect.DeepEqual(pending.Body, event.Body)
}

// retireMatching drops the first pending op the predicate accepts.
func retireMatching(s *SessionState, match func(Operation) bool) []uint64 {
	for i, p := range s.Pending {
		if match(p.Op) {
			s.Pending = append(s.Pending[:i], s.Pending[i+1:]...)
			return []uint64{p.ID}
		}
	}
	return nil
}

// retireAll drops every pending op the predicate accepts.
func retireAll(s *SessionState, match func(Operation) bool) []uint64 {
	var ids []uint64
	kept := s.Pending[:0]
	for _, p := range s.Pending {
		if match(p.Op) {
			ids = append(ids, p.ID)
			continue
		}
		kept = append(kept, p)
	}
	s.Pending = kept
	return ids
}

// UpdateServerState replaces the authoritative snapshot wholesale,
// used when (re)loading a session from the store. Pending operations
// are preserved and replay over the new snapshot.
func (m *Manager) UpdateServerState(sessionID string, status models.SessionStatus, messages, queue []models.Message) {
	m.mu.Lock()
	s := m.session(sessionID)
	s.SessionStatus = status
	s.ServerMessages = append([]models.Message(nil), messages...)
	s.ServerQueue = append([]models.Message(nil), queue...)
	proj := s.Project()
	m.mu.Unlock()

	m.run([]Effect{{Kind: EffectPatchState, Session: sessionID, Projection: &proj}})
}
