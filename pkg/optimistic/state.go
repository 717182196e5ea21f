package optimistic

import (
	"github.com/sylphx/lens/pkg/models"
)

// PendingOp is one unconfirmed optimistic operation.
type PendingOp struct {
	ID uint64    `json:"id"`
	Op Operation `json:"op"`
	// TS is the apply time in unix nanoseconds; the sweeper rolls the
	// op back once it exceeds the configured timeout.
	TS int64 `json:"ts"`
}

// SessionState is the authoritative server view of one session plus
// its pending operations. The projected view is never stored; it is
// recomputed from this on every read.
type SessionState struct {
	SessionStatus  models.SessionStatus
	ServerMessages []models.Message
	ServerQueue    []models.Message
	Pending        []PendingOp
}

// Projection is the client-facing view: server state with every
// pending operation replayed on top, in apply order.
type Projection struct {
	SessionStatus models.SessionStatus `json:"session_status"`
	Messages      []models.Message     `json:"messages"`
	Queue         []models.Message     `json:"queue"`
	PendingIDs    []uint64             `json:"pending_ids"`
}

// Project replays pending operations over the server state. The input
// state is not mutated.
func (s *SessionState) Project() Projection {
	p := Projection{
		SessionStatus: s.SessionStatus,
		Messages:      append([]models.Message(nil), s.ServerMessages...),
		Queue:         append([]models.Message(nil), s.ServerQueue...),
	}
	for _, pending := range s.Pending {
		applyOp(&p, pending.Op)
		p.PendingIDs = append(p.PendingIDs, pending.ID)
	}
	return p
}

// applyOp folds one operation into a projection. Operations referring
// to absent messages are silent no-ops so replays stay total.
func applyOp(p *Projection, op Operation) {
	switch op.Kind {
	case OpAddMessage:
		p.Messages = append(p.Messages, *op.Message)
	case OpUpdateMessageStatus:
		for i := range p.Messages {
			if p.Messages[i].ID == op.MessageID {
				p.Messages[i].Status = op.Status
				return
			}
		}
		for i := range p.Queue {
			if p.Queue[i].ID == op.MessageID {
				p.Queue[i].Status = op.Status
				return
			}
		}
	case OpAddToQueue:
		p.Queue = append(p.Queue, *op.Message)
	case OpMoveToQueue:
		for i := range p.Messages {
			if p.Messages[i].ID == op.MessageID {
				m := p.Messages[i]
				p.Messages = append(p.Messages[:i], p.Messages[i+1:]...)
				p.Queue = append(p.Queue, m)
				return
			}
		}
	case OpMoveToConversation:
		for i := range p.Queue {
			if p.Queue[i].ID == op.MessageID {
				m := p.Queue[i]
				p.Queue = append(p.Queue[:i], p.Queue[i+1:]...)
				p.Messages = append(p.Messages, m)
				return
			}
		}
	case OpRemoveFromQueue:
		for i := range p.Queue {
			if p.Queue[i].ID == op.MessageID {
				p.Queue = append(p.Queue[:i], p.Queue[i+1:]...)
				return
			}
		}
	case OpClearQueue:
		p.Queue = p.Queue[:0]
	case OpUpdateSessionStatus:
		p.SessionStatus = op.SessionStatus
	}
}

// hasServerMessage reports whether the authoritative message list
// already contains id.
func (s *SessionState) hasServerMessage(id string) bool {
	for _, m := range s.ServerMessages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// hasServerQueued reports whether the authoritative queue contains id.
func (s *SessionState) hasServerQueued(id string) bool {
	for _, m := range s.ServerQueue {
		if m.ID == id {
			return true
		}
	}
	return false
}
