// Package optimistic keeps per-session projections ahead of the
// authoritative server state. Local mutations apply instantly as
// pending operations; server confirmations, rollbacks and reconcile
// events converge the projection back onto what the server saw.
package optimistic

import (
	"fmt"

	"github.com/sylphx/lens/pkg/models"
)

// OpKind enumerates the optimistic operations a session accepts.
type OpKind string

const (
	OpAddMessage          OpKind = "add-message"
	OpUpdateMessageStatus OpKind = "update-message-status"
	OpAddToQueue          OpKind = "add-to-queue"
	OpMoveToQueue         OpKind = "move-to-queue"
	OpMoveToConversation  OpKind = "move-to-conversation"
	OpRemoveFromQueue     OpKind = "remove-from-queue"
	OpClearQueue          OpKind = "clear-queue"
	OpUpdateSessionStatus OpKind = "update-session-status"
)

// Operation is one optimistic mutation. Which fields matter depends on
// Kind; Validate enforces the shape.
type Operation struct {
	Kind OpKind `json:"kind"`

	// Message for add-message and add-to-queue.
	Message *models.Message `json:"message,omitempty"`
	// MessageID for update-message-status, remove-from-queue and the
	// two move operations.
	MessageID string `json:"message_id,omitempty"`
	// Status for update-message-status.
	Status models.MessageStatus `json:"status,omitempty"`

	// SessionStatus and PreviousStatus for update-session-status.
	// PreviousStatus is mandatory; rollback restores it.
	SessionStatus  models.SessionStatus `json:"session_status,omitempty"`
	PreviousStatus models.SessionStatus `json:"previous_status,omitempty"`
}

// Validate checks the operation carries the fields its kind needs.
func (op Operation) Validate() error {
	switch op.Kind {
	case OpAddMessage, OpAddToQueue:
		if op.Message == nil || op.Message.ID == "" {
			return fmt.Errorf("optimistic: %s requires a message with an id", op.Kind)
		}
	case OpUpdateMessageStatus:
		if op.MessageID == "" {
			return fmt.Errorf("optimistic: %s requires message_id", op.Kind)
		}
		if op.Status == "" {
			return fmt.Errorf("optimistic: %s requires status", op.Kind)
		}
	case OpRemoveFromQueue, OpMoveToQueue, OpMoveToConversation:
		if op.MessageID == "" {
			return fmt.Errorf("optimistic: %s requires message_id", op.Kind)
		}
	case OpClearQueue:
	case OpUpdateSessionStatus:
		if op.SessionStatus == "" {
			return fmt.Errorf("optimistic: %s requires session_status", op.Kind)
		}
		if op.PreviousStatus == "" {
			return fmt.Errorf("optimistic: %s requires previous_status", op.Kind)
		}
	default:
		return fmt.Errorf("optimistic: unknown operation kind %q", op.Kind)
	}
	return nil
}

// Invertible reports whether rolling back this operation can undo it
// against authoritative state. remove-from-queue and
// update-message-status discard information the inverse would need, so
// their rollback only drops the pending entry.
func (op Operation) Invertible() bool {
	switch op.Kind {
	case OpRemoveFromQueue, OpUpdateMessageStatus:
		return false
	}
	return true
}

// Inverse returns the operation that undoes op against state the
// forward op already reached. The projection itself heals by dropping
// the pending entry and replaying; the inverse only matters for
// update-session-status, whose rollback must restore PreviousStatus
// even when the server state drifted in between.
func (op Operation) Inverse() (Operation, bool) {
	switch op.Kind {
	case OpAddMessage, OpAddToQueue:
		return Operation{Kind: OpRemoveFromQueue, MessageID: op.Message.ID}, true
	case OpMoveToQueue:
		return Operation{Kind: OpMoveToConversation, MessageID: op.MessageID}, true
	case OpMoveToConversation:
		return Operation{Kind: OpMoveToQueue, MessageID: op.MessageID}, true
	case OpUpdateSessionStatus:
		return Operation{
			Kind:           OpUpdateSessionStatus,
			SessionStatus:  op.PreviousStatus,
			PreviousStatus: op.SessionStatus,
		}, true
	}
	return Operation{}, false
}
