package models

// MessageStatus tracks a chat message through its delivery lifecycle.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusStreaming MessageStatus = "streaming"
	StatusComplete  MessageStatus = "complete"
	StatusFailed    MessageStatus = "failed"
)

type Message struct {
	ID      string        `json:"id"`
	Session string        `json:"session"`
	Author  string        `json:"author,omitempty"`
	TS      int64         `json:"ts"`
	Status  MessageStatus `json:"status,omitempty"`
	Body    interface{}   `json:"body,omitempty"`
	// Optimistic marks a locally-created placeholder that a server
	// confirmation may later replace with the canonical record.
	Optimistic bool `json:"optimistic,omitempty"`
	// Optional reply-to message ID
	ReplyTo string `json:"reply_to,omitempty"`
}
