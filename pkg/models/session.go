package models

// SessionStatus is the coarse lifecycle state of one chat session.
type SessionStatus string

const (
	SessionIdle       SessionStatus = "idle"
	SessionSubmitting SessionStatus = "submitting"
	SessionStreaming  SessionStatus = "streaming"
	SessionError      SessionStatus = "error"
)

type Session struct {
	ID     string        `json:"id"`
	Title  string        `json:"title,omitempty"`
	Owner  string        `json:"owner"`
	Status SessionStatus `json:"status"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// Updated timestamp (ns), last time session state changed
	UpdatedTS int64 `json:"updated_ts,omitempty"`
}
