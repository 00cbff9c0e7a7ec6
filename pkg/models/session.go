package models

import "time"

// MessageRole identifies the author of a SessionMessage.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// Session is a persistent conversation identity across process restarts.
// Exactly one Session is active per process at a time.
type Session struct {
	ID            int64     `json:"id"`
	SessionKey    string    `json:"session_key"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastActiveAt  time.Time `json:"last_active_at"`
	MessageCount  int       `json:"message_count"`
	TotalTokens   int       `json:"total_tokens"`
	Metadata      string    `json:"metadata,omitempty"`
}

// SessionMessage is one persisted turn in a Session's history.
type SessionMessage struct {
	ID          int64       `json:"id"`
	SessionID   int64       `json:"session_id"`
	Role        MessageRole `json:"message_type"`
	Content     string      `json:"content"`
	HasImage    bool        `json:"has_image"`
	TokenCount  int         `json:"token_count"`
	CreatedAt   time.Time   `json:"created_at"`
}

// SessionStats summarizes a session's current size for diagnostics and
// for compaction/cleanup decisions.
type SessionStats struct {
	SessionKey      string `json:"session_key"`
	MessageCount    int    `json:"message_count"`
	ImageCount      int    `json:"image_count"`
	TotalTokens     int    `json:"total_tokens"`
	EstimatedTokens int    `json:"estimated_tokens"`
}
