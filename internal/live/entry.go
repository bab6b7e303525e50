// ABOUTME: LiveEntry type for ephemeral per-message streaming state
// ABOUTME: Carries content deltas and status transitions to subscribers

package live

import "time"

// Status values for a live entry. Transitions only move forward:
// created -> streaming -> completed. A terminal failure also lands on
// completed, carrying a user-facing error body.
const (
	StatusCreated   = "created"
	StatusStreaming = "streaming"
	StatusCompleted = "completed"
)

// Entry is the ephemeral real-time state of one message. Each publish for a
// (conversation, message) key supersedes the previous entry. While streaming,
// Content stays empty and Delta carries the new fragment; clients reconstruct
// the message by concatenating deltas. The completed entry carries the full
// accumulated Content and no Delta.
type Entry struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	Content        string    `json:"content"`
	Delta          string    `json:"delta,omitempty"`
	Author         string    `json:"author"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

// Terminal reports whether no further entries will follow for this message.
func (e *Entry) Terminal() bool {
	return e.Status == StatusCompleted
}
