// ABOUTME: Store interface and data types for murmur-gateway persistence
// ABOUTME: Defines Message, Conversation structs and the Store interface for history storage

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested conversation does not exist
var ErrNotFound = errors.New("not found")

// Author constants for message authorship
const (
	AuthorUser      = "user"
	AuthorAssistant = "assistant"
)

// Message is a single finalized message within a conversation.
// Messages are immutable once written; identity is ID, unique per conversation.
type Message struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is the durable, ordered message history for one conversation.
// Messages holds insertion order; replacing a message in place never reorders.
type Conversation struct {
	ID        string    `json:"conversation_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return &cp
}

// Store defines the interface for conversation history persistence.
//
// GetConversation returns ErrNotFound when no record exists for the ID.
// PutConversation overwrites the whole record; it is not a field patch.
// The store performs no locking of its own - read-modify-write atomicity
// per conversation ID is the caller's responsibility.
type Store interface {
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	PutConversation(ctx context.Context, conv *Conversation) error

	// Close releases any resources held by the store
	Close() error
}
