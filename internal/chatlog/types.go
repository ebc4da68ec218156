package chatlog

import (
	"context"
	"time"
)

// Message is a single conversation entry. Immutable once created.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	IsUser    bool      `json:"is_user"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists the conversation log. The log is append-only; the only
// other mutation is a clear-all reset.
type Store interface {
	Append(ctx context.Context, msg Message) error
	All(ctx context.Context, sessionID string) ([]Message, error)
	Clear(ctx context.Context, sessionID string) error
	Close() error
}
