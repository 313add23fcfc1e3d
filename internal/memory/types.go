package memory

import (
	"context"
	"time"
)

// Record is one archived transcript message.
type Record struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	MessageID  string    `json:"message_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Store keeps a local copy of finished conversations.
type Store interface {
	// Archive stores records; a (session, message) pair already present is
	// left untouched.
	Archive(ctx context.Context, records []Record) error
	// Recent returns up to limit records, oldest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
