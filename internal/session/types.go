package session

import (
	"time"

	"github.com/emory-app/voicechat/internal/transcript"
)

type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusAISpeaking   Status = "ai-speaking"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

// Live reports whether a session in this status still owns resources.
func (s Status) Live() bool {
	switch s {
	case StatusConnecting, StatusConnected, StatusAISpeaking:
		return true
	default:
		return false
	}
}

// Session is a point-in-time view of one realtime voice conversation.
type Session struct {
	ID         string               `json:"session_id,omitempty"`
	Status     Status               `json:"status"`
	Muted      bool                 `json:"muted"`
	AISpeaking bool                 `json:"ai_speaking"`
	Error      string               `json:"error,omitempty"`
	Messages   []transcript.Message `json:"messages"`
	StartedAt  time.Time            `json:"started_at,omitempty"`
	UpdatedAt  time.Time            `json:"updated_at"`
}
