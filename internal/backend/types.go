package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// StartRequest is the payload for starting an AI chat session.
type StartRequest struct {
	SelectedEmotion string `json:"selectedEmotion"`
	CalendarSummary string `json:"calendarSummary"`
}

type StartResponse struct {
	SessionID string `json:"sessionId"`
}

// ClientSecretResponse carries the short-lived credential for provider signaling.
type ClientSecretResponse struct {
	ClientSecret string    `json:"clientSecret"`
	ExpiresAt    Timestamp `json:"expiresAt"`
}

// Timestamp accepts RFC 3339 strings, epoch seconds or null.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			t.Time = time.Unix(secs, 0).UTC()
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("expiresAt: %w", err)
		}
		t.Time = parsed
		return nil
	}
	secs, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return fmt.Errorf("expiresAt: %w", err)
	}
	t.Time = time.Unix(int64(secs), 0).UTC()
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339))
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type SaveRequest struct {
	SessionID string    `json:"sessionId"`
	Messages  []Message `json:"messages"`
}
