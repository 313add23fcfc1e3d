package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventType identifies realtime data-channel payload variants.
type EventType string

const (
	TypeInputTranscriptionCompleted EventType = "conversation.item.input_audio_transcription.completed"
	TypeResponseCreated             EventType = "response.created"
	TypeAudioTranscriptDelta        EventType = "response.audio_transcript.delta"
	TypeAudioTranscriptDone         EventType = "response.audio_transcript.done"
	TypeResponseDone                EventType = "response.done"
	TypeError                       EventType = "error"

	TypeSessionUpdate EventType = "session.update"
)

// ErrMalformedFrame marks frames that are not JSON objects with a type.
// The provider sends keepalives and other non-JSON traffic, so callers drop these.
var ErrMalformedFrame = errors.New("malformed realtime frame")

const DefaultProviderErrorMessage = "realtime API error"

// ServerEvent is the subset of provider server events the transcript consumes.
type ServerEvent struct {
	Type       EventType      `json:"type"`
	EventID    string         `json:"event_id,omitempty"`
	Transcript string         `json:"transcript,omitempty"`
	Delta      string         `json:"delta,omitempty"`
	Error      *ProviderError `json:"error,omitempty"`
}

// ProviderError is the payload of an "error" server event.
type ProviderError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorMessage returns the provider message or a generic fallback.
func (e ServerEvent) ErrorMessage() string {
	if e.Error != nil {
		if msg := strings.TrimSpace(e.Error.Message); msg != "" {
			return msg
		}
	}
	return DefaultProviderErrorMessage
}

// ParseServerEvent decodes one data-channel frame.
func ParseServerEvent(raw []byte) (ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ServerEvent{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if ev.Type == "" {
		return ServerEvent{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return ev, nil
}

// SessionUpdate is the client event that reconfigures the provider session.
type SessionUpdate struct {
	Type    EventType     `json:"type"`
	Session SessionConfig `json:"session"`
}

type SessionConfig struct {
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
}

type InputAudioTranscription struct {
	Model string `json:"model"`
}

// NewTranscriptionUpdate enables input audio transcription with the given model.
func NewTranscriptionUpdate(model string) SessionUpdate {
	model = strings.TrimSpace(model)
	if model == "" {
		model = "whisper-1"
	}
	return SessionUpdate{
		Type: TypeSessionUpdate,
		Session: SessionConfig{
			InputAudioTranscription: &InputAudioTranscription{Model: model},
		},
	}
}
