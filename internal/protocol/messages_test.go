package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseServerEventTranscriptDelta(t *testing.T) {
	raw := []byte(`{"type":"response.audio_transcript.delta","event_id":"ev_1","delta":"Hel"}`)
	ev, err := ParseServerEvent(raw)
	if err != nil {
		t.Fatalf("ParseServerEvent() error = %v", err)
	}
	if ev.Type != TypeAudioTranscriptDelta || ev.Delta != "Hel" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestParseServerEventRejectsNonJSON(t *testing.T) {
	for _, raw := range []string{"ping", "", "[1,2]", `{"delta":"x"}`} {
		_, err := ParseServerEvent([]byte(raw))
		if !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("ParseServerEvent(%q) error = %v, want ErrMalformedFrame", raw, err)
		}
	}
}

func TestServerEventErrorMessage(t *testing.T) {
	ev, err := ParseServerEvent([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad session"}}`))
	if err != nil {
		t.Fatalf("ParseServerEvent() error = %v", err)
	}
	if got := ev.ErrorMessage(); got != "bad session" {
		t.Fatalf("ErrorMessage() = %q, want %q", got, "bad session")
	}

	bare := ServerEvent{Type: TypeError}
	if got := bare.ErrorMessage(); got != DefaultProviderErrorMessage {
		t.Fatalf("ErrorMessage() = %q, want fallback", got)
	}
}

func TestNewTranscriptionUpdateWireFormat(t *testing.T) {
	raw, err := json.Marshal(NewTranscriptionUpdate(""))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"session.update","session":{"input_audio_transcription":{"model":"whisper-1"}}}`
	if string(raw) != want {
		t.Fatalf("payload = %s, want %s", raw, want)
	}
}
