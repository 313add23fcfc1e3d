package audio

import (
	"bytes"
	"testing"
)

func TestNewSinkModes(t *testing.T) {
	for _, mode := range []string{"ffplay", "file", "discard", " FILE "} {
		if _, err := NewSink(mode, "ffplay", "out.ogg", nil); err != nil {
			t.Fatalf("NewSink(%q) error = %v", mode, err)
		}
	}
	if _, err := NewSink("speaker", "", "", nil); err == nil {
		t.Fatalf("NewSink(speaker) expected error")
	}
}

func TestSinkDetachIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf, nil)
	sink.Attach(nil)
	if err := sink.Detach(); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}
	if err := sink.Detach(); err != nil {
		t.Fatalf("second Detach() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("sink wrote %d bytes without a track", buf.Len())
	}
}
