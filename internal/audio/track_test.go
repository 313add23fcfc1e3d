package audio

import (
	"bytes"
	"testing"
	"time"
)

func TestTrackSubstitutesSilenceWhenDisabled(t *testing.T) {
	track, err := NewTrack("mic-1")
	if err != nil {
		t.Fatalf("NewTrack() error = %v", err)
	}
	frame := []byte{0x78, 0x01, 0x02}
	if got := track.payload(frame); !bytes.Equal(got, frame) {
		t.Fatalf("enabled payload = %v, want original frame", got)
	}

	track.SetEnabled(false)
	if track.Enabled() {
		t.Fatalf("Enabled() = true after SetEnabled(false)")
	}
	if got := track.payload(frame); !bytes.Equal(got, silenceFrame) {
		t.Fatalf("disabled payload = %v, want silence frame", got)
	}
	if err := track.WriteSample(frame, 20*time.Millisecond); err != nil {
		t.Fatalf("WriteSample() error = %v", err)
	}
}

func TestStreamStopIsIdempotent(t *testing.T) {
	a, _ := NewTrack("a")
	b, _ := NewTrack("b")
	halted := 0
	stream := NewStream([]*Track{a, b}, func() { halted++ })

	stream.Stop()
	stream.Stop()

	if halted != 1 {
		t.Fatalf("halt called %d times, want 1", halted)
	}
	for _, tr := range stream.AudioTracks() {
		if !tr.Stopped() {
			t.Fatalf("track %s not stopped", tr.ID())
		}
	}
	if err := a.WriteSample([]byte{1}, 20*time.Millisecond); err != nil {
		t.Fatalf("WriteSample() after stop error = %v", err)
	}
}

func TestAudioTracksReturnsCopy(t *testing.T) {
	a, _ := NewTrack("a")
	stream := NewStream([]*Track{a}, nil)
	tracks := stream.AudioTracks()
	tracks[0] = nil
	if stream.AudioTracks()[0] != a {
		t.Fatalf("AudioTracks() exposed internal slice")
	}
}
