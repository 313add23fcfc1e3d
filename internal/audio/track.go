package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrCaptureFailed    = errors.New("microphone capture failed")
)

// Opus TOC byte for a 20ms CELT frame followed by an empty payload. Decoders
// render it as silence.
var silenceFrame = []byte{0xf8, 0xff, 0xfe}

// OpusCapability is the outbound codec negotiated with the provider.
var OpusCapability = webrtc.RTPCodecCapability{
	MimeType:  webrtc.MimeTypeOpus,
	ClockRate: 48000,
	Channels:  2,
}

// Track is one outbound microphone track. A disabled track keeps the RTP
// stream alive with silence frames.
type Track struct {
	id      string
	local   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	stopped atomic.Bool
}

func NewTrack(id string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(OpusCapability, id, "emory-mic")
	if err != nil {
		return nil, err
	}
	t := &Track{id: id, local: local}
	t.enabled.Store(true)
	return t, nil
}

func (t *Track) ID() string { return t.id }

// Local returns the track to attach to a peer connection.
func (t *Track) Local() *webrtc.TrackLocalStaticSample { return t.local }

func (t *Track) Enabled() bool { return t.enabled.Load() }

func (t *Track) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

func (t *Track) Stopped() bool { return t.stopped.Load() }

// WriteSample forwards one encoded Opus packet, substituting silence while
// the track is disabled. Writes after Stop are dropped.
func (t *Track) WriteSample(data []byte, duration time.Duration) error {
	if t.stopped.Load() {
		return nil
	}
	return t.local.WriteSample(media.Sample{Data: t.payload(data), Duration: duration})
}

func (t *Track) payload(data []byte) []byte {
	if !t.enabled.Load() {
		return silenceFrame
	}
	return data
}

func (t *Track) stop() { t.stopped.Store(true) }

// Stream is a live capture: a set of tracks fed by one source.
type Stream struct {
	tracks []*Track
	halt   func()
	once   sync.Once
}

// NewStream wraps tracks; halt runs once when the stream is stopped.
func NewStream(tracks []*Track, halt func()) *Stream {
	return &Stream{tracks: tracks, halt: halt}
}

func (s *Stream) AudioTracks() []*Track {
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Stop stops every track and the underlying source. Safe to call repeatedly.
func (s *Stream) Stop() {
	s.once.Do(func() {
		for _, t := range s.tracks {
			t.stop()
		}
		if s.halt != nil {
			s.halt()
		}
	})
}
