package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// Sink plays remote audio tracks.
type Sink interface {
	Attach(track *webrtc.TrackRemote)
	Detach() error
}

// NewSink builds the sink for a playback mode: ffplay, file or discard.
func NewSink(mode, ffplayPath, filePath string, logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "ffplay":
		return NewFFplaySink(ffplayPath, logger), nil
	case "file":
		return NewFileSink(filePath, logger), nil
	case "discard":
		return NewDiscardSink(), nil
	default:
		return nil, fmt.Errorf("unsupported playback mode %q", mode)
	}
}

type openFunc func() (*oggwriter.OggWriter, func() error, error)

// oggSink writes the remote Opus stream into an ogg container opened lazily
// on the first attached track.
type oggSink struct {
	name   string
	open   openFunc
	logger *slog.Logger

	mu       sync.Mutex
	writer   *oggwriter.OggWriter
	closeFn  func() error
	detached bool
}

func (s *oggSink) Attach(track *webrtc.TrackRemote) {
	if track == nil || track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return
	}
	if s.writer == nil {
		w, closeFn, err := s.open()
		if err != nil {
			s.mu.Unlock()
			s.logger.Warn("playback sink unavailable", "sink", s.name, "error", err)
			go drain(track)
			return
		}
		s.writer, s.closeFn = w, closeFn
	}
	w := s.writer
	s.mu.Unlock()

	go s.copy(track, w)
}

func (s *oggSink) copy(track *webrtc.TrackRemote, w *oggwriter.OggWriter) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.detached {
			s.mu.Unlock()
			drain(track)
			return
		}
		err = w.WriteRTP(pkt)
		s.mu.Unlock()
		if err != nil {
			s.logger.Debug("playback write failed", "sink", s.name, "error", err)
		}
	}
}

// Detach closes the output. Tracks still attached are drained until their
// peer connection closes.
func (s *oggSink) Detach() error {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return nil
	}
	s.detached = true
	w, closeFn := s.writer, s.closeFn
	s.writer, s.closeFn = nil, nil
	s.mu.Unlock()

	var err error
	if w != nil {
		err = w.Close()
	}
	if closeFn != nil {
		err = errors.Join(err, closeFn())
	}
	return err
}

// NewFFplaySink pipes remote audio into an ffplay process.
func NewFFplaySink(path string, logger *slog.Logger) Sink {
	return &oggSink{
		name:   "ffplay",
		logger: logger,
		open: func() (*oggwriter.OggWriter, func() error, error) {
			cmd := exec.Command(path, "-nodisp", "-autoexit", "-loglevel", "error", "-f", "ogg", "-i", "pipe:0")
			stdin, err := cmd.StdinPipe()
			if err != nil {
				return nil, nil, err
			}
			if err := cmd.Start(); err != nil {
				return nil, nil, fmt.Errorf("start %s: %w", path, err)
			}
			w, err := oggwriter.NewWith(stdin, 48000, 2)
			if err != nil {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return nil, nil, err
			}
			return w, func() error {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return nil
			}, nil
		},
	}
}

// NewFileSink records remote audio to an ogg/opus file.
func NewFileSink(path string, logger *slog.Logger) Sink {
	return &oggSink{
		name:   "file",
		logger: logger,
		open: func() (*oggwriter.OggWriter, func() error, error) {
			w, err := oggwriter.New(path, 48000, 2)
			if err != nil {
				return nil, nil, err
			}
			return w, nil, nil
		},
	}
}

// NewWriterSink records remote audio into w. Used for custom outputs.
func NewWriterSink(out io.Writer, logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &oggSink{
		name:   "writer",
		logger: logger,
		open: func() (*oggwriter.OggWriter, func() error, error) {
			w, err := oggwriter.NewWith(out, 48000, 2)
			return w, nil, err
		},
	}
}

type discardSink struct{}

// NewDiscardSink reads and drops remote audio.
func NewDiscardSink() Sink { return discardSink{} }

func (discardSink) Attach(track *webrtc.TrackRemote) {
	if track != nil {
		go drain(track)
	}
}

func (discardSink) Detach() error { return nil }

func drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
