package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	opusClockRate = 48000
	noGranule     = ^uint64(0)
)

// Microphone acquires a capture stream.
type Microphone interface {
	Capture(ctx context.Context) (*Stream, error)
}

// FFmpegMicrophone records the default input device with ffmpeg and streams
// Opus pages from its stdout.
type FFmpegMicrophone struct {
	Path         string
	InputFormat  string
	Device       string
	StartTimeout time.Duration
	Logger       *slog.Logger
}

func NewFFmpegMicrophone(path, inputFormat, device string, logger *slog.Logger) *FFmpegMicrophone {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegMicrophone{
		Path:         path,
		InputFormat:  inputFormat,
		Device:       device,
		StartTimeout: 5 * time.Second,
		Logger:       logger,
	}
}

func (m *FFmpegMicrophone) args() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", m.InputFormat,
		"-i", m.Device,
		"-ac", "2",
		"-ar", "48000",
		"-c:a", "libopus",
		"-b:a", "32k",
		"-application", "voip",
		"-frame_duration", "20",
		// one packet per page so every parsed page is a single sample
		"-page_duration", "20000",
		"-f", "ogg",
		"pipe:1",
	}
}

type headerResult struct {
	reader *oggreader.OggReader
	err    error
}

func (m *FFmpegMicrophone) Capture(ctx context.Context) (*Stream, error) {
	cmd := exec.Command(m.Path, m.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	stderr := &tailBuffer{limit: 4 << 10}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrCaptureFailed, m.Path, err)
	}

	var waitOnce sync.Once
	var waitErr error
	wait := func() error {
		waitOnce.Do(func() { waitErr = cmd.Wait() })
		return waitErr
	}
	kill := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = wait()
	}

	headerCh := make(chan headerResult, 1)
	go func() {
		reader, _, err := oggreader.NewWith(stdout)
		headerCh <- headerResult{reader: reader, err: err}
	}()

	timer := time.NewTimer(m.StartTimeout)
	defer timer.Stop()

	var reader *oggreader.OggReader
	select {
	case res := <-headerCh:
		if res.err != nil {
			kill()
			return nil, classifyCaptureError(stderr.String(), res.err)
		}
		reader = res.reader
	case <-timer.C:
		kill()
		return nil, fmt.Errorf("%w: no audio within %s", ErrCaptureFailed, m.StartTimeout)
	case <-ctx.Done():
		kill()
		return nil, ctx.Err()
	}

	track, err := NewTrack("mic-" + uuid.NewString())
	if err != nil {
		kill()
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	stream := NewStream([]*Track{track}, kill)

	go m.pump(reader, track, stderr)
	return stream, nil
}

func (m *FFmpegMicrophone) pump(reader *oggreader.OggReader, track *Track, stderr *tailBuffer) {
	var lastGranule uint64
	for {
		page, header, err := reader.ParseNextPage()
		if err != nil {
			if !track.Stopped() && !errors.Is(err, io.EOF) {
				m.Logger.Warn("microphone stream ended", "error", err, "stderr", stderr.String())
			}
			return
		}
		if bytes.HasPrefix(page, []byte("OpusTags")) {
			continue
		}
		duration, ok := pageDuration(header.GranulePosition, lastGranule)
		if !ok {
			continue
		}
		lastGranule = header.GranulePosition
		if err := track.WriteSample(page, duration); err != nil {
			m.Logger.Debug("microphone sample dropped", "error", err)
		}
	}
}

// pageDuration converts the granule advance since last into play time at
// 48 kHz. Pages with no completed packet (granule -1) or a granule that does
// not advance carry no timing and are skipped.
func pageDuration(granule, last uint64) (time.Duration, bool) {
	if granule == noGranule || granule <= last {
		return 0, false
	}
	return time.Duration(granule-last) * time.Second / opusClockRate, true
}

func classifyCaptureError(stderr string, cause error) error {
	msg := strings.ToLower(stderr)
	for _, marker := range []string{"permission denied", "not authorized", "operation not permitted", "access denied"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, lastLine(stderr))
		}
	}
	if line := lastLine(stderr); line != "" {
		return fmt.Errorf("%w: %s", ErrCaptureFailed, line)
	}
	return fmt.Errorf("%w: %v", ErrCaptureFailed, cause)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
