package voice

import (
	"context"
	"errors"
	"fmt"

	"github.com/emory-app/voicechat/internal/audio"
	"github.com/emory-app/voicechat/internal/backend"
	"github.com/emory-app/voicechat/internal/rtc"
)

var (
	// ErrSessionActive is returned by Connect while a session is live.
	ErrSessionActive = errors.New("voice session already active")
	// ErrSessionClosed is returned by a Connect superseded by Disconnect or Close.
	ErrSessionClosed = errors.New("voice session closed")
)

const (
	msgMicPermission   = "microphone permission required"
	msgMicCapture      = "microphone capture failed"
	msgConnectionLost  = "realtime connection failed"
	msgDataChannel     = "data channel error"
	msgConnectCanceled = "connection cancelled"
)

// UserMessage renders err as the text shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var sigErr *rtc.SignalingError
	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return msgMicPermission
	case errors.Is(err, audio.ErrCaptureFailed):
		return msgMicCapture
	case errors.Is(err, backend.ErrMissingToken):
		return backend.ErrMissingToken.Error()
	case errors.Is(err, backend.ErrUnauthorized):
		return backend.ErrUnauthorized.Error()
	case errors.Is(err, backend.ErrTimeout):
		return backend.ErrTimeout.Error()
	case errors.Is(err, ErrSessionActive):
		return "a voice session is already active"
	case errors.Is(err, ErrSessionClosed):
		return "voice session was closed"
	case errors.Is(err, context.Canceled):
		return msgConnectCanceled
	case errors.As(err, &sigErr):
		return fmt.Sprintf("%s: %s", msgConnectionLost, sigErr.Status)
	case errors.As(err, &statusErr):
		return fmt.Sprintf("%s failed: %s", statusErr.Op, statusErr.Status)
	default:
		return "failed to connect: " + err.Error()
	}
}
