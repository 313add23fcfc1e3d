package voice

import (
	"context"

	"github.com/emory-app/voicechat/internal/audio"
	"github.com/emory-app/voicechat/internal/backend"
)

// Backend is the EMORY REST surface the voice session consumes.
type Backend interface {
	StartSession(ctx context.Context, req backend.StartRequest) (backend.StartResponse, error)
	ClientSecret(ctx context.Context, sessionID string) (backend.ClientSecretResponse, error)
	StopSession(ctx context.Context, sessionID string) error
	SaveMessages(ctx context.Context, req backend.SaveRequest) error
}

// Signaler exchanges an SDP offer for the provider's answer.
type Signaler interface {
	Exchange(ctx context.Context, clientSecret, offerSDP string) (string, error)
}

// SinkFactory builds a fresh playback sink for each session.
type SinkFactory func() (audio.Sink, error)
