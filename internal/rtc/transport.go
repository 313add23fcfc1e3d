package rtc

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// ConnectionState mirrors the peer connection state names.
type ConnectionState string

const (
	StateNew          ConnectionState = "new"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
	StateClosed       ConnectionState = "closed"
)

// DataChannel is the control/event channel multiplexed over the peer connection.
type DataChannel interface {
	Label() string
	OnOpen(fn func())
	OnMessage(fn func(data []byte))
	OnError(fn func(err error))
	SendText(text string) error
	Close() error
}

// PeerConnection is the subset of a WebRTC peer connection the voice session needs.
type PeerConnection interface {
	AddTrack(track webrtc.TrackLocal) error
	OnTrack(fn func(track *webrtc.TrackRemote))
	OnConnectionStateChange(fn func(state ConnectionState))
	CreateDataChannel(label string) (DataChannel, error)
	// CreateOffer creates an offer, installs it as the local description and
	// returns the SDP once ICE gathering settles.
	CreateOffer(ctx context.Context) (string, error)
	SetAnswer(sdp string) error
	Close() error
}

// Dialer creates peer connections.
type Dialer interface {
	NewPeerConnection() (PeerConnection, error)
}
