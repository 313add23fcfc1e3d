package voice

import (
	"log/slog"
	"sync"

	"github.com/emory-app/voicechat/internal/audio"
	"github.com/emory-app/voicechat/internal/rtc"
)

// resourceSet holds every handle tied to one session.
type resourceSet struct {
	mu      sync.Mutex
	stream  *audio.Stream
	peer    rtc.PeerConnection
	channel rtc.DataChannel
	sink    audio.Sink
}

func (r *resourceSet) set(fn func(*resourceSet)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

func (r *resourceSet) micStream() *audio.Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream
}

func (r *resourceSet) playback() audio.Sink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink
}

// release closes the data channel, the peer connection, every microphone
// track and the playback sink, in that order. Each handle is taken exactly
// once, so repeated and concurrent calls are safe. A nil set is a no-op.
func (r *resourceSet) release(logger *slog.Logger) {
	if r == nil {
		return
	}
	r.mu.Lock()
	channel, peer, stream, sink := r.channel, r.peer, r.stream, r.sink
	r.channel, r.peer, r.stream, r.sink = nil, nil, nil, nil
	r.mu.Unlock()

	if channel != nil {
		if err := channel.Close(); err != nil {
			logger.Debug("close data channel", "error", err)
		}
	}
	if peer != nil {
		if err := peer.Close(); err != nil {
			logger.Debug("close peer connection", "error", err)
		}
	}
	if stream != nil {
		stream.Stop()
	}
	if sink != nil {
		if err := sink.Detach(); err != nil {
			logger.Debug("detach playback sink", "error", err)
		}
	}
}
