package voice

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/emory-app/voicechat/internal/audio"
	"github.com/emory-app/voicechat/internal/backend"
	"github.com/emory-app/voicechat/internal/rtc"
)

// eventLog records teardown and call order across fakes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

func (l *eventLog) count(e string) int {
	n := 0
	for _, v := range l.snapshot() {
		if v == e {
			n++
		}
	}
	return n
}

type fakeBackend struct {
	mu sync.Mutex

	sessionID string
	secret    backend.ClientSecretResponse
	startErr  error
	secretErr error
	stopErr   error
	saveErr   error
	// startGate, when set, blocks StartSession until closed.
	startGate    chan struct{}
	startEntered chan struct{}

	calls   []string
	stopped []string
	saved   []backend.SaveRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sessionID: "sess-1",
		secret:    backend.ClientSecretResponse{ClientSecret: "ek_secret"},
	}
}

func (b *fakeBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *fakeBackend) StartSession(ctx context.Context, _ backend.StartRequest) (backend.StartResponse, error) {
	b.record("start")
	if b.startEntered != nil {
		close(b.startEntered)
	}
	if b.startGate != nil {
		select {
		case <-b.startGate:
		case <-ctx.Done():
			return backend.StartResponse{}, ctx.Err()
		}
	}
	if b.startErr != nil {
		return backend.StartResponse{}, b.startErr
	}
	return backend.StartResponse{SessionID: b.sessionID}, nil
}

func (b *fakeBackend) ClientSecret(_ context.Context, _ string) (backend.ClientSecretResponse, error) {
	b.record("secret")
	if b.secretErr != nil {
		return backend.ClientSecretResponse{}, b.secretErr
	}
	return b.secret, nil
}

func (b *fakeBackend) StopSession(_ context.Context, sessionID string) error {
	b.record("stop")
	b.mu.Lock()
	b.stopped = append(b.stopped, sessionID)
	b.mu.Unlock()
	return b.stopErr
}

func (b *fakeBackend) SaveMessages(_ context.Context, req backend.SaveRequest) error {
	b.record("save")
	b.mu.Lock()
	b.saved = append(b.saved, req)
	b.mu.Unlock()
	return b.saveErr
}

type fakeMic struct {
	log      *eventLog
	err      error
	captures int
	stream   *audio.Stream
}

func (m *fakeMic) Capture(context.Context) (*audio.Stream, error) {
	m.captures++
	if m.err != nil {
		return nil, m.err
	}
	track, err := audio.NewTrack("mic-test")
	if err != nil {
		return nil, err
	}
	m.stream = audio.NewStream([]*audio.Track{track}, func() { m.log.add("mic.stop") })
	return m.stream, nil
}

type fakeChannel struct {
	log *eventLog

	mu      sync.Mutex
	onOpen  func()
	onMsg   func([]byte)
	onErr   func(error)
	sent    []string
	sendErr error
}

func (c *fakeChannel) Label() string { return EventsChannelLabel }

func (c *fakeChannel) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}

func (c *fakeChannel) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMsg = fn
}

func (c *fakeChannel) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onErr = fn
}

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return c.sendErr
}

func (c *fakeChannel) Close() error {
	c.log.add("dc.close")
	return nil
}

func (c *fakeChannel) open() {
	c.mu.Lock()
	fn := c.onOpen
	c.mu.Unlock()
	fn()
}

func (c *fakeChannel) deliver(frame string) {
	c.mu.Lock()
	fn := c.onMsg
	c.mu.Unlock()
	fn([]byte(frame))
}

func (c *fakeChannel) fail(err error) {
	c.mu.Lock()
	fn := c.onErr
	c.mu.Unlock()
	fn(err)
}

func (c *fakeChannel) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

type fakePeer struct {
	log     *eventLog
	channel *fakeChannel

	tracks   int
	answer   string
	onState  func(rtc.ConnectionState)
	offerErr error
}

func (p *fakePeer) AddTrack(webrtc.TrackLocal) error {
	p.tracks++
	return nil
}

func (p *fakePeer) OnTrack(func(*webrtc.TrackRemote)) {}

func (p *fakePeer) OnConnectionStateChange(fn func(rtc.ConnectionState)) { p.onState = fn }

func (p *fakePeer) CreateDataChannel(string) (rtc.DataChannel, error) {
	p.channel = &fakeChannel{log: p.log}
	return p.channel, nil
}

func (p *fakePeer) CreateOffer(context.Context) (string, error) {
	if p.offerErr != nil {
		return "", p.offerErr
	}
	return "v=0 offer", nil
}

func (p *fakePeer) SetAnswer(sdp string) error {
	p.answer = sdp
	return nil
}

func (p *fakePeer) Close() error {
	p.log.add("pc.close")
	return nil
}

type fakeDialer struct {
	log   *eventLog
	peers []*fakePeer
}

func (d *fakeDialer) NewPeerConnection() (rtc.PeerConnection, error) {
	p := &fakePeer{log: d.log}
	d.peers = append(d.peers, p)
	return p, nil
}

func (d *fakeDialer) last() *fakePeer {
	if len(d.peers) == 0 {
		return nil
	}
	return d.peers[len(d.peers)-1]
}

type fakeSignaler struct {
	secret string
	offer  string
	err    error
}

func (s *fakeSignaler) Exchange(_ context.Context, clientSecret, offerSDP string) (string, error) {
	s.secret, s.offer = clientSecret, offerSDP
	if s.err != nil {
		return "", s.err
	}
	return "v=0 answer", nil
}

type fakeSink struct {
	log *eventLog
}

func (s *fakeSink) Attach(*webrtc.TrackRemote) {}

func (s *fakeSink) Detach() error {
	s.log.add("sink.detach")
	return nil
}

type harness struct {
	log      *eventLog
	backend  *fakeBackend
	mic      *fakeMic
	dialer   *fakeDialer
	signaler *fakeSignaler
}

func newHarness() *harness {
	log := &eventLog{}
	return &harness{
		log:      log,
		backend:  newFakeBackend(),
		mic:      &fakeMic{log: log},
		dialer:   &fakeDialer{log: log},
		signaler: &fakeSignaler{},
	}
}

func (h *harness) options() Options {
	return Options{
		Backend:    h.backend,
		Microphone: h.mic,
		Dialer:     h.dialer,
		Signaler:   h.signaler,
		NewSink: func() (audio.Sink, error) {
			return &fakeSink{log: h.log}, nil
		},
	}
}

var errBoom = errors.New("boom")
