package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/emory-app/voicechat/internal/audio"
	"github.com/emory-app/voicechat/internal/backend"
	"github.com/emory-app/voicechat/internal/memory"
	"github.com/emory-app/voicechat/internal/observability"
	"github.com/emory-app/voicechat/internal/protocol"
	"github.com/emory-app/voicechat/internal/reliability"
	"github.com/emory-app/voicechat/internal/rtc"
	"github.com/emory-app/voicechat/internal/session"
	"github.com/emory-app/voicechat/internal/transcript"
)

// EventsChannelLabel is the data channel the provider expects events on.
const EventsChannelLabel = "oai-events"

const (
	defaultPersistTimeout = 10 * time.Second
	archiveTimeout        = 2 * time.Second
)

type Options struct {
	Backend    Backend
	Microphone audio.Microphone
	Dialer     rtc.Dialer
	Signaler   Signaler
	NewSink    SinkFactory

	// Archive keeps a local copy of saved transcripts. Optional.
	Archive memory.Store
	// Metrics is optional.
	Metrics *observability.Metrics
	Logger  *slog.Logger

	TranscriptionModel string
	PersistTimeout     time.Duration
	Now                func() time.Time
}

// Controller owns the single realtime voice session: it negotiates the
// connection, interprets provider events into the transcript and releases
// every resource exactly once.
type Controller struct {
	backend  Backend
	mic      audio.Microphone
	dialer   rtc.Dialer
	signaler Signaler
	newSink  SinkFactory
	archive  memory.Store
	metrics  *observability.Metrics
	logger   *slog.Logger
	model    string
	persist  time.Duration
	now      func() time.Time

	state *session.State

	// mu guards the fields below. Lock order: mu, then state.
	mu         sync.Mutex
	gen        uint64
	res        *resourceSet
	tr         *transcript.Transcript
	sessionID  string
	configSent bool
	closed     bool
}

func NewController(opts Options) (*Controller, error) {
	if opts.Backend == nil || opts.Microphone == nil || opts.Dialer == nil || opts.Signaler == nil {
		return nil, errors.New("voice controller requires backend, microphone, dialer and signaler")
	}
	c := &Controller{
		backend:  opts.Backend,
		mic:      opts.Microphone,
		dialer:   opts.Dialer,
		signaler: opts.Signaler,
		newSink:  opts.NewSink,
		archive:  opts.Archive,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		model:    opts.TranscriptionModel,
		persist:  opts.PersistTimeout,
		now:      opts.Now,
		state:    session.NewState(),
	}
	if c.newSink == nil {
		c.newSink = func() (audio.Sink, error) { return audio.NewDiscardSink(), nil }
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.persist <= 0 {
		c.persist = defaultPersistTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.metrics != nil {
		c.state.SetChangeHook(c.trackActive)
	}
	return c, nil
}

// State returns the current session snapshot.
func (c *Controller) State() session.Session {
	return c.state.Get()
}

// Subscribe streams session snapshots, starting with the current one.
func (c *Controller) Subscribe(buffer int) (<-chan session.Session, func()) {
	return c.state.Subscribe(buffer)
}

// Connect negotiates a new realtime session. It returns once the SDP answer
// is applied; the session reports connected when the event channel opens.
func (c *Controller) Connect(ctx context.Context, req backend.StartRequest) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.state.Get().Status.Live() {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.gen++
	gen := c.gen
	leftover, orphan := c.res, c.sessionID
	c.res = &resourceSet{}
	c.tr = transcript.New()
	c.sessionID = ""
	c.configSent = false
	started := c.now().UTC()
	c.state.Update(func(s *session.Session) {
		*s = session.Session{Status: session.StatusConnecting, StartedAt: started}
	})
	c.mu.Unlock()

	// A session that ended on a transport event still holds its handles.
	leftover.release(c.logger)
	if orphan != "" {
		c.stopOrphan(orphan)
	}
	c.countEvent("connect")

	begin := time.Now()
	err := c.negotiate(ctx, gen, req)
	if err == nil {
		c.metrics.ObserveStage(observability.StageConnectTotal, time.Since(begin))
		c.metrics.ObserveOutcome(observability.OutcomeConnected)
		return nil
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.metrics.ObserveOutcome(observability.OutcomeSuperseded)
		c.logger.Info("connect superseded", "error", err)
		return ErrSessionClosed
	}
	c.gen++
	res := c.res
	c.res = nil
	c.sessionID = ""
	msg := UserMessage(err)
	c.state.Update(func(s *session.Session) {
		s.Status = session.StatusError
		s.Error = msg
		s.ID = ""
		s.Muted = false
		s.AISpeaking = false
	})
	c.mu.Unlock()

	res.release(c.logger)
	c.metrics.ObserveOutcome(observability.OutcomeFailed)
	c.countEvent("connect_failed")
	c.logger.Warn("voice connect failed", "error", err)
	return err
}

func (c *Controller) negotiate(ctx context.Context, gen uint64, req backend.StartRequest) error {
	stageStart := time.Now()
	started, err := c.backend.StartSession(ctx, req)
	c.countBackend("start_session", err)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	c.metrics.ObserveStage(observability.StageStartSession, time.Since(stageStart))
	if !c.adoptSessionID(gen, started.SessionID) {
		c.stopOrphan(started.SessionID)
		return ErrSessionClosed
	}
	logger := c.logger.With("session_id", started.SessionID)

	stageStart = time.Now()
	secret, err := c.backend.ClientSecret(ctx, started.SessionID)
	c.countBackend("client_secret", err)
	if err != nil {
		return fmt.Errorf("client secret: %w", err)
	}
	c.metrics.ObserveStage(observability.StageClientSecret, time.Since(stageStart))
	// Expiry is judged by the provider at signaling; the local clock may be skewed.
	if !secret.ExpiresAt.IsZero() && !secret.ExpiresAt.After(c.now()) {
		logger.Warn("client secret looks expired by local clock",
			"expires_at", secret.ExpiresAt.Time,
			"local_time", c.now())
	} else {
		logger.Debug("client secret issued", "expires_at", secret.ExpiresAt.Time)
	}
	if !c.current(gen) {
		return ErrSessionClosed
	}

	stageStart = time.Now()
	stream, err := c.mic.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture microphone: %w", err)
	}
	c.metrics.ObserveStage(observability.StageMicrophone, time.Since(stageStart))
	if !c.adopt(gen, func(r *resourceSet) { r.stream = stream }) {
		stream.Stop()
		return ErrSessionClosed
	}

	sink, err := c.newSink()
	if err != nil {
		return fmt.Errorf("open playback: %w", err)
	}
	if !c.adopt(gen, func(r *resourceSet) { r.sink = sink }) {
		_ = sink.Detach()
		return ErrSessionClosed
	}

	pc, err := c.dialer.NewPeerConnection()
	if err != nil {
		return err
	}
	if !c.adopt(gen, func(r *resourceSet) { r.peer = pc }) {
		_ = pc.Close()
		return ErrSessionClosed
	}
	for _, track := range stream.AudioTracks() {
		if err := pc.AddTrack(track.Local()); err != nil {
			return err
		}
	}
	pc.OnTrack(func(track *webrtc.TrackRemote) { c.onRemoteTrack(gen, track) })
	pc.OnConnectionStateChange(func(state rtc.ConnectionState) { c.onConnectionState(gen, state) })

	dc, err := pc.CreateDataChannel(EventsChannelLabel)
	if err != nil {
		return err
	}
	if !c.adopt(gen, func(r *resourceSet) { r.channel = dc }) {
		_ = dc.Close()
		return ErrSessionClosed
	}
	channelStart := time.Now()
	dc.OnOpen(func() { c.onChannelOpen(gen, dc, time.Since(channelStart)) })
	dc.OnMessage(func(data []byte) { c.onFrame(gen, data) })
	dc.OnError(func(err error) { c.onChannelError(gen, err) })

	stageStart = time.Now()
	offer, err := pc.CreateOffer(ctx)
	if err != nil {
		return err
	}
	c.metrics.ObserveStage(observability.StageOffer, time.Since(stageStart))

	stageStart = time.Now()
	answer, err := c.signaler.Exchange(ctx, secret.ClientSecret, offer)
	if err != nil {
		return err
	}
	c.metrics.ObserveStage(observability.StageSignaling, time.Since(stageStart))
	if !c.current(gen) {
		return ErrSessionClosed
	}
	if err := pc.SetAnswer(answer); err != nil {
		return err
	}
	if !c.current(gen) {
		return ErrSessionClosed
	}
	logger.Info("realtime session negotiated")
	return nil
}

// Disconnect stops the backend session, saves the transcript, releases every
// resource and resets the session. Backend failures are logged only.
func (c *Controller) Disconnect(ctx context.Context) session.Session {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	res := c.res
	c.res = nil
	sessionID := c.sessionID
	c.sessionID = ""
	var messages []transcript.Message
	if c.tr != nil {
		messages = c.tr.NonEmpty()
	}
	c.tr = nil
	c.mu.Unlock()

	c.persistSession(ctx, sessionID, messages)
	res.release(c.logger)
	c.countEvent("disconnect")

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// A newer Disconnect or Connect owns the session now.
		return c.state.Get()
	}
	return c.state.Update(func(s *session.Session) {
		s.Status = session.StatusDisconnected
		s.ID = ""
		s.Muted = false
		s.AISpeaking = false
	})
}

// ToggleMute flips the first microphone track and returns the new muted
// flag. Without a capture stream it reports the current flag unchanged.
func (c *Controller) ToggleMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.res == nil {
		return c.state.Get().Muted
	}
	stream := c.res.micStream()
	if stream == nil {
		return c.state.Get().Muted
	}
	tracks := stream.AudioTracks()
	if len(tracks) == 0 {
		return c.state.Get().Muted
	}
	track := tracks[0]
	track.SetEnabled(!track.Enabled())
	muted := !track.Enabled()
	c.state.Update(func(s *session.Session) { s.Muted = muted })
	return muted
}

// Close releases resources without persisting. Later calls to Connect fail.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	res := c.res
	c.res = nil
	c.sessionID = ""
	c.tr = nil
	if c.state.Get().Status.Live() {
		c.state.Update(func(s *session.Session) {
			s.Status = session.StatusDisconnected
			s.ID = ""
			s.Muted = false
			s.AISpeaking = false
		})
	}
	c.mu.Unlock()

	res.release(c.logger)
	return nil
}

func (c *Controller) persistSession(ctx context.Context, sessionID string, messages []transcript.Message) {
	if sessionID == "" {
		return
	}
	logger := c.logger.With("session_id", sessionID)
	// Callers such as an HTTP handler may be cancelled mid-teardown; the
	// persist deadlines still bound each call.
	ctx = context.WithoutCancel(ctx)

	stopCtx, cancel := context.WithTimeout(ctx, c.persist)
	err := c.backend.StopSession(stopCtx, sessionID)
	cancel()
	c.countBackend("stop_session", err)
	if err != nil {
		logger.Warn("stop session failed", "error", err)
	}

	if len(messages) == 0 {
		logger.Debug("no transcript to save")
		return
	}

	saveCtx, cancel := context.WithTimeout(ctx, c.persist)
	err = c.backend.SaveMessages(saveCtx, backend.SaveRequest{
		SessionID: sessionID,
		Messages:  backendMessages(messages),
	})
	cancel()
	c.countBackend("save_messages", err)
	if err != nil {
		logger.Warn("save transcript failed", "error", err)
	}

	if c.archive == nil {
		return
	}
	archiveCtx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()
	if err := c.archive.Archive(archiveCtx, archiveRecords(sessionID, messages)); err != nil {
		logger.Warn("archive transcript failed", "error", err)
	}
}

func backendMessages(messages []transcript.Message) []backend.Message {
	out := make([]backend.Message, 0, len(messages))
	for _, m := range messages {
		role := backend.RoleUser
		if m.Role == transcript.RoleAI {
			role = backend.RoleAssistant
		}
		out = append(out, backend.Message{Role: role, Content: m.Text})
	}
	return out
}

func archiveRecords(sessionID string, messages []transcript.Message) []memory.Record {
	out := make([]memory.Record, 0, len(messages))
	for _, m := range messages {
		role := string(backend.RoleUser)
		if m.Role == transcript.RoleAI {
			role = string(backend.RoleAssistant)
		}
		out = append(out, memory.Record{
			SessionID: sessionID,
			MessageID: m.ID,
			Role:      role,
			Content:   m.Text,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && c.res != nil
}

// adopt hands a freshly acquired resource to the session owned by gen. It
// reports false when that session is gone; the caller then closes it.
func (c *Controller) adopt(gen uint64, set func(*resourceSet)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.res == nil {
		return false
	}
	c.res.set(set)
	return true
}

func (c *Controller) adoptSessionID(gen uint64, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.res == nil {
		return false
	}
	c.sessionID = id
	c.state.Update(func(s *session.Session) { s.ID = id })
	return true
}

func (c *Controller) stopOrphan(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.persist)
	defer cancel()
	err := c.backend.StopSession(ctx, sessionID)
	c.countBackend("stop_session", err)
	if err != nil {
		c.logger.Warn("stop superseded session failed", "session_id", sessionID, "error", err)
	}
}

func (c *Controller) onChannelOpen(gen uint64, dc rtc.DataChannel, waited time.Duration) {
	c.mu.Lock()
	if gen != c.gen || c.configSent {
		c.mu.Unlock()
		return
	}
	c.configSent = true
	c.state.Update(func(s *session.Session) {
		if s.Status == session.StatusConnecting {
			s.Status = session.StatusConnected
		}
	})
	c.mu.Unlock()

	c.metrics.ObserveStage(observability.StageChannelOpen, waited)
	payload, err := json.Marshal(protocol.NewTranscriptionUpdate(c.model))
	if err != nil {
		c.logger.Error("encode session update", "error", err)
		return
	}
	if err := dc.SendText(string(payload)); err != nil {
		c.logger.Warn("send session update failed", "error", err)
		return
	}
	c.countFrame("out", string(protocol.TypeSessionUpdate))
}

func (c *Controller) onFrame(gen uint64, data []byte) {
	ev, err := protocol.ParseServerEvent(data)
	if err != nil {
		c.countFrame("in", "malformed")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.tr == nil {
		return
	}
	out := c.tr.Apply(ev)
	c.countFrame("in", string(ev.Type))
	if out.Ignored {
		return
	}
	if out.Error != "" {
		code, errType := "unknown", ""
		if ev.Error != nil {
			errType = ev.Error.Type
			if ev.Error.Code != "" {
				code = ev.Error.Code
			}
		}
		if c.metrics != nil {
			c.metrics.ProviderErrors.WithLabelValues(code).Inc()
		}
		c.logger.Info("realtime provider error",
			"code", code,
			"type", errType,
			"retryable", reliability.IsRetryableProviderError(errType))
	}

	messages := c.tr.Messages()
	c.state.Update(func(s *session.Session) {
		s.Messages = messages
		switch out.Speaking {
		case transcript.SpeakingStarted:
			s.AISpeaking = true
			if s.Status.Live() {
				s.Status = session.StatusAISpeaking
			}
		case transcript.SpeakingStopped:
			s.AISpeaking = false
			if s.Status.Live() {
				s.Status = session.StatusConnected
			}
		}
		if out.Error != "" {
			s.Error = out.Error
		}
	})
}

func (c *Controller) onConnectionState(gen uint64, state rtc.ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	switch state {
	case rtc.StateFailed:
		c.state.Update(func(s *session.Session) {
			s.Status = session.StatusError
			s.Error = msgConnectionLost
			s.AISpeaking = false
		})
		c.logger.Warn("peer connection failed", "session_id", c.sessionID)
	case rtc.StateDisconnected:
		c.state.Update(func(s *session.Session) {
			if s.Status == session.StatusError {
				return
			}
			s.Status = session.StatusDisconnected
			s.AISpeaking = false
		})
		c.logger.Info("peer connection disconnected", "session_id", c.sessionID)
	}
}

func (c *Controller) onChannelError(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.logger.Warn("data channel error", "session_id", c.sessionID, "error", err)
	c.state.Update(func(s *session.Session) { s.Error = msgDataChannel })
}

func (c *Controller) onRemoteTrack(gen uint64, track *webrtc.TrackRemote) {
	c.mu.Lock()
	var sink audio.Sink
	if gen == c.gen && c.res != nil {
		sink = c.res.playback()
	}
	c.mu.Unlock()
	if sink != nil {
		sink.Attach(track)
	}
}

func (c *Controller) trackActive(prev, next session.Session) {
	wasLive, isLive := prev.Status.Live(), next.Status.Live()
	switch {
	case !wasLive && isLive:
		c.metrics.ActiveSessions.Inc()
	case wasLive && !isLive:
		c.metrics.ActiveSessions.Dec()
	}
}

func (c *Controller) countEvent(event string) {
	if c.metrics != nil {
		c.metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}

func (c *Controller) countFrame(direction, typ string) {
	if c.metrics != nil {
		c.metrics.ChannelFrames.WithLabelValues(direction, typ).Inc()
	}
}

func (c *Controller) countBackend(op string, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrTimeout):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	c.metrics.BackendRequests.WithLabelValues(op, outcome).Inc()
}
