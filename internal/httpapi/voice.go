package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emory-app/voicechat/internal/backend"
	"github.com/emory-app/voicechat/internal/session"
	"github.com/emory-app/voicechat/internal/voice"
)

const (
	connectStartWait   = 5 * time.Second
	wsWriteTimeout     = 10 * time.Second
	wsReadTimeout      = 120 * time.Second
	wsPingInterval     = 30 * time.Second
	maxTranscriptLimit = 500
)

type connectRequest struct {
	SelectedEmotion string `json:"selectedEmotion"`
	CalendarSummary string `json:"calendarSummary"`
}

type muteResponse struct {
	Muted bool `json:"muted"`
}

type snapshotEvent struct {
	Type    string          `json:"type"`
	Session session.Session `json:"session"`
}

// handleConnect starts negotiation in the background and answers as soon as
// the session is connecting, so clients can follow progress on /events.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	updates, unsubscribe := s.voice.Subscribe(8)
	defer unsubscribe()

	done := make(chan error, 1)
	go func() {
		err := s.voice.Connect(s.bg, backend.StartRequest{
			SelectedEmotion: strings.TrimSpace(req.SelectedEmotion),
			CalendarSummary: req.CalendarSummary,
		})
		if err != nil && !errors.Is(err, voice.ErrSessionActive) && !errors.Is(err, voice.ErrSessionClosed) {
			s.logger.Warn("voice connect failed", "error", err)
		}
		done <- err
	}()

	timer := time.NewTimer(connectStartWait)
	defer timer.Stop()
	// The first snapshot predates this connect.
	first := true
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if first {
				first = false
				continue
			}
			if snap.Status == session.StatusConnecting {
				respondJSON(w, http.StatusAccepted, snap)
				return
			}
		case err := <-done:
			if errors.Is(err, voice.ErrSessionActive) {
				respondError(w, http.StatusConflict, "session_active", voice.UserMessage(err))
				return
			}
			respondJSON(w, http.StatusAccepted, s.voice.State())
			return
		case <-timer.C:
			respondJSON(w, http.StatusAccepted, s.voice.State())
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	snap := s.voice.Disconnect(r.Context())
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMute(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, muteResponse{Muted: s.voice.ToggleMute()})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.voice.State())
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "transcript archive not configured")
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxTranscriptLimit)
	}

	records, err := s.archive.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list transcripts", "error", err)
		respondError(w, http.StatusInternalServerError, "archive_error", "could not read transcripts")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": records})
}

// handleEvents streams session snapshots over a WebSocket. Inbound frames are
// only read to track liveness.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.voice.Subscribe(s.cfg.EventsBuffer)
	defer unsubscribe()
	if s.metrics != nil {
		s.metrics.SnapshotSubs.Inc()
		defer s.metrics.SnapshotSubs.Dec()
		s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	}

	readerDone := make(chan struct{})
	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-readerDone:
			return
		case <-s.bg.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case snap, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(snapshotEvent{Type: "session_snapshot", Session: snap}); err != nil {
				s.logger.Debug("snapshot write failed", "error", err)
				return
			}
		}
	}
}
