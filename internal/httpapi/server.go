package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/emory-app/voicechat/internal/backend"
	"github.com/emory-app/voicechat/internal/config"
	"github.com/emory-app/voicechat/internal/memory"
	"github.com/emory-app/voicechat/internal/observability"
	"github.com/emory-app/voicechat/internal/session"
)

// Voice is the session controller driven by the control API.
type Voice interface {
	Connect(ctx context.Context, req backend.StartRequest) error
	Disconnect(ctx context.Context) session.Session
	ToggleMute() bool
	State() session.Session
	Subscribe(buffer int) (<-chan session.Session, func())
}

type Server struct {
	cfg      config.Config
	voice    Voice
	archive  memory.Store
	metrics  *observability.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// bg outlives requests; connects run on it until Shutdown.
	bg     context.Context
	cancel context.CancelFunc
}

func New(cfg config.Config, voice Voice, archive memory.Store, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	bg, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		voice:   voice,
		archive: archive,
		metrics: metrics,
		logger:  logger,
		bg:      bg,
		cancel:  cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only the local UI shell may drive the microphone session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	r.Get("/v1/perf/negotiation", s.handlePerfNegotiation)

	r.Route("/v1/voice", func(r chi.Router) {
		r.Post("/connect", s.handleConnect)
		r.Post("/disconnect", s.handleDisconnect)
		r.Post("/mute", s.handleMute)
		r.Get("/state", s.handleState)
		r.Get("/events", s.handleEvents)
		r.Get("/transcripts", s.handleTranscripts)
	})

	return r
}

// Shutdown cancels in-flight connects.
func (s *Server) Shutdown() {
	s.cancel()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"session_status": s.voice.State().Status,
		"archive_mode":   s.archiveMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.bg.Err() != nil {
		respondError(w, http.StatusServiceUnavailable, "shutting_down", "server is shutting down")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"archive_mode": s.archiveMode(),
	})
}

func (s *Server) archiveMode() string {
	switch s.archive.(type) {
	case nil:
		return "disabled"
	case *memory.PostgresStore:
		return "postgres"
	default:
		return "in-memory"
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
