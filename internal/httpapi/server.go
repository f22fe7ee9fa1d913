package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/archive"
	"github.com/omochi-ai/voicechat/internal/config"
	"github.com/omochi-ai/voicechat/internal/observability"
	"github.com/omochi-ai/voicechat/internal/session"
	"github.com/omochi-ai/voicechat/internal/voiceerr"
)

const (
	startTimeout         = 45 * time.Second
	defaultTranscriptMax = 100
	maxTranscriptLimit   = 500
)

// Controller is the session surface the API drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop(reason session.StopReason) bool
	SendText(text string) error
	SetMicMuted(muted bool)
	SetHidden(hidden bool)
	Snapshot() session.Snapshot
	Subscribe(buffer int) (<-chan session.Event, func())
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Transcripts reads archived turns back.
type Transcripts interface {
	SessionTurns(ctx context.Context, sessionID string, limit int) ([]archive.Record, error)
}

type Server struct {
	cfg         config.Config
	controller  Controller
	metrics     *observability.Metrics
	store       Pinger
	transcripts Transcripts
	logger      zerolog.Logger
	upgrader    websocket.Upgrader

	viewersMu sync.Mutex
	viewers   int
}

func New(cfg config.Config, controller Controller, metrics *observability.Metrics, store Pinger, transcripts Transcripts, logger zerolog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		controller:  controller,
		metrics:     metrics,
		store:       store,
		transcripts: transcripts,
		logger:      logger.With().Str("component", "httpapi").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive the microphone session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
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
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/voice/session", s.handleGetSession)
	r.Post("/v1/voice/session/start", s.handleStartSession)
	r.Post("/v1/voice/session/stop", s.handleStopSession)
	r.Post("/v1/voice/messages", s.handleSendMessage)
	r.Post("/v1/voice/mic", s.handleSetMic)
	r.Post("/v1/voice/visibility", s.handleSetVisibility)
	r.Get("/v1/voice/events", s.handleEventsWS)
	r.Get("/v1/voice/sessions/{sessionID}/transcript", s.handleTranscript)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"session_state": s.controller.Snapshot().State,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "archive_unavailable", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	// The session outlives a client that hangs up mid-negotiation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), startTimeout)
	defer cancel()

	if err := s.controller.Start(ctx); err != nil {
		status, code := classify(err)
		respondJSON(w, status, startErrorResponse{
			Error:     err.Error(),
			Code:      code,
			Retryable: voiceerr.Retryable(err),
		})
		return
	}
	respondJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleStopSession(w http.ResponseWriter, _ *http.Request) {
	stopped := s.controller.Stop(session.ReasonUser)
	respondJSON(w, http.StatusOK, map[string]any{
		"stopped": stopped,
		"session": s.controller.Snapshot(),
	})
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.controller.SendText(req.Text); err != nil {
		status, code := classify(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "sent"})
}

type micRequest struct {
	Muted *bool `json:"muted"`
}

func (s *Server) handleSetMic(w http.ResponseWriter, r *http.Request) {
	var req micRequest
	if err := decodeJSON(r, &req); err != nil || req.Muted == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "muted is required")
		return
	}
	s.controller.SetMicMuted(*req.Muted)
	respondJSON(w, http.StatusOK, s.controller.Snapshot())
}

type visibilityRequest struct {
	Hidden *bool `json:"hidden"`
}

func (s *Server) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(r, &req); err != nil || req.Hidden == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "hidden is required")
		return
	}
	s.controller.SetHidden(*req.Hidden)
	respondJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if s.transcripts == nil {
		respondError(w, http.StatusNotFound, "archive_disabled", "transcript archive is not configured")
		return
	}
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session id is required")
		return
	}
	limit := defaultTranscriptMax
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxTranscriptLimit {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and "+strconv.Itoa(maxTranscriptLimit))
			return
		}
		limit = n
	}

	turns, err := s.transcripts.SessionTurns(r.Context(), sessionID, limit)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("transcript read failed")
		respondError(w, http.StatusServiceUnavailable, "archive_unavailable", err.Error())
		return
	}
	if turns == nil {
		turns = []archive.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

type startErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrAlreadyRunning):
		return http.StatusConflict, "already_running"
	case errors.Is(err, session.ErrNotActive):
		return http.StatusConflict, "not_active"
	case errors.Is(err, session.ErrChannelNotReady):
		return http.StatusConflict, "channel_not_ready"
	case errors.Is(err, session.ErrStartAborted):
		return http.StatusConflict, "start_aborted"
	case errors.Is(err, session.ErrHidden):
		return http.StatusConflict, "surface_hidden"
	}
	kind, ok := voiceerr.KindOf(err)
	if !ok {
		return http.StatusInternalServerError, "internal_error"
	}
	switch kind {
	case voiceerr.KindValidation:
		return http.StatusBadRequest, "validation_error"
	case voiceerr.KindMedia:
		return http.StatusServiceUnavailable, "media_error"
	case voiceerr.KindSignaling:
		return http.StatusBadGateway, "signaling_error"
	case voiceerr.KindConnection:
		return http.StatusBadGateway, "connection_error"
	default:
		return http.StatusInternalServerError, string(kind) + "_error"
	}
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
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
