package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/observability"
	"github.com/omochi-ai/voicechat/internal/signaling"
	"github.com/omochi-ai/voicechat/internal/synthesis"
	"github.com/omochi-ai/voicechat/internal/voiceerr"
)

// CredentialIssuer mints ephemeral realtime credentials.
type CredentialIssuer interface {
	Create(ctx context.Context) (string, error)
}

// VoiceGenerator turns a script into base64-encoded audio.
type VoiceGenerator interface {
	Generate(ctx context.Context, script string) (string, error)
}

type Server struct {
	credentials CredentialIssuer
	voices      VoiceGenerator
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

func New(credentials CredentialIssuer, voices VoiceGenerator, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		credentials: credentials,
		voices:      voices,
		metrics:     metrics,
		logger:      logger.With().Str("component", "gateway").Logger(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Post(signaling.CredentialPath, s.handleCreateSession)
	r.Post(synthesis.VoicesPath, s.handleGenerateVoice)
	return r
}

type createSessionResponse struct {
	EphemeralToken string `json:"ephemeralToken"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	token, err := s.credentials.Create(r.Context())
	if err != nil {
		s.upstreamFailed(w, "openai", err)
		return
	}
	respondJSON(w, http.StatusCreated, createSessionResponse{EphemeralToken: token})
}

func (s *Server) handleGenerateVoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Script *string `json:"script"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Script == nil {
		s.metrics.SynthesisRequests.WithLabelValues(synthesis.ResultInvalidScript).Inc()
		respondProblem(w, http.StatusBadRequest, "BAD_REQUEST", "script is required.")
		return
	}
	if err := synthesis.ValidateScript(*req.Script); err != nil {
		s.metrics.SynthesisRequests.WithLabelValues(synthesis.ResultInvalidScript).Inc()
		respondProblem(w, http.StatusBadRequest, "BAD_REQUEST", validationTitle(err))
		return
	}

	audio, err := s.voices.Generate(r.Context(), *req.Script)
	if err != nil {
		s.metrics.SynthesisRequests.WithLabelValues(synthesis.ResultRequestError).Inc()
		s.upstreamFailed(w, "nijivoice", err)
		return
	}
	s.metrics.SynthesisRequests.WithLabelValues(synthesis.ResultOK).Inc()
	respondJSON(w, http.StatusOK, synthesis.Response{Base64Audio: audio})
}

func (s *Server) upstreamFailed(w http.ResponseWriter, upstream string, err error) {
	code := "error"
	var ue *upstreamError
	switch {
	case errors.Is(err, errMissingAPIKey):
		code = "missing_key"
	case errors.As(err, &ue):
		code = strconv.Itoa(ue.Status)
	}
	s.metrics.UpstreamErrors.WithLabelValues(upstream, code).Inc()
	s.logger.Error().Err(err).Str("upstream", upstream).Msg("upstream call failed")

	if ue != nil && ue.Status == http.StatusTooManyRequests {
		respondProblem(w, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Usage limit has been exceeded.")
		return
	}
	respondProblem(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "an unexpected error has occurred.")
}

func validationTitle(err error) string {
	switch {
	case errors.Is(err, synthesis.ErrScriptTooLong):
		return "script must be at most 500 characters."
	case voiceerr.Is(err, voiceerr.KindValidation):
		return "script is required."
	default:
		return "invalid request."
	}
}

type problemBody struct {
	Type  string `json:"type"`
	Title string `json:"title"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondProblem(w http.ResponseWriter, status int, typ, title string) {
	respondJSON(w, status, problemBody{Type: typ, Title: title})
}
