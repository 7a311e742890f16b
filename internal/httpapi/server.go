package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/app"
	"github.com/ent0n29/echo/internal/config"
	"github.com/ent0n29/echo/internal/logging"
	"github.com/ent0n29/echo/internal/observability"
)

// Server exposes one route per user intent on top of the runtime's
// controllers.
type Server struct {
	rt       *app.Runtime
	cfg      config.Config
	metrics  *observability.Metrics
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func New(rt *app.Runtime) *Server {
	cfg := rt.Config
	return &Server{
		rt:      rt,
		cfg:     cfg,
		metrics: rt.Metrics,
		logger:  logging.Component(rt.Logger, "httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive the local client.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
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
	r.Use(s.requestID, s.accessLog, middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/state", s.handleState)
	r.Get("/v1/state/ws", s.handleStateWS)

	r.Route("/v1/conversation", func(r chi.Router) {
		r.Get("/", s.handleConversationState)
		r.Post("/start", s.handleStartConversation)
		r.Post("/end", s.handleEndConversation)
		r.Post("/mute", s.handleMute)
		r.Put("/input", s.handleSetInput)
		r.Post("/message", s.handleSendMessage)
		r.Post("/context", s.handleSendContext)
		r.Post("/activity", s.handleUserActivity)
		r.Post("/feedback", s.handleFeedback)
	})

	r.Route("/v1/agents", func(r chi.Router) {
		r.Get("/", s.handleListAgents)
		r.Post("/refresh", s.handleRefreshAgents)
		r.Post("/selection", s.handleSelectAgent)
		r.Delete("/selection", s.handleClearSelection)
		r.Post("/form", s.handleOpenAgentForm)
		r.Get("/form", s.handleGetAgentForm)
		r.Patch("/form", s.handleUpdateAgentForm)
		r.Post("/form/submit", s.handleSubmitAgentForm)
	})

	r.Route("/v1/audio", func(r chi.Router) {
		r.Get("/", s.handleAudioSnapshot)
		r.Post("/permission", s.handleRequestPermission)
		r.Post("/recording/start", s.handleStartRecording)
		r.Post("/recording/stop", s.handleStopRecording)
		r.Delete("/recording", s.handleDiscardRecording)
		r.Post("/playback/start", s.handlePlayRecording)
		r.Post("/playback/stop", s.handleStopPlayback)
	})

	r.Route("/v1/voice-clone", func(r chi.Router) {
		r.Get("/", s.handleVoiceCloneState)
		r.Put("/", s.handleUpdateVoiceClone)
		r.Post("/submit", s.handleSubmitVoiceClone)
	})

	r.Get("/v1/voices", s.handleListVoices)
	r.Get("/v1/history/sessions", s.handleRecentSessions)
	r.Get("/v1/history/voice-clones", s.handleRecentVoiceClones)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"audio_backend": s.rt.AudioInfo.Backend,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	ready := "ready"
	if s.rt.Audio.Snapshot().Closed {
		status = http.StatusServiceUnavailable
		ready = "closed"
	}
	respondJSON(w, status, map[string]any{
		"status":                ready,
		"elevenlabs_configured": s.rt.ElevenLabs.Configured(),
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.SnapshotLatency())
}

// requestID propagates X-Request-ID, generating one when absent.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", ww.Header().Get("X-Request-ID")).
			Dur("elapsed", time.Since(started)).
			Msg("request")
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
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

// decodeOptionalJSON accepts an empty body and rejects malformed JSON with a
// 400. It reports whether the handler should continue.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := decodeJSON(r, out); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit")))
	if err != nil || n <= 0 {
		return 10
	}
	if n > 100 {
		return 100
	}
	return n
}
