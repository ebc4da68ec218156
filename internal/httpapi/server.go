package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/bookvoice/bookvoice/internal/chatlog"
	"github.com/bookvoice/bookvoice/internal/config"
	"github.com/bookvoice/bookvoice/internal/observability"
	"github.com/bookvoice/bookvoice/internal/pipeline"
	"github.com/bookvoice/bookvoice/internal/session"
	"github.com/bookvoice/bookvoice/internal/synth"
)

// Server exposes the REST and websocket surface of the assistant.
type Server struct {
	cfg         config.Config
	sessions    *session.Manager
	logStore    chatlog.Store
	backend     pipeline.Backend
	synthesizer synth.Synthesizer
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader

	mu        sync.RWMutex
	pipelines map[string]*pipeline.Pipeline
}

func New(
	cfg config.Config,
	sessions *session.Manager,
	logStore chatlog.Store,
	backendClient pipeline.Backend,
	synthesizer synth.Synthesizer,
	metrics *observability.Metrics,
) *Server {
	return &Server{
		cfg:         cfg,
		sessions:    sessions,
		logStore:    logStore,
		backend:     backendClient,
		synthesizer: synthesizer,
		metrics:     metrics,
		pipelines:   make(map[string]*pipeline.Pipeline),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so other sites cannot drive a mic session.
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

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/session", s.handleCreateSession)
	r.Post("/v1/session/{id}/end", s.handleEndSession)
	r.Get("/v1/session/ws", s.handleSessionWS)
	r.Get("/v1/chat", s.handleGetChat)
	r.Post("/v1/chat/clear", s.handleClearChat)
	r.Post("/v1/chat/text", s.handleSubmitText)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Book) == "" {
		req.Book = s.cfg.DefaultBook
	}

	sess := s.sessions.Create(req.Book)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		Status:          sess.Status,
		Book:            sess.Book,
		SpeechRate:      sess.SpeechRate,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	messages, err := s.logStore.All(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "chat_log_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}

	if p := s.pipelineFor(req.SessionID); p != nil {
		// Narration of the confirmation outlives this request; the handler
		// returning must not cancel the synthesis behind it.
		if err := p.ClearChat(context.WithoutCancel(r.Context())); err != nil {
			respondError(w, http.StatusInternalServerError, "chat_log_error", err.Error())
			return
		}
	} else if err := s.logStore.Clear(r.Context(), req.SessionID); err != nil {
		respondError(w, http.StatusInternalServerError, "chat_log_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleSubmitText feeds a typed question into the session's live pipeline.
// It requires an active websocket connection; the answer and its narration
// are delivered there.
func (s *Server) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	p := s.pipelineFor(req.SessionID)
	if p == nil {
		respondError(w, http.StatusConflict, "no_active_connection", "session has no active websocket connection")
		return
	}
	go p.SubmitText(context.WithoutCancel(r.Context()), req.Text)
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

func (s *Server) registerPipeline(sessionID string, p *pipeline.Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines[sessionID] = p
}

func (s *Server) unregisterPipeline(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pipelines, sessionID)
}

func (s *Server) pipelineFor(sessionID string) *pipeline.Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pipelines[sessionID]
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
