package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/convograph/internal/logging"
	mermaid "github.com/aretw0/convograph/internal/presentation/graph"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/runner"
	"github.com/aretw0/convograph/pkg/session"
)

// maxBodyBytes caps request bodies; utterances are further limited by the sanitizer.
const maxBodyBytes = 1 << 20

// Server exposes a session.Manager over REST and SSE.
type Server struct {
	Manager *session.Manager
	Streams *StreamManager

	logger  *slog.Logger
	version string
	metrics http.Handler
	origins []string

	sanitizer runner.Sanitizer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStreams shares a StreamManager that also observes the session manager.
func WithStreams(streams *StreamManager) Option {
	return func(s *Server) { s.Streams = streams }
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithMetricsHandler replaces the /metrics handler (default promhttp.Handler()).
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithAllowedOrigins restricts CORS origins (default "*").
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithMaxInputSize caps utterance bodies in bytes (default runner.DefaultMaxInputSize).
func WithMaxInputSize(n int) Option {
	return func(s *Server) { s.sanitizer.MaxBytes = n }
}

// NewServer creates a Server. Diffs reach SSE clients only if Streams.Publish
// is registered as the manager's observer; see WithStreams.
func NewServer(manager *session.Manager, opts ...Option) *Server {
	s := &Server{
		Manager: manager,
		logger:  logging.NewNop(),
		version: "dev",
		metrics: promhttp.Handler(),
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	return s
}

// NewHandler creates the HTTP handler for a session manager.
func NewHandler(manager *session.Manager, opts ...Option) http.Handler {
	return NewServer(manager, opts...).Routes()
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
	}))

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Handle("/metrics", s.metrics)
	r.Get("/graph", s.GetGraph)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.CreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)
			r.Post("/utterances", s.SubmitUtterance)
			r.Post("/reset", s.ResetSession)
			r.Get("/events", s.SubscribeEvents)
			r.Get("/graph.mmd", s.GetSessionGraph)
		})
	})
	return r
}

// SessionView is a session snapshot with its derived node view.
type SessionView struct {
	State       *domain.State       `json:"state"`
	Projections []domain.Projection `json:"projections"`
	Progress    domain.Progress     `json:"progress"`
}

// TurnResponse is the reply to an utterance.
type TurnResponse struct {
	Outcome domain.Outcome `json:"outcome"`
	Status  string         `json:"status,omitempty"`
	Error   string         `json:"error,omitempty"`
	*SessionView
}

// GraphView describes the loaded graph.
type GraphView struct {
	Stages   []domain.Stage `json:"stages"`
	Nodes    []domain.Node  `json:"nodes"`
	Edges    []domain.Edge  `json:"edges"`
	Terminal string         `json:"terminal,omitempty"`
	MaxScore float64        `json:"max_score"`
}

type createSessionRequest struct {
	SessionID string `json:"session_id"`
}

type utteranceRequest struct {
	Text string `json:"text"`
}

// GetHealth handles GET /health. It reports the Oracle readiness too.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	oracle := "ready"
	if !s.Manager.Engine().Ready() {
		oracle = "loading"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "oracle": oracle})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	engine := s.Manager.Engine()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"app":                  "convograph-http",
		"version":              strings.TrimSpace(s.version),
		"scoring_policy":       engine.Policy().Name(),
		"confidence_threshold": engine.Threshold(),
		"highlight_ttl_ms":     engine.HighlightTTL().Milliseconds(),
	})
}

// GetGraph handles GET /graph.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	engine := s.Manager.Engine()
	g := engine.Graph()
	terminal, _ := g.Terminal()
	s.writeJSON(w, http.StatusOK, GraphView{
		Stages:   g.Stages(),
		Nodes:    g.Nodes(),
		Edges:    g.Edges(),
		Terminal: terminal,
		MaxScore: engine.MaxScore(),
	})
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Manager.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// CreateSession handles POST /sessions. The body is optional.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if err := decodeBody(r, &body, true); err != nil {
		s.badRequest(w, r, err)
		return
	}
	state, err := s.Manager.Create(r.Context(), strings.TrimSpace(body.SessionID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("session created", "session_id", state.SessionID)
	s.writeJSON(w, http.StatusCreated, s.view(state))
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	state, err := s.Manager.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(state))
}

// DeleteSession handles DELETE /sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Manager.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetSession handles POST /sessions/{id}/reset.
func (s *Server) ResetSession(w http.ResponseWriter, r *http.Request) {
	state, err := s.Manager.Reset(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(state))
}

// SubmitUtterance handles POST /sessions/{id}/utterances.
func (s *Server) SubmitUtterance(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body utteranceRequest
	if err := decodeBody(r, &body, false); err != nil {
		s.badRequest(w, r, err)
		return
	}
	text, err := s.sanitizer.Clean(body.Text)
	if err != nil {
		s.logger.Warn("SubmitUtterance: Input rejected", "session_id", sessionID, "err", err, "size", len(body.Text))
		s.badRequest(w, r, err)
		return
	}
	if strings.TrimSpace(text) == "" {
		s.badRequest(w, r, domain.ErrEmptyUtterance)
		return
	}

	out, state, err := s.Manager.Submit(r.Context(), sessionID, text)
	resp := TurnResponse{Outcome: out}
	if state != nil {
		resp.SessionView = s.view(state)
	}

	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSessionNotFound):
		s.writeError(w, r, err)
		return
	case errors.Is(err, domain.ErrBusy):
		status = http.StatusConflict
		resp.Error = err.Error()
	case errors.Is(err, domain.ErrOracleUnavailable):
		status = http.StatusServiceUnavailable
		resp.Status = "loading"
		resp.Error = err.Error()
	case errors.Is(err, domain.ErrOracleFailure):
		status = http.StatusBadGateway
		resp.Error = err.Error()
		s.logger.Warn("SubmitUtterance: oracle failure", "session_id", sessionID, "err", err)
	default:
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, status, resp)
}

// GetSessionGraph handles GET /sessions/{id}/graph.mmd.
func (s *Server) GetSessionGraph(w http.ResponseWriter, r *http.Request) {
	state, err := s.Manager.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	engine := s.Manager.Engine()
	overlay := mermaid.OverlayFromProjections(engine.Project(state))
	w.Header().Set("Content-Type", "text/vnd.mermaid; charset=utf-8")
	_, _ = io.WriteString(w, mermaid.GenerateMermaid(engine.Graph(), overlay))
}

// SubscribeEvents handles GET /sessions/{id}/events (SSE).
//
// The optional watch query (comma separated: visited, score, highlight,
// status, complete) drops diffs touching none of the listed fields.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}
	if _, err := s.Manager.Get(r.Context(), sessionID); err != nil {
		s.writeError(w, r, err)
		return
	}

	var watchList []string
	if watch := r.URL.Query().Get("watch"); watch != "" {
		watchList = strings.Split(watch, ",")
	}

	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: Subscribing to Session Updates", "session_id", sessionID)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watchList) > 0 && !matchesWatch(msg, watchList) {
				continue
			}
			fmt.Fprintf(w, "event: diff\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func matchesWatch(msg []byte, watchList []string) bool {
	var diff domain.StateDiff
	if err := json.Unmarshal(msg, &diff); err != nil {
		return true
	}
	if diff.Reset {
		return true
	}
	for _, field := range watchList {
		switch strings.TrimSpace(field) {
		case "visited":
			if diff.VisitedDelta != nil {
				return true
			}
		case "score":
			if diff.TotalScore != nil || len(diff.Scores) > 0 {
				return true
			}
		case "highlight":
			if diff.Highlighted != nil {
				return true
			}
		case "status":
			if diff.Status != nil {
				return true
			}
		case "complete":
			if diff.Complete != nil {
				return true
			}
		}
	}
	return false
}

// -- Helpers --

func (s *Server) view(state *domain.State) *SessionView {
	engine := s.Manager.Engine()
	return &SessionView{
		State:       state,
		Projections: engine.Project(state),
		Progress:    engine.Progress(state),
	}
}

func decodeBody(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrBusy):
		status = http.StatusConflict
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
