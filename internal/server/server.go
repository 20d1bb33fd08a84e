package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zhs007/genstory/internal/agent"
	"github.com/zhs007/genstory/internal/config"
	"github.com/zhs007/genstory/internal/event"
	"github.com/zhs007/genstory/internal/intake"
	"github.com/zhs007/genstory/internal/log"
	"github.com/zhs007/genstory/internal/orchestrator"
	"github.com/zhs007/genstory/internal/session"
)

// Pipeline is the part of the orchestrator the server drives.
type Pipeline interface {
	CreateSession(ctx context.Context, userID string) (string, error)
	GenerateStory(ctx context.Context, sessionID, input string, isInterruption bool) (string, error)
	RetryFailedOperation(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*session.Session, error)
	ListSessions(ctx context.Context) ([]session.Summary, error)
	CloseSession(ctx context.Context, sessionID string) error
	UpdateGenre(genre string) error
	Genre() string
	AgentsInfo() map[string]agent.Profile
	Running(sessionID string) bool
	Plan() []orchestrator.Stage
}

// Options configures a Server.
type Options struct {
	Addr      string
	Pipeline  Pipeline
	Broker    *event.Broker
	Config    *config.Config
	Logger    *slog.Logger
	Heartbeat time.Duration
}

// Server is the HTTP front end of the story pipeline.
type Server struct {
	pipeline  Pipeline
	broker    *event.Broker
	cfg       *config.Config
	logger    *slog.Logger
	heartbeat time.Duration
	listener  net.Listener
	server    *http.Server
	handler   http.Handler
	stopCh    chan struct{}
	stopOnce  sync.Once

	// locks serializes requests for one session.
	locks session.Locks
}

// NewServer creates a server bound to opts.Addr. An empty address binds a
// random port on localhost.
func NewServer(opts Options) (*Server, error) {
	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: binding listener: %w", err)
	}

	s := New(opts)
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// New creates a server without a listener, for use through Handler.
func New(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = time.Duration(cfg.Server.HeartbeatSeconds) * time.Second
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	s := &Server{
		pipeline:  opts.Pipeline,
		broker:    opts.Broker,
		cfg:       cfg,
		logger:    logger,
		heartbeat: heartbeat,
		stopCh:    make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/session", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/session/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/session/{id}", s.handleCloseSession)
	mux.HandleFunc("GET /api/events/{id}", s.handleEvents)
	mux.HandleFunc("POST /api/generate/{id}", s.handleGenerate)
	mux.HandleFunc("POST /api/interrupt/{id}", s.handleInterrupt)
	mux.HandleFunc("POST /api/retry/{id}", s.handleRetry)
	mux.HandleFunc("GET /api/config", s.handleConfig)
	mux.HandleFunc("GET /api/config/validate", s.handleValidate)
	mux.HandleFunc("GET /api/roles", s.handleRoles)
	mux.HandleFunc("GET /api/genres", s.handleGenres)
	mux.HandleFunc("POST /api/genre", s.handleSetGenre)

	s.handler = s.logRequests(mux)
	return s
}

// Handler returns the HTTP handler with every route.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the address the server is listening on (e.g. "127.0.0.1:12345").
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	err := s.server.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop ends open event streams and gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !readJSON(w, r, &req) {
		return
	}

	id, err := s.pipeline.CreateSession(r.Context(), strings.TrimSpace(req.UserID))
	if err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.pipeline.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CreateSessionResponse{
		Success:   true,
		SessionID: id,
		UserID:    sess.UserID,
		Message:   "session created",
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.pipeline.ListSessions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: list})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.pipeline.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Success: true, Session: s.view(sess)})
}

func (s *Server) view(sess *session.Session) SessionView {
	v := SessionView{
		ID:                sess.ID,
		UserID:            sess.UserID,
		Genre:             sess.Genre,
		CurrentPhase:      string(sess.Phase),
		CurrentStage:      sess.CurrentStage,
		ConversationCount: len(sess.ConversationLog),
		InterruptionCount: len(sess.Interruptions),
		CanRetry:          sess.Checkpoint != nil,
		LastError:         sess.LastError,
		Proposals:         sess.Proposals,
		Running:           s.pipeline.Running(sess.ID),
	}
	if sess.Requirement != nil {
		v.AnsweredQuestions = sess.Requirement.AnsweredCount()
	}
	v.TotalQuestions = len(intake.Questions())
	return v
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	defer s.locks.Lock(id)()

	if err := s.pipeline.CloseSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "session closed"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req GenerateRequest
	if !readJSON(w, r, &req) {
		return
	}

	defer s.locks.Lock(id)()

	reply, err := s.pipeline.GenerateStory(r.Context(), id, req.Message, false)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{
		Success:           true,
		Message:           "message accepted",
		FrontDeskResponse: reply,
	})
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req InterruptRequest
	if !readJSON(w, r, &req) {
		return
	}

	defer s.locks.Lock(id)()

	reply, err := s.pipeline.GenerateStory(r.Context(), id, req.Suggestion, true)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: reply})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	defer s.locks.Lock(id)()

	if err := s.pipeline.RetryFailedOperation(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "retry started"})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: ConfigData{
		System: SystemInfo{
			Host:             s.cfg.Server.Host,
			Port:             s.cfg.Server.Port,
			HeartbeatSeconds: int(s.heartbeat / time.Second),
			Store:            s.cfg.Store.Driver,
			FinalPhase:       s.cfg.Pipeline.FinalPhase,
			Stages:           orchestrator.StageNames(s.pipeline.Plan()),
		},
		Agents:          s.pipeline.AgentsInfo(),
		SupportedGenres: s.cfg.Story.SupportedGenres,
		CurrentGenre:    s.pipeline.Genre(),
	}})
}

func (s *Server) handleValidate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ValidateResponse{Success: true, Validation: s.cfg.Validate()})
}

func (s *Server) handleRoles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: RolesData{
		Roles:   s.cfg.Roles,
		Enabled: s.cfg.EnabledRoles(),
	}})
}

func (s *Server) handleGenres(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: GenresData{
		Supported:      s.cfg.Story.SupportedGenres,
		Configurations: s.cfg.Genres,
		Current:        s.pipeline.Genre(),
	}})
}

func (s *Server) handleSetGenre(w http.ResponseWriter, r *http.Request) {
	var req GenreRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Genre) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "genre is required"})
		return
	}
	if err := s.pipeline.UpdateGenre(req.Genre); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: fmt.Sprintf("genre set to %s", req.Genre)})
}

// --- Helpers ---

// statusFor maps caller errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrNoCheckpoint):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrEmptyInput), errors.Is(err, orchestrator.ErrUnsupportedGenre):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		// Allow empty body for requests with no fields.
		return true
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid JSON: %v", err)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
