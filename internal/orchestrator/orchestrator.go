package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhs007/genstory/internal/agent"
	"github.com/zhs007/genstory/internal/config"
	"github.com/zhs007/genstory/internal/event"
	"github.com/zhs007/genstory/internal/intake"
	"github.com/zhs007/genstory/internal/log"
	"github.com/zhs007/genstory/internal/session"
)

// Caller errors. Stage failures are never returned; they halt the run.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrNoCheckpoint     = errors.New("no checkpoint to retry")
	ErrEmptyInput       = errors.New("input is empty")
	ErrUnsupportedGenre = errors.New("unsupported genre")
)

// AgentBuilder creates the per-session role agents. *agent.Factory
// implements it.
type AgentBuilder interface {
	Build(genre string) (map[string]agent.Agent, error)
	Profiles(genre string) map[string]agent.Profile
}

// Options configures an Orchestrator. Nil fields get in-memory or no-op
// defaults.
type Options struct {
	Config *config.Config
	Store  session.Store
	Sink   event.Sink
	Agents AgentBuilder
	Logger *slog.Logger
	Audit  *log.Logger
}

// Orchestrator drives sessions through intake and the stage plan.
type Orchestrator struct {
	cfg    *config.Config
	store  session.Store
	sink   event.Sink
	agents AgentBuilder
	logger *slog.Logger
	audit  *log.Logger
	plan   []Stage
	policy intake.Policy

	locks session.Locks

	mu    sync.Mutex
	runs  map[string]chan struct{}
	live  map[string]map[string]agent.Agent
	genre string

	wg sync.WaitGroup
}

// New creates an Orchestrator. It fails if the enabled roles cannot cover
// the stage plan.
func New(opts Options) (*Orchestrator, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	plan, err := BuildPlan(cfg)
	if err != nil {
		return nil, fmt.Errorf("building stage plan: %w", err)
	}

	o := &Orchestrator{
		cfg:    cfg,
		store:  opts.Store,
		sink:   opts.Sink,
		agents: opts.Agents,
		logger: logger,
		audit:  opts.Audit,
		plan:   plan,
		policy: policyFor(cfg),
		runs:   make(map[string]chan struct{}),
		live:   make(map[string]map[string]agent.Agent),
		genre:  cfg.Story.DefaultGenre,
	}
	if o.store == nil {
		o.store = session.NewMemoryStore()
	}
	if o.sink == nil {
		o.sink = event.Discard
	}
	if o.agents == nil {
		o.agents = agent.NewFactory(cfg, logger)
	}
	if o.genre == "" {
		o.genre = "general"
	}
	return o, nil
}

func policyFor(cfg *config.Config) intake.Policy {
	p := intake.DefaultPolicy()
	if cfg.Pipeline.VagueThreshold > 0 {
		p.VagueThreshold = cfg.Pipeline.VagueThreshold
	}
	if cfg.Pipeline.MinAnswersToStart > 0 {
		p.MinAnswersToStart = cfg.Pipeline.MinAnswersToStart
	}
	return p
}

// Plan returns the stage plan.
func (o *Orchestrator) Plan() []Stage {
	out := make([]Stage, len(o.plan))
	copy(out, o.plan)
	return out
}

// CreateSession starts a session in requirement gathering and returns its
// ID. An empty userID gets a generated one.
func (o *Orchestrator) CreateSession(ctx context.Context, userID string) (string, error) {
	id := uuid.New().String()
	if userID == "" {
		userID = uuid.New().String()
	}
	genre := o.Genre()

	agents, err := o.agents.Build(genre)
	if err != nil {
		return "", fmt.Errorf("building agents: %w", err)
	}

	now := time.Now().UTC()
	sess := &session.Session{
		ID:          id,
		UserID:      userID,
		Genre:       genre,
		Phase:       session.PhaseRequirementGathering,
		Requirement: intake.NewState(),
		CreatedAt:   now,
	}
	if err := o.store.Set(ctx, sess); err != nil {
		return "", fmt.Errorf("saving session: %w", err)
	}

	o.mu.Lock()
	o.live[id] = agents
	o.mu.Unlock()

	o.logger.Info("session created", "session_id", id, "user_id", userID, "genre", genre)
	o.record(log.LogEvent{Event: log.EventSessionCreated, SessionID: id, Genre: genre})
	return id, nil
}

// GenerateStory handles one user message and returns the immediate reply.
// Stage output streams through the sink.
//
// While the session is gathering requirements the message goes to the
// intake. While a run is in flight it is recorded as an interruption.
// Otherwise it starts a fresh run, abandoning any checkpoint.
func (o *Orchestrator) GenerateStory(ctx context.Context, sessionID, input string, isInterruption bool) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	unlock := o.locks.Lock(sessionID)
	sess, err := o.load(ctx, sessionID)
	if err != nil {
		unlock()
		return "", err
	}

	if o.running(sessionID) {
		defer unlock()
		return o.interrupt(ctx, sess, input)
	}

	if sess.Phase == session.PhaseRequirementGathering {
		return o.handleIntake(ctx, unlock, sess, input)
	}

	// 1. Fold pending interruptions into the new run.
	now := time.Now().UTC()
	if isInterruption {
		sess.Interruptions = append(sess.Interruptions, session.Interruption{
			Input:       input,
			Timestamp:   now,
			PhaseAtTime: sess.Phase,
		})
	}
	r := o.freshRun(sess, input, isInterruption)

	// 2. Drop any checkpoint together with the phase change.
	if sess.Checkpoint != nil {
		o.logger.Info("abandoning checkpoint", "session_id", sessionID, "stage", sess.Checkpoint.FailedStage)
	}
	sess.Checkpoint = nil
	sess.LastError = nil
	sess.Phase = session.PhaseTeamCollaboration
	if err := o.store.Set(ctx, sess); err != nil {
		unlock()
		return "", fmt.Errorf("saving session: %w", err)
	}
	o.register(sessionID)
	unlock()

	if isInterruption {
		o.echoInterruption(sessionID, sess.Phase, input)
		o.record(log.LogEvent{Event: log.EventInterruption, SessionID: sessionID, Phase: string(sess.Phase)})
	}

	reply := o.phrase(ctx, sessionID, requestPrompt(input), requestFallback)
	o.sink.Send(sessionID, event.Event{
		Type:    event.TypeUserMessage,
		Phase:   string(session.PhaseTeamCollaboration),
		Speaker: o.roleName(config.RoleFrontDesk),
		Role:    config.RoleFrontDesk,
		Message: reply,
		Data:    map[string]any{"reply": true},
	})
	o.start(ctx, r)
	return reply, nil
}

// interrupt records input against the in-flight run. The run itself is
// untouched; the interruption is picked up by the next fresh run.
func (o *Orchestrator) interrupt(ctx context.Context, sess *session.Session, input string) (string, error) {
	sess.Interruptions = append(sess.Interruptions, session.Interruption{
		Input:       input,
		Timestamp:   time.Now().UTC(),
		PhaseAtTime: sess.Phase,
	})
	if err := o.store.Set(ctx, sess); err != nil {
		return "", fmt.Errorf("saving interruption: %w", err)
	}

	o.echoInterruption(sess.ID, sess.Phase, input)
	o.logger.Info("interruption recorded", "session_id", sess.ID, "count", len(sess.Interruptions))
	o.record(log.LogEvent{Event: log.EventInterruption, SessionID: sess.ID, Phase: string(sess.Phase)})
	return interruptionAck, nil
}

// echoInterruption repeats the user's suggestion to stream listeners.
func (o *Orchestrator) echoInterruption(sessionID string, phase session.Phase, input string) {
	o.sink.Send(sessionID, event.Event{
		Type:    event.TypeUserMessage,
		Phase:   string(phase),
		Speaker: interruptionSpeaker,
		Role:    "user",
		Message: input,
		Data:    map[string]any{"interruption": true},
	})
}

// RetryFailedOperation resumes a halted run at the stage that failed,
// reusing the results of the stages before it.
func (o *Orchestrator) RetryFailedOperation(ctx context.Context, sessionID string) error {
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	sess, err := o.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Checkpoint == nil || !sess.Phase.Halted() || o.running(sessionID) {
		return ErrNoCheckpoint
	}

	cp := sess.Checkpoint
	r := o.resumeRun(sessionID, cp)

	sess.Checkpoint = nil
	sess.LastError = nil
	sess.Phase = session.PhaseTeamCollaboration
	if err := o.store.Set(ctx, sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	o.register(sessionID)

	stage := o.plan[r.start]
	o.sink.Send(sessionID, event.Event{
		Type:    event.TypeInternal,
		Phase:   string(session.PhaseTeamCollaboration),
		Speaker: systemSpeaker,
		Message: fmt.Sprintf("Retrying from %s. %d completed stage(s) are kept.", stage.Name, len(r.results)),
		Retry:   true,
		Data:    map[string]any{"stage": stage.Name, "status": "retry"},
	})
	o.logger.Info("retrying run", "session_id", sessionID, "stage", stage.Name, "kept", len(r.results))
	o.record(log.LogEvent{Event: log.EventRunRetry, SessionID: sessionID, Stage: stage.Name, Resumed: len(r.results)})

	o.start(ctx, r)
	return nil
}

// GetSession returns a snapshot of the session.
func (o *Orchestrator) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	return o.load(ctx, sessionID)
}

// ListSessions returns summaries of all stored sessions.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]session.Summary, error) {
	return o.store.List(ctx)
}

type sessionCloser interface {
	Close(sessionID string)
}

// CloseSession removes the session. A run still in flight finishes its
// current call and then stops without writing.
func (o *Orchestrator) CloseSession(ctx context.Context, sessionID string) error {
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	if _, err := o.load(ctx, sessionID); err != nil {
		return err
	}
	if err := o.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	o.dropAgents(sessionID)

	if c, ok := o.sink.(sessionCloser); ok {
		c.Close(sessionID)
	}
	o.logger.Info("session closed", "session_id", sessionID)
	o.record(log.LogEvent{Event: log.EventSessionClosed, SessionID: sessionID})
	return nil
}

// UpdateGenre switches the studio genre. Every live role picks it up for
// its next call; session records are left alone.
func (o *Orchestrator) UpdateGenre(genre string) error {
	genre = strings.TrimSpace(genre)
	if genre == "" || !o.cfg.IsSupportedGenre(genre) {
		return fmt.Errorf("%w: %q", ErrUnsupportedGenre, genre)
	}

	o.mu.Lock()
	o.genre = genre
	var updated int
	for _, agents := range o.live {
		for _, a := range agents {
			if ga, ok := a.(agent.GenreAware); ok {
				ga.SetGenre(genre)
				updated++
			}
		}
	}
	o.mu.Unlock()

	o.logger.Info("genre updated", "genre", genre, "agents", updated)
	o.record(log.LogEvent{Event: log.EventGenreUpdated, Genre: genre})
	return nil
}

// Genre returns the studio genre new sessions and calls use.
func (o *Orchestrator) Genre() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.genre
}

// AgentsInfo describes every enabled role under the current genre.
func (o *Orchestrator) AgentsInfo() map[string]agent.Profile {
	return o.agents.Profiles(o.Genre())
}

// Running reports whether a run is in flight for the session.
func (o *Orchestrator) Running(sessionID string) bool {
	return o.running(sessionID)
}

// Wait blocks until the session has no run in flight or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	done, ok := o.runs[sessionID]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown waits for every run to finish or for ctx to be done.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) load(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

func (o *Orchestrator) running(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.runs[sessionID]
	return ok
}

// register marks a run in flight. The caller holds the session lock.
func (o *Orchestrator) register(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs[sessionID] = make(chan struct{})
}

// deregister ends the in-flight run. The caller holds the session lock.
func (o *Orchestrator) deregister(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if done, ok := o.runs[sessionID]; ok {
		close(done)
		delete(o.runs, sessionID)
	}
}

// agentsFor returns the session's agents, building them for sessions
// loaded from a persistent store. Nothing is built for a session the store
// no longer holds.
func (o *Orchestrator) agentsFor(ctx context.Context, sessionID string) (map[string]agent.Agent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if agents, ok := o.live[sessionID]; ok {
		return agents, nil
	}
	// CloseSession deletes the record before it takes o.mu, so a record
	// seen here cannot outlive the agents stored below.
	sess, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	agents, err := o.agents.Build(o.genre)
	if err != nil {
		return nil, err
	}
	o.live[sessionID] = agents
	return agents, nil
}

func (o *Orchestrator) dropAgents(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.live, sessionID)
}

// phrase asks the front desk to word a reply, falling back to fixed text.
func (o *Orchestrator) phrase(ctx context.Context, sessionID, prompt, fallback string) string {
	if prompt == "" {
		return fallback
	}
	agents, err := o.agentsFor(ctx, sessionID)
	if err != nil {
		return fallback
	}
	desk, ok := agents[config.RoleFrontDesk]
	if !ok {
		return fallback
	}
	reply, err := desk.Invoke(context.WithoutCancel(ctx), prompt)
	if err != nil || strings.TrimSpace(reply) == "" {
		o.logger.Warn("front desk reply failed, using fallback", "session_id", sessionID, "error", err)
		return fallback
	}
	return reply
}

func (o *Orchestrator) roleName(roleID string) string {
	if rc, ok := o.cfg.Role(roleID); ok && rc.Name != "" {
		return rc.Name
	}
	return roleID
}

func (o *Orchestrator) roleNames() map[string]string {
	names := make(map[string]string, len(o.cfg.Roles))
	for id := range o.cfg.Roles {
		names[id] = o.roleName(id)
	}
	return names
}

func (o *Orchestrator) record(ev log.LogEvent) {
	if err := o.audit.Append(ev); err != nil {
		o.logger.Warn("audit log write failed", "event", ev.Event, "error", err)
	}
}
