package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zhs007/genstory/internal/agent"
	"github.com/zhs007/genstory/internal/event"
	"github.com/zhs007/genstory/internal/log"
	"github.com/zhs007/genstory/internal/session"
)

// run is one pass over the stage plan, starting at start with the results
// of the stages before it already in hand.
type run struct {
	sessionID       string
	input           string
	summary         string
	interruptions   []string
	wasInterruption bool
	start           int
	results         []session.StageResult
	retry           bool
}

// freshRun prepares a run from stage 0 and marks the session's pending
// interruptions as consumed by it.
func (o *Orchestrator) freshRun(sess *session.Session, input string, wasInterruption bool) *run {
	var pending []string
	if sess.InterruptionsConsumed < len(sess.Interruptions) {
		for _, in := range sess.Interruptions[sess.InterruptionsConsumed:] {
			pending = append(pending, in.Input)
		}
	}
	sess.InterruptionsConsumed = len(sess.Interruptions)

	return &run{
		sessionID:       sess.ID,
		input:           input,
		summary:         sess.Requirement.Summary(),
		interruptions:   pending,
		wasInterruption: wasInterruption,
	}
}

// resumeRun prepares a run that continues a checkpoint at its failed stage.
func (o *Orchestrator) resumeRun(sessionID string, cp *session.Checkpoint) *run {
	start := StageIndex(o.plan, cp.FailedStage)
	if start < 0 {
		// The plan changed since the checkpoint was written: resume after
		// the longest prefix of stages that already have results.
		start = 0
		for start < len(o.plan) && start < len(cp.CompletedStageResults) &&
			cp.CompletedStageResults[start].Stage == o.plan[start].Name {
			start++
		}
		if start >= len(o.plan) {
			start = len(o.plan) - 1
		}
	}

	kept := make([]session.StageResult, 0, start)
	for _, res := range cp.CompletedStageResults {
		if i := StageIndex(o.plan, res.Stage); i >= 0 && i < start {
			kept = append(kept, res)
		}
	}

	return &run{
		sessionID:       sessionID,
		input:           cp.OriginalInput,
		summary:         cp.RequirementSummary,
		interruptions:   append([]string(nil), cp.Interruptions...),
		wasInterruption: cp.WasInterruption,
		start:           start,
		results:         kept,
		retry:           true,
	}
}

// start executes r on its own goroutine. The run is already registered.
func (o *Orchestrator) start(ctx context.Context, r *run) {
	runCtx := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(runCtx, r)
	}()
}

// execute invokes each stage from r.start in order. The first failure
// halts the run with a checkpoint; success of the last stage finishes it.
func (o *Orchestrator) execute(ctx context.Context, r *run) {
	logger := o.logger.With("session_id", r.sessionID)
	began := time.Now()

	if !r.retry {
		logger.Info("run started", "stages", len(o.plan), "interruptions", len(r.interruptions))
		o.record(log.LogEvent{Event: log.EventRunStarted, SessionID: r.sessionID, Stages: len(o.plan)})
	}

	agents, err := o.agentsFor(ctx, r.sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		logger.Info("session gone before the run started")
		o.abandon(r.sessionID)
		return
	}
	if err != nil {
		o.halt(ctx, r, r.start, &agent.Failure{Kind: agent.KindGeneral, Message: err.Error()})
		return
	}

	names := o.roleNames()
	for i := r.start; i < len(o.plan); i++ {
		st := o.plan[i]
		if !o.enterStage(ctx, r.sessionID, st.Name) {
			logger.Info("session gone, run stopped", "stage", st.Name)
			o.abandon(r.sessionID)
			return
		}

		name := o.roleName(st.Slot)
		o.sink.Send(r.sessionID, event.Event{
			Type:    event.TypeInternal,
			Phase:   string(session.PhaseTeamCollaboration),
			Speaker: name,
			Role:    st.Slot,
			Message: fmt.Sprintf("%s is %s...", name, st.Label),
			Data:    map[string]any{"stage": st.Name, "status": "started", "index": i, "total": len(o.plan)},
		})

		a, ok := agents[st.Slot]
		if !ok {
			o.halt(ctx, r, i, &agent.Failure{Kind: agent.KindGeneral, Message: fmt.Sprintf("no agent for role %s", st.Slot)})
			return
		}

		prompt, err := st.render(newStageData(r, o.Genre(), names))
		if err != nil {
			o.halt(ctx, r, i, &agent.Failure{Kind: agent.KindGeneral, Message: err.Error()})
			return
		}

		stageBegan := time.Now()
		content, err := a.Invoke(ctx, prompt)
		if err != nil {
			o.halt(ctx, r, i, agent.AsFailure(err))
			return
		}

		r.results = append(r.results, session.StageResult{Stage: st.Name, RoleID: st.Slot, Content: content})

		phase := session.PhaseTeamCollaboration
		if i == len(o.plan)-1 {
			phase = o.finalPhase()
		}
		o.sink.Send(r.sessionID, event.Event{
			Type:    st.Audience,
			Phase:   string(phase),
			Speaker: name,
			Role:    st.Slot,
			Message: content,
			Data:    map[string]any{"stage": st.Name, "status": "completed", "index": i, "total": len(o.plan)},
		})
		logger.Debug("stage completed", "stage", st.Name, "duration", time.Since(stageBegan))
		o.record(log.LogEvent{
			Event:      log.EventStageCompleted,
			SessionID:  r.sessionID,
			Stage:      st.Name,
			Role:       st.Slot,
			DurationMs: time.Since(stageBegan).Milliseconds(),
		})
	}

	o.finish(ctx, r, time.Since(began))
}

// enterStage records the stage being executed. It reports false when the
// session no longer exists.
func (o *Orchestrator) enterStage(ctx context.Context, sessionID, stage string) bool {
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	sess, err := o.store.Get(ctx, sessionID)
	if err != nil || sess == nil {
		return false
	}
	sess.CurrentStage = stage
	if err := o.store.Set(ctx, sess); err != nil {
		o.logger.Warn("recording current stage failed", "session_id", sessionID, "error", err)
	}
	return true
}

// halt writes the checkpoint and the halted phase in one store write, then
// emits the single retryable failure event.
func (o *Orchestrator) halt(ctx context.Context, r *run, index int, failure *agent.Failure) {
	st := o.plan[index]
	unlock := o.locks.Lock(r.sessionID)
	defer unlock()
	defer o.deregister(r.sessionID)

	o.logger.Warn("stage failed, run halted",
		"session_id", r.sessionID, "stage", st.Name, "role", st.Slot, "kind", failure.Kind, "error", failure.Message)
	o.record(log.LogEvent{
		Event:     log.EventStageFailed,
		SessionID: r.sessionID,
		Stage:     st.Name,
		Role:      st.Slot,
		Kind:      string(failure.Kind),
		Error:     failure.Message,
	})

	sess, err := o.store.Get(ctx, r.sessionID)
	if err != nil {
		o.logger.Error("loading session failed", "session_id", r.sessionID, "error", err)
		return
	}
	if sess == nil {
		o.dropAgents(r.sessionID)
		return
	}
	sess.Checkpoint = &session.Checkpoint{
		FailedStage:           st.Name,
		FailedRoleID:          st.Slot,
		CompletedStageResults: append([]session.StageResult(nil), r.results...),
		OriginalInput:         r.input,
		RequirementSummary:    r.summary,
		Interruptions:         append([]string(nil), r.interruptions...),
		WasInterruption:       r.wasInterruption,
		Error:                 failure,
		CreatedAt:             time.Now().UTC(),
	}
	sess.LastError = failure
	sess.Phase = session.HaltedAt(st.Name)
	sess.CurrentStage = ""
	if err := o.store.Set(ctx, sess); err != nil {
		o.logger.Error("saving checkpoint failed", "session_id", r.sessionID, "error", err)
		return
	}

	name := o.roleName(st.Slot)
	o.sink.Send(r.sessionID, event.Event{
		Type:     event.TypeInternal,
		Phase:    string(sess.Phase),
		Speaker:  name,
		Role:     st.Slot,
		Message:  fmt.Sprintf("%s could not finish %s (%s error: %s). You can retry from this step.", name, st.Name, failure.Kind, failure.Message),
		Error:    true,
		CanRetry: true,
		Data:     map[string]any{"stage": st.Name, "status": "failed", "kind": string(failure.Kind)},
	})
}

// finish records a successful run and moves the session to the final
// phase.
func (o *Orchestrator) finish(ctx context.Context, r *run, took time.Duration) {
	unlock := o.locks.Lock(r.sessionID)
	defer unlock()
	defer o.deregister(r.sessionID)

	sess, err := o.store.Get(ctx, r.sessionID)
	if err != nil {
		o.logger.Error("loading session failed", "session_id", r.sessionID, "error", err)
		return
	}
	if sess == nil {
		o.dropAgents(r.sessionID)
		return
	}

	var final string
	for _, res := range r.results {
		if res.Stage == StageFinalDecision {
			final = res.Content
		}
	}
	if final != "" {
		sess.ConversationLog = append(sess.ConversationLog, session.LogRecord{
			Input:     r.input,
			Output:    presentation(r.results),
			Proposals: final,
			Timestamp: time.Now().UTC(),
		})
		sess.Proposals = final
	}
	sess.Checkpoint = nil
	sess.LastError = nil
	sess.CurrentStage = ""
	sess.Phase = o.finalPhase()
	if err := o.store.Set(ctx, sess); err != nil {
		o.logger.Error("saving finished run failed", "session_id", r.sessionID, "error", err)
		return
	}

	o.logger.Info("run complete", "session_id", r.sessionID, "phase", sess.Phase, "duration", took)
	o.record(log.LogEvent{
		Event:      log.EventRunComplete,
		SessionID:  r.sessionID,
		Phase:      string(sess.Phase),
		Stages:     len(r.results),
		DurationMs: took.Milliseconds(),
	})
}

// abandon ends a run whose session was closed.
func (o *Orchestrator) abandon(sessionID string) {
	unlock := o.locks.Lock(sessionID)
	defer unlock()
	o.deregister(sessionID)
	o.dropAgents(sessionID)
}

func (o *Orchestrator) finalPhase() session.Phase {
	if o.cfg.Pipeline.FinalPhase == string(session.PhaseCompleted) {
		return session.PhaseCompleted
	}
	return session.PhaseProposalSelection
}
