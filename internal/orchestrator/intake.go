package orchestrator

import (
	"context"
	"fmt"

	"github.com/zhs007/genstory/internal/config"
	"github.com/zhs007/genstory/internal/event"
	"github.com/zhs007/genstory/internal/intake"
	"github.com/zhs007/genstory/internal/log"
	"github.com/zhs007/genstory/internal/session"
)

// handleIntake applies one message to the requirement interview. The
// session lock is held on entry and released through unlock before the
// front desk is called.
func (o *Orchestrator) handleIntake(ctx context.Context, unlock func(), sess *session.Session, input string) (string, error) {
	if sess.Requirement == nil {
		sess.Requirement = intake.NewState()
	}
	out := o.policy.Step(sess.Requirement, input)
	state := sess.Requirement.Clone()

	var r *run
	if out.Done() {
		sess.Phase = session.PhaseTeamCollaboration
		request := state.InitialRequest
		if request == "" {
			request = input
		}
		r = o.freshRun(sess, request, false)
	}

	if err := o.store.Set(ctx, sess); err != nil {
		unlock()
		return "", fmt.Errorf("saving session: %w", err)
	}
	if r != nil {
		o.register(sess.ID)
	}
	unlock()

	o.logger.Debug("intake step", "session_id", sess.ID, "outcome", out.Kind, "answered", out.Answered)
	if r != nil {
		o.logger.Info("requirements collected", "session_id", sess.ID, "answers", out.Answered, "early", out.Kind == intake.OutcomeStartEarly)
		o.record(log.LogEvent{Event: log.EventIntakeComplete, SessionID: sess.ID, Answers: out.Answered})
	}

	desk := o.roleName(config.RoleFrontDesk)
	fallback := intakeFallback(out, desk)
	reply := fallback
	if out.Kind != intake.OutcomeEmpty {
		reply = o.phrase(ctx, sess.ID, intakePrompt(out, input, state, desk), fallback)
	}

	data := map[string]any{
		"outcome":  string(out.Kind),
		"answered": out.Answered,
		"total":    len(intake.Questions()),
	}
	if out.Question != nil {
		data["questionKey"] = string(out.Question.Key)
		data["questionIndex"] = state.CurrentQuestionIndex
	}
	phase := session.PhaseRequirementGathering
	if r != nil {
		phase = session.PhaseTeamCollaboration
	}
	o.sink.Send(sess.ID, event.Event{
		Type:    event.TypeUserMessage,
		Phase:   string(phase),
		Speaker: o.roleName(config.RoleFrontDesk),
		Role:    config.RoleFrontDesk,
		Message: reply,
		Data:    data,
	})

	if r != nil {
		o.start(ctx, r)
	}
	return reply, nil
}
