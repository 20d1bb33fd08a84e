package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zhs007/genstory/internal/agent"
	"github.com/zhs007/genstory/internal/config"
	"github.com/zhs007/genstory/internal/event"
	"github.com/zhs007/genstory/internal/intake"
	"github.com/zhs007/genstory/internal/orchestrator"
	"github.com/zhs007/genstory/internal/session"
	"github.com/zhs007/genstory/internal/testutil"
	"github.com/zhs007/genstory/internal/ui"
)

func newRunPipeline(t *testing.T) (*orchestrator.Orchestrator, *event.Broker, *testutil.FakeBuilder) {
	t.Helper()
	cfg := config.DefaultConfig()
	broker := event.NewBroker(128)
	builder := testutil.NewFakeBuilder(cfg)
	o, err := orchestrator.New(orchestrator.Options{Config: cfg, Sink: broker, Agents: builder})
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	return o, broker, builder
}

// failingBuilder queues failures on the first agent set it builds.
type failingBuilder struct {
	*testutil.FakeBuilder
	role     string
	failures []error
}

func (b *failingBuilder) Build(genre string) (map[string]agent.Agent, error) {
	agents, err := b.FakeBuilder.Build(genre)
	if err == nil && len(b.failures) > 0 {
		b.FakeBuilder.Last()[b.role].FailNext(b.failures...)
		b.failures = nil
	}
	return agents, err
}

func TestReadBrief(t *testing.T) {
	dir := testutil.TempFiles(t, map[string]string{
		"ok.yaml": `request: "  A ghost story on a night train  "
genre: horror
answers:
  - Northern Europe, 1930s
  - A young conductor
`,
		"empty.yaml": "answers: [a, b]\n",
		"bad.yaml":   "request: [unclosed\n",
	})

	b, err := ReadBrief(dir + "/ok.yaml")
	if err != nil {
		t.Fatalf("ReadBrief: %v", err)
	}
	if b.Request != "A ghost story on a night train" || b.Genre != "horror" || len(b.Answers) != 2 {
		t.Errorf("brief: %+v", b)
	}

	for _, name := range []string{"empty.yaml", "bad.yaml", "missing.yaml"} {
		if _, err := ReadBrief(dir + "/" + name); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestRunBriefCompletes(t *testing.T) {
	o, broker, _ := newRunPipeline(t)
	var out bytes.Buffer
	progress := ui.NewProgressDisplayTo(&out, "noir", false)

	brief := &Brief{Request: "A noir detective story", Genre: "mystery", Answers: testutil.Answers[:2]}
	sess, err := runBrief(context.Background(), o, broker, brief, 0, progress)
	if err != nil {
		t.Fatalf("runBrief: %v", err)
	}
	if sess.Phase != session.PhaseProposalSelection || len(sess.ConversationLog) != 1 {
		t.Errorf("session: phase %s, log %d", sess.Phase, len(sess.ConversationLog))
	}
	if sess.Genre != "mystery" {
		t.Errorf("genre: %q", sess.Genre)
	}
	got := out.String()
	if !strings.Contains(got, "Done: 6/6 stages completed") {
		t.Errorf("progress summary missing:\n%s", got)
	}
	if !strings.Contains(got, "[DONE") || !strings.Contains(got, "final_decision: creative_director") {
		t.Errorf("stage lines missing:\n%s", got)
	}

	var pres bytes.Buffer
	printPresentation(&pres, sess)
	if !strings.Contains(pres.String(), "front_desk output") {
		t.Errorf("presentation: %q", pres.String())
	}
}

func TestRunBriefAllAnswersAutoStarts(t *testing.T) {
	o, broker, builder := newRunPipeline(t)
	brief := &Brief{Request: "A noir detective story", Answers: append(append([]string{}, testutil.Answers...), "an extra answer nobody reads")}
	sess, err := runBrief(context.Background(), o, broker, brief, 0, ui.NewProgressDisplayTo(&bytes.Buffer{}, "x", false))
	if err != nil {
		t.Fatalf("runBrief: %v", err)
	}
	if sess.Requirement.AnsweredCount() != len(testutil.Answers) {
		t.Errorf("answered: %d", sess.Requirement.AnsweredCount())
	}
	for _, p := range builder.Last()[config.RoleFrontDesk].Prompts() {
		if strings.Contains(p, "an extra answer nobody reads") {
			t.Error("answers after the team started should be dropped")
		}
	}
}

func TestRunBriefShortAnswerKeepsItsQuestion(t *testing.T) {
	o, broker, _ := newRunPipeline(t)
	answers := append([]string{}, testutil.Answers...)
	answers[2] = "Adults"
	brief := &Brief{Request: "A noir detective story", Answers: answers}

	sess, err := runBrief(context.Background(), o, broker, brief, 0, ui.NewProgressDisplayTo(&bytes.Buffer{}, "x", false))
	if err != nil {
		t.Fatalf("runBrief: %v", err)
	}

	want := map[intake.QuestionKey]string{
		intake.KeyStoryBackground:  answers[0],
		intake.KeyCharacterDetails: answers[1],
		intake.KeyTargetAudience:   "Adults",
		intake.KeyNarrativeModel:   answers[3],
		intake.KeyStoryCore:        answers[4],
	}
	for key, w := range want {
		got := sess.Requirement.Answers[key]
		if got == nil || *got != w {
			t.Errorf("%s = %v, want %q", key, got, w)
		}
	}
	if !sess.Requirement.Complete || sess.Requirement.WantsToStartEarly {
		t.Errorf("intake should complete on its last answer: %+v", sess.Requirement)
	}
}

func TestRunBriefEmptyAnswer(t *testing.T) {
	o, broker, _ := newRunPipeline(t)
	brief := &Brief{Request: "A noir detective story", Answers: []string{testutil.Answers[0], "  ", testutil.Answers[1]}}
	_, err := runBrief(context.Background(), o, broker, brief, 0, ui.NewProgressDisplayTo(&bytes.Buffer{}, "x", false))
	if err == nil || !strings.Contains(err.Error(), "answer 2 is empty") {
		t.Errorf("got %v, want an empty answer error", err)
	}
}

func TestRunBriefTooShort(t *testing.T) {
	o, broker, _ := newRunPipeline(t)
	brief := &Brief{Request: "A noir detective story", Answers: testutil.Answers[:1]}
	_, err := runBrief(context.Background(), o, broker, brief, 0, ui.NewProgressDisplayTo(&bytes.Buffer{}, "x", false))
	if !errors.Is(err, ErrBriefTooShort) {
		t.Errorf("got %v, want ErrBriefTooShort", err)
	}
}

func TestRunBriefRetries(t *testing.T) {
	cfg := config.DefaultConfig()
	netErr := &agent.Failure{Kind: agent.KindNetwork, Message: "timeout"}

	tests := []struct {
		name     string
		failures []error
		retries  int
		wantErr  bool
	}{
		{name: "recovers", failures: []error{netErr}, retries: 1},
		{name: "recovers after two", failures: []error{netErr, netErr}, retries: 2},
		{name: "gives up", failures: []error{netErr, netErr}, retries: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := event.NewBroker(128)
			builder := &failingBuilder{FakeBuilder: testutil.NewFakeBuilder(cfg), role: config.RoleCharacterDesigner, failures: tt.failures}
			o, err := orchestrator.New(orchestrator.Options{Config: cfg, Sink: broker, Agents: builder})
			if err != nil {
				t.Fatal(err)
			}
			var out bytes.Buffer
			brief := &Brief{Request: "A noir detective story", Answers: testutil.Answers[:2]}
			sess, err := runBrief(context.Background(), o, broker, brief, tt.retries, ui.NewProgressDisplayTo(&out, "x", false))

			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "halted at character_design") {
					t.Fatalf("got %v, want a halt error", err)
				}
				if sess == nil || sess.Checkpoint == nil {
					t.Error("the halted session should be returned with its checkpoint")
				}
				return
			}
			if err != nil {
				t.Fatalf("runBrief: %v", err)
			}
			if sess.Phase.Halted() || len(sess.ConversationLog) != 1 {
				t.Errorf("session: %+v", sess)
			}
			if want := "RUNNING (attempt 2)] character_design"; !strings.Contains(out.String(), want) {
				t.Errorf("progress should show the retry attempt:\n%s", out.String())
			}
		})
	}
}
