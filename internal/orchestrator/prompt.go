package orchestrator

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/zhs007/genstory/internal/intake"
	"github.com/zhs007/genstory/internal/session"
	"github.com/zhs007/genstory/prompts"
)

// stageData is what stage templates see.
type stageData struct {
	Input         string
	Summary       string
	Genre         string
	Interruptions []string

	results map[string]string
	names   map[string]string
}

// Name returns the configured display name of a role.
func (d stageData) Name(roleID string) string {
	if n := d.names[roleID]; n != "" {
		return n
	}
	return roleID
}

// Result returns the output of an earlier stage of the current run, or ""
// when that stage did not run.
func (d stageData) Result(stage string) string {
	return d.results[stage]
}

func newStageData(r *run, genre string, names map[string]string) stageData {
	results := make(map[string]string, len(r.results))
	for _, res := range r.results {
		results[res.Stage] = res.Content
	}
	return stageData{
		Input:         r.input,
		Summary:       r.summary,
		Genre:         genre,
		Interruptions: r.interruptions,
		results:       results,
		names:         names,
	}
}

func (st Stage) render(data stageData) (string, error) {
	var buf bytes.Buffer
	if err := st.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", st.Name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// intakeData is what intake templates see.
type intakeData struct {
	Input    string
	Question string
	Key      string
	FollowUp string
	Answered int
	Summary  string
	Desk     string
}

var intakeTemplates = map[intake.OutcomeKind]*template.Template{
	intake.OutcomeWelcome:      template.Must(template.New("welcome").Parse(prompts.IntakeWelcomeTemplate)),
	intake.OutcomeNeedMoreInfo: template.Must(template.New("need_more").Parse(prompts.IntakeNeedMoreTemplate)),
	intake.OutcomeVague:        template.Must(template.New("vague").Parse(prompts.IntakeVagueTemplate)),
	intake.OutcomeNextQuestion: template.Must(template.New("next_question").Parse(prompts.IntakeNextQuestionTemplate)),
	intake.OutcomeStartEarly:   template.Must(template.New("start").Parse(prompts.IntakeStartTemplate)),
	intake.OutcomeAllAnswered:  template.Must(template.New("start").Parse(prompts.IntakeStartTemplate)),
}

var requestAckTemplate = template.Must(template.New("request").Parse(prompts.RequestAckTemplate))

// intakePrompt renders the front-desk prompt for an intake outcome. It
// returns "" for outcomes that are answered with fixed text.
func intakePrompt(out intake.Outcome, input string, state *intake.State, desk string) string {
	tmpl, ok := intakeTemplates[out.Kind]
	if !ok {
		return ""
	}
	data := intakeData{Input: input, Answered: out.Answered, Summary: state.Summary(), Desk: desk}
	if out.Question != nil {
		data.Question = out.Question.Text
		data.Key = string(out.Question.Key)
		data.FollowUp = out.Question.FollowUp
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

// intakeFallback is the reply used when the front desk cannot be reached.
func intakeFallback(out intake.Outcome, name string) string {
	q := out.Question
	switch out.Kind {
	case intake.OutcomeWelcome:
		return fmt.Sprintf("Hello! I'm %s from the front desk. Before the team starts, I'd like to learn a few details about your story.\n\n%s", name, q.Text)
	case intake.OutcomeNeedMoreInfo:
		msg := fmt.Sprintf("We only have %d answer(s) so far. A little more information will help the team do their best work.", out.Answered)
		if q != nil {
			msg += "\n\n" + q.Text
		}
		return msg
	case intake.OutcomeEmpty:
		if q == nil {
			return "I didn't catch that. Could you say it again?"
		}
		return "I didn't catch that.\n\n" + q.Text
	case intake.OutcomeVague:
		msg := "Thanks, I've noted that. Could you add a little more detail, or tell me if that's enough?"
		if q != nil && q.FollowUp != "" {
			msg += "\n\n" + q.FollowUp
		}
		return msg
	case intake.OutcomeNextQuestion:
		return q.Text + "\n\n" + q.FollowUp
	case intake.OutcomeStartEarly, intake.OutcomeAllAnswered:
		return "Thank you! I have what I need. The team is starting work on your story now."
	default:
		return "The team already has your requirements."
	}
}

func requestPrompt(input string) string {
	var buf bytes.Buffer
	if err := requestAckTemplate.Execute(&buf, intakeData{Input: input}); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

const (
	requestFallback     = "Got it. The team is starting a new round of work with your message."
	interruptionAck     = "Thanks for the suggestion! The team is in the middle of their work; I've noted it and it will shape the next round."
	interruptionSpeaker = "User"
	systemSpeaker       = "System"
)

// presentation is the text the client ends up reading for a finished run.
func presentation(results []session.StageResult) string {
	if len(results) == 0 {
		return ""
	}
	return results[len(results)-1].Content
}
