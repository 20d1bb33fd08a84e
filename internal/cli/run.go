// run.go implements "genstory run", which drives a whole session from a
// YAML brief without any interaction.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zhs007/genstory/internal/event"
	"github.com/zhs007/genstory/internal/intake"
	"github.com/zhs007/genstory/internal/orchestrator"
	"github.com/zhs007/genstory/internal/session"
	"github.com/zhs007/genstory/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a session from a brief file",
	Long: `Feed the initial request and the interview answers from a YAML brief,
show stage progress and print the final presentation. A halted stage is
retried up to --retries times before giving up.

Example brief:

  request: A ghost story set on a night train
  genre: horror
  answers:
    - Northern Europe in the 1930s, a sleeper train crossing the border
    - A young conductor on her first night shift
    - Adults who like slow, atmospheric horror`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	briefFlag   string
	retriesFlag int
)

func init() {
	runCmd.Flags().StringVar(&briefFlag, "brief", "", "Path to the YAML brief (required)")
	runCmd.Flags().IntVar(&retriesFlag, "retries", 2, "Automatic retries of a halted stage")
	_ = runCmd.MarkFlagRequired("brief")
}

// Brief scripts a session for "genstory run".
type Brief struct {
	Request string   `yaml:"request"`
	Genre   string   `yaml:"genre,omitempty"`
	UserID  string   `yaml:"user_id,omitempty"`
	Answers []string `yaml:"answers"`
}

// ErrBriefTooShort is returned when the brief's answers do not get the
// interview far enough for the team to start.
var ErrBriefTooShort = errors.New("brief does not answer enough questions to start")

// ReadBrief reads and checks a brief file.
func ReadBrief(path string) (*Brief, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading brief: %w", err)
	}
	var b Brief
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing brief: %w", err)
	}
	b.Request = strings.TrimSpace(b.Request)
	if b.Request == "" {
		return nil, fmt.Errorf("brief %s: request is required", path)
	}
	return &b, nil
}

func runRun(cmd *cobra.Command, _ []string) error {
	brief, err := ReadBrief(briefFlag)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if res := cfg.Validate(); !res.Valid {
		return fmt.Errorf("invalid config: %v", res.Errors)
	}

	broker := event.NewBroker(0)
	p, err := newPipeline(cfg, newLogger(cfg), broker, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	progress := ui.NewProgressDisplay(brief.Request)
	sess, err := runBrief(cmd.Context(), p.Orchestrator, broker, brief, retriesFlag, progress)
	if err != nil {
		return joinShutdown(err, p)
	}
	printPresentation(cmd.OutOrStdout(), sess)
	return joinShutdown(nil, p)
}

// runBrief plays brief against o and returns the finished session. Stage
// events from broker drive progress.
func runBrief(ctx context.Context, o *orchestrator.Orchestrator, broker *event.Broker, brief *Brief, retries int, progress *ui.ProgressDisplay) (*session.Session, error) {
	if brief.Genre != "" {
		if err := o.UpdateGenre(brief.Genre); err != nil {
			return nil, err
		}
	}
	id, err := o.CreateSession(ctx, brief.UserID)
	if err != nil {
		return nil, err
	}

	for _, st := range o.Plan() {
		progress.AddStage(st.Name, st.Label, o.AgentsInfo()[st.Slot].Name)
	}
	progress.Start()

	var attempt atomic.Int32
	attempt.Store(1)
	events, cancel := broker.Subscribe(id)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			progress.Observe(ev, int(attempt.Load()))
		}
	}()
	defer func() {
		cancel()
		wg.Wait()
		progress.Finish()
	}()

	if err := feedIntake(ctx, o, id, brief); err != nil {
		return nil, err
	}

	for {
		if err := o.Wait(ctx, id); err != nil {
			return nil, err
		}
		sess, err := o.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if !sess.Phase.Halted() {
			return sess, nil
		}
		if int(attempt.Load()) > retries {
			return sess, haltError(sess)
		}
		attempt.Add(1)
		if err := o.RetryFailedOperation(ctx, id); err != nil {
			return nil, err
		}
	}
}

// feedIntake sends the request and answers until the team starts. Answers
// left over once it has started are dropped.
func feedIntake(ctx context.Context, o *orchestrator.Orchestrator, id string, brief *Brief) error {
	sess, err := sendIntake(ctx, o, id, brief.Request)
	if err != nil || sess.Phase != session.PhaseRequirementGathering {
		return err
	}

	for i, answer := range brief.Answers {
		if strings.TrimSpace(answer) == "" {
			return fmt.Errorf("brief answer %d is empty", i+1)
		}
		// A short answer is asked about once more. Sending it again keeps
		// the answers that follow on their own questions.
		index := sess.Requirement.CurrentQuestionIndex
		for tries := 0; sess.Phase == session.PhaseRequirementGathering && sess.Requirement.CurrentQuestionIndex == index; tries++ {
			if tries == 2 {
				return fmt.Errorf("brief answer %d was not accepted", i+1)
			}
			if sess, err = sendIntake(ctx, o, id, answer); err != nil {
				return err
			}
		}
		if sess.Phase != session.PhaseRequirementGathering {
			return nil
		}
	}

	sess, err = sendIntake(ctx, o, id, intake.DefaultStartPhrases[0])
	if err != nil || sess.Phase != session.PhaseRequirementGathering {
		return err
	}
	return ErrBriefTooShort
}

// sendIntake sends one interview message and returns the session after it.
func sendIntake(ctx context.Context, o *orchestrator.Orchestrator, id, text string) (*session.Session, error) {
	if _, err := o.GenerateStory(ctx, id, text, false); err != nil {
		return nil, err
	}
	return o.GetSession(ctx, id)
}

func haltError(sess *session.Session) error {
	msg := "unknown error"
	if sess.LastError != nil {
		msg = sess.LastError.Error()
	}
	return fmt.Errorf("session %s halted at %s: %s", sess.ID, sess.Phase.HaltedStage(), msg)
}

func printPresentation(w io.Writer, sess *session.Session) {
	if len(sess.ConversationLog) == 0 {
		fmt.Fprintln(w, "The team finished without a final proposal.")
		return
	}
	last := sess.ConversationLog[len(sess.ConversationLog)-1]
	fmt.Fprintln(w)
	fmt.Fprintln(w, last.Output)
}
