package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhs007/genstory/internal/event"
	"github.com/zhs007/genstory/internal/session"
)

// CommandKind identifies what a line of input asks for.
type CommandKind int

const (
	CmdMessage   CommandKind = iota // plain message to the front desk
	CmdSuggest                      // suggestion for the team
	CmdRetry
	CmdStatus
	CmdGenre
	CmdHelp
	CmdQuit
)

// Command is one parsed line of input.
type Command struct {
	Kind CommandKind
	Arg  string
}

// ErrUsage is returned for a slash command missing its argument.
var ErrUsage = errors.New("missing argument")

const helpText = `Type a message to talk to the studio.
  /suggest <text>  send a suggestion while the team works
  /retry           resume from the stage that failed
  /status          show where the session is
  /genre <name>    switch the studio genre
  /quit            leave the chat`

// ParseCommand parses one line. Lines not starting with "/" are messages;
// an unknown slash command asks for help.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: CmdMessage, Arg: line}
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "/suggest", "/s":
		return Command{Kind: CmdSuggest, Arg: arg}
	case "/retry", "/r":
		return Command{Kind: CmdRetry}
	case "/status":
		return Command{Kind: CmdStatus}
	case "/genre":
		return Command{Kind: CmdGenre, Arg: arg}
	case "/quit", "/exit", "/q":
		return Command{Kind: CmdQuit}
	default:
		return Command{Kind: CmdHelp}
	}
}

// execute runs cmd against the pipeline and returns the text to show.
// CmdQuit is handled by the caller.
func execute(ctx context.Context, p Pipeline, sessionID string, cmd Command) (string, error) {
	switch cmd.Kind {
	case CmdMessage:
		return p.GenerateStory(ctx, sessionID, cmd.Arg, false)
	case CmdSuggest:
		if cmd.Arg == "" {
			return "", fmt.Errorf("/suggest: %w", ErrUsage)
		}
		return p.GenerateStory(ctx, sessionID, cmd.Arg, true)
	case CmdRetry:
		if err := p.RetryFailedOperation(ctx, sessionID); err != nil {
			return "", err
		}
		return "Retrying from the failed stage.", nil
	case CmdStatus:
		sess, err := p.GetSession(ctx, sessionID)
		if err != nil {
			return "", err
		}
		return statusText(sess, p.Running(sessionID)), nil
	case CmdGenre:
		if cmd.Arg == "" {
			return "", fmt.Errorf("/genre: %w", ErrUsage)
		}
		if err := p.UpdateGenre(cmd.Arg); err != nil {
			return "", err
		}
		return fmt.Sprintf("Genre set to %s.", cmd.Arg), nil
	default:
		return helpText, nil
	}
}

func statusText(sess *session.Session, running bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Phase: %s", sess.Phase)
	if sess.CurrentStage != "" {
		fmt.Fprintf(&b, " (stage %s)", sess.CurrentStage)
	}
	if running {
		b.WriteString(", team at work")
	}
	if sess.Requirement != nil && sess.Phase == session.PhaseRequirementGathering {
		fmt.Fprintf(&b, "\nAnswered questions: %d", sess.Requirement.AnsweredCount())
	}
	fmt.Fprintf(&b, "\nCompleted runs: %d, suggestions: %d", len(sess.ConversationLog), len(sess.Interruptions))
	if cp := sess.Checkpoint; cp != nil {
		reason := "unknown error"
		if cp.Error != nil {
			reason = cp.Error.Message
		}
		fmt.Fprintf(&b, "\nHalted at %s: %s. Use /retry to resume.", cp.FailedStage, reason)
	}
	return b.String()
}

// echoed reports whether ev repeats something the caller already shows:
// front desk replies come back from GenerateStory and suggestions are the
// user's own words.
func echoed(ev event.Event) bool {
	if ev.Type == event.TypeConnection {
		return true
	}
	if _, ok := ev.Data["outcome"]; ok {
		return true
	}
	if v, ok := ev.Data["reply"].(bool); ok && v {
		return true
	}
	if v, ok := ev.Data["interruption"].(bool); ok && v {
		return true
	}
	return false
}

// eventLine renders ev as "speaker: text" without styling.
func eventLine(ev event.Event) string {
	speaker := ev.Speaker
	if speaker == "" {
		speaker = ev.Role
	}
	if status, _ := ev.Data["status"].(string); status == "started" {
		return "… " + ev.Message
	}
	return speaker + ": " + ev.Message
}
