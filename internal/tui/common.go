// Package tui implements the interactive story chat using Bubble Tea, with
// a line-mode fallback for pipes and dumb terminals.
package tui

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/zhs007/genstory/internal/session"
)

// Common key binding constants.
const (
	KeyCtrlC = "ctrl+c"
	KeyCtrlR = "ctrl+r"
	KeyEnter = "enter"
	KeyEsc   = "esc"
	KeyTab   = "tab"
)

// Pipeline is what the chat drives. *orchestrator.Orchestrator satisfies it.
type Pipeline interface {
	GenerateStory(ctx context.Context, sessionID, input string, isInterruption bool) (string, error)
	RetryFailedOperation(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*session.Session, error)
	UpdateGenre(genre string) error
	Running(sessionID string) bool
	Wait(ctx context.Context, sessionID string) error
}

// IsTTY returns true if stdout is connected to a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

// Run starts the TUI program with the given model in alternate screen mode.
func Run(m tea.Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
