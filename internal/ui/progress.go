// Package ui provides terminal UI components for genstory.
// This file implements the stage progress display shown by "genstory run".
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/zhs007/genstory/internal/event"
)

// StageStatus represents the execution status of a single stage.
type StageStatus int

const (
	StatusPending   StageStatus = iota // Not reached yet
	StatusExecuting                    // Role is working on it
	StatusCompleted                    // Finished successfully
	StatusFailed                       // Halted the run
)

// StageState holds the display state of a single stage.
type StageState struct {
	Name    string
	Label   string
	Speaker string
	Status  StageStatus
	Attempt int
	Elapsed time.Duration
}

// ProgressDisplay manages a live-updating terminal progress view.
type ProgressDisplay struct {
	mu          sync.Mutex
	out         io.Writer
	title       string
	stages      []*StageState
	stageIndex  map[string]int // name -> index in stages slice
	started     bool
	isTTY       bool
	linesDrawn  int
	startTimes  map[string]time.Time
	lastPrinted map[string]StageStatus // tracks last printed status per stage (non-TTY)
}

// NewProgressDisplay creates a ProgressDisplay writing to stdout.
func NewProgressDisplay(title string) *ProgressDisplay {
	return NewProgressDisplayTo(os.Stdout, title, term.IsTerminal(int(os.Stdout.Fd())))
}

// NewProgressDisplayTo creates a ProgressDisplay writing to out. With tty
// false it prints one line per status change instead of redrawing.
func NewProgressDisplayTo(out io.Writer, title string, tty bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:         out,
		title:       title,
		stageIndex:  make(map[string]int),
		startTimes:  make(map[string]time.Time),
		lastPrinted: make(map[string]StageStatus),
		isTTY:       tty,
	}
}

// AddStage registers a stage for progress tracking.
func (p *ProgressDisplay) AddStage(name, label, speaker string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stageIndex[name] = len(p.stages)
	p.stages = append(p.stages, &StageState{
		Name:    name,
		Label:   label,
		Speaker: speaker,
		Status:  StatusPending,
	})
}

// Start draws the initial progress display.
func (p *ProgressDisplay) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.started = true
	p.render()
}

// UpdateStage updates a stage's status and re-renders the display.
func (p *ProgressDisplay) UpdateStage(name string, status StageStatus, attempt int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.stageIndex[name]
	if !ok {
		return
	}

	st := p.stages[idx]
	st.Status = status
	st.Attempt = attempt

	switch status {
	case StatusExecuting:
		p.startTimes[name] = time.Now()
	case StatusCompleted, StatusFailed:
		if start, ok := p.startTimes[name]; ok {
			st.Elapsed = time.Since(start)
		}
	}

	if p.started {
		p.render()
	}
}

// Observe applies a pipeline event. Events without a stage status are
// ignored. A retry resets the stages from the resumed one onwards.
func (p *ProgressDisplay) Observe(ev event.Event, attempt int) {
	stage, _ := ev.Data["stage"].(string)
	status, _ := ev.Data["status"].(string)
	switch status {
	case "started":
		p.UpdateStage(stage, StatusExecuting, attempt)
	case "completed":
		p.UpdateStage(stage, StatusCompleted, attempt)
	case "failed":
		p.UpdateStage(stage, StatusFailed, attempt)
	case "retry":
		p.mu.Lock()
		if idx, ok := p.stageIndex[stage]; ok {
			for _, st := range p.stages[idx:] {
				st.Status = StatusPending
				delete(p.lastPrinted, st.Name)
			}
		}
		p.mu.Unlock()
	}
}

// Failed returns the name of the failed stage, or "".
func (p *ProgressDisplay) Failed() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, st := range p.stages {
		if st.Status == StatusFailed {
			return st.Name
		}
	}
	return ""
}

// Finish finalizes the display by moving the cursor below all output
// and printing a summary line.
func (p *ProgressDisplay) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isTTY && p.linesDrawn > 0 {
		fmt.Fprint(p.out, "\n")
	}

	completed := 0
	failed := 0
	for _, st := range p.stages {
		switch st.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}

	fmt.Fprintf(p.out, "\nDone: %d/%d stages completed", completed, len(p.stages))
	if failed > 0 {
		fmt.Fprintf(p.out, ", %d failed", failed)
	}
	fmt.Fprintln(p.out)
}

func (p *ProgressDisplay) render() {
	if !p.isTTY {
		p.renderPlain()
		return
	}
	p.renderTTY()
}

// renderTTY redraws in place using ANSI escape codes.
func (p *ProgressDisplay) renderTTY() {
	if p.linesDrawn > 0 {
		fmt.Fprintf(p.out, "\033[%dA", p.linesDrawn)
	}

	var buf strings.Builder
	buf.WriteString(fmt.Sprintf("\033[2K\033[1m✎ Story Studio - %q\033[0m\n", p.title))
	buf.WriteString("\033[2K\n")
	for _, st := range p.stages {
		buf.WriteString("\033[2K")
		buf.WriteString(formatStageLine(st, p.startTimes))
		buf.WriteString("\n")
	}

	fmt.Fprint(p.out, buf.String())
	p.linesDrawn = len(p.stages) + 2 // header + blank + stages
}

// renderPlain only prints on status transitions to avoid duplicate lines.
func (p *ProgressDisplay) renderPlain() {
	for _, st := range p.stages {
		if st.Status == StatusPending {
			continue
		}
		if prev, seen := p.lastPrinted[st.Name]; seen && prev == st.Status {
			continue
		}
		fmt.Fprintln(p.out, formatStageLinePlain(st))
		p.lastPrinted[st.Name] = st.Status
	}
}

func formatStageLine(st *StageState, startTimes map[string]time.Time) string {
	return fmt.Sprintf("  %s %-18s %-8s %s", statusIcon(st.Status), st.Name, st.Speaker, statusDetail(st, startTimes))
}

func formatStageLinePlain(st *StageState) string {
	var status string
	switch st.Status {
	case StatusPending:
		status = "PENDING"
	case StatusExecuting:
		status = fmt.Sprintf("RUNNING (attempt %d)", st.Attempt)
	case StatusCompleted:
		status = fmt.Sprintf("DONE [%s]", formatDuration(st.Elapsed))
	case StatusFailed:
		status = "FAILED"
	}
	return fmt.Sprintf("[%s] %s: %s %s", status, st.Name, st.Speaker, st.Label)
}

func statusIcon(status StageStatus) string {
	switch status {
	case StatusCompleted:
		return "\033[32m✅\033[0m" // green checkmark
	case StatusExecuting:
		return "\033[33m⏳\033[0m" // yellow hourglass
	case StatusFailed:
		return "\033[31m❌\033[0m" // red X
	default:
		return "\033[90m○\033[0m" // dim circle
	}
}

func statusDetail(st *StageState, startTimes map[string]time.Time) string {
	switch st.Status {
	case StatusCompleted:
		return fmt.Sprintf("\033[90m[%s]\033[0m", formatDuration(st.Elapsed))
	case StatusExecuting:
		elapsed := time.Since(startTimes[st.Name])
		return fmt.Sprintf("\033[33m[%s, attempt %d, %s]\033[0m", st.Label, st.Attempt, formatDuration(elapsed))
	case StatusFailed:
		return "\033[31m[halted]\033[0m"
	default:
		return "\033[90m[pending]\033[0m"
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%dm%ds", h, m, s)
}
