package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/zhs007/genstory/internal/event"
)

func stageEvent(stage, status string) event.Event {
	return event.Event{Data: map[string]any{"stage": stage, "status": status}}
}

func TestPlainProgress(t *testing.T) {
	var out bytes.Buffer
	p := NewProgressDisplayTo(&out, "a lighthouse story", false)
	p.AddStage("requirement_analysis", "analysing the brief", "Aria")
	p.AddStage("structure_design", "designing the structure", "Blake")
	p.Start()

	if out.Len() != 0 {
		t.Errorf("pending stages should not print: %q", out.String())
	}

	p.Observe(stageEvent("requirement_analysis", "started"), 1)
	p.Observe(stageEvent("requirement_analysis", "started"), 1)
	p.Observe(stageEvent("requirement_analysis", "completed"), 1)
	p.Observe(stageEvent("structure_design", "started"), 1)
	p.Observe(stageEvent("structure_design", "failed"), 1)
	p.Observe(event.Event{Message: "no stage data"}, 1)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{
		"[RUNNING (attempt 1)] requirement_analysis: Aria analysing the brief",
		"[DONE [0s]] requirement_analysis: Aria analysing the brief",
		"[RUNNING (attempt 1)] structure_design: Blake designing the structure",
		"[FAILED] structure_design: Blake designing the structure",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), out.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, lines[i], want[i])
		}
	}
	if p.Failed() != "structure_design" {
		t.Errorf("Failed: %q", p.Failed())
	}

	// A retry resets the failed stage so it prints again.
	p.Observe(stageEvent("structure_design", "retry"), 2)
	if p.Failed() != "" {
		t.Error("retry should clear the failure")
	}
	out.Reset()
	p.Observe(stageEvent("structure_design", "started"), 2)
	if !strings.Contains(out.String(), "[RUNNING (attempt 2)] structure_design") {
		t.Errorf("retry start: %q", out.String())
	}

	out.Reset()
	p.Finish()
	if !strings.Contains(out.String(), "Done: 1/2 stages completed") {
		t.Errorf("summary: %q", out.String())
	}
}

func TestTTYProgressRedraws(t *testing.T) {
	var out bytes.Buffer
	p := NewProgressDisplayTo(&out, "story", true)
	p.AddStage("critique", "reviewing", "Elena")
	p.Start()
	p.UpdateStage("critique", StatusExecuting, 1)

	if !strings.Contains(out.String(), "\033[3A") {
		t.Errorf("second render should move the cursor up three lines: %q", out.String())
	}
	p.UpdateStage("unknown", StatusCompleted, 1)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{1500 * time.Millisecond, "2s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h2m3s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
