package tui

import (
	"strings"
	"testing"

	"github.com/zhs007/genstory/internal/agent"
	"github.com/zhs007/genstory/internal/event"
	"github.com/zhs007/genstory/internal/session"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"  a story about bees ", Command{Kind: CmdMessage, Arg: "a story about bees"}},
		{"", Command{Kind: CmdMessage}},
		{"/suggest make it rain", Command{Kind: CmdSuggest, Arg: "make it rain"}},
		{"/s   shorter", Command{Kind: CmdSuggest, Arg: "shorter"}},
		{"/RETRY", Command{Kind: CmdRetry}},
		{"/status", Command{Kind: CmdStatus}},
		{"/genre horror", Command{Kind: CmdGenre, Arg: "horror"}},
		{"/genre", Command{Kind: CmdGenre}},
		{"/exit", Command{Kind: CmdQuit}},
		{"/dance", Command{Kind: CmdHelp}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.line); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestEchoed(t *testing.T) {
	tests := []struct {
		name string
		ev   event.Event
		want bool
	}{
		{"connection", event.Event{Type: event.TypeConnection}, true},
		{"intake reply", event.Event{Type: event.TypeUserMessage, Data: map[string]any{"outcome": "next_question"}}, true},
		{"run reply", event.Event{Type: event.TypeUserMessage, Data: map[string]any{"reply": true}}, true},
		{"suggestion echo", event.Event{Type: event.TypeUserMessage, Data: map[string]any{"interruption": true}}, true},
		{"stage result", event.Event{Type: event.TypeInternal, Data: map[string]any{"stage": "critique", "status": "completed"}}, false},
		{"no data", event.Event{Type: event.TypeInternal}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := echoed(tt.ev); got != tt.want {
				t.Errorf("echoed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventLine(t *testing.T) {
	started := event.Event{Speaker: "Blake", Message: "Blake is designing the structure...", Data: map[string]any{"status": "started"}}
	if got := eventLine(started); got != "… Blake is designing the structure..." {
		t.Errorf("started line: %q", got)
	}
	done := event.Event{Role: "story_architect", Message: "three outlines"}
	if got := eventLine(done); got != "story_architect: three outlines" {
		t.Errorf("role fallback: %q", got)
	}
}

func TestStatusText(t *testing.T) {
	sess := &session.Session{
		Phase:           session.HaltedAt("critique"),
		ConversationLog: []session.LogRecord{{Input: "x"}},
		Checkpoint: &session.Checkpoint{
			FailedStage: "critique",
			Error:       &agent.Failure{Kind: agent.KindNetwork, Message: "timeout"},
		},
	}
	got := statusText(sess, false)
	for _, want := range []string{"halted:critique", "Completed runs: 1", "Halted at critique: timeout", "/retry"} {
		if !strings.Contains(got, want) {
			t.Errorf("status missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "team at work") {
		t.Error("idle session should not report work")
	}
}
