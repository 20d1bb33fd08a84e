package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zhs007/genstory/internal/event"
)

func update(t *testing.T, m ChatModel, msg tea.Msg) (ChatModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	cm, ok := next.(ChatModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return cm, cmd
}

func TestChatModelSubmit(t *testing.T) {
	opts, _ := newChat(t)
	m := NewChatModel(opts)
	if len(m.Messages()) != 1 {
		t.Fatalf("greeting: %+v", m.Messages())
	}

	m.input.SetValue("A story about a lighthouse")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil || !m.waiting {
		t.Fatal("enter should send the message")
	}
	if last := m.Messages()[len(m.Messages())-1]; last.Kind != "user" || last.Content != "A story about a lighthouse" {
		t.Errorf("user message: %+v", last)
	}
	if m.input.Value() != "" {
		t.Error("input should be cleared")
	}

	reply, ok := cmd().(ReplyMsg)
	if !ok || reply.Err != nil || reply.Text == "" {
		t.Fatalf("reply: %+v", reply)
	}
	m, _ = update(t, m, reply)
	if m.waiting {
		t.Error("reply should clear the waiting state")
	}
	if last := m.Messages()[len(m.Messages())-1]; last.Speaker != "Aria" {
		t.Errorf("reply speaker: %+v", last)
	}
}

func TestChatModelEvents(t *testing.T) {
	m := NewChatModel(ChatOptions{FrontDesk: "Aria"})

	started := event.Event{Type: event.TypeInternal, Speaker: "Blake", Message: "Blake is designing...", Data: map[string]any{"stage": "structure_design", "status": "started"}}
	m, _ = update(t, m, EventMsg{Event: started})
	if !m.working || m.stage != "structure_design" {
		t.Errorf("started: working=%v stage=%q", m.working, m.stage)
	}

	failed := event.Event{Type: event.TypeInternal, Speaker: "Blake", Message: "could not finish", Error: true, CanRetry: true, Data: map[string]any{"stage": "structure_design", "status": "failed"}}
	m, _ = update(t, m, EventMsg{Event: failed})
	if m.working {
		t.Error("failure should stop the work indicator")
	}
	if last := m.Messages()[len(m.Messages())-1]; last.Kind != "error" {
		t.Errorf("failure message kind: %+v", last)
	}

	intake := event.Event{Type: event.TypeUserMessage, Speaker: "Aria", Message: "next question", Data: map[string]any{"outcome": "next_question"}}
	before := len(m.Messages())
	m, _ = update(t, m, EventMsg{Event: intake})
	if len(m.Messages()) != before {
		t.Error("intake replies arrive through ReplyMsg and must not be shown twice")
	}

	m, _ = update(t, m, ReplyMsg{Err: errors.New("boom")})
	if last := m.Messages()[len(m.Messages())-1]; last.Kind != "error" || last.Content != "boom" {
		t.Errorf("error reply: %+v", last)
	}

	m, _ = update(t, m, StreamClosedMsg{})
	if !strings.Contains(m.View(), "session was closed") {
		t.Error("closed stream should be reported")
	}
}

func TestChatModelKeys(t *testing.T) {
	m := NewChatModel(ChatOptions{})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if !m.suggest || !strings.Contains(m.View(), "suggestion mode") {
		t.Error("tab should toggle suggestion mode")
	}

	m.input.SetValue("/quit")
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("/quit should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("/quit should quit")
	}

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("esc should quit")
	}
}
