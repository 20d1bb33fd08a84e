package tui

import "github.com/zhs007/genstory/internal/event"

// EventMsg carries one pipeline event into the model.
type EventMsg struct {
	Event event.Event
}

// StreamClosedMsg signals that the session's event stream ended.
type StreamClosedMsg struct{}

// ReplyMsg is the result of a command sent to the pipeline.
type ReplyMsg struct {
	Text string
	Err  error
}

// ChatMessage is one line in the chat history.
type ChatMessage struct {
	Speaker string
	Content string
	Kind    string // "user", "agent", "progress", "error", "system"
}
