package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhs007/genstory/internal/event"
)

// ChatOptions configures a chat model or a line-mode session.
type ChatOptions struct {
	Context   context.Context
	Pipeline  Pipeline
	SessionID string
	Events    <-chan event.Event
	FrontDesk string // speaker name for replies
	Greeting  string
}

// ChatModel is the Bubble Tea model for a story session.
type ChatModel struct {
	opts     ChatOptions
	keys     KeyMap
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	messages []ChatMessage
	suggest  bool
	waiting  bool
	working  bool
	stage    string
	width    int
	height   int
}

// NewChatModel creates a ChatModel.
func NewChatModel(opts ChatOptions) ChatModel {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.FrontDesk == "" {
		opts.FrontDesk = "Studio"
	}

	ti := textinput.New()
	ti.Placeholder = "Tell the studio about your story..."
	ti.CharLimit = 4000
	ti.Prompt = "› "
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(primaryColor))

	m := ChatModel{
		opts:     opts,
		keys:     DefaultKeyMap,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		width:    80,
		height:   30,
	}
	if opts.Greeting != "" {
		m.messages = append(m.messages, ChatMessage{Speaker: opts.FrontDesk, Content: opts.Greeting, Kind: "agent"})
	}
	m.resize(m.width, m.height)
	return m
}

// Init starts the cursor, the spinner and the event listener.
func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.opts.Events))
}

// Update handles messages for the chat.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Interrupt):
			m.suggest = !m.suggest
			return m, nil
		case key.Matches(msg, m.keys.Retry):
			if m.waiting {
				return m, nil
			}
			m.waiting = true
			return m, m.send(Command{Kind: CmdRetry})
		case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDn):
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case key.Matches(msg, m.keys.Send):
			return m.submit()
		}

	case ReplyMsg:
		m.waiting = false
		if msg.Err != nil {
			m.push(ChatMessage{Speaker: "Error", Content: msg.Err.Error(), Kind: "error"})
		} else if msg.Text != "" {
			m.push(ChatMessage{Speaker: m.opts.FrontDesk, Content: msg.Text, Kind: "agent"})
		}
		return m, nil

	case EventMsg:
		m.track(msg.Event)
		if !echoed(msg.Event) {
			m.push(eventMessage(msg.Event))
		}
		return m, waitForEvent(m.opts.Events)

	case StreamClosedMsg:
		m.working = false
		m.push(ChatMessage{Speaker: "System", Content: "The session was closed.", Kind: "system"})
		return m, nil

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	}

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m ChatModel) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" || m.waiting {
		return m, nil
	}
	c := ParseCommand(line)
	if c.Kind == CmdQuit {
		return m, tea.Quit
	}
	if c.Kind == CmdMessage && m.suggest {
		c.Kind = CmdSuggest
	}
	m.input.Reset()
	if c.Kind == CmdMessage || c.Kind == CmdSuggest {
		m.push(ChatMessage{Speaker: "You", Content: c.Arg, Kind: "user"})
	}
	m.waiting = true
	return m, m.send(c)
}

func (m ChatModel) send(c Command) tea.Cmd {
	opts := m.opts
	return func() tea.Msg {
		text, err := execute(opts.Context, opts.Pipeline, opts.SessionID, c)
		return ReplyMsg{Text: text, Err: err}
	}
}

// track follows stage progress so the status line can show it.
func (m *ChatModel) track(ev event.Event) {
	status, _ := ev.Data["status"].(string)
	stage, _ := ev.Data["stage"].(string)
	switch {
	case status == "started" || status == "retry":
		m.working = true
		m.stage = stage
	case status == "failed":
		m.working = false
		m.stage = stage
	case ev.Type == event.TypeUserMessage && status == "completed":
		m.working = false
		m.stage = ""
	}
}

func (m *ChatModel) push(msg ChatMessage) {
	m.messages = append(m.messages, msg)
	m.viewport.SetContent(formatMessages(m.messages, m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m *ChatModel) resize(width, height int) {
	m.width = width
	m.height = height
	// Reserve header (2), status (2), input (2) and footer (1) plus the box border.
	vpHeight := height - 11
	if vpHeight < 5 {
		vpHeight = 5
	}
	vpWidth := width - 6
	if vpWidth < 20 {
		vpWidth = 20
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight
	m.input.Width = vpWidth - 4
	m.viewport.SetContent(formatMessages(m.messages, vpWidth))
	m.viewport.GotoBottom()
}

// View renders the chat.
func (m ChatModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Story Studio"))
	b.WriteString(DimStyle.Render(fmt.Sprintf("  session %s", shortID(m.opts.SessionID))))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n\n")

	switch {
	case m.waiting:
		b.WriteString(m.spinner.View() + " Waiting for the studio...")
	case m.working:
		b.WriteString(m.spinner.View() + WarningStyle.Render(" Team at work: "+m.stage))
	default:
		b.WriteString(DimStyle.Render("Idle"))
	}
	if m.suggest {
		b.WriteString(StatusBarStyle.Render("suggestion mode"))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(DimStyle.Render(m.keys.helpLine()))

	return BoxStyle.Width(m.width - 2).Render(b.String())
}

// Messages returns the chat history.
func (m ChatModel) Messages() []ChatMessage {
	return m.messages
}

func waitForEvent(ch <-chan event.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

func eventMessage(ev event.Event) ChatMessage {
	msg := ChatMessage{Speaker: ev.Speaker, Content: ev.Message, Kind: "agent"}
	if msg.Speaker == "" {
		msg.Speaker = ev.Role
	}
	switch status, _ := ev.Data["status"].(string); {
	case ev.Error:
		msg.Kind = "error"
	case status == "started":
		msg.Kind = "progress"
	case ev.Retry:
		msg.Kind = "system"
	}
	return msg
}

func formatMessages(messages []ChatMessage, width int) string {
	if len(messages) == 0 {
		return DimStyle.Render("No messages yet. Describe the story you have in mind.")
	}
	body := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	for i, msg := range messages {
		switch msg.Kind {
		case "user":
			b.WriteString(UserStyle.Render(msg.Speaker + ": "))
			b.WriteString(body.Render(msg.Content))
		case "progress":
			b.WriteString(DimStyle.Render("… " + msg.Content))
		case "error":
			b.WriteString(ErrorStyle.Render(msg.Speaker + ": "))
			b.WriteString(body.Render(msg.Content))
		case "system":
			b.WriteString(DimStyle.Render(msg.Speaker + ": " + msg.Content))
		default:
			b.WriteString(SpeakerStyle.Render(msg.Speaker + ": "))
			b.WriteString(body.Render(msg.Content))
		}
		if i < len(messages)-1 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
