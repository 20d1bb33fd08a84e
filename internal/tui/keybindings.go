package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the chat key bindings.
type KeyMap struct {
	Send      key.Binding
	Interrupt key.Binding
	Retry     key.Binding
	ScrollUp  key.Binding
	ScrollDn  key.Binding
	Quit      key.Binding
}

// DefaultKeyMap provides the default key bindings for the chat.
var DefaultKeyMap = KeyMap{
	Send: key.NewBinding(
		key.WithKeys(KeyEnter),
		key.WithHelp("enter", "send"),
	),
	Interrupt: key.NewBinding(
		key.WithKeys(KeyTab),
		key.WithHelp("tab", "toggle suggestion mode"),
	),
	Retry: key.NewBinding(
		key.WithKeys(KeyCtrlR),
		key.WithHelp("ctrl+r", "retry failed stage"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("pgup", "scroll up"),
	),
	ScrollDn: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("pgdn", "scroll down"),
	),
	Quit: key.NewBinding(
		key.WithKeys(KeyCtrlC, KeyEsc),
		key.WithHelp("esc", "quit"),
	),
}

// helpLine renders the footer from the key map.
func (k KeyMap) helpLine() string {
	var out string
	for i, b := range []key.Binding{k.Send, k.Interrupt, k.Retry, k.Quit} {
		if i > 0 {
			out += " · "
		}
		h := b.Help()
		out += h.Key + ": " + h.Desc
	}
	return out
}
