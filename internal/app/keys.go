package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the TUI. Plain keys go to the
// editor, so every action uses a modifier.
type KeyMap struct {
	Run       key.Binding
	Explain   key.Binding
	Language  key.Binding
	Reconnect key.Binding
	Log       key.Binding
	Up        key.Binding
	Down      key.Binding
	Escape    key.Binding
	Quit      key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Run: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "run"),
		),
		Explain: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("ctrl+e", "explain"),
		),
		Language: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "language"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "reconnect"),
		),
		Log: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("ctrl+d", "event log"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "older"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "newer"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// helpLine renders the footer from the bindings' help text.
func (k KeyMap) helpLine() string {
	var s string
	for i, b := range []key.Binding{k.Run, k.Explain, k.Language, k.Reconnect, k.Log, k.Quit} {
		if i > 0 {
			s += "  "
		}
		h := b.Help()
		s += h.Key + ":" + h.Desc
	}
	return s
}
