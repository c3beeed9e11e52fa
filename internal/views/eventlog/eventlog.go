// Package eventlog keeps a bounded, scrollable log of session events for
// the overlay panel.
package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/code-tutor/tutor/internal/theme"
)

const maxEntries = 500

// Kind groups log entries for coloring.
type Kind string

const (
	KindStatus      Kind = "conn"
	KindOutput      Kind = "out"
	KindError       Kind = "err"
	KindExplanation Kind = "expl"
	KindCommand     Kind = "cmd"
)

type Entry struct {
	Time    time.Time
	Kind    Kind
	Message string
}

// Model is the log and its scroll position, counted in entries from the
// newest.
type Model struct {
	entries []Entry
	back    int
	now     func() time.Time
}

func New() Model {
	return Model{now: time.Now}
}

// Add records an entry; multi-line messages are folded onto one line.
func (m *Model) Add(kind Kind, message string) {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	m.entries = append(m.entries, Entry{
		Time:    now(),
		Kind:    kind,
		Message: strings.ReplaceAll(message, "\n", " ⏎ "),
	})
	if over := len(m.entries) - maxEntries; over > 0 {
		m.entries = append(m.entries[:0], m.entries[over:]...)
	}
	m.back = 0
}

func (m Model) Len() int { return len(m.entries) }

func (m Model) Entries() []Entry { return m.entries }

// Older scrolls toward the first entry.
func (m *Model) Older(n int) {
	m.back = min(m.back+n, max(len(m.entries)-1, 0))
}

// Newer scrolls toward the latest entry.
func (m *Model) Newer(n int) {
	m.back = max(m.back-n, 0)
}

func kindColor(k Kind) lipgloss.Color {
	switch k {
	case KindStatus:
		return theme.ColorConnecting
	case KindError:
		return theme.ColorError
	case KindExplanation:
		return theme.ColorPulse
	case KindCommand:
		return theme.ColorNotice
	default:
		return theme.ColorDimmed
	}
}

// View renders the overlay panel.
func (m Model) View(width, height int) string {
	inner := max(width-4, 20)
	rows := max(height-6, 3)

	panel := lipgloss.NewStyle().
		Width(inner).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)

	title := theme.StyleHeader.Render(" EVENT LOG ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("up/down:scroll  esc:close  %d events", len(m.entries)))

	if len(m.entries) == 0 {
		empty := theme.StyleDimmed.Render("  Nothing has happened yet.")
		return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", empty, "", help))
	}

	end := len(m.entries) - m.back
	start := max(end-rows, 0)
	msgWidth := inner - 20

	lines := make([]string, 0, end-start)
	for _, e := range m.entries[start:end] {
		msg := e.Message
		if msgWidth > 3 && len(msg) > msgWidth {
			msg = msg[:msgWidth-3] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			theme.StyleDimmed.Render(e.Time.Format("15:04:05.000")),
			lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(4).Render(string(e.Kind)),
			msg,
		))
	}

	more := ""
	if m.back > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d newer", m.back))
	}
	return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), more, help))
}
