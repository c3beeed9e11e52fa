package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/code-tutor/tutor/internal/protocol"
	"github.com/code-tutor/tutor/internal/session"
	"github.com/code-tutor/tutor/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Status    session.Status
	Language  protocol.Language
	SessionID string
	Width     int
}

// New creates a status bar model.
func New(sessionID string) Model {
	return Model{
		SessionID: sessionID,
		Language:  protocol.Python,
	}
}

// Label describes the connection state in words.
func (m Model) Label() string {
	st := m.Status
	switch st.State {
	case session.Connected:
		return "Connected"
	case session.Connecting:
		return "Connecting..."
	case session.Reconnecting:
		if st.Attempt == 0 {
			return fmt.Sprintf("Reconnecting in %s", st.RetryIn)
		}
		return fmt.Sprintf("Reconnecting in %s (attempt %d)", st.RetryIn, st.Attempt)
	case session.Failed:
		return "Connection failed, restart to retry"
	default:
		return "Disconnected, ctrl+n to reconnect"
	}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	state := m.Status.State.String()
	connStr := lipgloss.NewStyle().
		Foreground(theme.StateColor(state)).
		Render(theme.StateGlyph(state) + " " + m.Label())

	langStr := lipgloss.NewStyle().
		Foreground(theme.LanguageColor(string(m.Language))).
		Render(string(m.Language))

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + langStr
	if len(m.SessionID) >= 8 {
		content += sep + theme.StyleDimmed.Render("session "+m.SessionID[:8])
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
