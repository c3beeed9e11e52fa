// Package theme holds the Lip Gloss palette and shared styles for the tutor
// TUI. It is a leaf package with no internal imports to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Connection state colors.
var (
	ColorConnected    = lipgloss.Color("#22c55e")
	ColorConnecting   = lipgloss.Color("#3b82f6")
	ColorReconnecting = lipgloss.Color("#d97706")
	ColorDisconnected = lipgloss.Color("#6b7280")
	ColorFailed       = lipgloss.Color("#dc2626")
)

// Output colors.
var (
	ColorOutput  = lipgloss.Color("#e5e7eb")
	ColorError   = lipgloss.Color("#f87171")
	ColorNotice  = lipgloss.Color("#facc15")
	ColorPulse   = lipgloss.Color("#a855f7")
	ColorPython  = lipgloss.Color("#3776ab")
	ColorJS      = lipgloss.Color("#f7df1e")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder = lipgloss.Color("#4b5563")
	ColorFocus  = lipgloss.Color("#7c3aed")
	ColorDimmed = lipgloss.Color("#6b7280")
	ColorBright = lipgloss.Color("#f9fafb")
)

// StateColor returns the color for a connection state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "connected":
		return ColorConnected
	case "connecting":
		return ColorConnecting
	case "reconnecting":
		return ColorReconnecting
	case "failed":
		return ColorFailed
	default:
		return ColorDisconnected
	}
}

// StateGlyph returns a glyph for a connection state name.
func StateGlyph(state string) string {
	switch state {
	case "connected":
		return "●"
	case "connecting", "reconnecting":
		return "◌"
	case "failed":
		return "✗"
	default:
		return "○"
	}
}

// LanguageColor returns the badge color for a language name.
func LanguageColor(lang string) lipgloss.Color {
	switch lang {
	case "python":
		return ColorPython
	case "javascript":
		return ColorJS
	default:
		return ColorDefault
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleFocused = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorFocus)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleError = lipgloss.NewStyle().
		Foreground(ColorError)

	StyleNotice = lipgloss.NewStyle().
		Foreground(ColorNotice)
)
