// Package output renders the result pane: streamed output lines, runtime
// errors, notices, and the markdown explanation.
package output

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/code-tutor/tutor/internal/theme"
)

// LineKind tells output lines apart from errors.
type LineKind int

const (
	LineOutput LineKind = iota
	LineError
)

// Line is one line of a run's result.
type Line struct {
	Kind LineKind
	Text string
}

const (
	pulseWidth = 12
	pulseFPS   = 30
)

// Model holds the result of the current run.
type Model struct {
	Lines       []Line
	Notice      string
	Explanation string
	Running     bool
	Width       int
	Height      int

	rendered string
	spring   harmonica.Spring
	pos      float64
	vel      float64
	target   float64
}

func New() Model {
	return Model{
		spring: harmonica.NewSpring(harmonica.FPS(pulseFPS), 6.0, 0.4),
		target: 1,
	}
}

// Start clears the pane for a new run.
func (m *Model) Start() {
	m.Lines = nil
	m.Notice = ""
	m.Explanation = ""
	m.rendered = ""
	m.Running = true
	m.pos, m.vel, m.target = 0, 0, 1
}

func (m *Model) AppendOutput(line string) {
	m.Lines = append(m.Lines, Line{Kind: LineOutput, Text: line})
}

func (m *Model) AppendError(message string) {
	m.Lines = append(m.Lines, Line{Kind: LineError, Text: message})
	m.Running = false
}

// SetNotice shows a message that is not part of the run's result.
func (m *Model) SetNotice(notice string) {
	m.Notice = notice
}

// Waiting marks the pane as waiting for an explanation.
func (m *Model) Waiting() {
	m.Notice = ""
	m.Running = true
}

// SetExplanation renders markdown with glamour, falling back to the raw
// text if rendering fails.
func (m *Model) SetExplanation(md string) {
	m.Explanation = md
	m.Running = false
	m.rendered = md

	width := m.Width - 4
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return
	}
	if out, err := r.Render(md); err == nil {
		m.rendered = out
	}
}

// Text joins the output lines of the current run. Errors are left out; it
// is the prior output sent with an explain request.
func (m Model) Text() string {
	var texts []string
	for _, l := range m.Lines {
		if l.Kind == LineOutput {
			texts = append(texts, l.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// HasOutput reports whether the current run received at least one output
// line. Error lines do not count.
func (m Model) HasOutput() bool {
	for _, l := range m.Lines {
		if l.Kind == LineOutput {
			return true
		}
	}
	return false
}

// Tick advances the running pulse one frame.
func (m *Model) Tick() {
	if !m.Running {
		return
	}
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, m.target)
	if m.target == 1 && m.pos > 0.95 {
		m.target = 0
	} else if m.target == 0 && m.pos < 0.05 {
		m.target = 1
	}
}

func (m Model) pulse() string {
	n := int(m.pos*pulseWidth + 0.5)
	if n < 0 {
		n = 0
	}
	if n > pulseWidth {
		n = pulseWidth
	}
	bar := strings.Repeat("━", n) + strings.Repeat(" ", pulseWidth-n)
	return lipgloss.NewStyle().Foreground(theme.ColorPulse).Render("running " + bar)
}

// View renders the pane.
func (m Model) View() string {
	var lines []string
	for _, l := range m.Lines {
		switch l.Kind {
		case LineError:
			lines = append(lines, theme.StyleError.Render(l.Text))
		default:
			lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorOutput).Render(l.Text))
		}
	}
	if m.Running {
		lines = append(lines, m.pulse())
	}
	if m.Notice != "" {
		lines = append(lines, theme.StyleNotice.Render(m.Notice))
	}
	if m.rendered != "" {
		lines = append(lines, "", strings.TrimRight(m.rendered, "\n"))
	}
	if len(lines) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("ctrl+r to run your code"))
	}

	content := strings.Join(lines, "\n")
	if m.Height > 0 {
		all := strings.Split(content, "\n")
		if len(all) > m.Height {
			content = strings.Join(all[len(all)-m.Height:], "\n")
		}
	}
	return content
}
