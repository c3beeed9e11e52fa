package app

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/code-tutor/tutor/internal/protocol"
	"github.com/code-tutor/tutor/internal/session"
	"github.com/code-tutor/tutor/internal/theme"
	"github.com/code-tutor/tutor/internal/views/eventlog"
	"github.com/code-tutor/tutor/internal/views/output"
	"github.com/code-tutor/tutor/internal/views/status"
)

const (
	msgWaitForConnection = "Not connected to server. Please wait for connection..."
	msgNothingToExplain  = "No output to explain. Run some code first."
)

const pulseInterval = time.Second / 30

// Commander is the part of the session the UI drives.
type Commander interface {
	Execute(code string, lang protocol.Language)
	Explain(code, output string)
	Reconnect()
	Status() session.Status
}

type pulseMsg struct{}

// Model is the root Bubble Tea model.
type Model struct {
	cmd    Commander
	bridge *Bridge

	keys   KeyMap
	width  int
	height int

	editor    textarea.Model
	lang      protocol.Language
	output    output.Model
	statusBar status.Model
	log       eventlog.Model

	showLog bool
	pulsing bool
}

// New creates the root model.
func New(cmd Commander, bridge *Bridge, sessionID string) Model {
	ed := textarea.New()
	ed.Placeholder = "print(\"hello\")"
	ed.ShowLineNumbers = true
	ed.Focus()

	m := Model{
		cmd:       cmd,
		bridge:    bridge,
		keys:      DefaultKeyMap(),
		editor:    ed,
		lang:      protocol.Python,
		output:    output.New(),
		statusBar: status.New(sessionID),
		log:       eventlog.New(),
	}
	if cmd != nil {
		m.statusBar.Status = cmd.Status()
	}
	return m
}

// Init starts listening for session messages.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.bridge.Wait())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case OutputMsg:
		m.output.AppendOutput(msg.Line)
		m.log.Add(eventlog.KindOutput, msg.Line)
		return m, m.bridge.Wait()

	case ErrorMsg:
		if m.output.Running {
			m.output.AppendError(msg.Message)
		} else {
			m.output.SetNotice(msg.Message)
		}
		m.log.Add(eventlog.KindError, msg.Message)
		return m, m.bridge.Wait()

	case ExplanationMsg:
		m.output.SetExplanation(msg.Text)
		m.log.Add(eventlog.KindExplanation, fmt.Sprintf("%d bytes", len(msg.Text)))
		return m, m.bridge.Wait()

	case StatusMsg:
		m.statusBar.Status = msg.Status
		m.log.Add(eventlog.KindStatus, m.statusBar.Label())
		if msg.Status.State != session.Connected && m.output.Running {
			m.output.Running = false
		}
		return m, m.bridge.Wait()

	case pulseMsg:
		m.output.Tick()
		if !m.output.Running {
			m.pulsing = false
			return m, nil
		}
		return m, pulse()
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.bridge.Stop()
		return m, tea.Quit
	}

	if m.showLog {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Log):
			m.showLog = false
		case key.Matches(msg, m.keys.Up):
			m.log.Older(1)
		case key.Matches(msg, m.keys.Down):
			m.log.Newer(1)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Run):
		return m.run()

	case key.Matches(msg, m.keys.Explain):
		return m.explain()

	case key.Matches(msg, m.keys.Language):
		m.lang = nextLanguage(m.lang)
		m.statusBar.Language = m.lang
		return m, nil

	case key.Matches(msg, m.keys.Reconnect):
		m.log.Add(eventlog.KindCommand, "reconnect")
		c := m.cmd
		return m, func() tea.Msg { c.Reconnect(); return nil }

	case key.Matches(msg, m.keys.Log):
		m.showLog = true
		return m, nil
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m Model) run() (tea.Model, tea.Cmd) {
	if !m.cmd.Status().Connected() {
		m.output.SetNotice(msgWaitForConnection)
		return m, nil
	}

	code, lang := m.editor.Value(), m.lang
	m.output.Start()
	m.log.Add(eventlog.KindCommand, "execute "+string(lang))

	c := m.cmd
	return m, tea.Batch(
		func() tea.Msg { c.Execute(code, lang); return nil },
		m.startPulse(),
	)
}

func (m Model) explain() (tea.Model, tea.Cmd) {
	if !m.output.HasOutput() {
		m.output.SetNotice(msgNothingToExplain)
		return m, nil
	}
	if !m.cmd.Status().Connected() {
		m.output.SetNotice(msgWaitForConnection)
		return m, nil
	}

	code, prior := m.editor.Value(), m.output.Text()
	m.output.Waiting()
	m.log.Add(eventlog.KindCommand, "explain")

	c := m.cmd
	return m, tea.Batch(
		func() tea.Msg { c.Explain(code, prior); return nil },
		m.startPulse(),
	)
}

// startPulse starts the animation unless it is already ticking.
func (m *Model) startPulse() tea.Cmd {
	if m.pulsing {
		return nil
	}
	m.pulsing = true
	return pulse()
}

func pulse() tea.Cmd {
	return tea.Tick(pulseInterval, func(time.Time) tea.Msg { return pulseMsg{} })
}

func nextLanguage(l protocol.Language) protocol.Language {
	for i, lang := range protocol.Languages {
		if lang == l {
			return protocol.Languages[(i+1)%len(protocol.Languages)]
		}
	}
	return protocol.Languages[0]
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.statusBar.Width = width

	paneWidth := max(width-4, 20)
	editorHeight := max((height-8)/2, 3)
	m.editor.SetWidth(paneWidth)
	m.editor.SetHeight(editorHeight)
	m.output.Width = paneWidth
	m.output.Height = max(height-editorHeight-10, 3)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.showLog {
		return m.log.View(m.width, m.height)
	}

	editor := theme.StyleFocused.Render(m.editor.View())
	result := theme.StyleBorder.Width(max(m.width-4, 20)).Render(m.output.View())

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		editor,
		result,
		theme.StyleDimmed.Render("  "+m.keys.helpLine()),
	)
}
