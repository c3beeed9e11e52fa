package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/code-tutor/tutor/internal/session"
)

// --- Bubble Tea messages ---

// OutputMsg carries one line of program output.
type OutputMsg struct{ Line string }

// ErrorMsg carries a runtime error or a session error message.
type ErrorMsg struct{ Message string }

// ExplanationMsg carries a markdown explanation.
type ExplanationMsg struct{ Text string }

// StatusMsg reports a connection state change.
type StatusMsg struct{ Status session.Status }

// Bridge turns session callbacks into Bubble Tea messages. The program
// pulls them one at a time with Wait.
type Bridge struct {
	ch       chan tea.Msg
	done     chan struct{}
	stopOnce sync.Once
}

func NewBridge(buffer int) *Bridge {
	return &Bridge{
		ch:   make(chan tea.Msg, buffer),
		done: make(chan struct{}),
	}
}

// Handlers returns the session handler table feeding this bridge.
func (b *Bridge) Handlers() session.Handlers {
	return session.Handlers{
		OnOutput:      func(line string) { b.send(OutputMsg{Line: line}) },
		OnError:       func(msg string) { b.send(ErrorMsg{Message: msg}) },
		OnExplanation: func(text string) { b.send(ExplanationMsg{Text: text}) },
		OnStatus:      func(st session.Status) { b.send(StatusMsg{Status: st}) },
	}
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case b.ch <- msg:
	case <-b.done:
	}
}

// Wait returns a command that blocks until the next session message.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.ch:
			return msg
		case <-b.done:
			return nil
		}
	}
}

// Stop releases any sender or waiter.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}
