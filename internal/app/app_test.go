package app

import (
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/code-tutor/tutor/internal/protocol"
	"github.com/code-tutor/tutor/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommander struct {
	mu         sync.Mutex
	status     session.Status
	executed   []protocol.ExecutePayload
	explained  []protocol.ExplainPayload
	reconnects int
}

func (f *fakeCommander) Execute(code string, lang protocol.Language) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, protocol.ExecutePayload{Code: code, Language: lang})
}

func (f *fakeCommander) Explain(code, output string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.explained = append(f.explained, protocol.ExplainPayload{Code: code, Output: output})
}

func (f *fakeCommander) Reconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
}

func (f *fakeCommander) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func newTestModel(connected bool) (Model, *fakeCommander) {
	fc := &fakeCommander{}
	if connected {
		fc.status = session.Status{State: session.Connected}
	}
	m := New(fc, NewBridge(8), "0123456789abcdef")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model), fc
}

func press(t *testing.T, m Model, k tea.KeyType) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

// runCmd executes cmd and any batched commands, skipping animation ticks.
func runCmd(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, c := range batch {
				runCmd(c)
			}
		}
	case <-time.After(time.Second):
	}
}

func TestRunRefusedWhileDisconnected(t *testing.T) {
	m, fc := newTestModel(false)
	m.editor.SetValue("print(1)")

	m, cmd := press(t, m, tea.KeyCtrlR)
	runCmd(cmd)

	assert.Empty(t, fc.executed)
	assert.Equal(t, msgWaitForConnection, m.output.Notice)
}

func TestRunExecutes(t *testing.T) {
	m, fc := newTestModel(true)
	m.editor.SetValue("print(1)")

	m, cmd := press(t, m, tea.KeyCtrlR)
	runCmd(cmd)

	require.Len(t, fc.executed, 1)
	assert.Equal(t, protocol.ExecutePayload{Code: "print(1)", Language: protocol.Python}, fc.executed[0])
	assert.True(t, m.output.Running)
}

func TestExplainWithoutOutputRefused(t *testing.T) {
	m, fc := newTestModel(true)
	m.editor.SetValue("print(1)")

	m, cmd := press(t, m, tea.KeyCtrlE)
	runCmd(cmd)

	assert.Empty(t, fc.explained)
	assert.Equal(t, msgNothingToExplain, m.output.Notice)
}

func TestExplainSendsPriorOutput(t *testing.T) {
	m, fc := newTestModel(true)
	m.editor.SetValue("print(1)")

	m, _ = press(t, m, tea.KeyCtrlR)
	next, _ := m.Update(OutputMsg{Line: "1"})
	m = next.(Model)

	m, cmd := press(t, m, tea.KeyCtrlE)
	runCmd(cmd)

	require.Len(t, fc.explained, 1)
	assert.Equal(t, protocol.ExplainPayload{Code: "print(1)", Output: "1"}, fc.explained[0])
}

func TestExplainRefusedWhileDisconnected(t *testing.T) {
	m, fc := newTestModel(true)
	m, _ = press(t, m, tea.KeyCtrlR)
	next, _ := m.Update(OutputMsg{Line: "1"})
	m = next.(Model)

	fc.mu.Lock()
	fc.status = session.Status{State: session.Reconnecting, Attempt: 1, RetryIn: 2 * time.Second}
	fc.mu.Unlock()

	m, cmd := press(t, m, tea.KeyCtrlE)
	runCmd(cmd)
	assert.Empty(t, fc.explained)
	assert.Equal(t, msgWaitForConnection, m.output.Notice)
}

func TestSessionMessages(t *testing.T) {
	m, _ := newTestModel(true)
	m.output.Start()

	for _, msg := range []tea.Msg{
		OutputMsg{Line: "a"},
		ErrorMsg{Message: "NameError: x"},
		StatusMsg{Status: session.Status{State: session.Reconnecting, Attempt: 1, RetryIn: 2 * time.Second}},
	} {
		next, cmd := m.Update(msg)
		m = next.(Model)
		assert.NotNil(t, cmd, "session messages keep listening")
	}

	assert.Equal(t, "a", m.output.Text())
	assert.Equal(t, session.Reconnecting, m.statusBar.Status.State)
	assert.Equal(t, 3, m.log.Len())
	assert.Contains(t, m.View(), "Reconnecting in 2s (attempt 1)")
}

func TestExplainRefusedAfterOnlyError(t *testing.T) {
	m, fc := newTestModel(true)
	m.editor.SetValue("raise ValueError('x')")
	m, cmd := press(t, m, tea.KeyCtrlR)
	runCmd(cmd)
	require.True(t, m.output.Running)

	next, _ := m.Update(ErrorMsg{Message: "Connection error: dial refused"})
	m = next.(Model)

	m, cmd = press(t, m, tea.KeyCtrlE)
	runCmd(cmd)
	assert.Empty(t, fc.explained)
	assert.Equal(t, msgNothingToExplain, m.output.Notice)
}

func TestErrorOutsideRunIsNotice(t *testing.T) {
	m, _ := newTestModel(true)
	next, _ := m.Update(ErrorMsg{Message: "Connection error: refused"})
	m = next.(Model)

	assert.False(t, m.output.HasOutput())
	assert.Equal(t, "Connection error: refused", m.output.Notice)
}

func TestLanguageToggle(t *testing.T) {
	m, fc := newTestModel(true)
	m, _ = press(t, m, tea.KeyCtrlL)
	assert.Equal(t, protocol.JavaScript, m.lang)
	assert.Equal(t, protocol.JavaScript, m.statusBar.Language)

	m.editor.SetValue("console.log(1)")
	m, cmd := press(t, m, tea.KeyCtrlR)
	runCmd(cmd)
	require.Len(t, fc.executed, 1)
	assert.Equal(t, protocol.JavaScript, fc.executed[0].Language)

	m, _ = press(t, m, tea.KeyCtrlL)
	assert.Equal(t, protocol.Python, m.lang)
}

func TestReconnectKey(t *testing.T) {
	m, fc := newTestModel(false)
	_, cmd := press(t, m, tea.KeyCtrlN)
	runCmd(cmd)
	assert.Equal(t, 1, fc.reconnects)
}

func TestLogOverlay(t *testing.T) {
	m, _ := newTestModel(true)
	m, _ = press(t, m, tea.KeyCtrlD)
	require.True(t, m.showLog)
	assert.True(t, strings.Contains(m.View(), "EVENT LOG"))

	m, _ = press(t, m, tea.KeyEsc)
	assert.False(t, m.showLog)
}

func TestQuitStopsBridge(t *testing.T) {
	m, _ := newTestModel(true)
	_, cmd := press(t, m, tea.KeyCtrlC)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	select {
	case <-m.bridge.done:
	default:
		t.Fatal("bridge not stopped")
	}
}

func TestBridgeDeliversHandlerCalls(t *testing.T) {
	b := NewBridge(4)
	h := b.Handlers()
	h.OnOutput("x")
	h.OnStatus(session.Status{State: session.Connected})

	assert.Equal(t, OutputMsg{Line: "x"}, b.Wait()())
	assert.Equal(t, StatusMsg{Status: session.Status{State: session.Connected}}, b.Wait()())

	b.Stop()
	assert.Nil(t, b.Wait()())
	h.OnError("dropped")
}

func TestViewInitializing(t *testing.T) {
	m := New(&fakeCommander{}, NewBridge(1), "")
	assert.Equal(t, "Initializing...", m.View())
}
