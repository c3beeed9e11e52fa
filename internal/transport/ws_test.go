package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/code-tutor/tutor/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestWS starts a test HTTP server that upgrades to WebSocket and hands
// every server-side connection to the returned channel.
func startTestWS(t *testing.T) (*httptest.Server, <-chan *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))
	t.Cleanup(srv.Close)
	return srv, connCh
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server, connCh <-chan *websocket.Conn) (Conn, *websocket.Conn) {
	t.Helper()

	d := NewWSDialer(Options{URL: wsURL(srv), DialTimeout: 2 * time.Second})
	c, err := d.Dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	select {
	case serverConn := <-connCh:
		t.Cleanup(func() { serverConn.Close() })
		return c, serverConn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil
	}
}

func TestSendReceive(t *testing.T) {
	srv, connCh := startTestWS(t)
	c, server := dial(t, srv, connCh)

	msg, err := protocol.New(protocol.MsgExecute, protocol.ExecutePayload{Code: "print(1)", Language: protocol.Python})
	require.NoError(t, err)
	require.NoError(t, c.Send(msg))

	var got protocol.Message
	require.NoError(t, server.ReadJSON(&got))
	assert.Equal(t, protocol.MsgExecute, got.Type)

	var p protocol.ExecutePayload
	require.NoError(t, got.Decode(&p))
	assert.Equal(t, "print(1)", p.Code)
	assert.Equal(t, protocol.Python, p.Language)

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"type":"output","payload":"1"}`)))

	in, err := c.Receive()
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgOutput, in.Type, "garbage frames are skipped")
	text, err := in.Text()
	require.NoError(t, err)
	assert.Equal(t, "1", text)
}

func TestReceiveServerClose(t *testing.T) {
	srv, connCh := startTestWS(t)
	c, server := dial(t, srv, connCh)

	require.NoError(t, server.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart")))

	_, err := c.Receive()
	require.Error(t, err)
	assert.Equal(t, ReasonServerDisconnect, ReasonOf(err))
	assert.True(t, ReasonOf(err).Recoverable())
}

func TestReceiveAbruptClose(t *testing.T) {
	srv, connCh := startTestWS(t)
	c, server := dial(t, srv, connCh)

	// Drop the TCP stream without a close frame.
	require.NoError(t, server.UnderlyingConn().Close())

	_, err := c.Receive()
	require.Error(t, err)
	assert.Equal(t, ReasonTransportClose, ReasonOf(err))
	assert.True(t, ReasonOf(err).Recoverable())
}

func TestReceiveAfterLocalClose(t *testing.T) {
	srv, connCh := startTestWS(t)
	c, _ := dial(t, srv, connCh)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Receive()
		errCh <- err
	}()

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close(), "second Close is a no-op")

	select {
	case err := <-errCh:
		assert.Equal(t, ReasonClientDisconnect, ReasonOf(err))
		assert.False(t, ReasonOf(err).Recoverable())
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Close")
	}

	err := c.Send(protocol.Message{Type: protocol.MsgExecute})
	assert.Equal(t, ReasonClientDisconnect, ReasonOf(err))
}

func TestPongTimeout(t *testing.T) {
	srv, connCh := startTestWS(t)

	// The server side never reads, so pings go unanswered.
	d := NewWSDialer(Options{
		URL:         wsURL(srv),
		PongTimeout: 100 * time.Millisecond,
	})
	c, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer c.Close()
	server := <-connCh
	defer server.Close()

	_, err = c.Receive()
	assert.Equal(t, ReasonPingTimeout, ReasonOf(err))
}

func TestDialRefused(t *testing.T) {
	srv, _ := startTestWS(t)
	url := wsURL(srv)
	srv.Close()

	d := NewWSDialer(Options{URL: url, DialTimeout: time.Second})
	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial ")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		local bool
		want  CloseReason
	}{
		{"local close wins", io.EOF, true, ReasonClientDisconnect},
		{"normal close frame", &websocket.CloseError{Code: websocket.CloseNormalClosure}, false, ReasonServerDisconnect},
		{"abnormal closure", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, false, ReasonTransportClose},
		{"eof", io.EOF, false, ReasonTransportClose},
		{"protocol error", errors.New("websocket: bad opcode 7"), false, ReasonTransportError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err, tt.local); got != tt.want {
				t.Errorf("classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReasonOfPlainError(t *testing.T) {
	assert.Equal(t, ReasonTransportError, ReasonOf(errors.New("boom")))
	wrapped := &CloseError{Reason: ReasonPingTimeout}
	assert.Equal(t, "ping timeout", wrapped.Error())
}
