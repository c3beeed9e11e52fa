package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/code-tutor/tutor/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	defaultDialTimeout  = 20 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultPongTimeout  = 60 * time.Second
	defaultPingInterval = 25 * time.Second

	closeTimeout = time.Second
)

// ClientHeader carries the session id on the upgrade request.
const ClientHeader = "X-Tutor-Client"

// Options configures the WebSocket dialer.
type Options struct {
	URL          string
	Header       http.Header
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	PingInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = defaultPongTimeout
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongTimeout {
		o.PingInterval = o.PongTimeout * 9 / 10
	}
}

// WSDialer opens WebSocket connections to the execution service.
type WSDialer struct {
	opts   Options
	dialer *websocket.Dialer
}

// NewWSDialer creates a dialer for opts.URL. Zero durations get defaults.
func NewWSDialer(opts Options) *WSDialer {
	opts.applyDefaults()
	return &WSDialer{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.DialTimeout,
		},
	}
}

// Dial connects and starts the keepalive ping loop.
func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.DialTimeout)
	defer cancel()

	conn, resp, err := d.dialer.DialContext(ctx, d.opts.URL, d.opts.Header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s: status %d", d.opts.URL, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", d.opts.URL)
	}
	return newWSConn(conn, d.opts), nil
}

type wsConn struct {
	conn *websocket.Conn
	opts Options

	writeMu   sync.Mutex // serialises data frames; control frames use WriteControl
	closed    atomic.Bool
	closeOnce sync.Once
	stopPing  chan struct{}
}

func newWSConn(conn *websocket.Conn, opts Options) *wsConn {
	c := &wsConn{
		conn:     conn,
		opts:     opts,
		stopPing: make(chan struct{}),
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))

	go c.pingLoop()
	return c
}

func (c *wsConn) Receive() (protocol.Message, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return protocol.Message{}, &CloseError{Reason: classify(err, c.closed.Load()), Err: err}
		}
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			continue
		}
		return msg, nil
	}
}

func (c *wsConn) Send(msg protocol.Message) error {
	if c.closed.Load() {
		return &CloseError{Reason: ReasonClientDisconnect}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		return &CloseError{Reason: ReasonTransportError, Err: errors.Wrapf(err, "write %s", msg.Type)}
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopPing)

		// Best effort; the peer may already be gone.
		deadline := time.Now().Add(closeTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}

// pingLoop sends periodic pings until the connection is closed or a ping
// fails.
func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopPing:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
