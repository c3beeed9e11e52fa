package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/code-tutor/tutor/internal/backoff"
	"github.com/code-tutor/tutor/internal/protocol"
	"github.com/code-tutor/tutor/internal/transport"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

var testPolicy = backoff.Policy{
	Base:          time.Millisecond,
	MaxAttempts:   5,
	RecoveryDelay: time.Millisecond,
}

// fakeConn is a scripted transport connection.
type fakeConn struct {
	in      chan protocol.Message
	errs    chan error
	sent    chan protocol.Message
	closed  chan struct{}
	once    sync.Once
	sendErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan protocol.Message, 16),
		errs:   make(chan error, 1),
		sent:   make(chan protocol.Message, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Receive() (protocol.Message, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case err := <-c.errs:
		return protocol.Message{}, err
	case <-c.closed:
		return protocol.Message{}, &transport.CloseError{Reason: transport.ReasonClientDisconnect}
	}
}

func (c *fakeConn) Send(msg protocol.Message) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	select {
	case c.sent <- msg:
		return nil
	case <-c.closed:
		return &transport.CloseError{Reason: transport.ReasonClientDisconnect}
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// closeWith ends the read loop with a reason, as the peer would.
func (c *fakeConn) closeWith(reason transport.CloseReason) {
	c.errs <- &transport.CloseError{Reason: reason, Err: errors.New(string(reason))}
}

func (c *fakeConn) push(t *testing.T, typ protocol.MessageType, text string) {
	t.Helper()
	msg, err := protocol.New(typ, text)
	require.NoError(t, err)
	c.in <- msg
}

type dialResult struct {
	conn transport.Conn
	err  error
}

// fakeDialer hands out scripted results in order. With fallback set, it
// returns fallback once the script runs out instead of blocking.
type fakeDialer struct {
	results   chan dialResult
	fallback  error
	ignoreCtx bool
	dials     atomic.Int32
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{results: make(chan dialResult, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context) (transport.Conn, error) {
	d.dials.Add(1)
	if d.fallback != nil {
		select {
		case r := <-d.results:
			return r.conn, r.err
		default:
			return nil, d.fallback
		}
	}
	if d.ignoreCtx {
		r := <-d.results
		return r.conn, r.err
	}
	select {
	case r := <-d.results:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) open() *fakeConn {
	c := newFakeConn()
	d.results <- dialResult{conn: c}
	return c
}

func (d *fakeDialer) fail(msg string) {
	d.results <- dialResult{err: errors.New(msg)}
}

// recorder captures handler calls in arrival order.
type recorder struct {
	mu       sync.Mutex
	events   []string
	errs     []string
	statuses []Status
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnOutput: func(line string) { r.add("output:"+line) },
		OnError: func(msg string) {
			r.add("error:"+msg)
			r.mu.Lock()
			r.errs = append(r.errs, msg)
			r.mu.Unlock()
		},
		OnExplanation: func(text string) { r.add("explanation:"+text) },
		OnStatus: func(st Status) {
			r.mu.Lock()
			r.statuses = append(r.statuses, st)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errs...)
}

func (r *recorder) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *recorder) hasError(prefix string) bool {
	for _, e := range r.Errors() {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}

func (r *recorder) sawStatus(want Status) bool {
	for _, st := range r.Statuses() {
		if st == want {
			return true
		}
	}
	return false
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, waitFor, time.Millisecond,
		"state = %s, want %s", s.State(), want)
}

func startTest(t *testing.T, d transport.Dialer, rec *recorder, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithBackoff(testPolicy)}, opts...)
	s := Start(d, rec.handlers(), opts...)
	t.Cleanup(func() { s.Close() })
	return s
}

func receiveSent(t *testing.T, c *fakeConn) protocol.Message {
	t.Helper()
	select {
	case msg := <-c.sent:
		return msg
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for sent message")
		return protocol.Message{}
	}
}
