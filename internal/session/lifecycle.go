// Package session keeps one long-lived connection to the execution service:
// it connects, retries with backoff, routes inbound events to handlers and
// gates outbound commands on the connection state.
//
// All session state is owned by a single loop goroutine. Transport reads,
// dial results, timer expiries, dispatches and teardown are posted to its
// mailbox and applied in order. Handlers run on a separate goroutine.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/code-tutor/tutor/internal/backoff"
	"github.com/code-tutor/tutor/internal/logger"
	"github.com/code-tutor/tutor/internal/metrics"
	"github.com/code-tutor/tutor/internal/protocol"
	"github.com/code-tutor/tutor/internal/transport"
)

const (
	msgConnectionError = "Connection error: "
	msgMaxAttempts     = "Maximum reconnection attempts reached. Please restart the session to reconnect."
)

// Session is a client session with the execution service.
type Session struct {
	id         string
	dialer     transport.Dialer
	handlers   Handlers
	policy     backoff.Policy
	log        *slog.Logger
	sendBuffer int

	router     *Router
	dispatcher *dispatcher
	delivery   *deliveryQueue

	mailbox chan func()
	mailMu  sync.RWMutex // held exclusively only while marking closed
	closed  atomic.Bool
	done    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the loop goroutine.
	state      State
	attempt    int
	gen        uint64
	link       *link
	cancelDial context.CancelFunc
	timer      *time.Timer
	timerGen   uint64
	stopped    bool

	snapMu sync.Mutex
	snap   Status
}

// Start creates a session and begins connecting through d.
func Start(d transport.Dialer, h Handlers, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Slog()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         o.id,
		dialer:     d,
		handlers:   h,
		policy:     o.policy,
		log:        o.log.With("session_id", o.id),
		sendBuffer: o.sendBuffer,
		delivery:   newDeliveryQueue(),
		mailbox:    make(chan func(), 64),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.router = newRouter(h, s, s.delivery.push, s.log)
	s.dispatcher = &dispatcher{limiter: o.limiter, report: s.reportError}

	go s.delivery.run(&s.closed)
	go s.loop()
	s.post(s.connect)
	return s
}

// ID returns the session id used in logs, metrics and the upgrade header.
func (s *Session) ID() string { return s.id }

// Status returns the most recent status.
func (s *Session) Status() Status {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.snap
}

// State is shorthand for Status().State.
func (s *Session) State() State { return s.Status().State }

// Dispatch forwards intent if the session is connected and reports
// failures through Handlers.OnError. It returns once the intent has been
// accepted or rejected; it never waits for the network. After Close it is
// a no-op.
func (s *Session) Dispatch(intent Intent) {
	handled := make(chan struct{})
	ok := s.post(func() {
		defer close(handled)
		if s.closed.Load() {
			return
		}
		s.dispatcher.dispatch(s.state, s.sender(), intent)
	})
	if ok {
		<-handled
	}
}

// Execute dispatches an Execute intent.
func (s *Session) Execute(code string, lang protocol.Language) {
	s.Dispatch(Execute{Code: code, Language: lang})
}

// Explain dispatches an Explain intent.
func (s *Session) Explain(code, output string) {
	s.Dispatch(Explain{Code: code, PriorOutput: output})
}

// Reconnect starts a new attempt after a passive disconnect. It is ignored
// in every other state.
func (s *Session) Reconnect() {
	s.post(func() {
		if s.closed.Load() || s.state != Disconnected {
			return
		}
		s.connect()
	})
}

// Close tears the session down and closes the connection. Once it returns
// no state changes and no further handler starts; a handler already running
// may still be finishing. Calling it again has no effect.
func (s *Session) Close() error {
	s.mailMu.Lock()
	if s.closed.Load() {
		s.mailMu.Unlock()
		<-s.done
		return nil
	}
	s.closed.Store(true)
	s.mailMu.Unlock()

	// Everything posted before closed was set is ahead of teardown.
	s.mailbox <- s.teardown
	<-s.done
	return nil
}

// post hands fn to the loop. It reports false once the session is closed.
// Must not be called from the loop goroutine.
func (s *Session) post(fn func()) bool {
	s.mailMu.RLock()
	defer s.mailMu.RUnlock()
	if s.closed.Load() {
		return false
	}
	s.mailbox <- fn
	return true
}

func (s *Session) loop() {
	defer close(s.done)
	for fn := range s.mailbox {
		fn()
		if s.stopped {
			return
		}
	}
}

func (s *Session) teardown() {
	s.stopTimer()
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	s.cancel()
	// Close waits for the connection to be shut.
	if l := s.detachLink(); l != nil {
		l.close()
	}

	s.state = Disconnected
	s.snapMu.Lock()
	s.snap = Status{State: Disconnected, Attempt: s.attempt}
	s.snapMu.Unlock()
	metrics.SessionState.DeleteLabelValues(s.id)

	s.delivery.stop()
	s.stopped = true
	s.log.Info("session closed", "gen", s.gen)
}

// connect starts a dial for a fresh connection generation.
func (s *Session) connect() {
	if s.closed.Load() {
		return
	}
	if s.policy.Exhausted(s.attempt) {
		s.fail()
		return
	}

	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelDial = cancel
	s.setState(Connecting, 0)

	go func() {
		conn, err := s.dialer.Dial(ctx)
		if err != nil {
			metrics.ConnectAttempts.WithLabelValues("error").Inc()
			s.post(func() { s.onEvent(Event{Kind: EventTransportError, Gen: gen, Text: err.Error()}) })
			return
		}
		metrics.ConnectAttempts.WithLabelValues("ok").Inc()
		if !s.post(func() { s.onEvent(Event{Kind: EventOpened, Gen: gen, conn: conn}) }) {
			conn.Close()
		}
	}()
}

// onEvent filters events from replaced connections, then routes.
func (s *Session) onEvent(ev Event) {
	stale := s.closed.Load() || ev.Gen != s.gen || (!ev.Kind.signal() && s.state != Connected)
	if stale {
		if ev.conn != nil {
			ev.conn.Close()
		}
		if !s.closed.Load() {
			metrics.StaleEvents.Inc()
			s.log.Debug("dropping stale event", "kind", ev.Kind, "event_gen", ev.Gen, "gen", s.gen)
		}
		return
	}
	s.router.Route(ev)
}

func (s *Session) handleSignal(ev Event) {
	switch ev.Kind {
	case EventOpened:
		s.onOpened(ev.conn)
	case EventTransportError:
		s.onTransportError(ev.Text)
	case EventClosed:
		s.onClosed(ev.Reason)
	}
}

func (s *Session) onOpened(conn transport.Conn) {
	if s.state != Connecting {
		conn.Close()
		return
	}
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	s.link = newLink(s, conn, s.gen, s.sendBuffer)
	s.attempt = 0
	s.setState(Connected, 0)
}

func (s *Session) onTransportError(message string) {
	switch s.state {
	case Connecting:
		if s.cancelDial != nil {
			s.cancelDial()
			s.cancelDial = nil
		}
	case Connected:
		metrics.Disconnects.WithLabelValues(string(transport.ReasonTransportError)).Inc()
		s.dropLink()
	default:
		return
	}

	s.attempt++
	s.log.Warn("connection error", "err", message, "attempt", s.attempt, "gen", s.gen)
	s.reportError(msgConnectionError + message)

	if s.policy.Exhausted(s.attempt) {
		s.fail()
		return
	}
	delay := s.policy.Delay(s.attempt)
	s.setState(Reconnecting, delay)
	s.scheduleRetry(delay)
}

func (s *Session) onClosed(reason transport.CloseReason) {
	if s.state != Connected {
		return
	}
	metrics.Disconnects.WithLabelValues(string(reason)).Inc()
	s.dropLink()
	s.log.Info("disconnected", "reason", reason, "gen", s.gen)

	if reason.Recoverable() {
		delay := s.policy.Recovery()
		s.setState(Reconnecting, delay)
		s.scheduleRetry(delay)
		return
	}
	s.setState(Disconnected, 0)
}

func (s *Session) onSendFailed(gen uint64, cmd protocol.MessageType, err error) {
	if s.closed.Load() || gen != s.gen || s.state != Connected {
		return
	}
	metrics.Dispatches.WithLabelValues(string(cmd), "send_failed").Inc()
	s.reportError(failureMessage(cmd, err))
	s.router.Route(Event{Kind: EventTransportError, Gen: gen, Text: err.Error()})
}

func (s *Session) fail() {
	s.setState(Failed, 0)
	s.log.Error("giving up", "attempt", s.attempt)
	s.reportError(msgMaxAttempts)
}

func (s *Session) scheduleRetry(delay time.Duration) {
	s.stopTimer()
	tg := s.timerGen
	s.timer = time.AfterFunc(delay, func() {
		s.post(func() { s.onRetry(tg) })
	})
}

func (s *Session) onRetry(tg uint64) {
	if s.closed.Load() || tg != s.timerGen || s.state != Reconnecting {
		return
	}
	s.timer = nil
	s.connect()
}

// stopTimer cancels the pending retry and invalidates any expiry already in
// flight.
func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Session) sender() sender {
	if s.link == nil {
		return nil
	}
	return s.link
}

// detachLink clears the current link and returns it, or nil.
func (s *Session) detachLink() *link {
	l := s.link
	s.link = nil
	return l
}

// dropLink detaches the current link and closes it off the loop, since a
// close frame to a stalled peer can block for the transport's close timeout.
func (s *Session) dropLink() {
	if l := s.detachLink(); l != nil {
		go l.close()
	}
}

func (s *Session) setState(st State, retryIn time.Duration) {
	s.state = st
	status := Status{State: st, Attempt: s.attempt, RetryIn: retryIn}

	s.snapMu.Lock()
	s.snap = status
	s.snapMu.Unlock()

	metrics.SessionState.WithLabelValues(s.id).Set(float64(st))
	s.log.Info("session state", "state", st, "attempt", s.attempt, "gen", s.gen, "retry_in", retryIn)

	if fn := s.handlers.OnStatus; fn != nil {
		s.delivery.push(func() { fn(status) })
	}
}

func (s *Session) reportError(message string) {
	if fn := s.handlers.OnError; fn != nil {
		s.delivery.push(func() { fn(message) })
	}
}
