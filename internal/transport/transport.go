// Package transport provides the persistent connection used by a tutor
// session. The session depends only on the Dialer and Conn interfaces; the
// WebSocket implementation lives in ws.go.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/code-tutor/tutor/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Conn is one open connection to the execution service.
type Conn interface {
	// Receive blocks until the next message arrives. Once it returns an
	// error the connection is unusable; the error is a *CloseError.
	Receive() (protocol.Message, error)
	// Send writes one message. Safe to call concurrently with Receive.
	Send(msg protocol.Message) error
	// Close is idempotent.
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// CloseReason says why a connection stopped.
type CloseReason string

const (
	ReasonServerDisconnect CloseReason = "server disconnect"
	ReasonTransportClose   CloseReason = "transport close"
	ReasonPingTimeout      CloseReason = "ping timeout"
	ReasonClientDisconnect CloseReason = "client disconnect"
	ReasonTransportError   CloseReason = "transport error"
)

// Recoverable reports whether the session should reconnect right away.
func (r CloseReason) Recoverable() bool {
	return r == ReasonServerDisconnect || r == ReasonTransportClose
}

// CloseError is returned by Receive and Send when the connection is gone.
type CloseError struct {
	Reason CloseReason
	Err    error
}

func (e *CloseError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

// ReasonOf extracts the close reason from err. Errors that are not a
// *CloseError count as transport errors.
func ReasonOf(err error) CloseReason {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ReasonTransportError
}

// classify maps a read error to a close reason. closedLocally is true when
// Close was called on our side before the read failed.
func classify(err error, closedLocally bool) CloseReason {
	if closedLocally {
		return ReasonClientDisconnect
	}

	var wsClose *websocket.CloseError
	if errors.As(err, &wsClose) {
		// gorilla reports a dropped TCP stream as 1006.
		if wsClose.Code == websocket.CloseAbnormalClosure {
			return ReasonTransportClose
		}
		return ReasonServerDisconnect
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonPingTimeout
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return ReasonTransportClose
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ReasonTransportClose
	}

	return ReasonTransportError
}
