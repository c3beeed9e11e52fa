package session

import (
	"fmt"

	"github.com/code-tutor/tutor/internal/metrics"
	"github.com/code-tutor/tutor/internal/protocol"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	msgNotConnected = "Not connected to server. Please wait for reconnection..."
	msgRateLimited  = "Too many requests. Please wait a moment and try again."
)

var errSendBufferFull = errors.New("send buffer full")

// Intent is an application request for the execution service.
type Intent interface {
	command() protocol.MessageType
	message() (protocol.Message, error)
}

// Execute asks the service to run Code. Output streams back through
// Handlers.OnOutput.
type Execute struct {
	Code     string
	Language protocol.Language
}

func (Execute) command() protocol.MessageType { return protocol.MsgExecute }

func (e Execute) message() (protocol.Message, error) {
	if !e.Language.Valid() {
		return protocol.Message{}, errors.Errorf("unsupported language %q", e.Language)
	}
	return protocol.New(protocol.MsgExecute, protocol.ExecutePayload{Code: e.Code, Language: e.Language})
}

// Explain asks for an explanation of Code and the output it produced.
// Callers must only send it once they have seen output for the current
// execution; the session does not track output.
type Explain struct {
	Code        string
	PriorOutput string
}

func (Explain) command() protocol.MessageType { return protocol.MsgExplain }

func (e Explain) message() (protocol.Message, error) {
	return protocol.New(protocol.MsgExplain, protocol.ExplainPayload{Code: e.Code, Output: e.PriorOutput})
}

// sender is the write side of the active connection.
type sender interface {
	enqueue(msg protocol.Message) error
}

// dispatcher gates intents on connection state and writes them. It never
// queues an intent for later; failures go to report.
type dispatcher struct {
	limiter *rate.Limiter
	report  func(message string)
}

func (d *dispatcher) dispatch(state State, out sender, intent Intent) {
	cmd := intent.command()

	if state != Connected || out == nil {
		d.reject(cmd, "not_connected", msgNotConnected)
		return
	}
	if d.limiter != nil && !d.limiter.Allow() {
		d.reject(cmd, "rate_limited", msgRateLimited)
		return
	}

	msg, err := intent.message()
	if err != nil {
		d.reject(cmd, "invalid", failureMessage(cmd, err))
		return
	}
	if err := out.enqueue(msg); err != nil {
		d.reject(cmd, "send_failed", failureMessage(cmd, err))
		return
	}
	metrics.Dispatches.WithLabelValues(string(cmd), "sent").Inc()
}

func (d *dispatcher) reject(cmd protocol.MessageType, result, message string) {
	metrics.Dispatches.WithLabelValues(string(cmd), result).Inc()
	d.report(message)
}

func failureMessage(cmd protocol.MessageType, err error) string {
	switch cmd {
	case protocol.MsgExecute:
		return fmt.Sprintf("Failed to execute code: %v", err)
	case protocol.MsgExplain:
		return fmt.Sprintf("Failed to request explanation: %v", err)
	default:
		return fmt.Sprintf("Failed to send %s: %v", cmd, err)
	}
}
