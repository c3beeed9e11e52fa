package session

import (
	"github.com/code-tutor/tutor/internal/protocol"
	"github.com/code-tutor/tutor/internal/transport"
)

// EventKind classifies inbound events.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventOutput
	EventRuntimeError
	EventExplanation
	EventOpened
	EventClosed
	EventTransportError
)

func (k EventKind) String() string {
	switch k {
	case EventOutput:
		return "output"
	case EventRuntimeError:
		return "error"
	case EventExplanation:
		return "explanation"
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// signal reports whether the event drives the lifecycle rather than an
// application handler.
func (k EventKind) signal() bool {
	return k == EventOpened || k == EventClosed || k == EventTransportError
}

// Event is one inbound occurrence, tagged with the generation of the
// connection that produced it.
type Event struct {
	Kind EventKind
	Gen  uint64
	// Text is the output line, error message, explanation, or transport
	// error message, depending on Kind.
	Text   string
	Reason transport.CloseReason // EventClosed only

	conn transport.Conn // EventOpened only
}

// eventFromMessage converts a wire message. Unknown types and payloads
// that are not strings become EventUnknown.
func eventFromMessage(gen uint64, msg protocol.Message) Event {
	var kind EventKind
	switch msg.Type {
	case protocol.MsgOutput:
		kind = EventOutput
	case protocol.MsgError:
		kind = EventRuntimeError
	case protocol.MsgExplanation:
		kind = EventExplanation
	default:
		return Event{Kind: EventUnknown, Gen: gen, Text: string(msg.Type)}
	}

	text, err := msg.Text()
	if err != nil {
		return Event{Kind: EventUnknown, Gen: gen, Text: string(msg.Type)}
	}
	return Event{Kind: kind, Gen: gen, Text: text}
}

// eventFromReadError turns the error that ended a connection's read loop
// into a lifecycle signal.
func eventFromReadError(gen uint64, err error) Event {
	reason := transport.ReasonOf(err)
	if reason == transport.ReasonTransportError {
		return Event{Kind: EventTransportError, Gen: gen, Text: err.Error()}
	}
	return Event{Kind: EventClosed, Gen: gen, Reason: reason, Text: err.Error()}
}
