package session

import (
	"fmt"
	"time"
)

// State is the connection state of a Session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is reported to Handlers.OnStatus on every transition.
type Status struct {
	State   State
	Attempt int
	// RetryIn is the delay before the next attempt; set only while
	// Reconnecting.
	RetryIn time.Duration
}

// Connected reports whether commands can be dispatched.
func (s Status) Connected() bool {
	return s.State == Connected
}
