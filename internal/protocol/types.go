// Package protocol defines the wire messages exchanged with the execution
// service. Both the client session and the mock server use these types.
package protocol

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	// Outbound (client → service).
	MsgExecute MessageType = "execute"
	MsgExplain MessageType = "explain"

	// Inbound (service → client).
	MsgOutput      MessageType = "output"
	MsgError       MessageType = "error"
	MsgExplanation MessageType = "explanation"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Language is a language the execution service can run.
type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
)

// Languages lists every supported language in display order.
var Languages = []Language{Python, JavaScript}

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return l == Python || l == JavaScript
}

// ParseLanguage accepts a language name case-insensitively.
func ParseLanguage(s string) (Language, error) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	switch l {
	case "py":
		return Python, nil
	case "js", "node":
		return JavaScript, nil
	}
	if !l.Valid() {
		return "", errors.Errorf("unsupported language %q", s)
	}
	return l, nil
}

// ExecutePayload requests one execution. Output is streamed back as
// MsgOutput messages.
type ExecutePayload struct {
	Code     string   `json:"code"`
	Language Language `json:"language"`
}

// ExplainPayload requests an explanation of code and the output it produced.
type ExplainPayload struct {
	Code   string `json:"code"`
	Output string `json:"output"`
}

// New builds a message with payload marshalled as JSON.
func New(t MessageType, payload interface{}) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, errors.Wrapf(err, "encode %s payload", t)
	}
	return Message{Type: t, Payload: data}, nil
}

// Text decodes a string payload, as carried by output, error and
// explanation messages.
func (m Message) Text() (string, error) {
	var s string
	if err := json.Unmarshal(m.Payload, &s); err != nil {
		return "", errors.Wrapf(err, "decode %s payload", m.Type)
	}
	return s, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v interface{}) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return errors.Wrapf(err, "decode %s payload", m.Type)
	}
	return nil
}
