// Package messages defines the JSON text frames exchanged with clients over
// a session connection.
package messages

import (
	"encoding/json"
	"fmt"

	"github.com/cbodonnell/gametable/pkg/patch"
)

// Server → client message types
const (
	MessageTypeWelcome    = "welcome"
	MessageTypeLegalMoves = "legalMoves"
	MessageTypeInfo       = "info"
	MessageTypeEvent      = "event"
	MessageTypePing       = "ping"
	MessageTypeError      = "error"
)

// Client → server message types (besides verb submissions)
const (
	MessageTypePong     = "pong"
	MessageTypeSnapshot = "snapshot"
)

// Welcome carries the bundle metadata and a full state snapshot. It is sent
// once per connection at game start, and again on an explicit snapshot
// request.
type Welcome struct {
	Type         string          `json:"type"`
	BundleMeta   BundleMeta      `json:"bundleMeta"`
	InitialState json.RawMessage `json:"initialState"`
}

// BundleMeta is the client-facing description of a game bundle.
type BundleMeta struct {
	Cards map[string]interface{} `json:"cards"`
	Verbs map[string]VerbMeta    `json:"verbs"`
}

type VerbMeta struct {
	UI *VerbUI `json:"ui,omitempty"`
}

type VerbUI struct {
	Prompt       string            `json:"prompt,omitempty"`
	ParamPrompts map[string]string `json:"paramPrompts,omitempty"`
}

// LegalMoves declares the verbs a client may submit and their parameter
// shapes. Sent alongside Welcome.
type LegalMoves struct {
	Type  string      `json:"type"`
	Verbs []LegalVerb `json:"verbs"`
}

type LegalVerb struct {
	Verb   string            `json:"verb"`
	Params map[string]string `json:"params"`
}

// Info is a non-error notice, e.g. while the session is waiting for players.
type Info struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Event announces an accepted verb and the resulting diff to every
// connection. T is the session's event sequence number.
type Event struct {
	Type string     `json:"type"`
	T    int64      `json:"t"`
	Verb string     `json:"verb"`
	Diff patch.Diff `json:"diff"`
}

// Ping is the application-level keepalive probe.
type Ping struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorMessage reports a rejection or protocol violation to one connection.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientCommand is the single inbound message shape: either a verb
// submission ({verb, args}) or a typed control message such as pong or a
// snapshot request.
type ClientCommand struct {
	Type string                 `json:"type,omitempty"`
	Verb string                 `json:"verb,omitempty"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// DecodeClientCommand parses an inbound text frame. Malformed payloads
// return an error; callers log and ignore them rather than failing the
// connection.
func DecodeClientCommand(data []byte) (*ClientCommand, error) {
	cmd := &ClientCommand{}
	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, fmt.Errorf("failed to decode client command: %v", err)
	}
	return cmd, nil
}

// NewWelcome builds a welcome frame from bundle metadata and an encoded
// snapshot.
func NewWelcome(meta BundleMeta, snapshot []byte) *Welcome {
	return &Welcome{
		Type:         MessageTypeWelcome,
		BundleMeta:   meta,
		InitialState: snapshot,
	}
}

// NewLegalMoves builds a legalMoves frame.
func NewLegalMoves(verbs []LegalVerb) *LegalMoves {
	return &LegalMoves{
		Type:  MessageTypeLegalMoves,
		Verbs: verbs,
	}
}

// NewInfo builds an info frame.
func NewInfo(message string) *Info {
	return &Info{
		Type:    MessageTypeInfo,
		Message: message,
	}
}

// NewEvent builds an event frame.
func NewEvent(t int64, verb string, diff patch.Diff) *Event {
	return &Event{
		Type: MessageTypeEvent,
		T:    t,
		Verb: verb,
		Diff: diff,
	}
}

// NewPing builds an application ping frame.
func NewPing(timestamp int64) *Ping {
	return &Ping{
		Type:      MessageTypePing,
		Timestamp: timestamp,
	}
}

// NewError builds an error frame.
func NewError(message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MessageTypeError,
		Message: message,
	}
}
