// Package frame turns the primary output of a Claude work unit into discrete
// structured messages.
//
// The subprocess form writes newline-delimited JSON in arbitrary chunks; a
// Decoder reassembles complete lines and classifies each one. The native
// streaming form already hands over whole messages, which go through
// Passthrough without any line splitting. Both produce the same Message type.
package frame

import (
	"bytes"
	"encoding/json"

	"github.com/randalmurphal/claudebridge/claudecontract"
)

// Kind is the structural type of a message envelope.
type Kind string

// Message kinds.
const (
	KindSystemInit  Kind = "system-init"
	KindSystem      Kind = "system"
	KindAssistant   Kind = "assistant"
	KindUser        Kind = "user"
	KindResult      Kind = "result"
	KindError       Kind = "error"
	KindRawUnparsed Kind = "raw-unparsed"
	KindOther       Kind = "other"
)

// Message is one decoded unit of output.
type Message struct {
	Kind      Kind
	Type      string
	Subtype   string
	SessionID string

	// Raw is the original JSON object. Nil for raw-unparsed and error kinds.
	Raw json.RawMessage

	// Text holds the unparsed line (raw-unparsed) or diagnostic text (error).
	Text string
}

// HasSessionID reports whether the message carries a session identifier.
func (m Message) HasSessionID() bool {
	return m.SessionID != ""
}

// Diagnostic builds an error-kind message from free text, e.g. a stderr line.
func Diagnostic(text string) Message {
	return Message{Kind: KindError, Text: text}
}

// Classify decodes one complete line. It never fails: anything that is not a
// JSON object becomes a raw-unparsed message.
func Classify(line []byte) Message {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{Kind: KindRawUnparsed, Text: string(line)}
	}

	var head struct {
		Type      string `json:"type"`
		Subtype   string `json:"subtype"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return Message{Kind: KindRawUnparsed, Text: string(line)}
	}

	raw := make(json.RawMessage, len(line))
	copy(raw, line)

	return Message{
		Kind:      kindOf(head.Type, head.Subtype),
		Type:      head.Type,
		Subtype:   head.Subtype,
		SessionID: head.SessionID,
		Raw:       raw,
	}
}

// Passthrough wraps an already-structured message from the native streaming
// form. The payload is kept as-is.
func Passthrough(raw json.RawMessage) Message {
	msg := Classify(raw)
	if msg.Kind == KindRawUnparsed {
		// A producer handing us non-JSON is a bug upstream; surface it verbatim.
		return msg
	}
	msg.Raw = raw
	return msg
}

func kindOf(typ, subtype string) Kind {
	switch typ {
	case claudecontract.EventTypeSystem:
		if subtype == claudecontract.SubtypeInit {
			return KindSystemInit
		}
		return KindSystem
	case claudecontract.EventTypeAssistant:
		return KindAssistant
	case claudecontract.EventTypeUser:
		return KindUser
	case claudecontract.EventTypeResult:
		return KindResult
	case "error":
		return KindError
	default:
		return KindOther
	}
}
