package supervisor

import (
	"encoding/json"

	"github.com/randalmurphal/claudebridge/frame"
)

// EventType names an outbound envelope.
type EventType string

// Outbound envelope types.
const (
	EventSessionCreated  EventType = "session-created"
	EventClaudeResponse  EventType = "claude-response"
	EventError           EventType = "error"
	EventSessionComplete EventType = "session-complete"
	EventTokenBudget     EventType = "token-budget"
	EventSessionAborted  EventType = "session-aborted"
)

// DefaultContextWindow is reported as the budget total when the result does
// not carry one.
const DefaultContextWindow = 160000

// Event is one JSON envelope sent to the client. Only the fields of the
// given Type are set.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`

	ExitCode     *int  `json:"exitCode,omitempty"`
	IsNewSession *bool `json:"isNewSession,omitempty"`

	Used  *int `json:"used,omitempty"`
	Total *int `json:"total,omitempty"`

	Success *bool `json:"success,omitempty"`
}

// Sink receives a unit's events in order. A unit only ever calls Send from
// its own goroutine; a Sink shared by several units must serialise writes.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

// Send implements Sink.
func (f SinkFunc) Send(ev Event) error { return f(ev) }

// SessionCreated announces the session id.
func SessionCreated(id string) Event {
	return Event{Type: EventSessionCreated, SessionID: id}
}

// Response relays one structured message.
func Response(id string, data json.RawMessage) Event {
	return Event{Type: EventClaudeResponse, SessionID: id, Data: data}
}

// Failure reports a user-facing error.
func Failure(id, message string) Event {
	return Event{Type: EventError, SessionID: id, Error: message}
}

// Complete is the terminal event of a unit.
func Complete(id string, exitCode int, isNew bool) Event {
	return Event{Type: EventSessionComplete, SessionID: id, ExitCode: &exitCode, IsNewSession: &isNew}
}

// TokenBudget reports context window consumption.
func TokenBudget(id string, used, total int) Event {
	return Event{Type: EventTokenBudget, SessionID: id, Used: &used, Total: &total}
}

// Aborted answers an abort request.
func Aborted(id string, success bool) Event {
	return Event{Type: EventSessionAborted, SessionID: id, Success: &success}
}

// rawPayload wraps a line that was not JSON so it can still be relayed.
func rawPayload(msg frame.Message) json.RawMessage {
	data, _ := json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: string(frame.KindRawUnparsed), Text: msg.Text})
	return data
}
