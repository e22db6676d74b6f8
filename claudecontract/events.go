package claudecontract

// Stream event types from stream-json output.
const (
	EventTypeSystem    = "system"
	EventTypeAssistant = "assistant"
	EventTypeUser      = "user"
	EventTypeResult    = "result"

	// EventTypeStreamEvent carries partial deltas when partial messages are enabled.
	EventTypeStreamEvent = "stream_event"

	// EventTypeControlRequest and EventTypeControlResponse frame the
	// stream-json control protocol (interrupts and acknowledgements).
	EventTypeControlRequest  = "control_request"
	EventTypeControlResponse = "control_response"
)

// System event subtypes.
const (
	SubtypeInit            = "init"
	SubtypeHookResponse    = "hook_response"
	SubtypeCompactBoundary = "compact_boundary"
)

// Result subtypes.
const (
	ResultSubtypeSuccess              = "success"
	ResultSubtypeErrorMaxTurns        = "error_max_turns"
	ResultSubtypeErrorDuringExecution = "error_during_execution"
)

// Content block types within messages.
const (
	ContentTypeText       = "text"
	ContentTypeImage      = "image"
	ContentTypeToolUse    = "tool_use"
	ContentTypeToolResult = "tool_result"
	ContentTypeThinking   = "thinking"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ControlSubtypeInterrupt asks a stream-json session to stop the current turn.
const ControlSubtypeInterrupt = "interrupt"
