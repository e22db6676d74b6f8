package query

import (
	"encoding/json"
	"strings"

	"github.com/randalmurphal/claudebridge/claudecontract"
)

// Status represents the lifecycle state of a Query.
type Status string

// Query status constants.
const (
	StatusCreating Status = "creating"
	StatusActive   Status = "active"
	StatusClosing  Status = "closing"
	StatusClosed   Status = "closed"
)

// OutputMessage represents any message received from the process stdout.
// Use Type to determine the specific message kind.
type OutputMessage struct {
	Type      string `json:"type"`              // "system", "assistant", "result", "user"
	Subtype   string `json:"subtype,omitempty"` // "init", "success", "error_*", "hook_response"
	SessionID string `json:"session_id"`
	UUID      string `json:"uuid,omitempty"`
	Raw       []byte `json:"-"` // Original JSON line

	// Populated for type="system", subtype="init"
	Init *InitMessage `json:"-"`

	// Populated for type="assistant"
	Assistant *AssistantMessage `json:"-"`

	// Populated for type="result"
	Result *ResultMessage `json:"-"`

	// Populated for type="user" (prompt echoes and tool results)
	User *UserMessage `json:"-"`
}

// InitMessage contains session initialization data.
type InitMessage struct {
	CWD               string            `json:"cwd"`
	SessionID         string            `json:"session_id"`
	Model             string            `json:"model"`
	PermissionMode    string            `json:"permissionMode"`
	Tools             []string          `json:"tools"`
	MCPServers        []MCPServerStatus `json:"mcp_servers,omitempty"`
	ClaudeCodeVersion string            `json:"claude_code_version"`
}

// MCPServerStatus is an MCP server's connection state as reported at init.
type MCPServerStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// AssistantMessage contains Claude's response.
type AssistantMessage struct {
	Message         ClaudeMessage `json:"message"`
	ParentToolUseID string        `json:"parent_tool_use_id,omitempty"`
	SessionID       string        `json:"session_id"`
}

// ClaudeMessage is the inner message structure from the API.
type ClaudeMessage struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason *string        `json:"stop_reason"`
	Usage      MessageUsage   `json:"usage"`
}

// ContentBlock represents a content block in a message.
type ContentBlock struct {
	Type      string          `json:"type"`                  // "text", "tool_use", "tool_result", "thinking"
	Text      string          `json:"text,omitempty"`        // For text blocks
	ID        string          `json:"id,omitempty"`          // For tool_use blocks
	Name      string          `json:"name,omitempty"`        // Tool name for tool_use
	Input     json.RawMessage `json:"input,omitempty"`       // Tool input for tool_use
	ToolUseID string          `json:"tool_use_id,omitempty"` // For tool_result blocks
	Content   json.RawMessage `json:"content,omitempty"`     // Tool result payload
	IsError   bool            `json:"is_error,omitempty"`
}

// MessageUsage tracks token usage for a single message.
type MessageUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// ResultMessage contains the final result of a turn.
type ResultMessage struct {
	Subtype      string                `json:"subtype"`
	IsError      bool                  `json:"is_error"`
	Result       string                `json:"result"`
	SessionID    string                `json:"session_id"`
	DurationMS   int                   `json:"duration_ms"`
	NumTurns     int                   `json:"num_turns"`
	TotalCostUSD float64               `json:"total_cost_usd"`
	Usage        MessageUsage          `json:"usage"`
	ModelUsage   map[string]ModelUsage `json:"modelUsage,omitempty"`
}

// ModelUsage contains per-model usage and cost.
type ModelUsage struct {
	InputTokens              int     `json:"inputTokens"`
	OutputTokens             int     `json:"outputTokens"`
	CacheReadInputTokens     int     `json:"cacheReadInputTokens,omitempty"`
	CacheCreationInputTokens int     `json:"cacheCreationInputTokens,omitempty"`
	CostUSD                  float64 `json:"costUSD"`
	ContextWindow            int     `json:"contextWindow,omitempty"`
}

// Used is the total number of tokens the model consumed, cache included.
func (u ModelUsage) Used() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens
}

// UserMessage is a user turn, either sent on stdin or echoed on stdout.
type UserMessage struct {
	Type    string             `json:"type"`
	Message UserMessageContent `json:"message"`
}

// UserMessageContent holds the role and content. Content is either a JSON
// string or an array of content blocks.
type UserMessageContent struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// NewUserMessage creates a plain-text user message for sending.
func NewUserMessage(text string) UserMessage {
	content, _ := json.Marshal(text)
	return UserMessage{
		Type: claudecontract.EventTypeUser,
		Message: UserMessageContent{
			Role:    claudecontract.RoleUser,
			Content: content,
		},
	}
}

// Blocks returns the content as blocks. A plain string becomes one text block.
func (c UserMessageContent) Blocks() []ContentBlock {
	if len(c.Content) == 0 {
		return nil
	}
	var text string
	if err := json.Unmarshal(c.Content, &text); err == nil {
		return []ContentBlock{{Type: claudecontract.ContentTypeText, Text: text}}
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(c.Content, &blocks); err != nil {
		return nil
	}
	return blocks
}

// HasToolResult reports whether the message carries at least one tool result.
// Such messages are real output, not an echo of the prompt.
func (m *UserMessage) HasToolResult() bool {
	if m == nil {
		return false
	}
	for _, b := range m.Message.Blocks() {
		if b.Type == claudecontract.ContentTypeToolResult {
			return true
		}
	}
	return false
}

// ControlRequest is written to stdin to steer a running turn.
type ControlRequest struct {
	Type      string             `json:"type"`
	RequestID string             `json:"request_id"`
	Request   ControlRequestBody `json:"request"`
}

// ControlRequestBody names the control operation.
type ControlRequestBody struct {
	Subtype string `json:"subtype"`
}

// parseTypedMessage parses the raw JSON and populates type-specific fields.
func (m *OutputMessage) parseTypedMessage() error {
	if m.Raw == nil {
		return nil
	}

	switch m.Type {
	case claudecontract.EventTypeSystem:
		if m.Subtype == claudecontract.SubtypeInit {
			m.Init = &InitMessage{}
			return json.Unmarshal(m.Raw, m.Init)
		}
	case claudecontract.EventTypeAssistant:
		m.Assistant = &AssistantMessage{}
		return json.Unmarshal(m.Raw, m.Assistant)
	case claudecontract.EventTypeResult:
		m.Result = &ResultMessage{}
		return json.Unmarshal(m.Raw, m.Result)
	case claudecontract.EventTypeUser:
		m.User = &UserMessage{}
		return json.Unmarshal(m.Raw, m.User)
	}
	return nil
}

// ParseOutputMessage parses one JSON line of stream output. The returned
// message owns a copy of data.
func ParseOutputMessage(data []byte) (*OutputMessage, error) {
	var msg OutputMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	msg.Raw = append([]byte(nil), data...)
	if err := msg.parseTypedMessage(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// IsInit returns true if this is an initialization message.
func (m *OutputMessage) IsInit() bool {
	return m.Type == claudecontract.EventTypeSystem && m.Subtype == claudecontract.SubtypeInit
}

// IsAssistant returns true if this is an assistant message.
func (m *OutputMessage) IsAssistant() bool {
	return m.Type == claudecontract.EventTypeAssistant
}

// IsUser returns true if this is a user message.
func (m *OutputMessage) IsUser() bool {
	return m.Type == claudecontract.EventTypeUser
}

// IsResult returns true if this is a result message.
func (m *OutputMessage) IsResult() bool {
	return m.Type == claudecontract.EventTypeResult
}

// IsHook returns true if this is a hook response.
func (m *OutputMessage) IsHook() bool {
	return m.Type == claudecontract.EventTypeSystem && m.Subtype == claudecontract.SubtypeHookResponse
}

// IsControl returns true for control protocol acknowledgements.
func (m *OutputMessage) IsControl() bool {
	return m.Type == claudecontract.EventTypeControlResponse
}

// IsError returns true if this is an error result.
func (m *OutputMessage) IsError() bool {
	return m.Type == claudecontract.EventTypeResult &&
		(strings.HasPrefix(m.Subtype, "error") || (m.Result != nil && m.Result.IsError))
}

// GetText extracts the text content from the message.
// For assistant messages, concatenates all text blocks.
// For result messages, returns the result text.
func (m *OutputMessage) GetText() string {
	if m.Assistant != nil {
		var sb strings.Builder
		for _, block := range m.Assistant.Message.Content {
			if block.Type == claudecontract.ContentTypeText {
				sb.WriteString(block.Text)
			}
		}
		return sb.String()
	}
	if m.Result != nil {
		return m.Result.Result
	}
	return ""
}
