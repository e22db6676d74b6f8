// Package channel speaks the bridge's JSON protocol over websockets.
//
// Clients send commands as text frames:
//
//	{"type":"claude-command","command":"list files","options":{"cwd":"/repo"}}
//	{"type":"abort-session","sessionId":"..."}
//	{"type":"ping"}
//
// and receive the supervisor's event envelopes on the same connection.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/randalmurphal/claudebridge/sandbox"
	"github.com/randalmurphal/claudebridge/supervisor"
)

// Command types.
const (
	TypeClaudeCommand = "claude-command"
	TypeAbortSession  = "abort-session"
	TypePing          = "ping"
)

// EventPong answers a ping.
const EventPong supervisor.EventType = "pong"

// ErrInvalidCommand is returned for frames that fail validation.
var ErrInvalidCommand = errors.New("invalid command")

// Command is one inbound frame.
type Command struct {
	Type      string          `json:"type" jsonschema:"enum=claude-command,enum=abort-session,enum=ping"`
	Command   string          `json:"command,omitempty" jsonschema:"description=Prompt text. Empty starts or resumes a session without a prompt."`
	SessionID string          `json:"sessionId,omitempty" jsonschema:"description=Session to abort."`
	Options   *CommandOptions `json:"options,omitempty"`
}

// CommandOptions qualify a claude-command.
type CommandOptions struct {
	CWD            string         `json:"cwd,omitempty"`
	ProjectPath    string         `json:"projectPath,omitempty"`
	SessionID      string         `json:"sessionId,omitempty"`
	Resume         bool           `json:"resume,omitempty"`
	PermissionMode string         `json:"permissionMode,omitempty"`
	Model          string         `json:"model,omitempty"`
	Backend        string         `json:"backend,omitempty"`
	ToolsSettings  *ToolsSettings `json:"toolsSettings,omitempty"`
	Images         []Image        `json:"images,omitempty"`
}

// ToolsSettings are the client's tool permissions.
type ToolsSettings struct {
	AllowedTools    []string `json:"allowedTools,omitempty"`
	DisallowedTools []string `json:"disallowedTools,omitempty"`
	SkipPermissions bool     `json:"skipPermissions,omitempty"`
}

// Image is an inline attachment.
type Image struct {
	Name string `json:"name,omitempty"`
	Data string `json:"data" jsonschema:"description=Data URI with a base64 payload"`
}

// StartRequest converts a claude-command into a supervisor request.
func (c Command) StartRequest() supervisor.StartRequest {
	req := supervisor.StartRequest{Command: c.Command}
	o := c.Options
	if o == nil {
		return req
	}
	req.CWD = o.CWD
	req.ProjectPath = o.ProjectPath
	req.SessionID = o.SessionID
	req.Resume = o.Resume
	req.PermissionMode = o.PermissionMode
	req.Model = o.Model
	req.Backend = o.Backend
	if t := o.ToolsSettings; t != nil {
		req.Tools = supervisor.ToolsSettings{
			AllowedTools:    t.AllowedTools,
			DisallowedTools: t.DisallowedTools,
			SkipPermissions: t.SkipPermissions,
		}
	}
	for _, img := range o.Images {
		req.Images = append(req.Images, sandbox.Attachment{Name: img.Name, Data: img.Data})
	}
	return req
}

// CommandSchema returns the JSON Schema of inbound frames.
func CommandSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
		Anonymous:                 true,
	}
	s := r.Reflect(&Command{})
	// gojsonschema only knows drafts up to 7; the keywords used here are
	// common to all of them.
	s.Version = ""
	s.Title = "claudebridge command"
	return s
}

// Validator checks frames against CommandSchema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles CommandSchema.
func NewValidator() (*Validator, error) {
	raw, err := json.Marshal(CommandSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal command schema: %w", err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile command schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Decode validates a frame and decodes it.
func (v *Validator) Decode(data []byte) (Command, error) {
	var cmd Command
	if !json.Valid(data) {
		return cmd, fmt.Errorf("%w: not JSON", ErrInvalidCommand)
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return cmd, fmt.Errorf("%w: %s", ErrInvalidCommand, strings.Join(details, "; "))
	}

	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if cmd.Type == TypeAbortSession && cmd.SessionID == "" {
		return cmd, fmt.Errorf("%w: abort-session requires sessionId", ErrInvalidCommand)
	}
	return cmd, nil
}
