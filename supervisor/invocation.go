package supervisor

import (
	"os"
	"strings"

	"github.com/randalmurphal/claudebridge/claudecontract"
	"github.com/randalmurphal/claudebridge/sandbox"
)

// Backend names.
const (
	BackendCLI   = "cli"
	BackendQuery = "query"
)

// ToolsSettings are the client's tool permissions.
type ToolsSettings struct {
	AllowedTools    []string
	DisallowedTools []string
	SkipPermissions bool
}

// StartRequest is one client command.
type StartRequest struct {
	Command        string
	CWD            string
	ProjectPath    string
	SessionID      string
	Resume         bool
	PermissionMode string
	Model          string
	Backend        string
	Tools          ToolsSettings
	Images         []sandbox.Attachment
}

// IsNewSession is true when no session id was supplied and a command was
// actually issued.
func (r StartRequest) IsNewSession() bool {
	return r.SessionID == "" && strings.TrimSpace(r.Command) != ""
}

// Defaults fill in what a request leaves out.
type Defaults struct {
	// Command is the argv prefix used to run Claude, e.g. ["claude"].
	Command []string
	Model   string
	WorkDir string
	Backend string
}

// Invocation is the fully resolved set of launch parameters.
type Invocation struct {
	Command []string
	Prompt  string
	WorkDir string

	// SessionID is set only when Resume is true.
	SessionID string
	Resume    bool

	Model string

	PermissionMode  claudecontract.PermissionMode
	SkipPermissions bool
	AllowedTools    []string
	DisallowedTools []string

	MCPConfigPath string

	// Attachments are file paths inside the unit's sandbox.
	Attachments []string
}

// Resolve builds an Invocation from a request. It does no I/O beyond
// reading the process working directory as the last fallback.
func Resolve(req StartRequest, d Defaults) Invocation {
	inv := Invocation{
		Command: d.Command,
		Prompt:  req.Command,
		WorkDir: firstNonEmpty(req.CWD, req.ProjectPath, d.WorkDir),
		Model:   firstNonEmpty(req.Model, d.Model),
	}
	if len(inv.Command) == 0 {
		inv.Command = []string{claudecontract.CLI}
	}
	if inv.WorkDir == "" {
		inv.WorkDir, _ = os.Getwd()
	}

	if req.Resume && req.SessionID != "" {
		inv.Resume = true
		inv.SessionID = req.SessionID
	}

	allowed := req.Tools.AllowedTools
	mode := claudecontract.PermissionMode(req.PermissionMode)
	switch {
	case mode != "" && mode != claudecontract.PermissionDefault:
		inv.PermissionMode = mode
		if mode == claudecontract.PermissionPlan {
			allowed = append(append([]string(nil), allowed...), claudecontract.PlanModeTools()...)
		}
	case req.Tools.SkipPermissions:
		inv.SkipPermissions = true
	}

	inv.AllowedTools = dedupe(allowed)
	inv.DisallowedTools = dedupe(req.Tools.DisallowedTools)
	return inv
}

// WithAttachments records sandbox paths and adds them to the prompt.
func (inv Invocation) WithAttachments(paths []string) Invocation {
	if len(paths) == 0 {
		return inv
	}
	inv.Attachments = paths
	inv.Prompt = sandbox.PromptWithAttachments(inv.Prompt, paths)
	return inv
}

// Args returns the argument vector for the one-shot subprocess form,
// excluding the command itself.
func (inv Invocation) Args() []string {
	var args []string

	if strings.TrimSpace(inv.Prompt) != "" {
		args = append(args, claudecontract.FlagPrint, inv.Prompt)
	}
	if inv.Resume {
		args = append(args, claudecontract.FlagResume, inv.SessionID)
	}

	args = append(args,
		claudecontract.FlagOutputFormat, claudecontract.FormatStreamJSON,
		claudecontract.FlagVerbose,
	)

	if inv.Model != "" {
		args = append(args, claudecontract.FlagModel, inv.Model)
	}
	if inv.MCPConfigPath != "" {
		args = append(args, claudecontract.FlagMCPConfig, inv.MCPConfigPath)
	}

	if inv.PermissionMode != "" {
		args = append(args, claudecontract.FlagPermissionMode, inv.PermissionMode.String())
	}
	if inv.SkipPermissions {
		args = append(args, claudecontract.FlagDangerouslySkipPermissions)
	}

	for _, tool := range inv.AllowedTools {
		args = append(args, claudecontract.FlagAllowedTools, tool)
	}
	for _, tool := range inv.DisallowedTools {
		args = append(args, claudecontract.FlagDisallowedTools, tool)
	}
	return args
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// dedupe drops blanks and repeats, keeping first-seen order.
func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
