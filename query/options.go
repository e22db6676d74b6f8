package query

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/claudebridge/claudecontract"
)

// Option configures a Query.
type Option func(*config)

type config struct {
	// Command and leading arguments, e.g. ["claude"] or ["npx", "claude"].
	command []string

	model   string
	workdir string

	sessionID string
	resume    bool

	allowedTools    []string
	disallowedTools []string

	skipPermissions bool
	permissionMode  string

	mcpConfigPath string

	extraEnv map[string]string

	// closeGrace is how long Close waits after stdin EOF before killing the
	// process group.
	closeGrace time.Duration

	includeHookOutput bool
	logger            *slog.Logger
}

func defaultConfig() config {
	return config{
		command:    []string{claudecontract.CLI},
		closeGrace: 5 * time.Second,
	}
}

// WithClaudePath sets the path to the claude binary.
func WithClaudePath(path string) Option {
	return func(c *config) { c.command = []string{path} }
}

// WithCommand sets the full command prefix used to launch Claude.
// An empty slice is ignored.
func WithCommand(argv []string) Option {
	return func(c *config) {
		if len(argv) > 0 {
			c.command = append([]string(nil), argv...)
		}
	}
}

// WithModel sets the model to use.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithWorkdir sets the working directory of the process.
func WithWorkdir(dir string) Option {
	return func(c *config) { c.workdir = dir }
}

// WithSessionID pins the id of a new session.
func WithSessionID(id string) Option {
	return func(c *config) { c.sessionID = id }
}

// WithResume resumes a previously persisted session.
func WithResume(sessionID string) Option {
	return func(c *config) {
		c.sessionID = sessionID
		c.resume = true
	}
}

// WithAllowedTools sets the allowed tools.
func WithAllowedTools(tools []string) Option {
	return func(c *config) { c.allowedTools = tools }
}

// WithDisallowedTools sets the disallowed tools.
func WithDisallowedTools(tools []string) Option {
	return func(c *config) { c.disallowedTools = tools }
}

// WithSkipPermissions bypasses every permission prompt.
func WithSkipPermissions(skip bool) Option {
	return func(c *config) { c.skipPermissions = skip }
}

// WithPermissionMode sets the permission mode.
func WithPermissionMode(mode string) Option {
	return func(c *config) { c.permissionMode = mode }
}

// WithMCPConfig passes an MCP server configuration file.
func WithMCPConfig(path string) Option {
	return func(c *config) { c.mcpConfigPath = path }
}

// WithEnv adds environment variables to the process.
func WithEnv(env map[string]string) Option {
	return func(c *config) {
		if c.extraEnv == nil {
			c.extraEnv = make(map[string]string)
		}
		for k, v := range env {
			c.extraEnv[k] = v
		}
	}
}

// WithCloseGrace sets how long Close waits for a clean exit.
func WithCloseGrace(d time.Duration) Option {
	return func(c *config) { c.closeGrace = d }
}

// WithIncludeHookOutput includes hook responses in Messages.
// By default, hook output is filtered out.
func WithIncludeHookOutput(include bool) Option {
	return func(c *config) { c.includeHookOutput = include }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}
