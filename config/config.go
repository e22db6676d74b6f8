// Package config holds the bridge's configuration: a YAML or TOML file
// overlaid with CLAUDEBRIDGE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CLAUDEBRIDGE_"

// ErrUnsupportedFormat is returned for config files that are neither YAML
// nor TOML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config is the bridge configuration.
type Config struct {
	// Listen is the HTTP listen address for the websocket endpoint.
	Listen string `json:"listen" yaml:"listen" toml:"listen"`

	// Backend selects how units run when a request does not say: "cli" or "query".
	Backend string `json:"backend" yaml:"backend" toml:"backend"`

	Claude  ClaudeConfig  `json:"claude" yaml:"claude" toml:"claude"`
	Sandbox SandboxConfig `json:"sandbox" yaml:"sandbox" toml:"sandbox"`

	// AbortGrace is how long an aborted unit may take to exit before it is killed.
	AbortGrace time.Duration `json:"abort_grace" yaml:"abort_grace" toml:"abort_grace"`

	Log LogConfig `json:"log" yaml:"log" toml:"log"`

	// AllowedOrigins restricts websocket upgrades by Origin header.
	// Empty allows same-host origins only; "*" allows any.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
}

// ClaudeConfig configures how Claude is launched.
type ClaudeConfig struct {
	// Command is the shell-style command used to run Claude, e.g. "claude"
	// or "npx -y @anthropic-ai/claude-code".
	Command string `json:"command" yaml:"command" toml:"command"`

	// Model is the default model. Empty lets Claude choose.
	Model string `json:"model" yaml:"model" toml:"model"`

	// MCPConfigPath is the Claude user config scanned for MCP servers.
	// Default: ~/.claude.json.
	MCPConfigPath string `json:"mcp_config_path" yaml:"mcp_config_path" toml:"mcp_config_path"`

	// DisableMCP turns MCP discovery off entirely.
	DisableMCP bool `json:"disable_mcp" yaml:"disable_mcp" toml:"disable_mcp"`

	// WorkDir is the fallback working directory for units.
	WorkDir string `json:"work_dir" yaml:"work_dir" toml:"work_dir"`
}

// SandboxConfig configures attachment scratch directories.
type SandboxConfig struct {
	// Dir is the parent of per-unit sandboxes. Default: $TMPDIR/claudebridge.
	Dir string `json:"dir" yaml:"dir" toml:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format" toml:"format"` // text, json
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Listen:     "127.0.0.1:3001",
		Backend:    "cli",
		Claude:     ClaudeConfig{Command: "claude"},
		Sandbox:    SandboxConfig{Dir: filepath.Join(os.TempDir(), "claudebridge")},
		AbortGrace: 5 * time.Second,
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path on top of the defaults. The format follows the file
// extension: .yaml/.yml or .toml. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse YAML config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parse TOML config %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return cfg, nil
}

// LoadFromEnv overrides fields from environment variables.
//
// Supported variables:
//   - CLAUDEBRIDGE_LISTEN
//   - CLAUDEBRIDGE_BACKEND
//   - CLAUDEBRIDGE_CLAUDE_COMMAND
//   - CLAUDEBRIDGE_CLAUDE_MODEL
//   - CLAUDEBRIDGE_MCP_CONFIG_PATH
//   - CLAUDEBRIDGE_DISABLE_MCP ("1" or "true")
//   - CLAUDEBRIDGE_WORK_DIR
//   - CLAUDEBRIDGE_SANDBOX_DIR
//   - CLAUDEBRIDGE_ABORT_GRACE (e.g. "5s")
//   - CLAUDEBRIDGE_LOG_LEVEL
//   - CLAUDEBRIDGE_LOG_FORMAT
//   - CLAUDEBRIDGE_ALLOWED_ORIGINS (comma-separated)
func (c *Config) LoadFromEnv() {
	if v := getenv("LISTEN"); v != "" {
		c.Listen = v
	}
	if v := getenv("BACKEND"); v != "" {
		c.Backend = v
	}
	if v := getenv("CLAUDE_COMMAND"); v != "" {
		c.Claude.Command = v
	}
	if v := getenv("CLAUDE_MODEL"); v != "" {
		c.Claude.Model = v
	}
	if v := getenv("MCP_CONFIG_PATH"); v != "" {
		c.Claude.MCPConfigPath = v
	}
	if v := getenv("DISABLE_MCP"); v != "" {
		c.Claude.DisableMCP = v == "1" || strings.EqualFold(v, "true")
	}
	if v := getenv("WORK_DIR"); v != "" {
		c.Claude.WorkDir = v
	}
	if v := getenv("SANDBOX_DIR"); v != "" {
		c.Sandbox.Dir = v
	}
	if v := getenv("ABORT_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.AbortGrace = d
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
}

func getenv(name string) string {
	return os.Getenv(EnvPrefix + name)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	switch c.Backend {
	case "cli", "query":
	default:
		return fmt.Errorf("backend must be \"cli\" or \"query\", got %q", c.Backend)
	}
	if _, err := c.CommandArgs(); err != nil {
		return err
	}
	if c.AbortGrace <= 0 {
		return fmt.Errorf("abort_grace must be > 0, got %v", c.AbortGrace)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}
	return nil
}

// CommandArgs splits Claude.Command into an argv prefix.
func (c *Config) CommandArgs() ([]string, error) {
	argv, err := shlex.Split(c.Claude.Command)
	if err != nil {
		return nil, fmt.Errorf("parse claude.command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("claude.command is required")
	}
	return argv, nil
}

// SlogLevel parses Log.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
