package claudecontract

import (
	"os"
	"path/filepath"
)

// File names used by Claude Code.
const (
	// FileClaudeJSON is the user-level config holding global and per-project MCP servers.
	FileClaudeJSON = ".claude.json"

	// FileMCPConfig is the project MCP configuration file name.
	FileMCPConfig = ".mcp.json"
)

// UserConfigPath returns ~/.claude.json, or "" when HOME cannot be resolved.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, FileClaudeJSON)
}
