package mcpconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/randalmurphal/claudebridge/claudecontract"
)

// userConfig is the subset of ~/.claude.json the bridge reads. Older
// versions keyed projects under "claudeProjects".
type userConfig struct {
	MCPServers     map[string]*MCPServer    `json:"mcpServers"`
	Projects       map[string]projectConfig `json:"projects"`
	ClaudeProjects map[string]projectConfig `json:"claudeProjects"`
}

type projectConfig struct {
	MCPServers map[string]*MCPServer `json:"mcpServers"`
}

// Result is what Discover found.
type Result struct {
	// ConfigPath is the file that was read.
	ConfigPath string

	Global  *MCPConfig
	Project *MCPConfig
}

// Servers returns global servers overlaid with project servers.
func (r *Result) Servers() *MCPConfig {
	return r.Global.Merge(r.Project)
}

// HasServers reports whether any enabled, valid server is configured.
func (r *Result) HasServers() bool {
	return r != nil && len(r.Servers().Enabled()) > 0
}

// Discover reads the Claude user config at configPath (~/.claude.json when
// empty) and collects the top-level servers and those of projectPath.
// A missing file is not an error; it yields an empty result.
func Discover(configPath, projectPath string) (*Result, error) {
	if configPath == "" {
		configPath = claudecontract.UserConfigPath()
	}

	cfg, err := loadUserConfig(configPath)
	if err != nil {
		return nil, err
	}
	return cfg.result(configPath, projectPath), nil
}

func loadUserConfig(path string) (*userConfig, error) {
	var cfg userConfig
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read claude config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse claude config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *userConfig) result(configPath, projectPath string) *Result {
	res := &Result{
		ConfigPath: configPath,
		Global:     &MCPConfig{MCPServers: c.MCPServers},
		Project:    NewMCPConfig(),
	}
	if res.Global.MCPServers == nil {
		res.Global.MCPServers = make(map[string]*MCPServer)
	}
	if projectPath == "" {
		return res
	}

	for _, projects := range []map[string]projectConfig{c.Projects, c.ClaudeProjects} {
		if p, ok := lookupProject(projects, projectPath); ok && len(p.MCPServers) > 0 {
			res.Project = &MCPConfig{MCPServers: p.MCPServers}
			break
		}
	}
	return res
}

// lookupProject matches projectPath exactly, then in cleaned form.
func lookupProject(projects map[string]projectConfig, projectPath string) (projectConfig, bool) {
	if p, ok := projects[projectPath]; ok {
		return p, true
	}
	clean := filepath.Clean(projectPath)
	for key, p := range projects {
		if filepath.Clean(key) == clean {
			return p, true
		}
	}
	return projectConfig{}, false
}
