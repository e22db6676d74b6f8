// Package mcpconfig discovers the MCP servers Claude Code has configured so
// that the bridge only passes --mcp-config when there is something to load.
package mcpconfig

import (
	"fmt"
	"maps"
	"sort"
)

// MCPServer represents an MCP server configuration.
// Supports stdio, http, and sse transport types.
type MCPServer struct {
	// Type specifies the transport type: "stdio", "http", or "sse".
	// If empty, defaults to "stdio" for servers with Command set.
	Type string `json:"type,omitempty"`

	// Command is the executable to run (for stdio transport)
	Command string `json:"command,omitempty"`

	// Args are command-line arguments (for stdio transport)
	Args []string `json:"args,omitempty"`

	// Env contains environment variables for the server
	Env map[string]string `json:"env,omitempty"`

	// URL is the server endpoint (for http/sse transport)
	URL string `json:"url,omitempty"`

	// Headers are HTTP headers (for http/sse transport)
	Headers []string `json:"headers,omitempty"`

	// Disabled indicates if the server should be skipped
	Disabled bool `json:"disabled,omitempty"`
}

// MCPConfig is a named set of MCP servers, as found under "mcpServers".
type MCPConfig struct {
	MCPServers map[string]*MCPServer `json:"mcpServers,omitempty"`
}

// NewMCPConfig creates an empty MCP config with initialized maps.
func NewMCPConfig() *MCPConfig {
	return &MCPConfig{
		MCPServers: make(map[string]*MCPServer),
	}
}

// Clone creates a deep copy of the MCP config.
func (c *MCPConfig) Clone() *MCPConfig {
	if c == nil {
		return nil
	}

	clone := NewMCPConfig()
	for name, server := range c.MCPServers {
		clone.MCPServers[name] = server.Clone()
	}
	return clone
}

// Clone creates a deep copy of the MCP server.
func (s *MCPServer) Clone() *MCPServer {
	if s == nil {
		return nil
	}

	clone := *s
	if s.Args != nil {
		clone.Args = append([]string(nil), s.Args...)
	}
	if s.Env != nil {
		clone.Env = maps.Clone(s.Env)
	}
	if s.Headers != nil {
		clone.Headers = append([]string(nil), s.Headers...)
	}
	return &clone
}

// GetTransportType returns the effective transport type.
func (s *MCPServer) GetTransportType() string {
	if s.Type != "" {
		return s.Type
	}
	if s.Command == "" && s.URL != "" {
		return "http"
	}
	return "stdio"
}

// IsValid checks if the server configuration is valid.
func (s *MCPServer) IsValid() error {
	transport := s.GetTransportType()

	switch transport {
	case "stdio":
		if s.Command == "" {
			return fmt.Errorf("stdio transport requires command")
		}
	case "http", "sse":
		if s.URL == "" {
			return fmt.Errorf("%s transport requires url", transport)
		}
	default:
		return fmt.Errorf("unsupported transport type: %s", transport)
	}
	return nil
}

// ListServers returns all server names in sorted order.
func (c *MCPConfig) ListServers() []string {
	if c == nil || c.MCPServers == nil {
		return nil
	}
	names := make([]string, 0, len(c.MCPServers))
	for name := range c.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enabled returns the sorted names of servers that are not disabled and
// whose configuration is complete enough to start.
func (c *MCPConfig) Enabled() []string {
	var names []string
	for _, name := range c.ListServers() {
		server := c.MCPServers[name]
		if server == nil || server.Disabled || server.IsValid() != nil {
			continue
		}
		names = append(names, name)
	}
	return names
}

// Merge combines two MCP configs, with override taking precedence.
func (c *MCPConfig) Merge(override *MCPConfig) *MCPConfig {
	if c == nil {
		return override.Clone()
	}
	if override == nil {
		return c.Clone()
	}

	result := c.Clone()
	for name, server := range override.MCPServers {
		result.MCPServers[name] = server.Clone()
	}
	return result
}
