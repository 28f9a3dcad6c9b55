// MCP server configuration.
//
// Servers come from the settings file (tools.mcp_servers) or from an
// Anthropic-style JSON file:
//
//	{
//	  "mcpServers": {
//	    "clock": {
//	      "command": "npx",
//	      "args": ["-y", "@modelcontextprotocol/server-time"]
//	    }
//	  }
//	}
package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// DefaultCallTimeout bounds a single JSON-RPC request.
const DefaultCallTimeout = 30 * time.Second

// Config lists the servers whose tools are offered to the agent.
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers" yaml:"mcp_servers"`
}

// ServerConfig describes how to start one stdio server.
type ServerConfig struct {
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args" yaml:"args"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// TimeoutSecs overrides DefaultCallTimeout.
	TimeoutSecs uint64 `json:"timeoutSecs,omitempty" yaml:"timeout_secs,omitempty"`
}

func (c ServerConfig) timeout() time.Duration {
	if c.TimeoutSecs == 0 {
		return DefaultCallTimeout
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Validate reports a server entry that cannot be started.
func (c ServerConfig) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

// LoadConfig loads MCP configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Merge adds the servers of other. Entries in other win on name clashes.
func (c *Config) Merge(other *Config) {
	if other == nil || len(other.MCPServers) == 0 {
		return
	}
	if c.MCPServers == nil {
		c.MCPServers = make(map[string]ServerConfig, len(other.MCPServers))
	}
	for name, server := range other.MCPServers {
		c.MCPServers[name] = server
	}
}

// Names returns the configured server names, sorted.
func (c *Config) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.MCPServers))
	for name := range c.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
