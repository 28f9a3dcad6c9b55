// MCP tools as registry tools.
//
// Information Hiding:
// - Client lifecycle hidden behind Manager
// - Input schema translation hidden
// - Server-side failures mapped to tool failures

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/richinex/toolthread/model"
	"github.com/richinex/toolthread/tools"
)

// Manager owns the clients of every configured server and the tools they
// expose. The caller must call Close when done.
type Manager struct {
	clients []*Client
	tools   []tools.Tool
}

// Connect starts every server in cfg (in name order) and discovers its tools.
// On error the servers already started are stopped.
func Connect(ctx context.Context, cfg *Config, logger *slog.Logger) (*Manager, error) {
	m := &Manager{}
	for _, name := range cfg.Names() {
		client, err := NewClient(ctx, name, cfg.MCPServers[name], logger)
		if err != nil {
			m.Close()
			return nil, err
		}
		if err := m.add(ctx, client); err != nil {
			client.Close()
			m.Close()
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) add(ctx context.Context, client *Client) error {
	infos, err := client.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tools of %s: %w", client.Name(), err)
	}
	m.clients = append(m.clients, client)
	for _, info := range infos {
		m.tools = append(m.tools, &serverTool{client: client, info: info})
	}
	return nil
}

// Tools returns the discovered tools.
func (m *Manager) Tools() []tools.Tool {
	return m.tools
}

// Register adds every discovered tool to registry. A name that clashes with
// an existing tool is an error.
func (m *Manager) Register(registry *tools.Registry) error {
	for _, tool := range m.tools {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register MCP tool: %w", err)
		}
	}
	return nil
}

// Close stops every server.
func (m *Manager) Close() error {
	for _, client := range m.clients {
		client.Close()
	}
	m.clients = nil
	return nil
}

// serverTool forwards invocations to the server that advertised it.
type serverTool struct {
	client *Client
	info   ToolInfo
}

func (t *serverTool) Metadata() tools.ToolMetadata {
	description := strings.TrimSpace(t.info.Description)
	if description == "" {
		description = fmt.Sprintf("MCP tool %s from %s", t.info.Name, t.client.Name())
	}
	return tools.ToolMetadata{
		Name:        t.info.Name,
		Description: description,
		Parameters:  parseParameters(t.info.InputSchema),
	}
}

// Execute calls the tool. The session context stays local: servers only
// see the model's arguments.
func (t *serverTool) Execute(ctx context.Context, args json.RawMessage, _ model.Values) (tools.ToolResult, error) {
	result, err := t.client.CallTool(ctx, t.info.Name, args)
	if err != nil {
		return tools.ToolResult{}, fmt.Errorf("tool call failed: %w", err)
	}

	text := joinText(result.Content)
	if result.IsError {
		return tools.FailureResultf("%s", text), nil
	}
	return tools.SuccessResult(text), nil
}

func joinText(content []Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch c.Type {
		case "text", "":
			parts = append(parts, c.Text)
		default:
			parts = append(parts, fmt.Sprintf("[%s content omitted]", c.Type))
		}
	}
	return strings.Join(parts, "\n")
}

// parseParameters extracts top-level parameters from an input schema, sorted
// by name for deterministic output.
func parseParameters(inputSchema json.RawMessage) []tools.ToolParameter {
	var schema struct {
		Properties map[string]struct {
			Type        interface{}   `json:"type"`
			Description string        `json:"description"`
			Enum        []interface{} `json:"enum"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(inputSchema, &schema); err != nil {
		return nil
	}

	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]tools.ToolParameter, 0, len(names))
	for _, name := range names {
		prop := schema.Properties[name]
		params = append(params, tools.ToolParameter{
			Name:        name,
			ParamType:   schemaType(prop.Type),
			Description: prop.Description,
			Required:    required[name],
			Enum:        stringEnum(prop.Enum),
		})
	}
	return params
}

// schemaType picks a single JSON type. Union types such as
// ["string", "null"] use their first non-null member.
func schemaType(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []interface{}:
		for _, member := range t {
			if s, ok := member.(string); ok && s != "null" {
				return s
			}
		}
	}
	return "string"
}

// stringEnum keeps an enum only when every member is a string.
func stringEnum(values []interface{}) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		out = append(out, s)
	}
	return out
}
