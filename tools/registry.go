// Package tools provides tool management and registration.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Parameter schema compilation hidden
// - Registration and discovery mechanisms abstracted

package tools

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/richinex/toolthread/llm"
	"github.com/richinex/toolthread/schema"
)

var (
	// ErrDuplicateTool is matched by errors from registering a name twice.
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrUnknownTool is matched by errors from looking up a missing name.
	ErrUnknownTool = errors.New("unknown tool")
)

// DuplicateToolError reports a second registration under an existing name.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool '%s' already registered", e.Name)
}

func (e *DuplicateToolError) Is(target error) bool { return target == ErrDuplicateTool }

// UnknownToolError reports a lookup of an unregistered name.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool '%s' is not registered", e.Name)
}

func (e *UnknownToolError) Is(target error) bool { return target == ErrUnknownTool }

type entry struct {
	tool   Tool
	schema *schema.Descriptor
}

// Registry manages available tools with dynamic registration.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*entry
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*entry),
	}
}

// Register adds a new tool to the registry.
// The first registration of a name is retained; later ones fail with
// *DuplicateToolError. The parameter schema is compiled here so invalid
// schemas are rejected up front.
func (r *Registry) Register(tool Tool) error {
	meta := tool.Metadata()
	if meta.Name == "" {
		return errors.New("tool name cannot be empty")
	}

	compiled, err := schema.FromMap(meta.Name, meta.Description, meta.Schema())
	if err != nil {
		return fmt.Errorf("tool '%s': invalid parameter schema: %w", meta.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[meta.Name]; exists {
		return &DuplicateToolError{Name: meta.Name}
	}
	r.tools[meta.Name] = &entry{tool: tool, schema: compiled}
	return nil
}

// Lookup returns a tool by name or *UnknownToolError.
func (r *Registry) Lookup(name string) (Tool, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return e.tool, nil
}

func (r *Registry) lookup(name string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.tools[name]
	if !exists {
		return nil, &UnknownToolError{Name: name}
	}
	return e, nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, err := r.Lookup(name)
	return tool, err == nil
}

// Has checks if a tool exists in the registry.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns metadata for all registered tools, sorted by name.
func (r *Registry) List() []ToolMetadata {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata := make([]ToolMetadata, 0, len(names))
	for _, name := range names {
		if e, ok := r.tools[name]; ok {
			metadata = append(metadata, e.tool.Metadata())
		}
	}
	return metadata
}

// Definitions returns provider tool definitions, sorted by name.
func (r *Registry) Definitions() []llm.ToolDefinition {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		e, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        name,
			Description: e.schema.Description,
			Parameters:  e.schema.Parameters(),
		})
	}
	return defs
}

// Description returns a formatted description of all tools for prompts
// and the CLI listing.
func (r *Registry) Description() string {
	var descriptions []string
	for _, meta := range r.List() {
		var params []string
		for _, p := range meta.Parameters {
			required := "optional"
			if p.Required {
				required = "required"
			}
			line := fmt.Sprintf("  - %s (%s): %s [%s]", p.Name, p.ParamType, p.Description, required)
			if len(p.Enum) > 0 {
				line += fmt.Sprintf(" one of: %s", strings.Join(p.Enum, ", "))
			}
			params = append(params, line)
		}

		paramStr := "  (none)"
		if len(params) > 0 {
			paramStr = strings.Join(params, "\n")
		}
		descriptions = append(descriptions, fmt.Sprintf(
			"Tool: %s\nDescription: %s\nParameters:\n%s",
			meta.Name, meta.Description, paramStr))
	}

	return strings.Join(descriptions, "\n\n")
}

// DefaultHTTPTimeout is the client timeout for the built-in network tools.
const DefaultHTTPTimeout = 10 // seconds

// DefaultsConfig selects and configures the built-in tools.
type DefaultsConfig struct {
	// HTTPTimeoutSecs bounds each outbound request (default 10).
	HTTPTimeoutSecs uint64

	// Directory maps user ids to cities for get_city_from_user.
	// Nil uses the built-in directory.
	Directory map[string]string

	// DefaultLocation is returned by get_user_location (default New York).
	DefaultLocation string

	// Prompter enables ask_user when set.
	Prompter Prompter
}

// WithDefaults creates a registry with the built-in tools.
// Returns error if any tool registration fails.
func WithDefaults(cfg DefaultsConfig) (*Registry, error) {
	timeout := cfg.HTTPTimeoutSecs
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}

	registry := NewRegistry()

	tools := []Tool{
		NewWeatherTool(timeout),
		NewTimeTool(timeout),
		NewCityLookupTool(cfg.Directory),
		NewUserLocationTool(cfg.DefaultLocation),
	}
	if cfg.Prompter != nil {
		tools = append(tools, NewAskUserTool(cfg.Prompter))
	}

	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("failed to register default tools: %w", err)
		}
	}

	return registry, nil
}
