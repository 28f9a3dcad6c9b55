// Package tools provides the tool system for agents.
//
// Information Hiding:
// - Tool execution details hidden behind interface
// - Tool parameters and schemas hidden in implementations
// - Registry implementation details hidden from consumers
// - Failures carried as data, never as loop errors
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/richinex/toolthread/model"
)

// ToolParameter defines a parameter schema for a tool.
type ToolParameter struct {
	Name        string   `json:"name"`
	ParamType   string   `json:"param_type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolMetadata describes what a tool does and how to use it.
type ToolMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

// String returns a string representation of the tool metadata.
func (m ToolMetadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Description)
}

// Schema renders the parameters as a JSON Schema object.
func (m ToolMetadata) Schema() map[string]interface{} {
	properties := make(map[string]interface{}, len(m.Parameters))
	required := make([]string, 0, len(m.Parameters))

	for _, p := range m.Parameters {
		paramType := p.ParamType
		if paramType == "" {
			paramType = "string"
		}
		prop := map[string]interface{}{
			"type":        paramType,
			"description": p.Description,
		}
		if paramType == "array" {
			prop["items"] = map[string]interface{}{"type": "string"}
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	s := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// ErrorKind classifies a failed tool invocation.
type ErrorKind string

const (
	KindUnknownTool      ErrorKind = "unknown_tool"
	KindInvalidArguments ErrorKind = "invalid_arguments"
	KindExecution        ErrorKind = "execution_error"
)

// ToolError describes why an invocation failed. It is data fed back to the
// model, not an error for the caller.
type ToolError struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// ToolResult is the outcome of one invocation.
// Success is determined by whether Error is nil.
type ToolResult struct {
	CallID   string        `json:"call_id,omitempty"`
	Name     string        `json:"name,omitempty"`
	Value    interface{}   `json:"-"`
	Error    *ToolError    `json:"-"`
	Duration time.Duration `json:"-"`
}

// MarshalJSON implements custom JSON marshaling for ToolResult.
func (t ToolResult) MarshalJSON() ([]byte, error) {
	if t.Error != nil {
		return json.Marshal(struct {
			Success bool      `json:"success"`
			Error   ToolError `json:"error"`
		}{
			Success: false,
			Error:   *t.Error,
		})
	}
	return json.Marshal(struct {
		Success bool        `json:"success"`
		Output  interface{} `json:"output"`
	}{
		Success: true,
		Output:  t.Value,
	})
}

// Success returns true if the tool execution succeeded.
func (t ToolResult) Success() bool {
	return t.Error == nil
}

// Content renders the result as the text fed back to the model.
// Strings pass through unchanged, other values are encoded as JSON.
func (t ToolResult) Content() string {
	if t.Error != nil {
		data, err := json.Marshal(t)
		if err != nil {
			return t.Error.Error()
		}
		return string(data)
	}

	switch v := t.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.RawMessage:
		return string(v)
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}

	data, err := json.Marshal(t.Value)
	if err != nil {
		return fmt.Sprintf("%v", t.Value)
	}
	return string(data)
}

// SuccessResult creates a successful tool result.
func SuccessResult(value interface{}) ToolResult {
	return ToolResult{Value: value}
}

// FailureResult creates a failed tool result of kind execution_error.
func FailureResult(err error) ToolResult {
	return failure(KindExecution, err.Error())
}

// FailureResultf creates a failed tool result with a formatted message.
func FailureResultf(format string, args ...interface{}) ToolResult {
	return failure(KindExecution, fmt.Sprintf(format, args...))
}

// InvalidArgumentsf creates a failed tool result of kind invalid_arguments.
// Tools use it for argument problems the schema cannot express.
func InvalidArgumentsf(format string, args ...interface{}) ToolResult {
	return failure(KindInvalidArguments, fmt.Sprintf(format, args...))
}

func failure(kind ErrorKind, detail string) ToolResult {
	return ToolResult{Error: &ToolError{Kind: kind, Detail: detail}}
}

// Tool is the interface that all tools must implement.
//
// Information Hiding: Tool implementations hide their internal execution logic,
// data structures, and error handling strategies behind this interface.
type Tool interface {
	// Metadata returns tool metadata (name, description, parameters).
	Metadata() ToolMetadata

	// Execute runs the tool with validated arguments. values is the
	// session context bag; it is a private copy per invocation.
	Execute(ctx context.Context, args json.RawMessage, values model.Values) (ToolResult, error)
}

// Validator is implemented by tools with checks beyond their JSON Schema.
type Validator interface {
	Validate(args json.RawMessage) error
}

// HandlerFunc adapts a function to the Tool interface.
type HandlerFunc func(ctx context.Context, args json.RawMessage, values model.Values) (ToolResult, error)

type funcTool struct {
	meta    ToolMetadata
	handler HandlerFunc
}

// NewFunc creates a tool from metadata and a handler.
func NewFunc(meta ToolMetadata, handler HandlerFunc) Tool {
	return &funcTool{meta: meta, handler: handler}
}

func (f *funcTool) Metadata() ToolMetadata { return f.meta }

func (f *funcTool) Execute(ctx context.Context, args json.RawMessage, values model.Values) (ToolResult, error) {
	return f.handler(ctx, args, values)
}

// InvokerConfig holds tool execution configuration.
// The zero value is safe: timeout defaults to 30s and concurrency to 4.
type InvokerConfig struct {
	CallTimeout time.Duration
	Concurrency int
}

// Timeout returns the per-call deadline, defaulting to 30 seconds.
func (c *InvokerConfig) Timeout() time.Duration {
	if c == nil || c.CallTimeout <= 0 {
		return 30 * time.Second
	}
	return c.CallTimeout
}

// Workers returns the number of calls run at once, defaulting to 4.
func (c *InvokerConfig) Workers() int {
	if c == nil || c.Concurrency <= 0 {
		return 4
	}
	return c.Concurrency
}

// DefaultInvokerConfig returns the default invoker configuration.
func DefaultInvokerConfig() InvokerConfig {
	return InvokerConfig{CallTimeout: 30 * time.Second, Concurrency: 4}
}
