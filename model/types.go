// Package model provides domain types shared across packages.
package model

import (
	"encoding/json"
	"fmt"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Turn is one entry in a conversation transcript.
//
// Assistant turns either carry ToolCalls, plain Content, or a Structured
// payload. Tool turns answer exactly one call through ToolCallID.
type Turn struct {
	Role       Role            `json:"role"`
	Content    string          `json:"content,omitempty"`
	Structured json.RawMessage `json:"structured,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
}

// SystemTurn creates a system turn.
func SystemTurn(content string) Turn {
	return Turn{Role: RoleSystem, Content: content}
}

// UserTurn creates a user turn.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantText creates a terminal assistant turn with free text.
func AssistantText(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// AssistantStructured creates a terminal assistant turn carrying a structured record.
func AssistantStructured(record json.RawMessage) Turn {
	return Turn{Role: RoleAssistant, Content: string(record), Structured: record}
}

// AssistantToolCalls creates an assistant turn that requests tool calls.
func AssistantToolCalls(content string, calls []ToolCall) Turn {
	return Turn{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResultTurn creates a tool-result turn answering callID.
func ToolResultTurn(callID, toolName, content string, isError bool) Turn {
	return Turn{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: callID,
		ToolName:   toolName,
		IsError:    isError,
	}
}

// IsToolRequest reports whether the turn asks for tool execution.
func (t Turn) IsToolRequest() bool {
	return t.Role == RoleAssistant && len(t.ToolCalls) > 0
}

// String returns a short human readable rendering of the turn.
func (t Turn) String() string {
	switch {
	case t.IsToolRequest():
		return fmt.Sprintf("%s: %d tool call(s)", t.Role, len(t.ToolCalls))
	case t.Role == RoleTool:
		return fmt.Sprintf("%s[%s]: %s", t.Role, t.ToolCallID, t.Content)
	default:
		return fmt.Sprintf("%s: %s", t.Role, t.Content)
	}
}

// clone returns a deep copy so appended turns cannot be mutated by callers.
func (t Turn) clone() Turn {
	out := t
	if t.Structured != nil {
		out.Structured = append(json.RawMessage(nil), t.Structured...)
	}
	if t.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(t.ToolCalls))
		for i, c := range t.ToolCalls {
			out.ToolCalls[i] = ToolCall{
				ID:        c.ID,
				Name:      c.Name,
				Arguments: append(json.RawMessage(nil), c.Arguments...),
			}
		}
	}
	return out
}

// CloneTurns deep-copies a slice of turns.
func CloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.clone()
	}
	return out
}

// ToolStat contains metrics about a tool invocation.
// Used for tracking and analytics of a user turn.
type ToolStat struct {
	Name       string `json:"name"`
	CallID     string `json:"call_id"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	DurationMs uint64 `json:"duration_ms"`
	Success    bool   `json:"success"`
}

// Values is the opaque per-session context bag. Tool handlers can read it;
// it is never sent to the model.
type Values map[string]any

// String returns the value under key when it is a string (or a Stringer).
func (v Values) String(key string) (string, bool) {
	raw, ok := v[key]
	if !ok {
		return "", false
	}
	switch s := raw.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	default:
		return fmt.Sprint(s), true
	}
}

// Clone returns a shallow copy of the bag. A nil bag clones to an empty one.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
