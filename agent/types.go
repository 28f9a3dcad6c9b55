// Package agent provides the tool-using agent loop.
//
// Contains the result and error types returned for a user turn.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/richinex/toolthread/llm"
	"github.com/richinex/toolthread/model"
	"github.com/richinex/toolthread/schema"
)

// ErrRoundLimitExceeded matches every *RoundLimitError through errors.Is.
var ErrRoundLimitExceeded = errors.New("round limit exceeded")

// ErrNoStructuredResult is returned by DecodeResult for a free-text result.
var ErrNoStructuredResult = errors.New("result has no structured record")

// RoundLimitError reports that the model kept requesting tools past the
// configured limit. The user turn and every completed round were kept.
type RoundLimitError struct {
	SessionID string
	Limit     int
}

func (e *RoundLimitError) Error() string {
	return fmt.Sprintf("session %s: round limit exceeded after %d tool rounds", e.SessionID, e.Limit)
}

// Is makes errors.Is(err, ErrRoundLimitExceeded) true.
func (e *RoundLimitError) Is(target error) bool {
	return target == ErrRoundLimitExceeded
}

// ToolStat is an alias for model.ToolStat for per-call metrics.
type ToolStat = model.ToolStat

// Metadata contains metadata about one user turn.
type Metadata struct {
	AgentName       string         `json:"agent_name"`
	SessionID       string         `json:"session_id"`
	Rounds          int            `json:"rounds"`
	ModelCalls      int            `json:"model_calls"`
	ToolCalls       []ToolStat     `json:"tool_calls,omitempty"`
	TokenUsage      llm.TokenUsage `json:"token_usage"`
	ExecutionTimeMs uint64         `json:"execution_time_ms"`
}

// Result is the terminal answer of a user turn: free text, or a structured
// record when a response schema was requested.
type Result struct {
	Text       string          `json:"text"`
	Structured json.RawMessage `json:"structured,omitempty"`
	Metadata   Metadata        `json:"metadata"`
}

// IsStructured reports whether the result carries a structured record.
func (r Result) IsStructured() bool {
	return len(r.Structured) > 0
}

// DecodeResult decodes the structured record of res into T, validating it
// against desc when desc is non-nil.
func DecodeResult[T any](res Result, desc *schema.Descriptor) (T, error) {
	if !res.IsStructured() {
		var zero T
		return zero, ErrNoStructuredResult
	}
	return schema.Decode[T](desc, res.Structured)
}
