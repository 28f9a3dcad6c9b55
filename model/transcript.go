// Transcript: ordered, append-only conversation log for one session.
//
// Information Hiding:
// - Outstanding tool call bookkeeping hidden
// - Deep copies on the way in and out keep appended turns immutable

package model

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownToolCallID is returned when a tool result answers a call
	// that is not outstanding.
	ErrUnknownToolCallID = errors.New("tool result references unknown tool call id")

	// ErrDuplicateToolCallID is returned when an assistant turn reuses a call id.
	ErrDuplicateToolCallID = errors.New("duplicate tool call id")

	// ErrInvalidTurn is returned for turns that are structurally invalid.
	ErrInvalidTurn = errors.New("invalid turn")
)

// Transcript is the ordered turn history of one session. The zero value is
// not usable; create one with NewTranscript.
//
// A Transcript is not safe for concurrent use. The session store hands each
// in-flight turn its own clone.
type Transcript struct {
	turns []Turn

	// issued holds every call id ever requested; pending the ones still
	// waiting for a result, in issue order.
	issued  map[string]struct{}
	pending []string
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{issued: make(map[string]struct{})}
}

// RestoreTranscript rebuilds a transcript from stored turns, re-checking
// every correlation invariant.
func RestoreTranscript(turns []Turn) (*Transcript, error) {
	t := NewTranscript()
	if err := t.Append(turns...); err != nil {
		return nil, fmt.Errorf("restore transcript: %w", err)
	}
	return t, nil
}

// Append adds turns in order. The batch is applied atomically: if any turn
// is rejected, the transcript is left unchanged.
func (t *Transcript) Append(turns ...Turn) error {
	issued := make(map[string]struct{}, len(turns))
	pending := append([]string(nil), t.pending...)

	for i, turn := range turns {
		if !turn.Role.Valid() {
			return fmt.Errorf("turn %d: %w: unknown role %q", i, ErrInvalidTurn, turn.Role)
		}

		switch turn.Role {
		case RoleAssistant:
			for _, call := range turn.ToolCalls {
				if call.ID == "" {
					return fmt.Errorf("turn %d: %w: empty id for tool %q", i, ErrDuplicateToolCallID, call.Name)
				}
				if _, seen := t.issued[call.ID]; seen {
					return fmt.Errorf("turn %d: %w: %q", i, ErrDuplicateToolCallID, call.ID)
				}
				if _, seen := issued[call.ID]; seen {
					return fmt.Errorf("turn %d: %w: %q", i, ErrDuplicateToolCallID, call.ID)
				}
				issued[call.ID] = struct{}{}
				pending = append(pending, call.ID)
			}
		case RoleTool:
			idx := indexOf(pending, turn.ToolCallID)
			if idx < 0 {
				return fmt.Errorf("turn %d: %w: %q", i, ErrUnknownToolCallID, turn.ToolCallID)
			}
			pending = append(pending[:idx], pending[idx+1:]...)
		}
	}

	for _, turn := range turns {
		t.turns = append(t.turns, turn.clone())
	}
	for id := range issued {
		t.issued[id] = struct{}{}
	}
	t.pending = pending
	return nil
}

// Turns returns a copy of all turns in conversation order.
func (t *Transcript) Turns() []Turn {
	return t.Since(0)
}

// Since returns a copy of the turns appended at or after index n.
func (t *Transcript) Since(n int) []Turn {
	if n < 0 {
		n = 0
	}
	if n >= len(t.turns) {
		return []Turn{}
	}
	out := make([]Turn, 0, len(t.turns)-n)
	for _, turn := range t.turns[n:] {
		out = append(out, turn.clone())
	}
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Pending returns the ids of tool calls still waiting for a result, in the
// order they were requested.
func (t *Transcript) Pending() []string {
	return append([]string(nil), t.pending...)
}

// Issued reports whether id was ever requested in this transcript.
func (t *Transcript) Issued(id string) bool {
	_, ok := t.issued[id]
	return ok
}

// Clone returns an independent copy.
func (t *Transcript) Clone() *Transcript {
	out := &Transcript{
		turns:   t.Turns(),
		issued:  make(map[string]struct{}, len(t.issued)),
		pending: t.Pending(),
	}
	for id := range t.issued {
		out.issued[id] = struct{}{}
	}
	return out
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
