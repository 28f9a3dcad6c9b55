// Package storage provides session state and conversation persistence.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - Allows swapping between memory and SQLite without API changes
// - Per-session writer exclusion hidden behind leases

package storage

import (
	"context"

	"github.com/richinex/toolthread/model"
)

// Snapshot is the persisted state of one session.
type Snapshot struct {
	Turns  []model.Turn `json:"turns"`
	Values model.Values `json:"values,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Turns:  model.CloneTurns(s.Turns),
		Values: s.Values.Clone(),
	}
}

// ConversationStorage defines the interface for persisting sessions.
// Implementations can use different backends (memory, file, database, cache).
type ConversationStorage interface {
	// Save replaces the stored state of a session.
	Save(ctx context.Context, sessionID string, snapshot Snapshot) error

	// Load loads the state of a session.
	// Returns an empty snapshot if the session doesn't exist.
	// Returns error only for storage failures (I/O errors, etc.), not missing sessions.
	Load(ctx context.Context, sessionID string) (Snapshot, error)

	// Delete deletes a session.
	Delete(ctx context.Context, sessionID string) error

	// ListSessions lists all session IDs.
	ListSessions(ctx context.Context) ([]string, error)

	// Exists checks if a session exists.
	Exists(ctx context.Context, sessionID string) (bool, error)
}
