// Package storage provides SQLite conversation storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema and JSON column encoding encapsulated
// - Unchanged snapshots detected by content digest and skipped

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/toolthread/model"
)

// SqliteStorage implements ConversationStorage using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStorage struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	return newSqliteStorage(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	return newSqliteStorage(db)
}

func newSqliteStorage(db *sql.DB) (*SqliteStorage, error) {
	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			context_values TEXT NOT NULL DEFAULT '{}',
			digest TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			turn_index INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			structured TEXT,
			tool_calls TEXT,
			tool_call_id TEXT,
			tool_name TEXT,
			is_error INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE,
			UNIQUE(session_id, turn_index)
		);

		CREATE INDEX IF NOT EXISTS idx_turns_session
		ON turns(session_id, turn_index);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// digest fingerprints a snapshot so identical saves can be skipped.
func digest(turnsJSON, valuesJSON []byte) string {
	h := xxhash.New()
	_, _ = h.Write(turnsJSON)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(valuesJSON)
	return strconv.FormatUint(h.Sum64(), 16)
}

// Save replaces the stored state of a session in one transaction.
func (s *SqliteStorage) Save(ctx context.Context, sessionID string, snapshot Snapshot) error {
	turnsJSON, err := json.Marshal(snapshot.Turns)
	if err != nil {
		return fmt.Errorf("failed to encode turns: %w", err)
	}
	values := snapshot.Values
	if values == nil {
		values = model.Values{}
	}
	valuesJSON, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode session values: %w", err)
	}
	sum := digest(turnsJSON, valuesJSON)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx,
		"SELECT digest FROM sessions WHERE session_id = ?", sessionID).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO sessions (session_id) VALUES (?)", sessionID); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read session digest: %w", err)
	case current == sum:
		return nil
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to clear old turns: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO turns
		(session_id, turn_index, role, content, structured, tool_calls, tool_call_id, tool_name, is_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, turn := range snapshot.Turns {
		var structured, calls, callID, toolName interface{}
		if len(turn.Structured) > 0 {
			structured = string(turn.Structured)
		}
		if len(turn.ToolCalls) > 0 {
			data, err := json.Marshal(turn.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to encode tool calls: %w", err)
			}
			calls = string(data)
		}
		if turn.ToolCallID != "" {
			callID = turn.ToolCallID
		}
		if turn.ToolName != "" {
			toolName = turn.ToolName
		}

		if _, err := stmt.ExecContext(ctx, sessionID, i, string(turn.Role), turn.Content,
			structured, calls, callID, toolName, turn.IsError); err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE sessions SET context_values = ?, digest = ?, updated_at = datetime('now') WHERE session_id = ?",
		string(valuesJSON), sum, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load loads the state of a session.
// Returns an empty snapshot if the session doesn't exist.
func (s *SqliteStorage) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	snapshot := Snapshot{Turns: []model.Turn{}, Values: model.Values{}}

	var valuesJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT context_values FROM sessions WHERE session_id = ?", sessionID).Scan(&valuesJSON)
	if err == sql.ErrNoRows {
		return snapshot, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query session: %w", err)
	}
	if err := json.Unmarshal([]byte(valuesJSON), &snapshot.Values); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode session values: %w", err)
	}
	if snapshot.Values == nil {
		snapshot.Values = model.Values{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, structured, tool_calls, tool_call_id, tool_name, is_error
		FROM turns WHERE session_id = ? ORDER BY turn_index ASC`,
		sessionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return Snapshot{}, err
		}
		snapshot.Turns = append(snapshot.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("error iterating turns: %w", err)
	}

	return snapshot, nil
}

func scanTurn(rows *sql.Rows) (model.Turn, error) {
	var (
		turn                                 model.Turn
		role                                 string
		structured, calls, callID, toolName sql.NullString
	)
	if err := rows.Scan(&role, &turn.Content, &structured, &calls, &callID, &toolName, &turn.IsError); err != nil {
		return model.Turn{}, fmt.Errorf("failed to scan turn: %w", err)
	}

	turn.Role = model.Role(role)
	if !turn.Role.Valid() {
		return model.Turn{}, fmt.Errorf("invalid role %q in database", role)
	}
	if structured.Valid {
		turn.Structured = json.RawMessage(structured.String)
	}
	if calls.Valid {
		if err := json.Unmarshal([]byte(calls.String), &turn.ToolCalls); err != nil {
			return model.Turn{}, fmt.Errorf("failed to decode tool calls: %w", err)
		}
	}
	turn.ToolCallID = callID.String
	turn.ToolName = toolName.String
	return turn, nil
}

// Delete deletes a session and its turns.
func (s *SqliteStorage) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListSessions lists all session IDs, most recently updated first.
func (s *SqliteStorage) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id FROM sessions ORDER BY updated_at DESC, session_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{} // Start with empty slice, not nil
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sessionID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// Exists checks if a session exists.
func (s *SqliteStorage) Exists(ctx context.Context, sessionID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE session_id = ?",
		sessionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}

	return count > 0, nil
}

// Verify SqliteStorage implements ConversationStorage
var _ ConversationStorage = (*SqliteStorage)(nil)
