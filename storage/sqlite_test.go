package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/richinex/toolthread/model"
)

func newTestSqlite(t *testing.T) *SqliteStorage {
	t.Helper()
	storage, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestSqliteStorageSaveAndLoad(t *testing.T) {
	storage := newTestSqlite(t)
	ctx := context.Background()

	want := sampleSnapshot()
	want.Turns = append(want.Turns, model.AssistantStructured([]byte(`{"timeZone":"Europe/Paris"}`)))
	want.Turns = append(want.Turns,
		model.UserTurn("and in Atlantis?"),
		model.AssistantToolCalls("checking", []model.ToolCall{{ID: "call_2", Name: "get_current_time", Arguments: []byte(`{"city":"Atlantis"}`)}}),
		model.ToolResultTurn("call_2", "get_current_time", "unknown zone", true),
	)

	if err := storage.Save(ctx, "test-session", want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := storage.Load(ctx, "test-session")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSqliteStorageLoadNonexistentSession(t *testing.T) {
	storage := newTestSqlite(t)

	loaded, err := storage.Load(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Turns) != 0 {
		t.Errorf("expected empty turns, got %d", len(loaded.Turns))
	}
}

func TestSqliteStorageDeleteSession(t *testing.T) {
	storage := newTestSqlite(t)
	ctx := context.Background()

	if err := storage.Save(ctx, "test-session", sampleSnapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := storage.Delete(ctx, "test-session"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	exists, err := storage.Exists(ctx, "test-session")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("session should not exist after delete")
	}

	loaded, _ := storage.Load(ctx, "test-session")
	if len(loaded.Turns) != 0 {
		t.Errorf("expected turns removed with the session, got %d", len(loaded.Turns))
	}
}

func TestSqliteStorageListSessions(t *testing.T) {
	storage := newTestSqlite(t)
	ctx := context.Background()

	for _, id := range []string{"session-1", "session-2", "session-3"} {
		if err := storage.Save(ctx, id, sampleSnapshot()); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	sessions, err := storage.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("expected 3 sessions, got %d", len(sessions))
	}
}

func TestSqliteStorageOverwriteSession(t *testing.T) {
	storage := newTestSqlite(t)
	ctx := context.Background()

	if err := storage.Save(ctx, "s", sampleSnapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	shorter := Snapshot{
		Turns:  []model.Turn{model.UserTurn("fresh start")},
		Values: model.Values{"user_id": "1"},
	}
	if err := storage.Save(ctx, "s", shorter); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := storage.Load(ctx, "s")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Turns) != 1 || loaded.Turns[0].Content != "fresh start" {
		t.Errorf("expected overwritten transcript, got %v", loaded.Turns)
	}
	if id, _ := loaded.Values.String("user_id"); id != "1" {
		t.Errorf("expected user_id 1, got %q", id)
	}
}

func TestSqliteStorageUnchangedSaveIsSkipped(t *testing.T) {
	storage := newTestSqlite(t)
	ctx := context.Background()

	if err := storage.Save(ctx, "s", sampleSnapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var firstID int64
	if err := storage.db.QueryRow("SELECT MIN(id) FROM turns WHERE session_id = 's'").Scan(&firstID); err != nil {
		t.Fatal(err)
	}

	if err := storage.Save(ctx, "s", sampleSnapshot()); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	var afterID int64
	if err := storage.db.QueryRow("SELECT MIN(id) FROM turns WHERE session_id = 's'").Scan(&afterID); err != nil {
		t.Fatal(err)
	}
	if firstID != afterID {
		t.Errorf("identical snapshot rewrote turns (row id %d -> %d)", firstID, afterID)
	}
}

func TestOpenSqliteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.db")
	ctx := context.Background()

	storage, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("OpenSqlite failed: %v", err)
	}
	if err := storage.Save(ctx, "persisted", sampleSnapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	storage.Close()

	reopened, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load(ctx, "persisted")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Turns) != 4 {
		t.Errorf("expected 4 turns after reopen, got %d", len(loaded.Turns))
	}
}
