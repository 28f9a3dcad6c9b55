package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/richinex/toolthread/model"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Turns: []model.Turn{
			model.UserTurn("What time is it in Paris?"),
			model.AssistantToolCalls("", []model.ToolCall{
				{ID: "call_1", Name: "get_current_time", Arguments: json.RawMessage(`{"city":"Paris"}`)},
			}),
			model.ToolResultTurn("call_1", "get_current_time", `{"time":"15:04"}`, false),
			model.AssistantText("It's 15:04 in Paris."),
		},
		Values: model.Values{"user_id": "2"},
	}
}

func TestInMemoryStorageSaveAndLoad(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()

	if err := storage.Save(ctx, "test-session", sampleSnapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := storage.Load(ctx, "test-session")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded.Turns) != 4 {
		t.Errorf("expected 4 turns, got %d", len(loaded.Turns))
	}
	if loaded.Turns[2].ToolCallID != "call_1" {
		t.Errorf("expected tool result for call_1, got '%s'", loaded.Turns[2].ToolCallID)
	}
	if id, _ := loaded.Values.String("user_id"); id != "2" {
		t.Errorf("expected user_id 2, got '%s'", id)
	}
}

func TestInMemoryStorageLoadNonexistentSession(t *testing.T) {
	storage := NewInMemoryStorage()

	loaded, err := storage.Load(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Turns == nil || len(loaded.Turns) != 0 {
		t.Errorf("expected empty non-nil turns, got %v", loaded.Turns)
	}
	if loaded.Values == nil {
		t.Error("expected empty non-nil values")
	}
}

func TestInMemoryStorageDeleteSession(t *testing.T) {
	storage := NewInMemoryStorage()
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
}

func TestInMemoryStorageListSessions(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		if err := storage.Save(ctx, id, Snapshot{}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	sessions, err := storage.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 3 || sessions[0] != "a" || sessions[2] != "c" {
		t.Errorf("expected sorted [a b c], got %v", sessions)
	}
}

func TestInMemoryStorageIsolation(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()

	snapshot := sampleSnapshot()
	if err := storage.Save(ctx, "s", snapshot); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Mutating the caller's copy must not reach the store.
	snapshot.Turns[0].Content = "mutated"
	snapshot.Turns[1].ToolCalls[0].Arguments[2] = 'X'
	snapshot.Values["user_id"] = "9"

	loaded, _ := storage.Load(ctx, "s")
	if loaded.Turns[0].Content != "What time is it in Paris?" {
		t.Errorf("stored content was mutated: %q", loaded.Turns[0].Content)
	}
	if string(loaded.Turns[1].ToolCalls[0].Arguments) != `{"city":"Paris"}` {
		t.Errorf("stored arguments were mutated: %s", loaded.Turns[1].ToolCalls[0].Arguments)
	}
	if id, _ := loaded.Values.String("user_id"); id != "2" {
		t.Errorf("stored values were mutated: %v", loaded.Values)
	}
}
