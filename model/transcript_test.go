package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTranscriptAppendRound(t *testing.T) {
	tr := NewTranscript()

	err := tr.Append(
		UserTurn("what city and time?"),
		AssistantToolCalls("", []ToolCall{{ID: "t1", Name: "get_city_from_user", Arguments: json.RawMessage(`{}`)}}),
		ToolResultTurn("t1", "get_city_from_user", "Atlanta", false),
	)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if tr.Len() != 3 {
		t.Errorf("expected 3 turns, got %d", tr.Len())
	}
	if len(tr.Pending()) != 0 {
		t.Errorf("expected no pending calls, got %v", tr.Pending())
	}
	if !tr.Issued("t1") {
		t.Error("expected t1 to be recorded as issued")
	}
}

func TestTranscriptRejectsForgedToolCallID(t *testing.T) {
	tr := NewTranscript()
	if err := tr.Append(
		UserTurn("hi"),
		AssistantToolCalls("", []ToolCall{{ID: "t1", Name: "get_weather"}}),
	); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	err := tr.Append(ToolResultTurn("forged", "get_weather", "sunny", false))
	if !errors.Is(err, ErrUnknownToolCallID) {
		t.Fatalf("expected ErrUnknownToolCallID, got %v", err)
	}
	if tr.Len() != 2 {
		t.Errorf("rejected append must not change the transcript, got %d turns", tr.Len())
	}
}

func TestTranscriptRejectsAnsweringTwice(t *testing.T) {
	tr := NewTranscript()
	err := tr.Append(
		AssistantToolCalls("", []ToolCall{{ID: "t1", Name: "a"}}),
		ToolResultTurn("t1", "a", "ok", false),
	)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	err = tr.Append(ToolResultTurn("t1", "a", "again", false))
	if !errors.Is(err, ErrUnknownToolCallID) {
		t.Fatalf("expected ErrUnknownToolCallID for an already answered call, got %v", err)
	}
}

func TestTranscriptRejectsDuplicateCallIDs(t *testing.T) {
	tests := []struct {
		name  string
		setup []Turn
		batch []Turn
	}{
		{
			name:  "within one turn",
			batch: []Turn{AssistantToolCalls("", []ToolCall{{ID: "x", Name: "a"}, {ID: "x", Name: "b"}})},
		},
		{
			name: "reused from earlier round",
			setup: []Turn{
				AssistantToolCalls("", []ToolCall{{ID: "x", Name: "a"}}),
				ToolResultTurn("x", "a", "ok", false),
			},
			batch: []Turn{AssistantToolCalls("", []ToolCall{{ID: "x", Name: "a"}})},
		},
		{
			name:  "empty id",
			batch: []Turn{AssistantToolCalls("", []ToolCall{{ID: "", Name: "a"}})},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTranscript()
			if err := tr.Append(tt.setup...); err != nil {
				t.Fatalf("setup failed: %v", err)
			}
			before := tr.Len()

			err := tr.Append(tt.batch...)
			if !errors.Is(err, ErrDuplicateToolCallID) {
				t.Fatalf("expected ErrDuplicateToolCallID, got %v", err)
			}
			if tr.Len() != before {
				t.Errorf("expected %d turns after rejection, got %d", before, tr.Len())
			}
		})
	}
}

func TestTranscriptRejectsUnknownRole(t *testing.T) {
	tr := NewTranscript()
	err := tr.Append(Turn{Role: "narrator", Content: "once upon a time"})
	if !errors.Is(err, ErrInvalidTurn) {
		t.Fatalf("expected ErrInvalidTurn, got %v", err)
	}
}

func TestTranscriptAppendIsAtomic(t *testing.T) {
	tr := NewTranscript()
	err := tr.Append(
		UserTurn("hello"),
		AssistantToolCalls("", []ToolCall{{ID: "t1", Name: "a"}}),
		ToolResultTurn("nope", "a", "x", false),
	)
	if err == nil {
		t.Fatal("expected error")
	}
	if tr.Len() != 0 {
		t.Errorf("expected empty transcript after failed batch, got %d turns", tr.Len())
	}
	if tr.Issued("t1") {
		t.Error("failed batch must not record issued ids")
	}
}

func TestTranscriptTurnsAreImmutable(t *testing.T) {
	tr := NewTranscript()
	calls := []ToolCall{{ID: "t1", Name: "a", Arguments: json.RawMessage(`{"city":"Paris"}`)}}
	if err := tr.Append(AssistantToolCalls("", calls)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	calls[0].Name = "mutated"
	got := tr.Turns()
	got[0].ToolCalls[0].Arguments[2] = 'X'

	again := tr.Turns()
	if again[0].ToolCalls[0].Name != "a" {
		t.Errorf("caller mutation leaked into transcript: %q", again[0].ToolCalls[0].Name)
	}
	if string(again[0].ToolCalls[0].Arguments) != `{"city":"Paris"}` {
		t.Errorf("reader mutation leaked into transcript: %s", again[0].ToolCalls[0].Arguments)
	}
}

func TestTranscriptCloneIsIndependent(t *testing.T) {
	tr := NewTranscript()
	if err := tr.Append(UserTurn("one")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	clone := tr.Clone()
	if err := clone.Append(AssistantText("two")); err != nil {
		t.Fatalf("Append on clone failed: %v", err)
	}

	if tr.Len() != 1 {
		t.Errorf("original changed after clone append: %d turns", tr.Len())
	}
	if diff := cmp.Diff(tr.Turns(), clone.Since(0)[:1]); diff != "" {
		t.Errorf("clone prefix differs (-orig +clone):\n%s", diff)
	}
}

func TestRestoreTranscript(t *testing.T) {
	turns := []Turn{
		UserTurn("weather?"),
		AssistantToolCalls("", []ToolCall{{ID: "c1", Name: "get_weather_for_location"}}),
		ToolResultTurn("c1", "get_weather_for_location", "sunny", false),
		AssistantText("Sun's out, puns out."),
	}

	tr, err := RestoreTranscript(turns)
	if err != nil {
		t.Fatalf("RestoreTranscript failed: %v", err)
	}
	if diff := cmp.Diff(turns, tr.Turns()); diff != "" {
		t.Errorf("restored turns differ (-want +got):\n%s", diff)
	}

	if _, err := RestoreTranscript([]Turn{ToolResultTurn("ghost", "x", "", false)}); err == nil {
		t.Error("expected error restoring an orphan tool result")
	}
}

func TestSinceBounds(t *testing.T) {
	tr := NewTranscript()
	_ = tr.Append(UserTurn("a"), AssistantText("b"))

	if got := tr.Since(5); len(got) != 0 {
		t.Errorf("expected empty slice past the end, got %d", len(got))
	}
	if got := tr.Since(-1); len(got) != 2 {
		t.Errorf("expected all turns for negative index, got %d", len(got))
	}
	if got := tr.Since(1); len(got) != 1 || got[0].Content != "b" {
		t.Errorf("unexpected Since(1): %v", got)
	}
}

func TestValuesString(t *testing.T) {
	v := Values{"user_id": "1", "n": 2}

	if s, ok := v.String("user_id"); !ok || s != "1" {
		t.Errorf("expected user_id=1, got %q %v", s, ok)
	}
	if s, ok := v.String("n"); !ok || s != "2" {
		t.Errorf("expected n=2, got %q %v", s, ok)
	}
	if _, ok := v.String("missing"); ok {
		t.Error("expected missing key to report false")
	}

	var nilValues Values
	if c := nilValues.Clone(); c == nil {
		t.Error("expected Clone of nil to be an empty map")
	}
}
