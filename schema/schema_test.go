package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type timeReport struct {
	Timezone  string  `json:"timezone"`
	Date      string  `json:"date"`
	Time      string  `json:"time"`
	DayOfWeek string  `json:"dayOfWeek"`
	Summary   *string `json:"summary,omitempty"`
}

func TestForRequiresNonOmitemptyFields(t *testing.T) {
	d, err := For[timeReport]("time_report", "Current time in a city")
	if err != nil {
		t.Fatalf("For failed: %v", err)
	}

	valid := json.RawMessage(`{"timezone":"America/New_York","date":"10/17/2026","time":"09:15","dayOfWeek":"Saturday"}`)
	if err := d.Validate(valid); err != nil {
		t.Errorf("expected valid record, got %v", err)
	}

	missing := json.RawMessage(`{"timezone":"America/New_York"}`)
	err = d.Validate(missing)
	if !errors.Is(err, ErrViolation) {
		t.Fatalf("expected ErrViolation, got %v", err)
	}
}

func TestForRejectsWrongTypes(t *testing.T) {
	d := MustFor[timeReport]("time_report", "")

	err := d.Validate(json.RawMessage(`{"timezone":1,"date":"d","time":"t","dayOfWeek":"w"}`))
	if !errors.Is(err, ErrViolation) {
		t.Fatalf("expected ErrViolation, got %v", err)
	}
	if !strings.Contains(err.Error(), "/timezone") {
		t.Errorf("expected error to point at /timezone, got %v", err)
	}
}

func TestParametersDropsMetaKeywords(t *testing.T) {
	d, err := New("args", "", json.RawMessage(`{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"properties": {"city": {"type": "string"}},
		"required": ["city"]
	}`))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	params := d.Parameters()
	if _, ok := params["$schema"]; ok {
		t.Error("expected $schema to be stripped")
	}
	if params["type"] != "object" {
		t.Errorf("expected type object, got %v", params["type"])
	}
}

func TestValidateTreatsEmptyAsObject(t *testing.T) {
	d, err := FromMap("noargs", "", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("FromMap failed: %v", err)
	}

	for _, raw := range []string{"", "null", "  "} {
		if err := d.Validate(json.RawMessage(raw)); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", raw, err)
		}
	}
}

func TestValidateRejectsInvalidJSON(t *testing.T) {
	d, _ := FromMap("noargs", "", map[string]any{"type": "object"})
	if err := d.Validate(json.RawMessage(`{not json`)); !errors.Is(err, ErrViolation) {
		t.Errorf("expected ErrViolation for invalid JSON, got %v", err)
	}
}

func TestNewRejectsBadSchema(t *testing.T) {
	if _, err := New("", "", json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := New("bad", "", json.RawMessage(`{"type": 12}`)); err == nil {
		t.Error("expected error for invalid schema document")
	}
}

func TestDecode(t *testing.T) {
	d := MustFor[timeReport]("time_report", "")

	got, err := Decode[timeReport](d, json.RawMessage(`{"timezone":"Europe/Paris","date":"d","time":"t","dayOfWeek":"Monday","summary":"Mon-dieu, it's Monday"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Timezone != "Europe/Paris" || got.Summary == nil || *got.Summary == "" {
		t.Errorf("unexpected decoded record: %+v", got)
	}

	if _, err := Decode[timeReport](d, json.RawMessage(`{"error":"boom"}`)); !errors.Is(err, ErrViolation) {
		t.Errorf("expected ErrViolation for error payload, got %v", err)
	}
}
