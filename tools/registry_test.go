package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/richinex/toolthread/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func echoTool(name string) Tool {
	return NewFunc(ToolMetadata{
		Name:        name,
		Description: "Echo the text argument",
		Parameters: []ToolParameter{
			{Name: "text", ParamType: "string", Description: "Text to echo", Required: true},
		},
	}, func(_ context.Context, args json.RawMessage, _ model.Values) (ToolResult, error) {
		var a struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return ToolResult{}, err
		}
		return SuccessResult(a.Text), nil
	})
}

func TestRegisterDuplicateKeepsFirst(t *testing.T) {
	r := NewRegistry()
	first := echoTool("echo")
	if err := r.Register(first); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	second := NewFunc(ToolMetadata{Name: "echo", Description: "impostor"}, nil)
	err := r.Register(second)

	var dup *DuplicateToolError
	if !errors.As(err, &dup) || dup.Name != "echo" {
		t.Fatalf("expected *DuplicateToolError for echo, got %v", err)
	}
	if !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("expected errors.Is(err, ErrDuplicateTool)")
	}

	got, _ := r.Lookup("echo")
	if got.Metadata().Description != "Echo the text argument" {
		t.Errorf("first registration was replaced: %q", got.Metadata().Description)
	}
}

func TestLookupUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("missing")

	var unknown *UnknownToolError
	if !errors.As(err, &unknown) || unknown.Name != "missing" {
		t.Fatalf("expected *UnknownToolError, got %v", err)
	}
	if !errors.Is(err, ErrUnknownTool) {
		t.Error("expected errors.Is(err, ErrUnknownTool)")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get should report missing tool")
	}
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewFunc(ToolMetadata{}, nil)); err == nil {
		t.Error("expected error for empty tool name")
	}
}

func TestRegisterRejectsInvalidSchema(t *testing.T) {
	r := NewRegistry()
	bad := NewFunc(ToolMetadata{
		Name:       "bad",
		Parameters: []ToolParameter{{Name: "x", ParamType: "widget"}},
	}, nil)
	if err := r.Register(bad); err == nil {
		t.Error("expected error for unknown parameter type")
	}
	if r.Has("bad") {
		t.Error("tool with invalid schema should not be registered")
	}
}

func TestDefinitionsSortedWithSchema(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(echoTool(name)); err != nil {
			t.Fatal(err)
		}
	}

	defs := r.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if defs[i].Name != want {
			t.Errorf("defs[%d] = %s, want %s", i, defs[i].Name, want)
		}
	}

	params := defs[0].Parameters
	if params["type"] != "object" {
		t.Errorf("expected object schema, got %v", params["type"])
	}
	required, _ := params["required"].([]interface{})
	if len(required) != 1 || required[0] != "text" {
		t.Errorf("expected required [text], got %v", params["required"])
	}
}

func TestMetadataSchemaEnum(t *testing.T) {
	meta := NewWeatherTool(1).Metadata()
	s := meta.Schema()

	props := s["properties"].(map[string]interface{})
	units := props["units"].(map[string]interface{})
	enum, _ := units["enum"].([]string)
	if len(enum) != 2 {
		t.Errorf("expected units enum, got %v", units["enum"])
	}
}

func TestDescriptionListsParameters(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoTool("echo"))
	_ = r.Register(NewUserLocationTool(""))

	desc := r.Description()
	for _, want := range []string{"Tool: echo", "text (string)", "[required]", "Tool: get_user_location", "(none)"} {
		if !strings.Contains(desc, want) {
			t.Errorf("description missing %q:\n%s", want, desc)
		}
	}
}

func TestWithDefaults(t *testing.T) {
	r, err := WithDefaults(DefaultsConfig{})
	if err != nil {
		t.Fatalf("WithDefaults failed: %v", err)
	}
	want := []string{"get_city_from_user", "get_current_time", "get_user_location", "get_weather_for_location"}
	got := r.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	withPrompt, err := WithDefaults(DefaultsConfig{
		Prompter: PrompterFunc(func(context.Context, string) (string, error) { return "Paris", nil }),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !withPrompt.Has("ask_user") {
		t.Error("expected ask_user when a prompter is supplied")
	}
}
