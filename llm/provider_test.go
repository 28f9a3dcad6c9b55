// Provider adapter tests against local fake APIs. Error cases also check
// that API keys never leak into error messages.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// fakeAPI serves a fixed status and body and keeps the last request body.
type fakeAPI struct {
	mu     sync.Mutex
	status int
	body   string
	last   []byte
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.last = data
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = io.WriteString(w, f.body)
}

func (f *fakeAPI) request(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out map[string]any
	if err := json.Unmarshal(f.last, &out); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	return out
}

func serve(t *testing.T, api *fakeAPI) string {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	return server.URL
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var roundTrip = []ChatMessage{
	SystemMessage("be brief"),
	UserMessage("time in Paris and Tokyo?"),
	{Role: RoleAssistant, ToolCalls: []ToolCall{
		{ID: "c1", Name: "get_current_time", Arguments: json.RawMessage(`{"city":"Paris"}`)},
		{ID: "c2", Name: "get_current_time", Arguments: json.RawMessage(`{"city":"Tokyo"}`)},
	}},
	ToolMessage("c1", "get_current_time", `{"time":"12:00"}`, false),
	ToolMessage("c2", "get_current_time", `{"success":false}`, true),
}

var timeTool = []ToolDefinition{{
	Name:        "get_current_time",
	Description: "Current time",
	Parameters: map[string]interface{}{
		"type":                 "object",
		"properties":           map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
		"required":             []interface{}{"city"},
		"additionalProperties": false,
	},
}}

func TestOpenAIProviderToolCalls(t *testing.T) {
	api := &fakeAPI{status: http.StatusOK, body: `{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-test",
		"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
			"role": "assistant", "content": "",
			"tool_calls": [{"id": "call_9", "type": "function",
				"function": {"name": "get_current_time", "arguments": "{\"city\":\"Lima\"}"}}]}}],
		"usage": {"prompt_tokens": 11, "completion_tokens": 4, "total_tokens": 15}}`}
	provider := NewOpenAIProvider("sk-test", "gpt-test", 100, 0, WithBaseURL(serve(t, api)))

	resp, err := provider.ChatWithTools(testContext(t), roundTrip, timeTool)
	if err != nil {
		t.Fatalf("ChatWithTools failed: %v", err)
	}
	if resp.StopReason != StopToolUse {
		t.Errorf("stop reason = %s", resp.StopReason)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "call_9" || string(resp.ToolCalls[0].Arguments) != `{"city":"Lima"}` {
		t.Errorf("unexpected tool calls %+v", resp.ToolCalls)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}

	messages := api.request(t)["messages"].([]any)
	if len(messages) != 5 {
		t.Fatalf("expected 5 messages sent, got %d", len(messages))
	}
	result := messages[3].(map[string]any)
	if result["role"] != "tool" || result["tool_call_id"] != "c1" {
		t.Errorf("unexpected tool message %v", result)
	}
}

func TestDeepSeekProviderName(t *testing.T) {
	provider := NewDeepSeekProvider("sk-test", ModelDeepSeekV32, 100, 0)
	if provider.Name() != "deepseek" {
		t.Errorf("Name() = %s", provider.Name())
	}
}

func TestAnthropicProviderMergesToolResults(t *testing.T) {
	api := &fakeAPI{status: http.StatusOK, body: `{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
		"content": [{"type": "text", "text": "Checking."},
			{"type": "tool_use", "id": "toolu_1", "name": "get_current_time", "input": {"city": "Lima"}}],
		"stop_reason": "tool_use", "stop_sequence": null,
		"usage": {"input_tokens": 20, "output_tokens": 6}}`}
	provider := NewAnthropicProvider("sk-ant-test", "claude-test", 100, 0, WithBaseURL(serve(t, api)))

	resp, err := provider.ChatWithTools(testContext(t), roundTrip, timeTool)
	if err != nil {
		t.Fatalf("ChatWithTools failed: %v", err)
	}
	if resp.Content != "Checking." || resp.StopReason != StopToolUse {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "toolu_1" {
		t.Errorf("unexpected tool calls %+v", resp.ToolCalls)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 26 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}

	req := api.request(t)
	messages := req["messages"].([]any)
	if len(messages) != 3 {
		t.Fatalf("expected user, assistant and one merged result message, got %d", len(messages))
	}
	results := messages[2].(map[string]any)["content"].([]any)
	if len(results) != 2 {
		t.Fatalf("expected both tool results in one message, got %d", len(results))
	}
	if isErr, _ := results[1].(map[string]any)["is_error"].(bool); !isErr {
		t.Errorf("expected is_error on the failed result, got %v", results[1])
	}

	tools := req["tools"].([]any)
	schema := tools[0].(map[string]any)["input_schema"].(map[string]any)
	if schema["additionalProperties"] != false {
		t.Errorf("extra schema keywords dropped: %v", schema)
	}
}

func TestGeminiProviderMintsCallIDs(t *testing.T) {
	api := &fakeAPI{status: http.StatusOK, body: `{
		"candidates": [{"content": {"role": "model", "parts": [
			{"functionCall": {"name": "get_current_time", "args": {"city": "Lima"}}}]},
			"finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 9, "candidatesTokenCount": 3, "totalTokenCount": 12}}`}
	provider := NewGeminiProvider("test-key", "gemini-test", 100, 0, WithBaseURL(serve(t, api)))

	resp, err := provider.ChatWithTools(testContext(t), roundTrip, timeTool)
	if err != nil {
		t.Fatalf("ChatWithTools failed: %v", err)
	}
	if resp.StopReason != StopToolUse {
		t.Errorf("stop reason = %s", resp.StopReason)
	}
	if len(resp.ToolCalls) != 1 || !strings.HasPrefix(resp.ToolCalls[0].ID, "call_") {
		t.Errorf("expected a minted call id, got %+v", resp.ToolCalls)
	}

	contents := api.request(t)["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("expected user, model and one merged response content, got %d", len(contents))
	}
	parts := contents[2].(map[string]any)["parts"].([]any)
	if len(parts) != 2 {
		t.Errorf("expected both function responses together, got %d parts", len(parts))
	}
}

func TestProviderErrorsAreClassifiedWithoutLeakingKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
		make func(key, url string) Provider
	}{
		{"openai", "sk-test-invalid-key-12345xyz", func(key, url string) Provider {
			return NewOpenAIProvider(key, "gpt-test", 100, 0, WithBaseURL(url))
		}},
		{"anthropic", "sk-ant-REDACTED", func(key, url string) Provider {
			return NewAnthropicProvider(key, "claude-test", 100, 0, WithBaseURL(url))
		}},
		{"gemini", "test-invalid-key-12345xyz", func(key, url string) Provider {
			return NewGeminiProvider(key, "gemini-test", 100, 0, WithBaseURL(url))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{
				status: http.StatusServiceUnavailable,
				body:   `{"error": {"message": "overloaded", "type": "overloaded_error", "code": 503}}`,
			}
			provider := tt.make(tt.key, serve(t, api))

			_, err := provider.ChatWithTools(testContext(t), []ChatMessage{UserMessage("test")}, nil)
			if err == nil {
				t.Fatal("expected an error")
			}

			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("expected *StatusError, got %T: %v", err, err)
			}
			if statusErr.StatusCode != http.StatusServiceUnavailable || !statusErr.Retryable() {
				t.Errorf("expected retryable 503, got %d", statusErr.StatusCode)
			}

			errStr := err.Error()
			if strings.Contains(errStr, tt.key) {
				t.Errorf("error message leaked API key: %v", errStr)
			}
			if strings.Contains(errStr, "Authorization:") || strings.Contains(errStr, "x-api-key:") {
				t.Errorf("error exposed an auth header: %v", errStr)
			}
		})
	}
}

func TestGeminiInitErrorPreserved(t *testing.T) {
	provider := NewGeminiProvider("", "gemini-test", 100, 0)
	if provider.initErr == nil {
		t.Skip("client initialized without a key (credentials found in environment)")
	}

	_, err := provider.ChatWithTools(testContext(t), []ChatMessage{UserMessage("test")}, nil)
	if err == nil || !strings.Contains(err.Error(), "failed to initialize") {
		t.Errorf("expected initialization error, got %v", err)
	}
}

func TestStatusErrorRetryable(t *testing.T) {
	tests := []struct {
		err  *StatusError
		want bool
	}{
		{&StatusError{StatusCode: 400}, false},
		{&StatusError{StatusCode: 401}, false},
		{&StatusError{StatusCode: 408}, true},
		{&StatusError{StatusCode: 429}, true},
		{&StatusError{StatusCode: 500}, true},
		{&StatusError{StatusCode: 503}, true},
		{&StatusError{Err: io.ErrUnexpectedEOF}, true},
		{&StatusError{Err: context.DeadlineExceeded}, true},
		{&StatusError{Err: errors.New("invalid request")}, false},
	}

	for _, tt := range tests {
		if got := tt.err.Retryable(); got != tt.want {
			t.Errorf("Retryable(%d, %v) = %v, want %v", tt.err.StatusCode, tt.err.Err, got, tt.want)
		}
	}
}

func TestStatusCodeFromSDKErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"openai api", &openai.APIError{HTTPStatusCode: 429}, 429},
		{"openai request", &openai.RequestError{HTTPStatusCode: 502}, 502},
		{"anthropic", &anthropic.Error{StatusCode: 529}, 529},
		{"gemini", genai.APIError{Code: 503}, 503},
		{"plain", errors.New("boom"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusCode(tt.err); got != tt.want {
				t.Errorf("statusCode = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWrapErrorPassesCancellationThrough(t *testing.T) {
	if err := wrapError("openai", context.Canceled); err != context.Canceled {
		t.Errorf("expected context.Canceled unchanged, got %v", err)
	}
}
