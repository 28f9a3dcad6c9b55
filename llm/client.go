// Model client - turns a provider completion into one agent decision.
//
// Information Hiding:
// - Transcript to chat message conversion hidden
// - Structured output via a synthetic answer tool hidden
// - Per-attempt timeout, retry and backoff hidden
// - Decision classification (tool request, text, structured) made once here

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	jsonx "github.com/richinex/toolthread/internal/json"
	"github.com/richinex/toolthread/internal/observability"
	"github.com/richinex/toolthread/model"
	"github.com/richinex/toolthread/schema"
)

// DefaultAnswerTool names the synthetic tool used for structured answers
// when the schema name cannot be used as a tool name.
const DefaultAnswerTool = "final_response"

// ModelClient produces the next decision for a conversation.
type ModelClient interface {
	Complete(ctx context.Context, req Request) (ModelTurn, error)
}

// Request is one model call: the system prompt, the conversation so far,
// the tools on offer and an optional schema for the final answer.
type Request struct {
	System string
	Turns  []model.Turn
	Tools  []ToolDefinition
	Schema *schema.Descriptor
}

// ModelTurn is the model's decision: *ToolRequest, *FinalText or
// *FinalStructured. The set is closed.
type ModelTurn interface {
	modelTurn()
}

// ToolRequest asks for one round of tool calls.
type ToolRequest struct {
	Text  string
	Calls []model.ToolCall
	Usage *TokenUsage
}

// FinalText is a terminal free-text answer.
type FinalText struct {
	Text  string
	Usage *TokenUsage
}

// FinalStructured is a terminal answer that conforms to the requested schema.
type FinalStructured struct {
	Record json.RawMessage
	Usage  *TokenUsage
}

func (*ToolRequest) modelTurn()     {}
func (*FinalText) modelTurn()       {}
func (*FinalStructured) modelTurn() {}

// UsageOf returns the token usage reported with a decision, if any.
func UsageOf(turn ModelTurn) *TokenUsage {
	switch t := turn.(type) {
	case *ToolRequest:
		return t.Usage
	case *FinalText:
		return t.Usage
	case *FinalStructured:
		return t.Usage
	default:
		return nil
	}
}

// ClientConfig controls timeouts and retries of model calls.
type ClientConfig struct {
	// Timeout bounds a single attempt. Zero means 60 seconds.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt for
	// transient failures.
	MaxRetries int
	// BaseBackoff is the delay before the first retry; it doubles per
	// retry up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultClientConfig returns the default timeouts and retry policy.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

func (c ClientConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return c.Timeout
}

// backoff returns the delay before retry number attempt (0-based).
func (c ClientConfig) backoff(attempt int) time.Duration {
	delay := c.BaseBackoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	ceiling := c.MaxBackoff
	if ceiling <= 0 {
		ceiling = 5 * time.Second
	}
	for i := 0; i < attempt && delay < ceiling; i++ {
		delay *= 2
	}
	if delay > ceiling {
		delay = ceiling
	}
	return delay
}

// Client implements ModelClient over a Provider.
type Client struct {
	provider Provider
	config   ClientConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewClient creates a new model client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{
		provider: provider,
		config:   DefaultClientConfig(),
		logger:   observability.NopLogger(),
	}
}

// WithConfig sets timeouts and the retry policy.
func (c *Client) WithConfig(config ClientConfig) *Client {
	c.config = config
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithMetrics sets the metrics sink.
func (c *Client) WithMetrics(metrics *observability.Metrics) *Client {
	c.metrics = metrics
	return c
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// Complete sends the conversation to the provider and classifies the reply.
// Caller cancellation is returned as the context error; every other failure
// is a *ModelError.
func (c *Client) Complete(ctx context.Context, req Request) (ModelTurn, error) {
	answerTool := ""
	tools := req.Tools
	if req.Schema != nil {
		answerTool = answerToolName(req.Schema, req.Tools)
		tools = append(append([]ToolDefinition(nil), req.Tools...), ToolDefinition{
			Name:        answerTool,
			Description: answerToolDescription(req.Schema),
			Parameters:  req.Schema.Parameters(),
		})
	}

	messages := ConvertTurns(systemPrompt(req.System, answerTool), req.Turns)

	resp, err := c.chat(ctx, messages, tools)
	if err != nil {
		return nil, err
	}
	return decide(req.Schema, answerTool, resp)
}

// chat calls the provider, retrying transient failures with exponential
// backoff.
func (c *Client) chat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	name := c.provider.Name()

	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.config.timeout())
		start := time.Now()
		resp, err := c.provider.ChatWithTools(attemptCtx, messages, tools)
		cancel()
		elapsed := time.Since(start)

		if err == nil {
			c.metrics.ModelCalled(name, "success", elapsed)
			if resp.Usage != nil {
				c.metrics.TokensConsumed(name, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			}
			c.logger.Debug("model call completed",
				"provider", name,
				"model", c.provider.Model(),
				"attempt", attempt+1,
				"tool_calls", len(resp.ToolCalls),
				"stop_reason", string(resp.StopReason),
				"duration", elapsed)
			return resp, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			c.metrics.ModelCalled(name, "cancelled", elapsed)
			return LLMResponse{}, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &StatusError{
				Provider: name,
				Err:      fmt.Errorf("attempt timed out after %s: %w", c.config.timeout(), err),
			}
		}

		if !IsRetryable(err) || attempt >= c.config.MaxRetries {
			c.metrics.ModelCalled(name, "error", elapsed)
			c.logger.Warn("model call failed",
				"provider", name,
				"attempt", attempt+1,
				"error", err)
			return LLMResponse{}, NewModelError(KindTransport,
				fmt.Sprintf("%d attempt(s)", attempt+1), err)
		}

		delay := c.config.backoff(attempt)
		c.metrics.ModelCalled(name, "retry", elapsed)
		c.metrics.ModelRetried(name)
		c.logger.Warn("retrying model call",
			"provider", name,
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return LLMResponse{}, ctx.Err()
		}
	}
}

// decide classifies a provider response into exactly one ModelTurn.
func decide(desc *schema.Descriptor, answerTool string, resp LLMResponse) (ModelTurn, error) {
	var answers, calls []model.ToolCall
	for _, tc := range resp.ToolCalls {
		call := model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: append(json.RawMessage(nil), tc.Arguments...),
		}
		if answerTool != "" && tc.Name == answerTool {
			answers = append(answers, call)
			continue
		}
		calls = append(calls, call)
	}

	text := strings.TrimSpace(resp.Content)

	switch {
	case len(answers) > 0:
		if len(answers) > 1 || len(calls) > 0 {
			return nil, NewModelError(KindMalformed,
				fmt.Sprintf("%s must be called alone", answerTool), nil)
		}
		return structured(desc, answers[0].Arguments, resp.Usage)

	case len(calls) > 0:
		return &ToolRequest{Text: resp.Content, Calls: calls, Usage: resp.Usage}, nil

	case resp.StopReason == StopToolUse:
		return nil, NewModelError(KindEmptyToolRequest, "stop reason was tool use but no calls were named", nil)

	case text == "":
		detail := "empty response"
		if resp.StopReason == StopMaxTokens {
			detail = "empty response, output truncated at max tokens"
		}
		return nil, NewModelError(KindMalformed, detail, nil)

	case desc != nil:
		raw, err := jsonx.ExtractObject(text)
		if err != nil {
			return nil, NewModelError(KindSchemaViolation,
				fmt.Sprintf("plain text answer while %s was requested", desc.Name), err)
		}
		return structured(desc, raw, resp.Usage)

	default:
		return &FinalText{Text: resp.Content, Usage: resp.Usage}, nil
	}
}

func structured(desc *schema.Descriptor, raw json.RawMessage, usage *TokenUsage) (ModelTurn, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := desc.Validate(raw); err != nil {
		return nil, NewModelError(KindSchemaViolation, "", err)
	}
	return &FinalStructured{Record: jsonx.Compact(raw), Usage: usage}, nil
}

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// answerToolName uses the schema name when it is a legal tool name that
// does not shadow a real tool. Otherwise it falls back to DefaultAnswerTool,
// suffixed until it is free.
func answerToolName(desc *schema.Descriptor, tools []ToolDefinition) string {
	taken := make(map[string]bool, len(tools))
	for _, t := range tools {
		taken[t.Name] = true
	}
	if toolNamePattern.MatchString(desc.Name) && !taken[desc.Name] {
		return desc.Name
	}

	name := DefaultAnswerTool
	for i := 2; taken[name]; i++ {
		name = fmt.Sprintf("%s_%d", DefaultAnswerTool, i)
	}
	return name
}

func answerToolDescription(desc *schema.Descriptor) string {
	if desc.Description != "" {
		return "Submit the final answer. " + desc.Description
	}
	return "Submit the final answer."
}

func systemPrompt(base, answerTool string) string {
	if answerTool == "" {
		return base
	}
	instruction := fmt.Sprintf(
		"When you have everything needed to answer, respond by calling the %s tool with the answer as its arguments. "+
			"Call it on its own, never together with other tools, and do not answer in plain text.", answerTool)
	if base == "" {
		return instruction
	}
	return base + "\n\n" + instruction
}

// ConvertTurns renders a transcript as provider chat messages, led by the
// system prompt when one is given.
func ConvertTurns(system string, turns []model.Turn) []ChatMessage {
	messages := make([]ChatMessage, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, SystemMessage(system))
	}

	for _, turn := range turns {
		switch turn.Role {
		case model.RoleSystem:
			messages = append(messages, SystemMessage(turn.Content))
		case model.RoleUser:
			messages = append(messages, UserMessage(turn.Content))
		case model.RoleAssistant:
			switch {
			case len(turn.ToolCalls) > 0:
				calls := make([]ToolCall, len(turn.ToolCalls))
				for i, c := range turn.ToolCalls {
					calls[i] = ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments}
				}
				messages = append(messages, ChatMessage{
					Role:      RoleAssistant,
					Content:   turn.Content,
					ToolCalls: calls,
				})
			case len(turn.Structured) > 0:
				messages = append(messages, AssistantMessage(string(turn.Structured)))
			default:
				messages = append(messages, AssistantMessage(turn.Content))
			}
		case model.RoleTool:
			messages = append(messages, ToolMessage(turn.ToolCallID, turn.ToolName, turn.Content, turn.IsError))
		}
	}
	return messages
}

// Verify Client implements ModelClient
var _ ModelClient = (*Client)(nil)
