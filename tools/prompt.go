package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/richinex/toolthread/model"
)

// Prompter asks the human a question. Implementations must return when ctx
// is done.
type Prompter interface {
	Prompt(ctx context.Context, question string) (string, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, question string) (string, error)

// Prompt calls f.
func (f PrompterFunc) Prompt(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

const defaultQuestion = "Please enter the city name: "

// AskUserTool forwards a question to the person at the keyboard.
type AskUserTool struct {
	prompter Prompter
}

// NewAskUserTool creates the tool.
func NewAskUserTool(prompter Prompter) *AskUserTool {
	return &AskUserTool{prompter: prompter}
}

// Metadata returns the tool metadata.
func (t *AskUserTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "ask_user",
		Description: "Ask the user a question and return their answer, e.g. which city they mean",
		Parameters: []ToolParameter{
			{Name: "question", ParamType: "string", Description: "The question to show the user", Required: false},
		},
	}
}

// Execute prompts and returns the trimmed answer.
func (t *AskUserTool) Execute(ctx context.Context, args json.RawMessage, _ model.Values) (ToolResult, error) {
	var a struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return InvalidArgumentsf("invalid arguments: %v", err), nil
	}
	question := a.Question
	if strings.TrimSpace(question) == "" {
		question = defaultQuestion
	}

	answer, err := t.prompter.Prompt(ctx, question)
	if err != nil {
		return FailureResultf("prompt failed: %v", err), nil
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return FailureResultf("user gave no answer"), nil
	}
	return SuccessResult(answer), nil
}
