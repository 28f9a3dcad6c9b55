// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error classification

package llm

import (
	"context"
	"net/http"
)

// Provider defines the abstract interface for LLM providers.
// Implementations hide provider-specific details while exposing
// a consistent interface for tool-calling chat completions.
type Provider interface {
	// Name returns the provider name (for logging/metrics).
	Name() string

	// Model returns the current model being used.
	Model() string

	// ChatWithTools sends a chat completion request with tool definitions.
	// The LLM may respond with tool calls in LLMResponse.ToolCalls.
	// Failures reaching the API are returned as *StatusError.
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error)
}

// ProviderOption customizes how a provider reaches its API.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	baseURL    string
	httpClient *http.Client
}

// WithBaseURL points the provider at a different API endpoint (a proxy,
// a compatible gateway or a test server).
func WithBaseURL(url string) ProviderOption {
	return func(o *providerOptions) {
		o.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(o *providerOptions) {
		o.httpClient = client
	}
}

func applyOptions(opts []ProviderOption) providerOptions {
	var o providerOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
