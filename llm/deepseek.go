// DeepSeek Provider using the OpenAI-compatible API.
//
// Information Hiding:
// - Uses OpenAI-compatible API with different base URL
// - Supports deepseek-chat and deepseek-reasoner models

package llm

const deepseekBaseURL = "https://api.deepseek.com/v1"

// NewDeepSeekProvider creates a provider for DeepSeek. It speaks the
// OpenAI wire format, so it is an OpenAIProvider with another base URL.
func NewDeepSeekProvider(apiKey, model string, maxTokens uint32, temperature float32, opts ...ProviderOption) *OpenAIProvider {
	return newOpenAICompatible("deepseek", deepseekBaseURL, apiKey, model, maxTokens, temperature, opts)
}
