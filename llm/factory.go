// Provider selection and model client assembly.
//
// A ProviderBuilder collects the provider, model and sampling settings, then
// either returns the bare Provider or, through Client, the retrying *Client
// the agent talks to:
//
//	client, err := llm.ProviderAnthropic.
//	    Model(llm.ModelAnthropicClaudeSonnet4).
//	    Temperature(0).
//	    Logger(logger).
//	    Client(llm.DefaultClientConfig())
//
// Information Hiding:
// - Per-provider environment variables and default models hidden in one table
// - Provider constructors hidden behind ProviderType
// - Client decoration (retry policy, logging, metrics) hidden behind Client

package llm

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/richinex/toolthread/internal/observability"
)

// ProviderType identifies a supported model vendor.
type ProviderType int

const (
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI ProviderType = iota
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderDeepSeek is the DeepSeek provider.
	ProviderDeepSeek
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
)

// providerSpec is everything the factory knows about one vendor.
type providerSpec struct {
	name         string
	aliases      []string
	keyEnv       string
	modelEnv     string
	defaultModel string
	construct    func(apiKey, model string, maxTokens uint32, temperature float32, opts ...ProviderOption) Provider
}

var providerSpecs = map[ProviderType]providerSpec{
	ProviderOpenAI: {
		name:         "openai",
		aliases:      []string{"gpt"},
		keyEnv:       "OPENAI_API_KEY",
		modelEnv:     "OPENAI_MODEL",
		defaultModel: ModelOpenAIGPT52,
		construct: func(key, model string, maxTokens uint32, temperature float32, opts ...ProviderOption) Provider {
			return NewOpenAIProvider(key, model, maxTokens, temperature, opts...)
		},
	},
	ProviderAnthropic: {
		name:         "anthropic",
		aliases:      []string{"claude"},
		keyEnv:       "ANTHROPIC_API_KEY",
		modelEnv:     "ANTHROPIC_MODEL",
		defaultModel: ModelAnthropicClaudeOpus45,
		construct: func(key, model string, maxTokens uint32, temperature float32, opts ...ProviderOption) Provider {
			return NewAnthropicProvider(key, model, maxTokens, temperature, opts...)
		},
	},
	ProviderDeepSeek: {
		name:         "deepseek",
		keyEnv:       "DEEPSEEK_API_KEY",
		modelEnv:     "DEEPSEEK_MODEL",
		defaultModel: ModelDeepSeekV32,
		construct: func(key, model string, maxTokens uint32, temperature float32, opts ...ProviderOption) Provider {
			return NewDeepSeekProvider(key, model, maxTokens, temperature, opts...)
		},
	},
	ProviderGemini: {
		name:         "gemini",
		aliases:      []string{"google"},
		keyEnv:       "GEMINI_API_KEY",
		modelEnv:     "GEMINI_MODEL",
		defaultModel: ModelGeminiFlash3,
		construct: func(key, model string, maxTokens uint32, temperature float32, opts ...ProviderOption) Provider {
			return NewGeminiProvider(key, model, maxTokens, temperature, opts...)
		},
	},
}

func (p ProviderType) spec() (providerSpec, bool) {
	spec, ok := providerSpecs[p]
	return spec, ok
}

// String returns the canonical provider name, or "unknown".
func (p ProviderType) String() string {
	if spec, ok := p.spec(); ok {
		return spec.name
	}
	return "unknown"
}

// EnvVar names the environment variable holding the API key.
func (p ProviderType) EnvVar() string {
	spec, _ := p.spec()
	return spec.keyEnv
}

// ModelEnvVar names the environment variable that overrides the model.
func (p ProviderType) ModelEnvVar() string {
	spec, _ := p.spec()
	return spec.modelEnv
}

// DefaultModel returns the model used when none is configured.
func (p ProviderType) DefaultModel() string {
	spec, _ := p.spec()
	return spec.defaultModel
}

// ParseProviderType accepts a canonical name or an alias, in any case.
func ParseProviderType(s string) (ProviderType, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for pt, spec := range providerSpecs {
		if spec.name == want {
			return pt, nil
		}
		for _, alias := range spec.aliases {
			if alias == want {
				return pt, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown provider: %s", s)
}

// FromEnv creates a provider with defaults, reading the API key from the
// environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return NewProviderBuilder(p).FromEnv()
}

// Model starts configuring this provider with a specific model.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return NewProviderBuilder(p).Model(model)
}

// APIKey creates a provider with an explicit key and defaults for the rest.
func (p ProviderType) APIKey(key string) (Provider, error) {
	return NewProviderBuilder(p).APIKey(key)
}

// Defaults applied by ProviderBuilder when a value is not set.
const (
	DefaultMaxTokens   uint32  = 4096
	DefaultTemperature float32 = 0.7
)

// ProviderBuilder configures a provider and, optionally, the client around it.
type ProviderBuilder struct {
	providerType ProviderType
	model        string
	maxTokens    uint32
	temperature  *float32
	apiKey       string
	options      []ProviderOption

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewProviderBuilder creates a builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{providerType: providerType}
}

// Model sets the model. Empty means the provider default.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// MaxTokens caps the length of each reply.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

// Temperature sets the sampling temperature.
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// BaseURL points the provider at a compatible gateway.
func (b *ProviderBuilder) BaseURL(url string) *ProviderBuilder {
	b.options = append(b.options, WithBaseURL(url))
	return b
}

// HTTPClient sets the HTTP client used for API calls.
func (b *ProviderBuilder) HTTPClient(client *http.Client) *ProviderBuilder {
	b.options = append(b.options, WithHTTPClient(client))
	return b
}

// Key sets the API key used by Client instead of the environment.
func (b *ProviderBuilder) Key(key string) *ProviderBuilder {
	b.apiKey = key
	return b
}

// Logger sets the logger of the client built by Client.
func (b *ProviderBuilder) Logger(logger *slog.Logger) *ProviderBuilder {
	b.logger = logger
	return b
}

// Metrics sets the metrics sink of the client built by Client.
func (b *ProviderBuilder) Metrics(metrics *observability.Metrics) *ProviderBuilder {
	b.metrics = metrics
	return b
}

// FromEnv builds the provider, reading the API key from the environment.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	key, err := b.envKey()
	if err != nil {
		return nil, err
	}
	return b.build(key)
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	return b.build(key)
}

// Client builds the provider and wraps it in a retrying model client using
// cfg. The key set with Key wins over the environment.
func (b *ProviderBuilder) Client(cfg ClientConfig) (*Client, error) {
	key := b.apiKey
	if key == "" {
		var err error
		if key, err = b.envKey(); err != nil {
			return nil, err
		}
	}

	provider, err := b.build(key)
	if err != nil {
		return nil, err
	}
	return NewClient(provider).
		WithConfig(cfg).
		WithLogger(b.logger).
		WithMetrics(b.metrics), nil
}

func (b *ProviderBuilder) envKey() (string, error) {
	envVar := b.providerType.EnvVar()
	if envVar == "" {
		return "", fmt.Errorf("unknown provider type: %v", b.providerType)
	}
	key := os.Getenv(envVar)
	if key == "" {
		return "", fmt.Errorf("%s: %s environment variable not set", b.providerType, envVar)
	}
	return key, nil
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	spec, ok := b.providerType.spec()
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %v", b.providerType)
	}

	model := b.model
	if model == "" {
		model = spec.defaultModel
	}
	maxTokens := b.maxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := DefaultTemperature
	if b.temperature != nil {
		temperature = *b.temperature
	}

	return spec.construct(apiKey, model, maxTokens, temperature, b.options...), nil
}

// OpenAI models.
const (
	ModelOpenAIGPT52     = "gpt-5.2"
	ModelOpenAIGPT5      = "gpt-5"
	ModelOpenAIGPT4oMini = "gpt-4o-mini"
)

// Anthropic models.
const (
	ModelAnthropicClaudeOpus45  = "claude-opus-4-5-20251101"
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	ModelAnthropicClaudeHaiku4  = "claude-haiku-4-20250514"
)

// DeepSeek models.
const (
	ModelDeepSeekV32 = "deepseek-v3.2"
	ModelDeepSeekR1  = "deepseek-r1"
)

// Gemini models.
const (
	ModelGeminiFlash3 = "gemini-3-flash"
	ModelGeminiPro3   = "gemini-3-pro"
)
