// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() or Load() which handle:
// - Environment variable parsing with validation
// - Optional YAML file overlay
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/toolthread/agent"
	"github.com/richinex/toolthread/internal/observability"
	"github.com/richinex/toolthread/llm"
	"github.com/richinex/toolthread/mcp"
	"github.com/richinex/toolthread/tools"
)

// DefaultProvider is used when neither the caller nor a config file names one.
const DefaultProvider = "openai"

// Settings holds all application configuration.
type Settings struct {
	LLM   LLMConfig   `yaml:"llm"`
	Agent AgentConfig `yaml:"agent"`
	Tools ToolsConfig `yaml:"tools"`
	Log   LogConfig   `yaml:"log"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   uint32  `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	BaseURL     string  `yaml:"base_url"`
	MaxRetries  int     `yaml:"max_retries"`
	TimeoutSecs uint64  `yaml:"timeout_secs"`
}

// AgentConfig holds agent loop configuration.
type AgentConfig struct {
	MaxRounds int `yaml:"max_rounds"`
}

// ToolsConfig holds tool invocation configuration.
type ToolsConfig struct {
	TimeoutSecs uint64 `yaml:"timeout_secs"`
	Concurrency int    `yaml:"concurrency"`

	// MCPServers are started at runtime; their tools join the registry.
	MCPServers map[string]mcp.ServerConfig `yaml:"mcp_servers,omitempty"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// defaults returns settings before any file or environment is applied.
func defaults() Settings {
	return Settings{
		LLM: LLMConfig{
			MaxTokens:   llm.DefaultMaxTokens,
			Temperature: 0.7,
			MaxRetries:  3,
			TimeoutSecs: 60,
		},
		Agent: AgentConfig{MaxRounds: agent.DefaultMaxRounds},
		Tools: ToolsConfig{TimeoutSecs: 30, Concurrency: 4},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// New creates settings for the specified provider, loading values from environment variables.
// Returns an error if the provider is unknown or environment variables contain invalid values.
func New(provider string) (Settings, error) {
	return Load("", provider)
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// resolve applies the provider choice and environment overrides to s and
// validates the result.
func resolve(s Settings, provider string) (Settings, error) {
	if strings.TrimSpace(provider) == "" {
		provider = s.LLM.Provider
	}
	if strings.TrimSpace(provider) == "" {
		provider = DefaultProvider
	}
	pt, err := llm.ParseProviderType(provider)
	if err != nil {
		return Settings{}, err
	}
	// A model chosen for another provider does not carry over.
	if filePT, err := llm.ParseProviderType(s.LLM.Provider); err == nil && filePT != pt {
		s.LLM.Model = ""
	}
	s.LLM.Provider = pt.String()

	if val := os.Getenv(pt.ModelEnvVar()); val != "" {
		s.LLM.Model = val
	}
	if s.LLM.Model == "" {
		s.LLM.Model = pt.DefaultModel()
	}

	overrides := []error{
		envUint32("LLM_MAX_TOKENS", &s.LLM.MaxTokens),
		envFloat64("LLM_TEMPERATURE", &s.LLM.Temperature),
		envInt("MODEL_MAX_RETRIES", &s.LLM.MaxRetries),
		envUint64("MODEL_TIMEOUT_SECS", &s.LLM.TimeoutSecs),
		envInt("AGENT_MAX_ROUNDS", &s.Agent.MaxRounds),
		envUint64("TOOL_TIMEOUT_SECS", &s.Tools.TimeoutSecs),
		envInt("TOOL_CONCURRENCY", &s.Tools.Concurrency),
		envString("LLM_BASE_URL", &s.LLM.BaseURL),
		envString("LOG_LEVEL", &s.Log.Level),
		envString("LOG_FORMAT", &s.Log.Format),
	}
	for _, err := range overrides {
		if err != nil {
			return Settings{}, err
		}
	}

	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	switch {
	case s.LLM.Temperature < 0 || s.LLM.Temperature > 2:
		return fmt.Errorf("temperature must be between 0 and 2, got %v", s.LLM.Temperature)
	case s.LLM.MaxRetries < 0:
		return fmt.Errorf("max retries cannot be negative, got %d", s.LLM.MaxRetries)
	case s.Agent.MaxRounds <= 0:
		return fmt.Errorf("max rounds must be positive, got %d", s.Agent.MaxRounds)
	case s.Tools.Concurrency <= 0:
		return fmt.Errorf("tool concurrency must be positive, got %d", s.Tools.Concurrency)
	}
	switch strings.ToLower(s.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format: %q", s.Log.Format)
	}
	for name, server := range s.Tools.MCPServers {
		if err := server.Validate(); err != nil {
			return fmt.Errorf("mcp server %s: %w", name, err)
		}
	}
	return nil
}

// ProviderType returns the parsed provider.
func (s Settings) ProviderType() llm.ProviderType {
	pt, _ := llm.ParseProviderType(s.LLM.Provider)
	return pt
}

// ProviderBuilder returns a builder configured from these settings.
func (s Settings) ProviderBuilder() *llm.ProviderBuilder {
	b := s.ProviderType().Model(s.LLM.Model).
		MaxTokens(s.LLM.MaxTokens).
		Temperature(float32(s.LLM.Temperature))
	if s.LLM.BaseURL != "" {
		b = b.BaseURL(s.LLM.BaseURL)
	}
	return b
}

// ClientConfig returns the retry and timeout policy for model calls.
func (s Settings) ClientConfig() llm.ClientConfig {
	cfg := llm.DefaultClientConfig()
	cfg.MaxRetries = s.LLM.MaxRetries
	cfg.Timeout = time.Duration(s.LLM.TimeoutSecs) * time.Second
	return cfg
}

// InvokerConfig returns the tool invocation limits.
func (s Settings) InvokerConfig() tools.InvokerConfig {
	return tools.InvokerConfig{
		CallTimeout: time.Duration(s.Tools.TimeoutSecs) * time.Second,
		Concurrency: s.Tools.Concurrency,
	}
}

// MCPConfig returns the configured MCP servers.
func (s Settings) MCPConfig() *mcp.Config {
	return &mcp.Config{MCPServers: s.Tools.MCPServers}
}

// LoggerConfig returns the logging configuration.
func (s Settings) LoggerConfig() observability.LogConfig {
	return observability.LogConfig{Level: s.Log.Level, Format: s.Log.Format}
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	pt, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(pt.EnvVar())
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", pt.EnvVar())
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	pt, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(pt.ModelEnvVar()); val != "" {
		return val, nil
	}
	return pt.DefaultModel(), nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := []string{
		llm.ProviderOpenAI.String(),
		llm.ProviderAnthropic.String(),
		llm.ProviderDeepSeek.String(),
		llm.ProviderGemini.String(),
	}
	sort.Strings(result)
	return result
}

// Environment variable helpers with proper error handling

func envString(key string, dst *string) error {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
	return nil
}

func envInt(key string, dst *int) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	*dst = i
	return nil
}

func envUint32(key string, dst *uint32) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	*dst = uint32(i)
	return nil
}

func envUint64(key string, dst *uint64) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	i, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	*dst = i
	return nil
}

func envFloat64(key string, dst *float64) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	*dst = f
	return nil
}
