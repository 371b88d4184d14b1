package ai

import (
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultSystemPrompt is the fixed instruction placed before every transcript.
	DefaultSystemPrompt = "You are a professional DevOps assistant. You provide accurate, technical, and helpful answers to DevOps related queries. You are concise but thorough."

	defaultModelName   = "groq"
	defaultGroqModel   = "llama-3.3-70b-versatile"
	defaultTemperature = 0.7
	defaultTimeout     = 2 * time.Minute
	defaultWarnTokens  = 32000
)

// ModelConfig defines the configuration for a single LLM.
type ModelConfig struct {
	Name        string  `json:"name" yaml:"name"`                             // e.g., "groq", "gpt-4"
	Provider    string  `json:"provider" yaml:"provider"`                     // "groq", "openai", "google", "anthropic"
	APIKey      string  `json:"api_key" yaml:"api_key"`                       // Literal key or "env:NAME" reference
	APIKeyEnv   string  `json:"api_key_env,omitempty" yaml:"api_key_env"`     // Variable named in the configuration-error message
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Optional: for custom endpoints
	ModelName   string  `json:"model_name" yaml:"model_name"`                 // The specific model ID
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`                 // Max output tokens, 0 = provider default
	Temperature float64 `json:"temperature" yaml:"temperature"`               // Creativity
}

// Config holds the global AI configuration.
type Config struct {
	DefaultModel      string        `json:"default_model" yaml:"default_model"`
	SystemPrompt      string        `json:"system_prompt" yaml:"system_prompt"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`                         // Bound on one completion call, <=0 means the default
	HistoryWarnTokens int           `json:"history_warn_tokens" yaml:"history_warn_tokens"` // Prompt size that triggers a warning
	Models            []ModelConfig `json:"models" yaml:"models"`
}

// DefaultConfig returns the configuration used when no file is given:
// a single Groq-hosted model reached through its OpenAI-compatible API.
func DefaultConfig() Config {
	return Config{
		DefaultModel:      defaultModelName,
		SystemPrompt:      DefaultSystemPrompt,
		Timeout:           defaultTimeout,
		HistoryWarnTokens: defaultWarnTokens,
		Models: []ModelConfig{
			{
				Name:        defaultModelName,
				Provider:    ProviderGroq,
				APIKeyEnv:   "GROQ_API_KEY",
				ModelName:   defaultGroqModel,
				Temperature: defaultTemperature,
			},
		},
	}
}

// Model returns the named model configuration.
func (c *Config) Model(name string) (*ModelConfig, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Models {
		if c.Models[i].Name == name {
			return &c.Models[i], true
		}
	}
	return nil, false
}

// SetDefaultAPIKey injects a resolved credential into the default model
// unless the configuration already carries one.
func (c *Config) SetDefaultAPIKey(key string) {
	m, ok := c.Model(c.DefaultModel)
	if !ok || key == "" || m.APIKey != "" {
		return
	}
	m.APIKey = key
}

// completionTimeout 返回单次模型调用的上限，未配置（<=0）时使用默认值。
func (c *Config) completionTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

// Validate checks that the configuration can serve requests.
// A missing API key is not an error.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("ai config is nil")
	}
	if c.DefaultModel == "" {
		return errors.New("ai.default_model is empty")
	}
	if _, ok := c.Model(c.DefaultModel); !ok {
		return errors.Errorf("ai.default_model %q not found in models", c.DefaultModel)
	}
	for _, m := range c.Models {
		switch m.Provider {
		case ProviderGroq, ProviderOpenAI, ProviderGoogle, ProviderAnthropic:
		default:
			return errors.Errorf("model %q: unsupported provider %q", m.Name, m.Provider)
		}
	}
	return nil
}
