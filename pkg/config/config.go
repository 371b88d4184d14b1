// Package config assembles the process configuration from defaults, an
// optional YAML file, an optional .env file and the environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/IMBotPlatform/DevOpsAssistant/pkg/ai"
	"github.com/IMBotPlatform/DevOpsAssistant/pkg/auth"
	"github.com/IMBotPlatform/DevOpsAssistant/pkg/platform/web"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFile is loaded when present; a missing file is not an error.
const DefaultEnvFile = ".env"

// CredentialsConfig says where the LLM API key is looked up, in order:
// the environment variable, then the Key Vault secret.
type CredentialsConfig struct {
	APIKeyEnv       string `json:"api_key_env" yaml:"api_key_env"`
	KeyVaultName    string `json:"key_vault_name" yaml:"key_vault_name"`
	VaultSecretName string `json:"vault_secret_name" yaml:"vault_secret_name"`
}

// Config is the whole process configuration.
type Config struct {
	LogLevel    string            `json:"log_level" yaml:"log_level"`
	Server      web.Config        `json:"server" yaml:"server"`
	AI          ai.Config         `json:"ai" yaml:"ai"`
	Auth        auth.Config       `json:"auth" yaml:"auth"`
	Sessions    ai.StoreConfig    `json:"sessions" yaml:"sessions"`
	Credentials CredentialsConfig `json:"credentials" yaml:"credentials"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: web.Config{
			ListenAddr:        ":8000",
			AllowedOrigins:    []string{"*"},
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		AI:       ai.DefaultConfig(),
		Auth:     auth.DefaultConfig(),
		Sessions: ai.DefaultStoreConfig(),
		Credentials: CredentialsConfig{
			APIKeyEnv:       "GROQ_API_KEY",
			VaultSecretName: ai.DefaultVaultSecretName,
		},
	}
}

// Load builds the configuration. path may be empty; envFile may be empty
// to skip .env loading. Environment variables win over the file.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	if envFile != "" {
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(err, "failed to load %s", envFile)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	return &cfg, nil
}

// applyEnv overlays the environment variables understood by the service.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("MODEL_NAME"); ok {
		if m, found := c.AI.Model(c.AI.DefaultModel); found {
			m.ModelName = v
		}
	}
	if v, ok := get("AZURE_TENANT_ID"); ok {
		c.Auth.TenantID = v
	}
	if v, ok := get("AZURE_CLIENT_ID"); ok {
		c.Auth.ClientID = v
	}
	if v, ok := get("AUTH_STRATEGY"); ok {
		c.Auth.Strategy = auth.Strategy(strings.ToLower(v))
	}
	if v, ok := get("KEY_VAULT_NAME"); ok {
		c.Credentials.KeyVaultName = v
	}
	if v, ok := get("LISTEN_ADDR"); ok {
		c.Server.ListenAddr = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if m, found := c.AI.Model(c.AI.DefaultModel); found && m.APIKeyEnv == "" {
		m.APIKeyEnv = c.Credentials.APIKeyEnv
	}
}

// Validate reports configuration the service cannot start with.
// A missing LLM API key is not one of them.
func (c *Config) Validate() error {
	if err := c.AI.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is empty")
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	out.AI.Models = make([]ai.ModelConfig, len(c.AI.Models))
	copy(out.AI.Models, c.AI.Models)
	for i := range out.AI.Models {
		key := out.AI.Models[i].APIKey
		if key != "" && !strings.HasPrefix(key, "env:") {
			out.AI.Models[i].APIKey = "<redacted>"
		}
	}
	return out
}
