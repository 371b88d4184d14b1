package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/IMBotPlatform/DevOpsAssistant/pkg/auth"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	require.Equal(t, ":8000", cfg.Server.ListenAddr)
	require.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	require.Equal(t, "GROQ_API_KEY", cfg.Credentials.APIKeyEnv)
	require.Equal(t, "common", cfg.Auth.TenantID)
	require.Equal(t, "client-id", cfg.Auth.ClientID)
	require.Error(t, cfg.Validate(), "auth strategy has no default")
}

func TestApplyEnvOverlay(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"MODEL_NAME":      "llama-3.1-8b-instant",
		"AZURE_TENANT_ID": "contoso",
		"AZURE_CLIENT_ID": "api://ops",
		"AUTH_STRATEGY":   "JWKS",
		"KEY_VAULT_NAME":  "ops-kv",
		"LISTEN_ADDR":     ":9000",
		"LOG_LEVEL":       "debug",
	}
	cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	m, ok := cfg.AI.Model(cfg.AI.DefaultModel)
	require.True(t, ok)
	require.Equal(t, "llama-3.1-8b-instant", m.ModelName)
	require.Equal(t, "contoso", cfg.Auth.TenantID)
	require.Equal(t, "api://ops", cfg.Auth.ClientID)
	require.Equal(t, auth.StrategyJWKS, cfg.Auth.Strategy)
	require.Equal(t, "ops-kv", cfg.Credentials.KeyVaultName)
	require.Equal(t, ":9000", cfg.Server.ListenAddr)
	require.Equal(t, "debug", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvIgnoresBlankValues(t *testing.T) {
	cfg := Default()
	cfg.applyEnv(func(string) (string, bool) { return "  ", true })

	require.Equal(t, ":8000", cfg.Server.ListenAddr)
	require.Equal(t, "common", cfg.Auth.TenantID)
}

func TestLoadLayersFileDotenvAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
log_level: warn
server:
  listen_addr: ":7000"
  shutdown_timeout: 5s
auth:
  strategy: claims
sessions:
  idle_ttl: 1h
  max_sessions: 10
`), 0o600))
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("AZURE_TENANT_ID=from-dotenv\nLISTEN_ADDR=:7100\n"), 0o600))

	// 已存在的环境变量优先于 .env。
	t.Setenv("LISTEN_ADDR", ":7200")
	t.Setenv("AZURE_TENANT_ID", "")
	require.NoError(t, os.Unsetenv("AZURE_TENANT_ID"))

	cfg, err := Load(yamlPath, envPath)
	require.NoError(t, err)

	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, ":7200", cfg.Server.ListenAddr)
	require.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, 10*time.Second, cfg.Server.ReadHeaderTimeout, "unset fields keep defaults")
	require.Equal(t, auth.StrategyClaims, cfg.Auth.Strategy)
	require.Equal(t, "from-dotenv", cfg.Auth.TenantID)
	require.Equal(t, time.Hour, cfg.Sessions.IdleTTL)
	require.Equal(t, 10, cfg.Sessions.MaxSessions)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingDotenvIsNotAnError(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.Error(t, err)
}

func TestRedactedHidesLiteralKeys(t *testing.T) {
	cfg := Default()
	cfg.AI.Models[0].APIKey = "gsk_secret"
	out := cfg.Redacted()

	require.Equal(t, "<redacted>", out.AI.Models[0].APIKey)
	require.Equal(t, "gsk_secret", cfg.AI.Models[0].APIKey)

	cfg.AI.Models[0].APIKey = "env:GROQ_API_KEY"
	require.Equal(t, "env:GROQ_API_KEY", cfg.Redacted().AI.Models[0].APIKey)
}
