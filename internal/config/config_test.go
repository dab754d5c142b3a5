package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "athena-service-account", cfg.GitHub.Owner)
	assert.Equal(t, 3001, cfg.Sandbox.BasePort)
	assert.Equal(t, 5000, cfg.Sandbox.MaxPort)
	assert.Equal(t, 2*time.Second, cfg.Sandbox.SettleDelay.Duration())
	assert.Equal(t, 5, cfg.Provision.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Provision.RetryDelay.Duration())
	assert.Equal(t, "main", cfg.Codegen.Branch)
}

func TestLoad(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 3000, cfg.Server.Port)
	})

	t.Run("yaml file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := []byte("server:\n  port: 9000\nsandbox:\n  settle_delay: 1s\n")
		require.NoError(t, os.WriteFile(path, data, 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, time.Second, cfg.Sandbox.SettleDelay.Duration())
	})

	t.Run("environment overrides yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600))
		t.Setenv("SERVER_PORT", "9001")
		t.Setenv("GITHUB_TOKEN", "ghp_test")
		t.Setenv("SANDBOX_BASE_URL", "http://localhost:3000")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9001, cfg.Server.Port)
		assert.Equal(t, "ghp_test", cfg.GitHub.Token.Value())
		assert.Equal(t, "http://localhost:3000", cfg.Sandbox.BaseURL)
	})
}

func TestTransformEnvKey(t *testing.T) {
	assert.Equal(t, "server.port", transformEnvKey("SERVER_PORT"))
	assert.Equal(t, "sandbox.base_url", transformEnvKey("SANDBOX_BASE_URL"))
	assert.Equal(t, "llm.api_key", transformEnvKey("LLM_API_KEY"))
	assert.Equal(t, "", transformEnvKey("PATH"))
	assert.Equal(t, "", transformEnvKey("HOME"))
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("ghp_supersecret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "ghp_supersecret", s.Value())
	assert.True(t, s.IsSet())

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "supersecret")

	assert.False(t, Secret("").IsSet())
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("150ms")))
	assert.Equal(t, 150*time.Millisecond, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("banana")))
}
