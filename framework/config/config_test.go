package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-assistant/framework/config"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func emptyEnvFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "empty.env")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	return path
}

// ── Load ─────────────────────────────────────────────────────────────────────

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(emptyEnvFile(t))
	require.NoError(t, err)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"App.Name", cfg.App.Name, "assistant"},
		{"App.Env", cfg.App.Env, "local"},
		{"App.Port", cfg.App.Port, "8000"},
		{"App.LogLevel", cfg.App.LogLevel, "info"},
		{"Messaging.BaseURL", cfg.Messaging.BaseURL, "https://api.z-api.io"},
		{"Transcription.Model", cfg.Transcription.Model, "whisper-1"},
		{"Events.Source", cfg.Events.Source, "assistant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
	assert.Equal(t, 3*time.Second, cfg.Health.Timeout)
	assert.False(t, cfg.Health.OnBoot)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("HEALTH_TIMEOUT", "750ms")
	t.Setenv("HEALTH_ON_BOOT", "true")
	t.Setenv("ZAPI_INSTANCE_ID", "inst")

	cfg, err := config.Load(emptyEnvFile(t))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 750*time.Millisecond, cfg.Health.Timeout)
	assert.True(t, cfg.Health.OnBoot)
	assert.Equal(t, "inst", cfg.Messaging.InstanceID)
}

func TestLoad_ReadsDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GITHUB_TOKEN=ghp_dotenv\n"), 0o600))
	prev, had := os.LookupEnv("GITHUB_TOKEN")
	os.Unsetenv("GITHUB_TOKEN")
	t.Cleanup(func() {
		if had {
			os.Setenv("GITHUB_TOKEN", prev)
		} else {
			os.Unsetenv("GITHUB_TOKEN")
		}
	})

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ghp_dotenv", cfg.GitHub.Token)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("APP_DEBUG", "sometimes")
	t.Setenv("HEALTH_TIMEOUT", "soon")

	cfg, err := config.Load(emptyEnvFile(t))
	require.NoError(t, err)
	assert.False(t, cfg.App.Debug)
	assert.Equal(t, 3*time.Second, cfg.Health.Timeout)
}

// ── Validate ─────────────────────────────────────────────────────────────────

func TestLoad_RejectsUnknownEnv(t *testing.T) {
	t.Setenv("APP_ENV", "staging")

	_, err := config.Load(emptyEnvFile(t))
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg, err := config.Load(emptyEnvFile(t))
	require.NoError(t, err)

	cfg.App.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

// ── Snapshot ─────────────────────────────────────────────────────────────────

func TestSnapshot_FlattensSettings(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("APP_DEBUG", "true")
	t.Setenv("GITHUB_TOKEN", "")

	cfg, err := config.Load(emptyEnvFile(t))
	require.NoError(t, err)
	snap := cfg.Snapshot()

	assert.Equal(t, "sk-test", snap["OPENAI_API_KEY"])
	assert.True(t, snap.Has("OPENAI_API_KEY"))
	assert.False(t, snap.Has("GITHUB_TOKEN"))
	assert.True(t, snap.Bool("APP_DEBUG"))
	assert.False(t, snap.Bool("HEALTH_ON_BOOT"))
}
