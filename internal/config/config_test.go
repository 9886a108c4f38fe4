package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultPGHost, cfg.Postgres.Host)
	assert.Equal(t, DefaultPGPort, cfg.Postgres.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "@every 1m", cfg.Outbox.SweepSchedule)
	assert.Equal(t, 5, cfg.Outbox.MaxAttempts)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":9090"

[auth]
jwt_secret = "file-secret"
issuer = "https://auth.example.com"
audience = "wagateway"

[postgres]
host = "db.internal"
port = 5433
database = "gateway"

[whatsapp]
base_url = "https://waba.example.com"
timeout_seconds = 20

[outbox]
sweep_schedule = "@every 30s"
max_attempts = 3
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Equal(t, "https://waba.example.com", cfg.WhatsApp.BaseURL)
	assert.Equal(t, 20, cfg.WhatsApp.TimeoutSeconds)
	assert.Equal(t, "@every 30s", cfg.Outbox.SweepSchedule)
	assert.Equal(t, 3, cfg.Outbox.MaxAttempts)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[postgres]
host = "file-host"
password = "file-pass"

[auth]
jwt_secret = "file-secret"
`), 0o600))

	t.Setenv("POSTGRESQL_HOST", "env-host")
	t.Setenv("POSTGRESQL_PASSWORD", "env-pass")
	t.Setenv("POSTGRESQL_PORT", "6432")
	t.Setenv("AUTH_JWT_SECRET", "env-secret")
	t.Setenv("WHATSAPP_API_URL", "https://waba.env.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-host", cfg.Postgres.Host)
	assert.Equal(t, "env-pass", cfg.Postgres.Password)
	assert.Equal(t, 6432, cfg.Postgres.Port)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "https://waba.env.example.com", cfg.WhatsApp.BaseURL)
}

func TestEnvIgnoresBadInt(t *testing.T) {
	t.Setenv("POSTGRESQL_PORT", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPGPort, cfg.Postgres.Port)
}
