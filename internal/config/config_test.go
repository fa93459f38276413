package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/adminAuth"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "adminauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, adminAuth.DefaultConfig(), cfg.Engine)
	assert.Equal(t, "demo", cfg.Directory.Source)
	assert.Equal(t, ".adminauth/state.json", cfg.Client.StatePath)
	assert.Equal(t, 24*time.Hour, cfg.Projection.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
engine:
  rate_limit:
    max_login_attempts: 3
    lockout_duration: 5m
    retention: 1h
  otp:
    digits: 8
  store:
    backend: redis
redis:
  addr: mini
directory:
  source: yaml
  path: users.yaml
demo_latency: true
`)
	t.Setenv("ADMINAUTH_ENGINE_SESSION_IDLE_TIMEOUT", "10m")
	t.Setenv("ADMINAUTH_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Engine.RateLimit.MaxLoginAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Engine.RateLimit.LockoutDuration)
	assert.Equal(t, 8, cfg.Engine.OTP.Digits)
	assert.Equal(t, adminAuth.BackendRedis, cfg.Engine.Store.Backend)
	assert.Equal(t, RedisMini, cfg.Redis.Addr)
	assert.Equal(t, "users.yaml", cfg.Directory.Path)
	assert.Equal(t, 10*time.Minute, cfg.Engine.Session.IdleTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, adminAuth.DemoLatency(), cfg.Engine.Latency)

	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Engine.OTP.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Engine.Session.TokenLifetime)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "redis backend without addr",
			body: "engine:\n  store:\n    backend: redis\n",
		},
		{
			name: "yaml directory without path",
			body: "directory:\n  source: yaml\n",
		},
		{
			name: "postgres directory without url",
			body: "directory:\n  source: postgres\n",
		},
		{
			name: "short projection secret",
			body: "projection:\n  secret: tooshort\n",
		},
		{
			name: "unknown log level",
			body: "log:\n  level: trace\n",
		},
		{
			name: "engine range error",
			body: "engine:\n  otp:\n    digits: 2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
