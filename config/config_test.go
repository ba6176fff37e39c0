package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
server:
  port: 9090
  mode: release
database:
  driver: sqlite
  path: /tmp/premium.db
premium:
  trial_days: 14
  verify_timeout: 3s
ratelimit:
  backend: redis
  rules:
    verify_receipt: { limit: 5, window: 1m }
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.IsRelease())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 14, cfg.Premium.TrialDays)
	assert.Equal(t, 3*time.Second, cfg.Premium.VerifyTimeout)
	assert.Equal(t, "redis", cfg.RateLimit.Backend)
	assert.Equal(t, RateLimitRule{Limit: 5, Window: time.Minute}, cfg.RateLimit.Rules["verify_receipt"])
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", "server:\n  mode: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.False(t, cfg.IsRelease())
	assert.Equal(t, 7, cfg.Premium.TrialDays)
	assert.Equal(t, 5*time.Minute, cfg.Premium.ValidationInterval)
	assert.Equal(t, 10*time.Second, cfg.Premium.VerifyTimeout)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, time.Hour, cfg.Sweeper.Interval)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", "server:\n  port: 8000\n")
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("PREMIUM_TRIAL_DAYS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Premium.TrialDays)
}

func TestLoad_PrefersLocalConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "server:\n  port: 8000\n")
	writeConfig(t, dir, "config.local.yaml", "server:\n  port: 8100\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8100, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRateLimitRule(t *testing.T) {
	cfg := RateLimitConfig{
		Rules: map[string]RateLimitRule{
			"default":        {Limit: 100, Window: time.Minute},
			"verify_receipt": {Limit: 5, Window: time.Minute},
			"broken":         {Limit: 0, Window: time.Minute},
		},
	}

	assert.Equal(t, RateLimitRule{Limit: 5, Window: time.Minute}, cfg.Rule("verify_receipt"))
	assert.Equal(t, RateLimitRule{Limit: 100, Window: time.Minute}, cfg.Rule("status"))
	assert.Equal(t, RateLimitRule{Limit: 100, Window: time.Minute}, cfg.Rule("broken"))

	empty := RateLimitConfig{}
	assert.Equal(t, RateLimitRule{Limit: 60, Window: time.Minute}, empty.Rule("status"))
}
