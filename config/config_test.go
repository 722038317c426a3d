package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.Pool.MaxSize)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL.Std())
	assert.Equal(t, 15*1024*1024, cfg.Realtime.Audio.MaxChunkSize)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatchd.yaml")
	data := `
pool:
  max_size: 10
  ttl: 90s
session:
  max_sessions: 5
  ttl: 2m
logging:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Pool.MaxSize)
	assert.Equal(t, 90*time.Second, cfg.Pool.TTL.Std())
	assert.Equal(t, 5, cfg.Session.MaxSessions)
	assert.Equal(t, "json", cfg.Logging.Format)
	// Untouched sections keep their defaults.
	assert.Equal(t, "alloy", cfg.Realtime.Voice)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REALTIME_API_KEY", "sk-test-123")
	t.Setenv("NATS_URL", "nats://10.0.0.5:4222")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-test-123", cfg.Realtime.APIKey)
	assert.Equal(t, "nats://10.0.0.5:4222", cfg.NATS.URL)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pool size", func(c *Config) { c.Pool.MaxSize = 0 }},
		{"negative session ttl", func(c *Config) { c.Session.TTL = Duration(-time.Second) }},
		{"threshold above one", func(c *Config) { c.Resource.CleanupThreshold = 1.5 }},
		{"missing realtime url", func(c *Config) { c.Realtime.URL = "" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"nats enabled without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_BadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool: [not a map"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
