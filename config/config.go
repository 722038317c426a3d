// Package config provides the service configuration for the dispatch core:
// realtime endpoint settings, pool and session sizing, resource tracker
// thresholds, notification delivery and observability endpoints. Values are
// loaded from a YAML file with environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete dispatchd configuration.
type Config struct {
	Realtime RealtimeConfig `yaml:"realtime"`
	Pool     PoolConfig     `yaml:"pool"`
	Session  SessionConfig  `yaml:"session"`
	Resource ResourceConfig `yaml:"resource"`
	NATS     NATSConfig     `yaml:"nats"`
	Signal   SignalConfig   `yaml:"signal"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RealtimeConfig holds connection settings for the remote streaming service.
type RealtimeConfig struct {
	URL          string      `yaml:"url"`
	APIKey       string      `yaml:"api_key"` // overridden by REALTIME_API_KEY
	ModelVersion string      `yaml:"model_version"`
	Voice        string      `yaml:"voice"`
	Modalities   []string    `yaml:"modalities"`
	Instructions string      `yaml:"instructions"`
	MaxRetries   int         `yaml:"max_retries"`
	RetryDelay   Duration    `yaml:"retry_delay"`
	Audio        AudioConfig `yaml:"audio"`
	VAD          VADConfig   `yaml:"vad"`
}

// AudioConfig holds audio format settings for realtime sessions.
type AudioConfig struct {
	InputFormat  string `yaml:"input_format"`
	OutputFormat string `yaml:"output_format"`
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
	MaxChunkSize int    `yaml:"max_chunk_size"`
}

// VADConfig holds server-side voice activity detection parameters.
type VADConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Threshold         float64 `yaml:"threshold"`
	PrefixPaddingMs   int     `yaml:"prefix_padding_ms"`
	SilenceDurationMs int     `yaml:"silence_duration_ms"`
}

// PoolConfig holds connection pool sizing.
type PoolConfig struct {
	MaxSize int      `yaml:"max_size"`
	TTL     Duration `yaml:"ttl"`
}

// SessionConfig holds session registry sizing.
type SessionConfig struct {
	MaxSessions   int      `yaml:"max_sessions"`
	TTL           Duration `yaml:"ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
	UsePool       bool     `yaml:"use_pool"`
}

// ResourceConfig holds resource tracker thresholds.
type ResourceConfig struct {
	CleanupThreshold float64  `yaml:"cleanup_threshold"` // process memory fraction, 0-1
	MonitorInterval  Duration `yaml:"monitor_interval"`
	IdleTimeout      Duration `yaml:"idle_timeout"`
}

// NATSConfig holds the optional NATS delivery channel settings.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// SignalConfig holds the WebSocket signaling hub settings.
type SignalConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// HTTPConfig holds the observability HTTP endpoint settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Duration wraps time.Duration with YAML string parsing ("30s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the default configuration. Defaults mirror the reference
// deployment: 100-connection pool with 5-minute TTL, 100 sessions with
// 30-minute TTL, 15MB audio chunks.
func Default() Config {
	return Config{
		Realtime: RealtimeConfig{
			URL:          "wss://api.openai.com/v1/realtime",
			ModelVersion: "gpt-4o-realtime-preview-2024-12-17",
			Voice:        "alloy",
			Modalities:   []string{"text", "audio"},
			Instructions: "You are a helpful assistant.",
			MaxRetries:   3,
			RetryDelay:   Duration(time.Second),
			Audio: AudioConfig{
				InputFormat:  "pcm16",
				OutputFormat: "pcm16",
				SampleRate:   24000,
				Channels:     1,
				MaxChunkSize: 15 * 1024 * 1024,
			},
			VAD: VADConfig{
				Enabled:           true,
				Threshold:         0.5,
				PrefixPaddingMs:   300,
				SilenceDurationMs: 200,
			},
		},
		Pool: PoolConfig{
			MaxSize: 100,
			TTL:     Duration(5 * time.Minute),
		},
		Session: SessionConfig{
			MaxSessions:   100,
			TTL:           Duration(30 * time.Minute),
			SweepInterval: Duration(time.Minute),
			UsePool:       true,
		},
		Resource: ResourceConfig{
			CleanupThreshold: 0.8,
			MonitorInterval:  Duration(time.Minute),
			IdleTimeout:      Duration(5 * time.Minute),
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Subject: "dispatch.notifications",
		},
		Signal: SignalConfig{
			Addr: ":8090",
			Path: "/ws/office",
		},
		HTTP: HTTPConfig{
			Addr: ":9100",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file, applies environment overrides
// and validates the result. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides pulls secrets and endpoints from the environment so they
// never need to live in the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REALTIME_API_KEY"); v != "" {
		c.Realtime.APIKey = v
	}
	if v := os.Getenv("REALTIME_URL"); v != "" {
		c.Realtime.URL = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
}

// Validate checks the configuration for values that would misbehave at
// runtime.
func (c *Config) Validate() error {
	if c.Realtime.URL == "" {
		return fmt.Errorf("realtime.url is required")
	}
	if c.Realtime.MaxRetries < 1 {
		return fmt.Errorf("realtime.max_retries must be at least 1, got %d", c.Realtime.MaxRetries)
	}
	if c.Realtime.Audio.MaxChunkSize <= 0 {
		return fmt.Errorf("realtime.audio.max_chunk_size must be positive")
	}
	if c.Pool.MaxSize < 1 {
		return fmt.Errorf("pool.max_size must be at least 1, got %d", c.Pool.MaxSize)
	}
	if c.Pool.TTL <= 0 {
		return fmt.Errorf("pool.ttl must be positive")
	}
	if c.Session.MaxSessions < 1 {
		return fmt.Errorf("session.max_sessions must be at least 1, got %d", c.Session.MaxSessions)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Resource.CleanupThreshold <= 0 || c.Resource.CleanupThreshold > 1 {
		return fmt.Errorf("resource.cleanup_threshold must be in (0,1], got %g", c.Resource.CleanupThreshold)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
