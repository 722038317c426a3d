// Package realtime implements the client side of the remote streaming
// protocol: a WebSocket connection with reconnection backoff, an outbound
// queue for disconnected periods, a typed inbound event dispatch table, and
// a pool that reuses connections across compatible configurations.
package realtime

import (
	"strings"
	"time"
)

// AudioSettings holds audio format parameters for a realtime session.
type AudioSettings struct {
	InputFormat  string
	OutputFormat string
	SampleRate   int
	Channels     int
	MaxChunkSize int
}

// VADSettings holds server-side voice activity detection parameters.
type VADSettings struct {
	Enabled           bool
	Threshold         float64
	PrefixPaddingMs   int
	SilenceDurationMs int
}

// Config describes one realtime connection. Connections are only shared
// across callers whose configurations have an identical fingerprint.
type Config struct {
	URL          string
	APIKey       string
	ModelVersion string
	Voice        string
	Modalities   []string
	Instructions string
	MaxRetries   int
	RetryDelay   time.Duration
	Audio        AudioSettings
	VAD          VADSettings
}

// DefaultConfig returns the reference settings for a realtime connection.
func DefaultConfig() Config {
	return Config{
		URL:          "wss://api.openai.com/v1/realtime",
		ModelVersion: "gpt-4o-realtime-preview-2024-12-17",
		Voice:        "alloy",
		Modalities:   []string{"text", "audio"},
		Instructions: "You are a helpful assistant.",
		MaxRetries:   3,
		RetryDelay:   time.Second,
		Audio: AudioSettings{
			InputFormat:  "pcm16",
			OutputFormat: "pcm16",
			SampleRate:   24000,
			Channels:     1,
			MaxChunkSize: 15 * 1024 * 1024,
		},
		VAD: VADSettings{
			Enabled:           true,
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 200,
		},
	}
}

// Fingerprint returns the compatibility key for pooling: model version,
// voice and the enabled modality set. Two configs with equal fingerprints
// can share a pooled connection.
func (c Config) Fingerprint() string {
	return c.ModelVersion + "|" + c.Voice + "|" + strings.Join(c.Modalities, ",")
}

// sessionUpdate builds the session-initialization frame sent immediately
// after a successful connect.
func (c Config) sessionUpdate() sessionUpdateFrame {
	return sessionUpdateFrame{
		Type: TypeSessionUpdate,
		Session: sessionSettings{
			Modalities:        c.Modalities,
			Instructions:      c.Instructions,
			Voice:             c.Voice,
			InputAudioFormat:  c.Audio.InputFormat,
			OutputAudioFormat: c.Audio.OutputFormat,
			InputAudioTranscription: transcriptionSettings{
				Enabled: true,
				Model:   "whisper-1",
			},
			TurnDetection: turnDetection{
				Type:              "server_vad",
				Threshold:         c.VAD.Threshold,
				PrefixPaddingMs:   c.VAD.PrefixPaddingMs,
				SilenceDurationMs: c.VAD.SilenceDurationMs,
			},
		},
	}
}
