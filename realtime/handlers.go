package realtime

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/christianmcgivern/tech-app/errors"
)

// boundary wraps a handler so that panics and ordinary errors are logged
// instead of tearing down the listen loop. Only context cancellation and
// fatal-class errors propagate; that is the whole allow-list.
func (c *Conn) boundary(eventType string, h Handler) Handler {
	return func(ctx context.Context, ev Event) (err error) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("handler panicked", "type", eventType, "panic", fmt.Sprint(r))
				err = nil
			}
		}()

		hErr := h(ctx, ev)
		if hErr == nil {
			return nil
		}
		if errors.Is(hErr, context.Canceled) || errors.IsFatal(hErr) {
			return hErr
		}
		c.logger.Error("handler failed", "type", eventType, "error", hErr)
		return nil
	}
}

// registerDefaults installs the built-in handlers for the standard inbound
// frame types.
func (c *Conn) registerDefaults() {
	c.RegisterHandler(TypeSpeechStarted, c.handleSpeechStarted)
	c.RegisterHandler(TypeSpeechStopped, c.handleSpeechStopped)
	c.RegisterHandler(TypeTextDelta, c.handleTextDelta)
	c.RegisterHandler(TypeTextDone, c.handleTextDone)
	c.RegisterHandler(TypeAudioDelta, c.handleAudioDelta)
	c.RegisterHandler(TypeAudioDone, c.handleAudioDone)
	c.RegisterHandler(TypeResponseDone, c.handleResponseDone)
	c.RegisterHandler(TypeError, c.handleError)
}

func (c *Conn) handleSpeechStarted(_ context.Context, ev Event) error {
	c.logger.Info("speech started", "item_id", ev.ItemID)
	return nil
}

func (c *Conn) handleSpeechStopped(_ context.Context, ev Event) error {
	c.logger.Info("speech stopped", "item_id", ev.ItemID)
	return nil
}

func (c *Conn) handleTextDelta(_ context.Context, _ Event) error {
	return nil
}

func (c *Conn) handleTextDone(_ context.Context, _ Event) error {
	c.logger.Info("text response completed")
	return nil
}

// handleAudioDelta guards against oversize chunks and accounts each chunk
// for the duration of its processing.
func (c *Conn) handleAudioDelta(_ context.Context, ev Event) error {
	if ev.Delta == "" {
		return nil
	}
	if len(ev.Delta) > c.cfg.Audio.MaxChunkSize {
		c.logger.Warn("audio chunk exceeds maximum size", "size", len(ev.Delta))
		return nil
	}
	if c.tracker != nil {
		chunkID := uuid.NewString()
		c.tracker.Track(chunkID, "audio_chunk", int64(len(ev.Delta)), map[string]string{
			"client_id": c.clientID,
		})
		defer c.tracker.Release(chunkID)
	}
	return nil
}

func (c *Conn) handleAudioDone(_ context.Context, _ Event) error {
	c.logger.Info("audio response completed")
	return nil
}

func (c *Conn) handleResponseDone(_ context.Context, _ Event) error {
	c.logger.Info("response completed")
	return nil
}

// handleError tears the connection down; the remote only sends error frames
// for unrecoverable conditions.
func (c *Conn) handleError(_ context.Context, ev Event) error {
	if ev.Error != nil {
		c.logger.Error("error frame received", "code", ev.Error.Code, "message", ev.Error.Message)
	} else {
		c.logger.Error("error frame received")
	}
	c.Disconnect()
	return nil
}
