package natsclient

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christianmcgivern/tech-app/errors"
)

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsConnected())
	assert.Equal(t, -1, c.maxReconnects)
	assert.Equal(t, 2*time.Second, c.reconnectWait)
}

func TestNewClient_Options(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithName("dispatchd"),
		WithToken("secret"),
		WithMaxReconnects(5),
		WithReconnectWait(500*time.Millisecond),
		WithTimeout(time.Second),
		WithDrainTimeout(2*time.Second),
		WithLogger(slog.Default()),
	)
	require.NoError(t, err)

	assert.Equal(t, "dispatchd", c.clientName)
	assert.Equal(t, "secret", c.token)
	assert.Equal(t, 5, c.maxReconnects)
	assert.Equal(t, 500*time.Millisecond, c.reconnectWait)
}

func TestNewClient_InvalidOption(t *testing.T) {
	_, err := NewClient("nats://localhost:4222", WithReconnectWait(-1))
	assert.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithLogger(nil))
	assert.Error(t, err)
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "unknown", ConnectionStatus(99).String())
}

func TestPublish_NotConnected(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = c.Publish(context.Background(), "dispatch.notifications", []byte("{}"))
	assert.ErrorIs(t, err, errors.ErrNotConnected)
	assert.True(t, errors.IsTransient(err))
}

func TestSubscribe_NotConnected(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = c.Subscribe(context.Background(), "dispatch.notifications", func(context.Context, []byte) {})
	assert.ErrorIs(t, err, errors.ErrNotConnected)
}

func TestClose_WithoutConnection(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.NoError(t, c.Close(context.Background()))
	// Second close is a no-op.
	assert.NoError(t, c.Close(context.Background()))
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestHealth_ReflectsStatus(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.False(t, c.Health().IsHealthy())

	c.setStatus(StatusConnected)
	assert.True(t, c.Health().IsHealthy())

	c.setStatus(StatusReconnecting)
	assert.True(t, c.Health().IsDegraded())
}
