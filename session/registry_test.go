package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/christianmcgivern/tech-app/errors"
	"github.com/christianmcgivern/tech-app/realtime"
	"github.com/christianmcgivern/tech-app/resource"
)

// stubConnect returns dedicated connections without network I/O.
func stubConnect(_ context.Context, cfg realtime.Config) (*realtime.Conn, error) {
	return realtime.NewConn(cfg), nil
}

func newTestRegistry(cfg RegistryConfig, opts ...RegistryOption) *Registry {
	opts = append(opts, withConnector(stubConnect))
	return NewRegistry(cfg, opts...)
}

func TestRegistry_CreateDedicated(t *testing.T) {
	r := newTestRegistry(DefaultRegistryConfig())

	sess, err := r.Create(context.Background(), realtime.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, StateActive, sess.State())
	assert.False(t, sess.Pooled)
	assert.NotNil(t, sess.Conn)

	stats := r.Stats()
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 1, stats.ActiveSessions)
}

func TestRegistry_SessionLimit(t *testing.T) {
	cfg := DefaultRegistryConfig()
	cfg.MaxSessions = 1
	r := newTestRegistry(cfg)

	_, err := r.Create(context.Background(), realtime.DefaultConfig())
	require.NoError(t, err)

	_, err = r.Create(context.Background(), realtime.DefaultConfig())
	assert.ErrorIs(t, err, apperrors.ErrSessionLimit)
}

func TestRegistry_CapacitySweepMakesRoom(t *testing.T) {
	cfg := DefaultRegistryConfig()
	cfg.MaxSessions = 1
	cfg.TTL = 20 * time.Millisecond
	r := newTestRegistry(cfg)

	_, err := r.Create(context.Background(), realtime.DefaultConfig())
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	// The first session is expired; the capacity sweep purges it.
	sess, err := r.Create(context.Background(), realtime.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Stats().TotalSessions)
	assert.Equal(t, StateActive, sess.State())
}

func TestRegistry_GetExpiredPurges(t *testing.T) {
	cfg := DefaultRegistryConfig()
	cfg.TTL = 20 * time.Millisecond
	r := newTestRegistry(cfg)

	sess, err := r.Create(context.Background(), realtime.DefaultConfig())
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	assert.Nil(t, r.Get(sess.ID))
	assert.Equal(t, 0, r.Stats().TotalSessions)
}

func TestRegistry_GetRefreshesActivity(t *testing.T) {
	cfg := DefaultRegistryConfig()
	cfg.TTL = 60 * time.Millisecond
	r := newTestRegistry(cfg)

	sess, err := r.Create(context.Background(), realtime.DefaultConfig())
	require.NoError(t, err)

	// Poll under the TTL; refreshes keep the session alive well past it.
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		require.NotNil(t, r.Get(sess.ID))
	}
}

func TestRegistry_GetUnknownID(t *testing.T) {
	r := newTestRegistry(DefaultRegistryConfig())
	assert.Nil(t, r.Get("no-such-session"))
}

func TestRegistry_CleanupReleasesTrackedResource(t *testing.T) {
	tracker := resource.NewTracker(resource.DefaultConfig())
	r := newTestRegistry(DefaultRegistryConfig(), WithTracker(tracker))

	sess, err := r.Create(context.Background(), realtime.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, tracker.Stats().TotalResources)

	r.Cleanup(sess.ID)

	assert.Equal(t, 0, tracker.Stats().TotalResources)
	assert.Nil(t, r.Get(sess.ID))
}

func TestRegistry_CreateFailurePropagates(t *testing.T) {
	r := NewRegistry(DefaultRegistryConfig(), withConnector(
		func(context.Context, realtime.Config) (*realtime.Conn, error) {
			return nil, apperrors.ErrConnectionFailed
		}))

	_, err := r.Create(context.Background(), realtime.DefaultConfig())

	assert.ErrorIs(t, err, apperrors.ErrConnectionFailed)
	assert.Equal(t, 0, r.Stats().TotalSessions)
}

func TestRegistry_RunSweepsPeriodically(t *testing.T) {
	cfg := RegistryConfig{
		MaxSessions:   10,
		TTL:           20 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	}
	r := newTestRegistry(cfg)

	_, err := r.Create(context.Background(), realtime.DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return r.Stats().TotalSessions == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRegistry_CleanupAll(t *testing.T) {
	r := newTestRegistry(DefaultRegistryConfig())

	for i := 0; i < 3; i++ {
		_, err := r.Create(context.Background(), realtime.DefaultConfig())
		require.NoError(t, err)
	}
	require.Equal(t, 3, r.Stats().TotalSessions)

	r.CleanupAll()
	assert.Equal(t, 0, r.Stats().TotalSessions)
}

// TestRegistry_PooledSessions drives the pooled path against a local
// WebSocket server so the pool's real connector is exercised.
func TestRegistry_PooledSessions(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = ws.Close() }()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	connCfg := realtime.DefaultConfig()
	connCfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	connCfg.MaxRetries = 2
	connCfg.RetryDelay = 10 * time.Millisecond

	pool := realtime.NewPool(2, time.Minute)
	defer pool.Close()

	r := NewRegistry(DefaultRegistryConfig(), WithPool(pool))

	first, err := r.Create(context.Background(), connCfg)
	require.NoError(t, err)
	assert.True(t, first.Pooled)
	assert.Nil(t, first.Conn)

	second, err := r.Create(context.Background(), connCfg)
	require.NoError(t, err)
	assert.True(t, second.Pooled)

	// Both sessions share the single pooled connection.
	assert.Equal(t, 1, pool.Stats().TotalConnections)
}
