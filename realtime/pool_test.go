package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/christianmcgivern/tech-app/errors"
)

// stubConnector builds connections that are "connected" without network I/O
// and counts how many were created.
type stubConnector struct {
	created int
}

func (s *stubConnector) connect(_ context.Context, cfg Config) (*Conn, error) {
	s.created++
	conn := NewConn(cfg)
	conn.mu.Lock()
	conn.ws = newFakeTransport()
	conn.connected = true
	conn.mu.Unlock()
	return conn, nil
}

func newTestPool(maxSize int, ttl time.Duration) (*Pool, *stubConnector) {
	sc := &stubConnector{}
	return NewPool(maxSize, ttl, withConnector(sc.connect)), sc
}

func TestPool_ReusesCompatibleConnection(t *testing.T) {
	pool, sc := newTestPool(5, time.Minute)
	cfg := DefaultConfig()

	first, err := pool.Acquire(context.Background(), cfg)
	require.NoError(t, err)
	pool.Release(first)

	second, err := pool.Acquire(context.Background(), cfg)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, sc.created)
}

func TestPool_IncompatibleConfigGetsNewConnection(t *testing.T) {
	pool, sc := newTestPool(5, time.Minute)

	cfg := DefaultConfig()
	first, err := pool.Acquire(context.Background(), cfg)
	require.NoError(t, err)

	other := DefaultConfig()
	other.Voice = "verse"
	second, err := pool.Acquire(context.Background(), other)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, sc.created)
}

func TestPool_TTLEvictionYieldsFreshConnection(t *testing.T) {
	pool, sc := newTestPool(5, 20*time.Millisecond)
	cfg := DefaultConfig()

	first, err := pool.Acquire(context.Background(), cfg)
	require.NoError(t, err)
	pool.Release(first)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, pool.EvictIdle())
	assert.False(t, first.IsConnected())

	second, err := pool.Acquire(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, sc.created)
}

func TestPool_ExhaustedWithoutCreatingConnection(t *testing.T) {
	pool, sc := newTestPool(1, time.Minute)

	_, err := pool.Acquire(context.Background(), DefaultConfig())
	require.NoError(t, err)

	other := DefaultConfig()
	other.Voice = "verse"
	_, err = pool.Acquire(context.Background(), other)

	assert.ErrorIs(t, err, apperrors.ErrPoolExhausted)
	assert.Equal(t, 1, sc.created)
}

func TestPool_FullPoolSweepsIdleBeforeFailing(t *testing.T) {
	pool, sc := newTestPool(1, 20*time.Millisecond)

	first, err := pool.Acquire(context.Background(), DefaultConfig())
	require.NoError(t, err)
	pool.Release(first)
	time.Sleep(40 * time.Millisecond)

	// The pool is full but the entry is idle past TTL: the capacity sweep
	// makes room for the incompatible config.
	other := DefaultConfig()
	other.Voice = "verse"
	second, err := pool.Acquire(context.Background(), other)

	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, sc.created)
}

func TestPool_StaleCompatibleEntryEvictedDuringScan(t *testing.T) {
	pool, sc := newTestPool(5, time.Minute)
	cfg := DefaultConfig()

	first, err := pool.Acquire(context.Background(), cfg)
	require.NoError(t, err)
	first.Disconnect()

	second, err := pool.Acquire(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, sc.created)
	assert.Equal(t, 1, pool.Stats().TotalConnections)
}

func TestPool_WithConnectionReleasesOnEveryPath(t *testing.T) {
	pool, _ := newTestPool(5, time.Minute)
	cfg := DefaultConfig()

	var inside *Conn
	err := pool.WithConnection(context.Background(), cfg, func(c *Conn) error {
		inside = c
		return apperrors.New("caller failure")
	})
	assert.Error(t, err)

	// The connection went back to the pool despite the error.
	again, err := pool.Acquire(context.Background(), cfg)
	require.NoError(t, err)
	assert.Same(t, inside, again)
}

func TestPool_Stats(t *testing.T) {
	pool, _ := newTestPool(4, time.Minute)

	_, err := pool.Acquire(context.Background(), DefaultConfig())
	require.NoError(t, err)

	stats := pool.Stats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.ActiveConnections)
	assert.Equal(t, 0, stats.IdleConnections)
	assert.InDelta(t, 0.25, stats.Utilization, 1e-9)
}

func TestPool_CloseEvictsEverything(t *testing.T) {
	pool, _ := newTestPool(5, time.Minute)

	first, err := pool.Acquire(context.Background(), DefaultConfig())
	require.NoError(t, err)

	pool.Close()

	assert.False(t, first.IsConnected())
	assert.Equal(t, 0, pool.Stats().TotalConnections)
}
