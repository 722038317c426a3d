package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_SumInvariant(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	tr.Track("conn-1", "connection", 1024*1024, nil)
	tr.Track("msg-1", "message", 512, map[string]string{"type": "session.update"})
	tr.Track("audio-1", "audio_chunk", 2048, nil)

	stats := tr.Stats()
	assert.Equal(t, 3, stats.TotalResources)
	assert.Equal(t, int64(1024*1024+512+2048), stats.TotalBytes)

	assert.True(t, tr.Release("msg-1"))
	stats = tr.Stats()
	assert.Equal(t, 2, stats.TotalResources)
	assert.Equal(t, int64(1024*1024+2048), stats.TotalBytes)
}

func TestTracker_ReleaseUnknown(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	assert.False(t, tr.Release("never-tracked"))
	assert.Equal(t, int64(0), tr.Stats().TotalBytes)
}

func TestTracker_RetrackReplacesSize(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	tr.Track("conn-1", "connection", 1000, nil)
	tr.Track("conn-1", "connection", 4000, nil)

	stats := tr.Stats()
	assert.Equal(t, 1, stats.TotalResources)
	assert.Equal(t, int64(4000), stats.TotalBytes)
}

func TestTracker_SweepIdle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleTimeout = 20 * time.Millisecond
	tr := NewTracker(cfg)

	tr.Track("old", "message", 100, nil)
	time.Sleep(40 * time.Millisecond)
	tr.Track("fresh", "message", 200, nil)

	count, bytes := tr.SweepIdle()
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(100), bytes)

	_, exists := tr.Get("old")
	assert.False(t, exists)
	_, exists = tr.Get("fresh")
	assert.True(t, exists)
}

func TestTracker_TouchDefersSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleTimeout = 30 * time.Millisecond
	tr := NewTracker(cfg)

	tr.Track("kept", "session", 100, nil)
	time.Sleep(20 * time.Millisecond)
	tr.Touch("kept")
	time.Sleep(20 * time.Millisecond)

	count, _ := tr.SweepIdle()
	assert.Equal(t, 0, count)
}

func TestTracker_MonitorTriggersSweep(t *testing.T) {
	cfg := Config{
		CleanupThreshold: 0.5,
		MonitorInterval:  10 * time.Millisecond,
		IdleTimeout:      time.Nanosecond, // everything is idle
	}
	tr := NewTracker(cfg, WithMemoryProbe(func() (float64, error) {
		return 0.9, nil // always above threshold
	}))

	tr.Track("victim", "message", 100, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return tr.Stats().TotalResources == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestTracker_HealthDegradedUnderPressure(t *testing.T) {
	tr := NewTracker(DefaultConfig(), WithMemoryProbe(func() (float64, error) {
		return 0.95, nil
	}))
	assert.True(t, tr.Health().IsDegraded())

	ok := NewTracker(DefaultConfig(), WithMemoryProbe(func() (float64, error) {
		return 0.1, nil
	}))
	assert.True(t, ok.Health().IsHealthy())
}
