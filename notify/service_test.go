package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christianmcgivern/tech-app/metric"
)

type recordingChannel struct {
	name string
	err  error

	mu   sync.Mutex
	sent []*Notification
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(_ context.Context, n *Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, n)
	return nil
}

func (c *recordingChannel) delivered() []*Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Notification, len(c.sent))
	copy(out, c.sent)
	return out
}

func TestService_DeliversFIFO(t *testing.T) {
	ch := &recordingChannel{name: "app"}
	s := NewService()
	s.AttachChannel(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	first := New(TypeStatusUpdate, "first", 1, nil)
	second := New(TypeOfficeAlert, "second", 3, nil)
	third := New(TypeStatusUpdate, "third", 1, nil)
	assert.True(t, s.Enqueue(first))
	assert.True(t, s.Enqueue(second))
	assert.True(t, s.Enqueue(third))

	require.Eventually(t, func() bool {
		return len(ch.delivered()) == 3
	}, time.Second, 5*time.Millisecond)

	delivered := ch.delivered()
	assert.Equal(t, first.ID, delivered[0].ID)
	assert.Equal(t, second.ID, delivered[1].ID)
	assert.Equal(t, third.ID, delivered[2].ID)
}

func TestService_FanOutToAllChannels(t *testing.T) {
	app := &recordingChannel{name: "app"}
	nats := &recordingChannel{name: "nats"}
	s := NewService()
	s.AttachChannel(app)
	s.AttachChannel(nats)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Enqueue(New(TypeEquipmentAlert, "alert", 2, nil))

	require.Eventually(t, func() bool {
		return len(app.delivered()) == 1 && len(nats.delivered()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestService_DeliveryFailureDoesNotBlockOtherChannels(t *testing.T) {
	failing := &recordingChannel{name: "nats", err: assert.AnError}
	working := &recordingChannel{name: "app"}
	s := NewService()
	s.AttachChannel(failing)
	s.AttachChannel(working)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Enqueue(New(TypeStatusUpdate, "m", 1, nil))

	require.Eventually(t, func() bool {
		return len(working.delivered()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, failing.delivered())
}

func TestService_EnqueueDropsWhenFull(t *testing.T) {
	s := NewService(WithQueueCapacity(2))

	assert.True(t, s.Enqueue(New(TypeStatusUpdate, "1", 1, nil)))
	assert.True(t, s.Enqueue(New(TypeStatusUpdate, "2", 1, nil)))
	// No consumer running, so the third enqueue overflows.
	assert.False(t, s.Enqueue(New(TypeStatusUpdate, "3", 1, nil)))
	assert.Equal(t, 2, s.QueueDepth())
}

func TestService_QueueDepthGaugeIsOwnSeries(t *testing.T) {
	reg := metric.NewRegistry()
	// The work order registry owns the dispatch queue gauge; the service must
	// not write to it.
	reg.Metrics.DispatchQueueDepth.Set(7)

	s := NewService(WithServiceMetrics(reg.Metrics), WithQueueCapacity(4))
	s.Enqueue(New(TypeStatusUpdate, "m", 1, nil))
	s.Enqueue(New(TypeStatusUpdate, "m", 1, nil))

	families, err := reg.PrometheusRegistry().Gather()
	require.NoError(t, err)

	gauges := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			if m.GetGauge() != nil {
				gauges[f.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, float64(7), gauges["dispatch_workorders_queue_depth"])
	assert.Equal(t, float64(2), gauges["dispatch_notifications_queue_depth"])
}

func TestService_ReadStateDelegatesToAppChannel(t *testing.T) {
	b := &fakeBroadcaster{}
	app := NewAppChannel(b)
	s := NewService()
	s.AttachChannel(app)

	n := New(TypeIssueDetected, "issue", 2, nil)
	require.NoError(t, app.Send(context.Background(), n))

	assert.Equal(t, 1, s.UnreadCount())
	assert.True(t, s.MarkAsRead(context.Background(), n.ID))
	assert.Equal(t, 0, s.UnreadCount())
}

func TestService_ReadStateWithoutAppChannel(t *testing.T) {
	s := NewService()
	s.AttachChannel(&recordingChannel{name: "nats"})

	assert.Equal(t, 0, s.UnreadCount())
	assert.False(t, s.MarkAsRead(context.Background(), "any"))
}

func TestService_Health(t *testing.T) {
	s := NewService(WithQueueCapacity(4))
	assert.True(t, s.Health().IsHealthy())

	for i := 0; i < 3; i++ {
		s.Enqueue(New(TypeStatusUpdate, "m", 1, nil))
	}
	assert.True(t, s.Health().IsDegraded())

	s.Enqueue(New(TypeStatusUpdate, "m", 1, nil))
	assert.False(t, s.Health().IsHealthy())
	assert.False(t, s.Health().IsDegraded())
}

func TestService_RunStopsOnCancel(t *testing.T) {
	s := NewService()
	s.AttachChannel(&recordingChannel{name: "app"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("service did not stop after cancel")
	}
}
