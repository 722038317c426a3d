package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_CoreMetricsRegistered(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r.Metrics)

	r.Metrics.SessionsActive.Set(3)
	r.Metrics.NotificationsQueued.Inc()

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["dispatch_sessions_active"])
	assert.True(t, names["dispatch_notifications_queued_total"])
	assert.True(t, names["dispatch_pool_utilization"])
}

func TestRegistry_ComponentMetricLifecycle(t *testing.T) {
	r := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_component_ops_total",
		Help: "test counter",
	})
	require.NoError(t, r.RegisterCounter("test", "ops_total", counter))

	// Duplicate registration under the same key is rejected.
	assert.Error(t, r.RegisterCounter("test", "ops_total", counter))

	assert.True(t, r.Unregister("test", "ops_total"))
	assert.False(t, r.Unregister("test", "ops_total"))
}
