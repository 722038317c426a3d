package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusConstructors(t *testing.T) {
	h := Healthy("pool", "ok")
	assert.True(t, h.IsHealthy())
	assert.True(t, h.Healthy)

	d := Degraded("pool", "nearly full")
	assert.True(t, d.IsDegraded())
	assert.False(t, d.Healthy)

	u := Unhealthy("nats", "disconnected")
	assert.False(t, u.IsHealthy())
}

func TestWithSubStatus_Downgrades(t *testing.T) {
	s := Healthy("dispatchd", "")

	s = s.WithSubStatus(Healthy("sessions", ""))
	assert.Equal(t, "healthy", s.Status)

	s = s.WithSubStatus(Degraded("pool", "nearly full"))
	assert.Equal(t, "degraded", s.Status)

	s = s.WithSubStatus(Unhealthy("nats", "down"))
	assert.Equal(t, "unhealthy", s.Status)
	assert.Len(t, s.SubStatuses, 3)
}
