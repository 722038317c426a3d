// Package health provides health reporting for the dispatch components.
package health

import (
	"time"
)

// Status represents the health state of a component or the whole process.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related runtime figures.
type Metrics struct {
	Uptime       time.Duration `json:"uptime"`
	ErrorCount   int           `json:"error_count"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
}

// Healthy builds a healthy status for a component.
func Healthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "healthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Degraded builds a degraded status for a component.
func Degraded(component, message string) Status {
	return Status{
		Component: component,
		Status:    "degraded",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Unhealthy builds an unhealthy status for a component.
func Unhealthy(component, message string) Status {
	return Status{
		Component: component,
		Status:    "unhealthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// IsHealthy returns true if the status is healthy.
func (s Status) IsHealthy() bool { return s.Status == "healthy" }

// IsDegraded returns true if the status is degraded.
func (s Status) IsDegraded() bool { return s.Status == "degraded" }

// WithMetrics returns a copy of the status with metrics attached.
func (s Status) WithMetrics(m *Metrics) Status {
	s.Metrics = m
	return s
}

// WithSubStatus appends a sub-status and returns a copy. The aggregate
// status is downgraded if the sub-status is worse.
func (s Status) WithSubStatus(sub Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, sub)

	switch {
	case sub.Status == "unhealthy":
		s.Status = "unhealthy"
		s.Healthy = false
	case sub.Status == "degraded" && s.Status == "healthy":
		s.Status = "degraded"
		s.Healthy = false
	}
	return s
}

// Reporter is implemented by components that can report their health.
type Reporter interface {
	Health() Status
}
