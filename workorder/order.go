// Package workorder owns the work-item state machines and the
// priority-ordered dispatch queue consumed by the office and technician
// surfaces.
package workorder

import (
	"fmt"
	"time"

	"github.com/christianmcgivern/tech-app/errors"
)

// Priority is the dispatch priority of a work order.
type Priority int

// Priority levels in ascending urgency.
const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityUrgent
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// valid reports whether p is a defined priority level.
func (p Priority) valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

// Status is the lifecycle status of a work order.
type Status int

// Work order statuses. Completed and Cancelled are terminal; OnHold pauses
// an order until it is resumed.
const (
	StatusPending Status = iota
	StatusAssigned
	StatusInProgress
	StatusCompleted
	StatusCancelled
	StatusOnHold
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAssigned:
		return "assigned"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusOnHold:
		return "on_hold"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// transitions is the explicit status table. Cancel and hold are reachable
// from every non-terminal status; a held order resumes to the status it
// was held from.
var transitions = map[Status][]Status{
	StatusPending:    {StatusAssigned, StatusCancelled, StatusOnHold},
	StatusAssigned:   {StatusInProgress, StatusCancelled, StatusOnHold},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusOnHold},
	StatusOnHold:     {StatusPending, StatusAssigned, StatusInProgress, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether the move from s to target is legal.
func (s Status) CanTransition(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Location is an immutable validated coordinate pair.
type Location struct {
	latitude  float64
	longitude float64
}

// NewLocation validates and constructs a location. Latitude must be within
// [-90, 90] and longitude within [-180, 180].
func NewLocation(latitude, longitude float64) (Location, error) {
	if latitude < -90 || latitude > 90 {
		return Location{}, errors.WrapInvalid(
			fmt.Errorf("latitude %g: %w", latitude, errors.ErrInvalidLocation),
			"workorder", "NewLocation", "validate")
	}
	if longitude < -180 || longitude > 180 {
		return Location{}, errors.WrapInvalid(
			fmt.Errorf("longitude %g: %w", longitude, errors.ErrInvalidLocation),
			"workorder", "NewLocation", "validate")
	}
	return Location{latitude: latitude, longitude: longitude}, nil
}

// Latitude returns the latitude.
func (l Location) Latitude() float64 { return l.latitude }

// Longitude returns the longitude.
func (l Location) Longitude() float64 { return l.longitude }

// Note is one timestamped entry on a work order.
type Note struct {
	Timestamp time.Time
	Content   string
	Author    string
}

// Order is a single work order. Orders are owned by the Registry and are
// never deleted, only transitioned to a terminal status.
type Order struct {
	ID          string
	Description string
	Priority    Priority
	Status      Status

	AssignedTechnician string
	CreatedAt          time.Time
	StartedAt          time.Time
	CompletedAt        time.Time
	Location           *Location
	Notes              []Note

	// heldFrom remembers the status an on-hold order resumes to.
	heldFrom Status
}
