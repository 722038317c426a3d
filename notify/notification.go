// Package notify implements the notification pipeline: typed notifications,
// delivery channels, a queue-driven delivery service, and the trigger manager
// that turns domain events into notifications.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Type tags a notification with its originating concern.
type Type string

const (
	TypeIssueDetected   Type = "issue_detected"
	TypeOfficeAlert     Type = "office_alert"
	TypeStatusUpdate    Type = "status_update"
	TypeEquipmentAlert  Type = "equipment_alert"
	TypeInventoryAlert  Type = "inventory_alert"
	TypeWorkOrderUpdate Type = "work_order_update"
)

// Notification is a single message bound for one or more delivery channels.
// Priority is advisory: higher values indicate more urgent notifications but
// delivery order is strictly FIFO.
type Notification struct {
	ID           string         `json:"id"`
	Type         Type           `json:"type"`
	Message      string         `json:"message"`
	Timestamp    time.Time      `json:"timestamp"`
	Priority     int            `json:"priority"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	RecipientIDs []string       `json:"recipient_ids,omitempty"`
	Read         bool           `json:"read"`
}

// New builds a notification with a fresh identifier and the current time.
func New(typ Type, message string, priority int, metadata map[string]any) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Type:      typ,
		Message:   message,
		Timestamp: time.Now(),
		Priority:  priority,
		Metadata:  metadata,
	}
}
