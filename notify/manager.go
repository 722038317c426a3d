package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Manager turns domain events into notifications and tracks active alerts
// until they are acknowledged.
type Manager struct {
	service *Service
	logger  *slog.Logger

	mu     sync.Mutex
	alerts map[string]*Notification
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the manager logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager publishing through the given service.
func NewManager(service *Service, opts ...ManagerOption) *Manager {
	m := &Manager{
		service: service,
		logger:  slog.Default(),
		alerts:  make(map[string]*Notification),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) track(n *Notification) {
	m.mu.Lock()
	m.alerts[n.ID] = n
	m.mu.Unlock()
	m.service.Enqueue(n)
}

// HandleWorkOrderUpdate emits a status update notification for every call,
// an issue notification when issues is non-empty, and an office alert when
// requested.
func (m *Manager) HandleWorkOrderUpdate(workOrderID, status, notes, issues string, alertOffice bool) {
	m.track(New(TypeStatusUpdate,
		fmt.Sprintf("Work order %s status updated to: %s", workOrderID, status),
		1,
		map[string]any{
			"work_order_id": workOrderID,
			"status":        status,
			"notes":         notes,
		}))

	if issues != "" {
		m.track(New(TypeIssueDetected,
			fmt.Sprintf("Issue reported for work order %s: %s", workOrderID, issues),
			2,
			map[string]any{
				"work_order_id":     workOrderID,
				"issue_description": issues,
			}))
	}

	if alertOffice {
		m.track(New(TypeOfficeAlert,
			fmt.Sprintf("Office alert requested for work order %s", workOrderID),
			3,
			map[string]any{
				"work_order_id": workOrderID,
				"status":        status,
				"notes":         notes,
				"issues":        issues,
			}))
	}
}

// HandleEquipmentAlert emits an equipment alert whose priority equals the
// reported severity.
func (m *Manager) HandleEquipmentAlert(equipmentID, issueType, description string, severity int) {
	m.track(New(TypeEquipmentAlert,
		fmt.Sprintf("Equipment alert: %s - %s", issueType, description),
		severity,
		map[string]any{
			"equipment_id": equipmentID,
			"issue_type":   issueType,
			"description":  description,
		}))
}

// HandleInventoryAlert emits a low-inventory alert only when the current
// level is at or below the threshold.
func (m *Manager) HandleInventoryAlert(itemID string, currentLevel, threshold int, location string) {
	if currentLevel > threshold {
		return
	}
	m.track(New(TypeInventoryAlert,
		fmt.Sprintf("Low inventory alert for item %s at location %s", itemID, location),
		2,
		map[string]any{
			"item_id":       itemID,
			"current_level": currentLevel,
			"threshold":     threshold,
			"location":      location,
		}))
}

// ActiveAlerts returns the unacknowledged alerts.
func (m *Manager) ActiveAlerts() []*Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	alerts := make([]*Notification, 0, len(m.alerts))
	for _, n := range m.alerts {
		alerts = append(alerts, n)
	}
	return alerts
}

// Acknowledge marks the alert as read and removes it from the active set.
// It reports whether the alert id was active.
func (m *Manager) Acknowledge(ctx context.Context, alertID string) bool {
	m.mu.Lock()
	_, ok := m.alerts[alertID]
	if ok {
		delete(m.alerts, alertID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	if !m.service.MarkAsRead(ctx, alertID) {
		m.logger.Debug("acknowledged alert was not unread", "alert_id", alertID)
	}
	return true
}
