package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/christianmcgivern/tech-app/errors"
	"github.com/christianmcgivern/tech-app/metric"
)

// Channel delivers notifications to one destination. Implementations must be
// safe for concurrent use.
type Channel interface {
	// Name identifies the channel in logs and metrics.
	Name() string
	// Send delivers a single notification. A returned error means the
	// notification was not delivered.
	Send(ctx context.Context, n *Notification) error
}

// Broadcaster fans a payload out to every connected dashboard client. The
// signal hub implements this.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte) error
}

// dashboardEvent is the frame pushed to dashboard clients on every unread
// set change.
type dashboardEvent struct {
	Type string             `json:"type"`
	Data dashboardEventData `json:"data"`
}

type dashboardEventData struct {
	UnreadCount  int               `json:"unread_count"`
	Notification *dashboardPayload `json:"notification,omitempty"`
}

type dashboardPayload struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Priority  int            `json:"priority"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

const dashboardEventType = "dashboard.notification.update"

// AppChannel delivers notifications in-app over the dashboard broadcaster and
// tracks the unread set.
type AppChannel struct {
	broadcaster Broadcaster
	logger      *slog.Logger
	metrics     *metric.Metrics

	mu     sync.Mutex
	unread map[string]*Notification
}

// AppOption configures an AppChannel.
type AppOption func(*AppChannel)

// WithAppLogger sets the channel logger.
func WithAppLogger(l *slog.Logger) AppOption {
	return func(c *AppChannel) { c.logger = l }
}

// WithAppMetrics wires the channel's unread gauge.
func WithAppMetrics(m *metric.Metrics) AppOption {
	return func(c *AppChannel) { c.metrics = m }
}

// NewAppChannel creates the in-app delivery channel. The broadcaster may be
// nil, in which case every Send fails until one is attached.
func NewAppChannel(b Broadcaster, opts ...AppOption) *AppChannel {
	c := &AppChannel{
		broadcaster: b,
		logger:      slog.Default(),
		unread:      make(map[string]*Notification),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Channel.
func (c *AppChannel) Name() string { return "app" }

// Send stores the notification as unread and pushes a dashboard update event
// carrying the new unread count and the notification body.
func (c *AppChannel) Send(ctx context.Context, n *Notification) error {
	if c.broadcaster == nil {
		return errors.WrapFatal(errors.ErrChannelNotReady, "notify", "Send", "check broadcaster")
	}

	c.mu.Lock()
	c.unread[n.ID] = n
	count := len(c.unread)
	c.mu.Unlock()
	c.publishUnreadCount(count)

	event := dashboardEvent{
		Type: dashboardEventType,
		Data: dashboardEventData{
			UnreadCount: count,
			Notification: &dashboardPayload{
				ID:        n.ID,
				Type:      n.Type,
				Message:   n.Message,
				Timestamp: n.Timestamp.Format(time.RFC3339),
				Priority:  n.Priority,
				Metadata:  n.Metadata,
			},
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.WrapInvalid(err, "notify", "Send", "encode dashboard event")
	}
	if err := c.broadcaster.Broadcast(ctx, payload); err != nil {
		return errors.WrapTransient(err, "notify", "Send", "broadcast dashboard event")
	}
	return nil
}

// MarkAsRead removes a notification from the unread set and pushes a
// count-only dashboard update. It reports whether the id was unread.
func (c *AppChannel) MarkAsRead(ctx context.Context, id string) bool {
	c.mu.Lock()
	n, ok := c.unread[id]
	if ok {
		n.Read = true
		delete(c.unread, id)
	}
	count := len(c.unread)
	c.mu.Unlock()
	if !ok {
		return false
	}
	c.publishUnreadCount(count)

	if c.broadcaster != nil {
		event := dashboardEvent{
			Type: dashboardEventType,
			Data: dashboardEventData{UnreadCount: count},
		}
		payload, err := json.Marshal(event)
		if err == nil {
			if err := c.broadcaster.Broadcast(ctx, payload); err != nil {
				c.logger.Warn("unread count broadcast failed", "error", err)
			}
		}
	}
	return true
}

// UnreadCount returns the number of unread notifications.
func (c *AppChannel) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unread)
}

func (c *AppChannel) publishUnreadCount(count int) {
	if c.metrics != nil {
		c.metrics.UnreadNotifications.Set(float64(count))
	}
}
