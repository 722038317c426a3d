package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/christianmcgivern/tech-app/health"
	"github.com/christianmcgivern/tech-app/metric"
)

const defaultQueueCapacity = 256

// Service owns the notification queue and delivers queued notifications to
// every configured channel in FIFO order. A single consumer goroutine keeps
// delivery ordered.
type Service struct {
	logger  *slog.Logger
	metrics *metric.Metrics

	queueCap int
	queue    chan *Notification

	mu       sync.RWMutex
	channels []Channel
	app      *AppChannel
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithServiceMetrics wires queue and delivery metrics.
func WithServiceMetrics(m *metric.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithQueueCapacity sets the queue depth before enqueues start dropping.
func WithQueueCapacity(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.queueCap = n
		}
	}
}

// NewService creates a notification service with no channels attached.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		logger:   slog.Default(),
		queueCap: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = make(chan *Notification, s.queueCap)
	return s
}

// AttachChannel adds a delivery channel. The in-app channel is remembered so
// read state queries can be delegated to it.
func (s *Service) AttachChannel(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, ch)
	if app, ok := ch.(*AppChannel); ok {
		s.app = app
	}
	s.logger.Info("attached notification channel", "channel", ch.Name())
}

// Enqueue queues a notification for delivery. When the queue is full the
// notification is dropped and counted rather than blocking the caller.
func (s *Service) Enqueue(n *Notification) bool {
	select {
	case s.queue <- n:
		if s.metrics != nil {
			s.metrics.NotificationsQueued.Inc()
			s.metrics.NotificationQueueDepth.Set(float64(len(s.queue)))
		}
		return true
	default:
		s.logger.Error("notification queue full, dropping",
			"notification_id", n.ID, "type", n.Type)
		if s.metrics != nil {
			s.metrics.NotificationsDropped.Inc()
		}
		return false
	}
}

// Run consumes the queue until ctx is cancelled. Delivery failures are
// logged and counted; the notification is dropped, never retried by the
// service itself.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("notification service started", "queue_capacity", s.queueCap)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("notification service stopped", "pending", len(s.queue))
			return
		case n := <-s.queue:
			s.deliver(ctx, n)
			if s.metrics != nil {
				s.metrics.NotificationQueueDepth.Set(float64(len(s.queue)))
			}
		}
	}
}

func (s *Service) deliver(ctx context.Context, n *Notification) {
	s.mu.RLock()
	channels := make([]Channel, len(s.channels))
	copy(channels, s.channels)
	s.mu.RUnlock()

	if len(channels) == 0 {
		s.logger.Error("no channels attached, dropping notification",
			"notification_id", n.ID, "type", n.Type)
		if s.metrics != nil {
			s.metrics.NotificationsDropped.Inc()
		}
		return
	}

	for _, ch := range channels {
		if err := ch.Send(ctx, n); err != nil {
			s.logger.Error("notification delivery failed",
				"channel", ch.Name(), "notification_id", n.ID,
				"type", n.Type, "error", err)
			if s.metrics != nil {
				s.metrics.NotificationsDropped.Inc()
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.NotificationsDelivered.WithLabelValues(ch.Name()).Inc()
		}
	}
}

// MarkAsRead marks a notification as read on the in-app channel and reports
// whether it was unread.
func (s *Service) MarkAsRead(ctx context.Context, id string) bool {
	s.mu.RLock()
	app := s.app
	s.mu.RUnlock()

	if app == nil {
		return false
	}
	return app.MarkAsRead(ctx, id)
}

// UnreadCount returns the count of unread in-app notifications.
func (s *Service) UnreadCount() int {
	s.mu.RLock()
	app := s.app
	s.mu.RUnlock()

	if app == nil {
		return 0
	}
	return app.UnreadCount()
}

// QueueDepth returns the number of notifications awaiting delivery.
func (s *Service) QueueDepth() int {
	return len(s.queue)
}

// Health reports queue pressure.
func (s *Service) Health() health.Status {
	depth := len(s.queue)
	if depth >= s.queueCap {
		return health.Unhealthy("notify", fmt.Sprintf("queue full (%d pending)", depth))
	}
	if depth > s.queueCap/2 {
		return health.Degraded("notify", fmt.Sprintf("queue filling (%d pending)", depth))
	}
	return health.Healthy("notify", "delivering")
}
