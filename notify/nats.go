package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/christianmcgivern/tech-app/errors"
	"github.com/christianmcgivern/tech-app/pkg/retry"
)

// Publisher publishes a payload to a subject. The NATS client implements
// this.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// subjectPrefix namespaces notification subjects on the broker.
const subjectPrefix = "dispatch.notifications."

// NATSChannel publishes notifications to a NATS subject per notification
// type, so external consumers can subscribe to the kinds they care about.
type NATSChannel struct {
	pub     Publisher
	logger  *slog.Logger
	publish retry.Config
}

// NATSOption configures a NATSChannel.
type NATSOption func(*NATSChannel)

// WithNATSLogger sets the channel logger.
func WithNATSLogger(l *slog.Logger) NATSOption {
	return func(c *NATSChannel) { c.logger = l }
}

// WithPublishRetry overrides the retry policy for transient publish failures.
func WithPublishRetry(cfg retry.Config) NATSOption {
	return func(c *NATSChannel) { c.publish = cfg }
}

// NewNATSChannel creates a broker-backed delivery channel.
func NewNATSChannel(pub Publisher, opts ...NATSOption) *NATSChannel {
	c := &NATSChannel{
		pub:    pub,
		logger: slog.Default(),
		publish: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Channel.
func (c *NATSChannel) Name() string { return "nats" }

// Send publishes the notification, retrying transient broker failures.
func (c *NATSChannel) Send(ctx context.Context, n *Notification) error {
	if c.pub == nil {
		return errors.WrapFatal(errors.ErrChannelNotReady, "notify", "Send", "check publisher")
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return errors.WrapInvalid(err, "notify", "Send", "encode notification")
	}

	subject := subjectPrefix + string(n.Type)
	err = retry.Do(ctx, c.publish, func() error {
		return c.pub.Publish(ctx, subject, payload)
	})
	if err != nil {
		return errors.WrapTransient(err, "notify", "Send", "publish notification")
	}
	return nil
}
