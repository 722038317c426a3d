// Package natsclient wraps a core NATS connection with structured logging,
// retrying connect, and health reporting for the dispatch backend.
package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/christianmcgivern/tech-app/errors"
	"github.com/christianmcgivern/tech-app/health"
	"github.com/christianmcgivern/tech-app/pkg/retry"
)

// ConnectionStatus represents the state of the NATS connection.
type ConnectionStatus int32

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Client manages a NATS connection for notification publishing.
type Client struct {
	url    string
	status atomic.Int32
	logger *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn
	subs []*nats.Subscription

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	clientName    string
	token         string

	connectRetry retry.Config

	onHealthChange func(bool)

	closed atomic.Bool
}

// NewClient creates a NATS client for the given server URL.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:           url,
		logger:        slog.Default(),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  10 * time.Second,
		connectRetry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
		},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "natsclient", "NewClient", "apply option")
		}
	}
	return c, nil
}

// URL returns the NATS server URL.
func (c *Client) URL() string { return c.url }

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(int32(s))
}

// IsConnected reports whether the client holds a live connection.
func (c *Client) IsConnected() bool {
	return c.Status() == StatusConnected
}

func (c *Client) buildOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	return opts
}

// Connect establishes the connection, retrying transient failures with
// exponential backoff.
func (c *Client) Connect(ctx context.Context) error {
	c.setStatus(StatusConnecting)
	c.logger.Info("connecting to NATS", "url", c.url)

	err := retry.Do(ctx, c.connectRetry, func() error {
		conn, err := nats.Connect(c.url, c.buildOptions()...)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "natsclient", "Connect", "establish connection")
	}

	c.setStatus(StatusConnected)
	c.logger.Info("connected to NATS", "url", c.url)
	if c.onHealthChange != nil {
		c.onHealthChange(true)
	}
	return nil
}

// Publish publishes a message to a subject.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(errors.ErrNotConnected, "natsclient", "Publish", "check connection")
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "natsclient", "Publish", "publish message")
	}
	return nil
}

// Subscribe subscribes to a subject. Each message handler receives a context
// derived from the parent with a 30 second processing timeout.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return errors.WrapTransient(errors.ErrNotConnected, "natsclient", "Subscribe", "check connection")
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(err, "natsclient", "Subscribe", "subscribe")
	}
	c.subs = append(c.subs, sub)
	return nil
}

// Close drains and closes the connection. Safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("unsubscribe failed", "subject", sub.Subject, "error", err)
		}
	}
	c.subs = nil

	if c.conn == nil {
		c.setStatus(StatusDisconnected)
		return nil
	}

	drainTimeout := c.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
			drainTimeout = remaining
		}
	}

	drainDone := make(chan error, 1)
	go func() { drainDone <- c.conn.Drain() }()

	var drainErr error
	select {
	case err := <-drainDone:
		if err != nil {
			drainErr = errors.Wrap(err, "natsclient", "Close", "drain connection")
		}
	case <-time.After(drainTimeout):
		drainErr = errors.WrapTransient(
			fmt.Errorf("drain timeout after %v", drainTimeout),
			"natsclient", "Close", "drain connection")
	case <-ctx.Done():
		drainErr = errors.Wrap(ctx.Err(), "natsclient", "Close", "drain connection")
	}

	c.conn.Close()
	c.conn = nil
	c.token = ""
	c.setStatus(StatusDisconnected)
	return drainErr
}

// RTT returns the round trip time to the server.
func (c *Client) RTT() (time.Duration, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return 0, errors.ErrNotConnected
	}
	return conn.RTT()
}

// Health reports connection health.
func (c *Client) Health() health.Status {
	switch c.Status() {
	case StatusConnected:
		return health.Healthy("nats", "connected")
	case StatusReconnecting, StatusConnecting:
		return health.Degraded("nats", "connection not established")
	default:
		return health.Unhealthy("nats", "disconnected")
	}
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	c.setStatus(StatusReconnecting)
	c.logger.Warn("NATS disconnected", "error", err)
	if c.onHealthChange != nil {
		go c.onHealthChange(false)
	}
}

func (c *Client) handleReconnect(conn *nats.Conn) {
	c.setStatus(StatusConnected)
	c.logger.Info("NATS reconnected", "url", conn.ConnectedUrl())
	if c.onHealthChange != nil {
		go c.onHealthChange(true)
	}
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)
	if c.onHealthChange != nil {
		go c.onHealthChange(false)
	}
}
