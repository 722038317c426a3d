// Package signal runs the dashboard WebSocket hub. Office dashboards connect
// here and receive notification and queue updates pushed by the notification
// pipeline.
package signal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/christianmcgivern/tech-app/errors"
	"github.com/christianmcgivern/tech-app/health"
	"github.com/christianmcgivern/tech-app/metric"
)

// Config holds the hub's listen settings.
type Config struct {
	Addr         string
	Path         string
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration
}

// DefaultConfig returns the default hub configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8090",
		Path:         "/ws/office",
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
	}
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

type hubMetrics struct {
	clientsConnected prometheus.Gauge
	broadcastsTotal  prometheus.Counter
	errorsTotal      prometheus.Counter
}

// Hub is a WebSocket broadcast server. It implements the broadcaster used by
// the in-app notification channel.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	server   *http.Server
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*client

	mu       sync.Mutex
	running  bool
	shutdown chan struct{}
	wg       sync.WaitGroup

	metrics *hubMetrics
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithRegistry registers hub metrics on the given registry.
func WithRegistry(reg *metric.Registry) Option {
	return func(h *Hub) {
		m := &hubMetrics{
			clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "dispatch",
				Subsystem: "signal",
				Name:      "clients_connected",
				Help:      "Number of connected dashboard clients",
			}),
			broadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dispatch",
				Subsystem: "signal",
				Name:      "broadcasts_total",
				Help:      "Total broadcast payloads pushed to clients",
			}),
			errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dispatch",
				Subsystem: "signal",
				Name:      "errors_total",
				Help:      "Hub errors, including failed client writes",
			}),
		}
		if err := reg.RegisterGauge("signal", "clients_connected", m.clientsConnected); err != nil {
			return
		}
		if err := reg.RegisterCounter("signal", "broadcasts_total", m.broadcastsTotal); err != nil {
			return
		}
		if err := reg.RegisterCounter("signal", "errors_total", m.errorsTotal); err != nil {
			return
		}
		h.metrics = m
	}
}

// NewHub creates a hub with the given configuration.
func NewHub(cfg Config, opts ...Option) *Hub {
	h := &Hub{
		cfg:    cfg,
		logger: slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start begins serving WebSocket connections. It returns once the listener
// is running; serving continues in the background until Stop.
func (h *Hub) Start(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return nil
	}
	if h.cfg.Path == "" {
		return errors.WrapInvalid(fmt.Errorf("empty websocket path"), "signal", "Start", "validate config")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(h.cfg.Path, h.handleWebSocket)
	h.server = &http.Server{Addr: h.cfg.Addr, Handler: mux}
	h.shutdown = make(chan struct{})
	h.running = true

	h.wg.Add(2)
	go h.runServer()
	go h.maintainClients()

	h.logger.Info("signal hub started", "addr", h.cfg.Addr, "path", h.cfg.Path)
	return nil
}

func (h *Hub) runServer() {
	defer h.wg.Done()

	err := h.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		h.logger.Error("signal hub server failed", "error", err)
		if h.metrics != nil {
			h.metrics.errorsTotal.Inc()
		}
	}
}

// maintainClients pings connected clients and drops the ones that stopped
// responding.
func (h *Hub) maintainClients() {
	defer h.wg.Done()

	interval := h.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.shutdown:
			return
		case <-ticker.C:
			h.pingClients()
		}
	}
}

func (h *Hub) pingClients() {
	h.clientsMu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		err := c.conn.WriteMessage(websocket.PingMessage, nil)
		c.writeMu.Unlock()
		if err != nil {
			h.removeClient(c.conn, "ping failed")
		}
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		if h.metrics != nil {
			h.metrics.errorsTotal.Inc()
		}
		return
	}

	c := &client{conn: conn}

	h.clientsMu.Lock()
	h.clients[conn] = c
	count := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Info("dashboard client connected", "remote", r.RemoteAddr, "clients", count)
	if h.metrics != nil {
		h.metrics.clientsConnected.Set(float64(count))
	}

	h.wg.Add(1)
	go h.readLoop(c)
}

// readLoop drains inbound frames so close and pong control frames are
// processed. Dashboards do not send application data. The read deadline is
// refreshed on every pong, so clients that stop responding to pings get
// dropped when the deadline expires.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.removeClient(c.conn, "connection closed")

	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn, reason string) {
	h.clientsMu.Lock()
	_, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
	}
	count := len(h.clients)
	h.clientsMu.Unlock()

	if !ok {
		return
	}
	_ = conn.Close()
	h.logger.Info("dashboard client removed", "reason", reason, "clients", count)
	if h.metrics != nil {
		h.metrics.clientsConnected.Set(float64(count))
	}
}

// Broadcast pushes the payload to every connected client. Clients whose
// writes fail are dropped. Broadcasting to zero clients is not an error.
func (h *Hub) Broadcast(_ context.Context, payload []byte) error {
	h.clientsMu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	var failed int
	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		err := c.conn.WriteMessage(websocket.TextMessage, payload)
		c.writeMu.Unlock()
		if err != nil {
			failed++
			h.removeClient(c.conn, "write failed")
			if h.metrics != nil {
				h.metrics.errorsTotal.Inc()
			}
		}
	}

	if h.metrics != nil {
		h.metrics.broadcastsTotal.Inc()
	}
	if failed > 0 && failed == len(clients) {
		return errors.WrapTransient(
			fmt.Errorf("all %d clients failed: %w", failed, errors.ErrDeliveryFailed),
			"signal", "Broadcast", "write to clients")
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Stop shuts the server down and closes all client connections.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	close(h.shutdown)
	server := h.server
	h.mu.Unlock()

	var shutdownErr error
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			shutdownErr = errors.Wrap(err, "signal", "Stop", "shutdown server")
		}
	}

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close()
	}
	h.clients = make(map[*websocket.Conn]*client)
	h.clientsMu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		h.logger.Warn("signal hub goroutines did not exit in time")
	}

	h.logger.Info("signal hub stopped")
	return shutdownErr
}

// Health reports whether the hub is serving.
func (h *Hub) Health() health.Status {
	h.mu.Lock()
	running := h.running
	h.mu.Unlock()

	if !running {
		return health.Unhealthy("signal", "not running")
	}
	return health.Healthy("signal", fmt.Sprintf("%d clients connected", h.ClientCount()))
}
