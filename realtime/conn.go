package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/christianmcgivern/tech-app/errors"
	"github.com/christianmcgivern/tech-app/resource"
)

// Handler processes one inbound event. Returning an error only propagates
// for the allow-listed error kinds; everything else is logged and swallowed
// by the handler boundary.
type Handler func(ctx context.Context, ev Event) error

// transport is the subset of *websocket.Conn the connection needs. Tests
// substitute an in-memory implementation.
type transport interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// dialFunc establishes the underlying transport.
type dialFunc func(ctx context.Context, cfg Config) (transport, error)

// gorillaDial is the production dialer.
func gorillaDial(ctx context.Context, cfg Config) (transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
		header.Set("OpenAI-Beta", "realtime=v1")
	}
	url := cfg.URL + "?model=" + cfg.ModelVersion
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// connTrackedSize is the nominal size accounted per live connection.
const connTrackedSize = 1024 * 1024

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithTracker wires connection, message and audio accounting into a
// resource tracker.
func WithTracker(tracker *resource.Tracker) ConnOption {
	return func(c *Conn) { c.tracker = tracker }
}

// WithConnLogger sets the connection logger.
func WithConnLogger(logger *slog.Logger) ConnOption {
	return func(c *Conn) { c.logger = logger }
}

// withDialer substitutes the transport dialer (tests only).
func withDialer(dial dialFunc) ConnOption {
	return func(c *Conn) { c.dial = dial }
}

// Conn is one logical connection to the remote streaming endpoint. While
// disconnected, outbound sends are queued, never transmitted; the queue is
// not flushed automatically on reconnect (see FlushQueue).
type Conn struct {
	cfg      Config
	clientID string

	mu             sync.Mutex // guards ws, connected, ids, queue
	ws             transport
	connected      bool
	sessionID      string
	conversationID string
	queue          []any

	sendMu sync.Mutex // serializes writes for per-connection ordering

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	dial    dialFunc
	tracker *resource.Tracker
	logger  *slog.Logger
}

// NewConn creates a connection with the built-in event handlers registered.
// The connection is offline until Connect succeeds.
func NewConn(cfg Config, opts ...ConnOption) *Conn {
	c := &Conn{
		cfg:      cfg,
		clientID: uuid.NewString(),
		handlers: make(map[string]Handler),
		dial:     gorillaDial,
		logger:   slog.Default().With("component", "realtime"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("client_id", c.clientID)
	c.registerDefaults()
	return c
}

// ClientID returns the opaque connection identity.
func (c *Conn) ClientID() string { return c.clientID }

// Config returns the connection configuration.
func (c *Conn) Config() Config { return c.cfg }

// IsConnected reports the connectivity flag.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SessionID returns the remote session correlation id.
func (c *Conn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SetSessionID records the remote session correlation id.
func (c *Conn) SetSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// ConversationID returns the current conversation correlation id.
func (c *Conn) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// SetConversationID records the conversation correlation id.
func (c *Conn) SetConversationID(id string) {
	c.mu.Lock()
	c.conversationID = id
	c.mu.Unlock()
}

// PendingMessages returns the number of queued outbound messages.
func (c *Conn) PendingMessages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Connect establishes the connection, retrying up to maxRetries attempts
// with exponential backoff: the wait after attempt n is
// initialDelay × 2^(n−1). On the first success it sends the
// session-initialization frame and marks the connection live. Exhausting
// all attempts returns a transient error; no panic escapes.
func (c *Conn) Connect(ctx context.Context, maxRetries int, initialDelay time.Duration) error {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if initialDelay <= 0 {
		initialDelay = time.Second
	}
	if c.IsConnected() {
		return nil
	}

	delay := initialDelay
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ws, err := c.dial(ctx, c.cfg)
		if err == nil {
			c.mu.Lock()
			c.ws = ws
			c.connected = true
			c.mu.Unlock()

			if c.tracker != nil {
				c.tracker.Track(c.clientID, "connection", connTrackedSize, map[string]string{
					"model_version": c.cfg.ModelVersion,
				})
			}
			if !c.SendMessage(c.cfg.sessionUpdate()) {
				c.logger.Warn("session initialization frame not delivered")
			}
			c.logger.Info("connected", "attempt", attempt)
			return nil
		}

		lastErr = err
		c.logger.Error("connection attempt failed", "attempt", attempt, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "realtime", "Connect", "dial")
		}
		delay *= 2
	}

	return errors.WrapTransient(lastErr, "realtime", "Connect", "dial")
}

// Disconnect closes the connection best-effort. It always clears the
// connectivity flag, session and conversation ids, and releases the
// connection's tracker entry, even if the underlying close fails.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.connected = false
	c.sessionID = ""
	c.conversationID = ""
	c.mu.Unlock()

	if ws != nil {
		if err := ws.Close(); err != nil {
			c.logger.Error("close failed", "error", err)
		}
	}
	if c.tracker != nil {
		c.tracker.Release(c.clientID)
	}
}

// transmit marshals one frame and writes it on ws. Marshal failures come
// back invalid, write failures transient, so callers can tell a poison
// frame from a broken connection.
func (c *Conn) transmit(ws transport, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return errors.WrapInvalid(err, "realtime", "transmit", "marshal frame")
	}

	msgID := ""
	if c.tracker != nil {
		msgID = uuid.NewString()
		c.tracker.Track(msgID, "message", int64(len(data)), map[string]string{
			"client_id": c.clientID,
		})
	}

	c.sendMu.Lock()
	err = ws.WriteMessage(websocket.TextMessage, data)
	c.sendMu.Unlock()

	if msgID != "" {
		c.tracker.Release(msgID)
	}
	if err != nil {
		return errors.WrapTransient(err, "realtime", "transmit", "write frame")
	}
	return nil
}

// SendMessage serializes and transmits a frame. When disconnected the frame
// is appended to the outbound queue and false is returned; no network I/O
// is attempted. Transmission failures are logged, never raised.
func (c *Conn) SendMessage(frame any) bool {
	c.mu.Lock()
	if !c.connected {
		c.queue = append(c.queue, frame)
		c.mu.Unlock()
		return false
	}
	ws := c.ws
	c.mu.Unlock()

	if err := c.transmit(ws, frame); err != nil {
		c.logger.Error("send failed", "error", err)
		return false
	}
	return true
}

// requeue puts undelivered frames back on the outbound queue.
func (c *Conn) requeue(frames []any) {
	c.mu.Lock()
	c.queue = append(c.queue, frames...)
	c.mu.Unlock()
}

// FlushQueue transmits messages queued while disconnected and returns how
// many were delivered. Flushing is explicit: reconnecting does not trigger
// it. A write failure re-queues the failing frame and everything behind it;
// a frame that cannot marshal can never deliver and is dropped.
func (c *Conn) FlushQueue() int {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	sent := 0
	for i, frame := range pending {
		c.mu.Lock()
		connected := c.connected
		ws := c.ws
		c.mu.Unlock()
		if !connected {
			c.requeue(pending[i:])
			break
		}

		if err := c.transmit(ws, frame); err != nil {
			if errors.IsInvalid(err) {
				c.logger.Error("dropping queued frame", "error", err)
				continue
			}
			c.logger.Error("flush interrupted", "error", err)
			c.requeue(pending[i:])
			break
		}
		sent++
	}
	return sent
}

// SendAudio forwards an audio chunk as an input-audio-append frame.
// Payloads above the configured maximum chunk size are rejected.
func (c *Conn) SendAudio(audio []byte) bool {
	if len(audio) > c.cfg.Audio.MaxChunkSize {
		c.logger.Error("audio chunk exceeds maximum size",
			"size", len(audio), "max", c.cfg.Audio.MaxChunkSize)
		return false
	}

	audioID := ""
	if c.tracker != nil {
		audioID = uuid.NewString()
		c.tracker.Track(audioID, "audio_input", int64(len(audio)), map[string]string{
			"client_id": c.clientID,
		})
	}

	ok := c.SendMessage(audioAppendFrame{
		Type:  TypeAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(audio),
	})

	if audioID != "" {
		c.tracker.Release(audioID)
	}
	return ok
}

// CommitAudio commits the current input audio buffer.
func (c *Conn) CommitAudio() bool {
	return c.SendMessage(typeOnlyFrame{Type: TypeAudioCommit})
}

// ClearAudio clears the current input audio buffer.
func (c *Conn) ClearAudio() bool {
	return c.SendMessage(typeOnlyFrame{Type: TypeAudioClear})
}

// CreateResponse requests a model response. Nil arguments fall back to the
// configured modalities and instructions.
func (c *Conn) CreateResponse(modalities []string, instructions string) bool {
	if modalities == nil {
		modalities = c.cfg.Modalities
	}
	if instructions == "" {
		instructions = c.cfg.Instructions
	}
	return c.SendMessage(responseCreateFrame{
		Type: TypeResponseCreate,
		Response: responseRequest{
			Modalities:   modalities,
			Instructions: instructions,
		},
	})
}

// RegisterHandler adds or overrides the handler for an event type; the last
// registration wins. The handler is wrapped in the error boundary.
func (c *Conn) RegisterHandler(eventType string, h Handler) {
	c.handlersMu.Lock()
	c.handlers[eventType] = c.boundary(eventType, h)
	c.handlersMu.Unlock()
}

// Listen receives inbound frames and dispatches them to registered handlers
// until the connection closes or an unrecoverable read error occurs. The
// loop terminates without raising, clearing the connectivity flag. A
// handler error from the propagation allow-list ends the loop and is
// returned.
func (c *Conn) Listen(ctx context.Context) error {
	for {
		c.mu.Lock()
		ws := c.ws
		connected := c.connected
		c.mu.Unlock()

		if !connected || ws == nil {
			return nil
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("connection closed")
			} else {
				c.logger.Error("read failed", "error", err)
			}
			c.mu.Lock()
			c.ws = nil
			c.connected = false
			c.mu.Unlock()
			return nil
		}

		ev, err := decodeEvent(data)
		if err != nil {
			c.logger.Error("frame decode failed", "error", err)
			continue
		}

		if err := c.dispatch(ctx, ev); err != nil {
			return err
		}
	}
}

// dispatch routes an event to its handler. Unknown event types are logged
// and ignored.
func (c *Conn) dispatch(ctx context.Context, ev Event) error {
	c.handlersMu.RLock()
	h, ok := c.handlers[ev.Type]
	c.handlersMu.RUnlock()

	if !ok {
		c.logger.Warn("unhandled event type", "type", ev.Type)
		return nil
	}
	return h(ctx, ev)
}
