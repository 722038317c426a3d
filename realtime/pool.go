package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/christianmcgivern/tech-app/errors"
	"github.com/christianmcgivern/tech-app/health"
	"github.com/christianmcgivern/tech-app/metric"
)

// poolEntry wraps a pooled connection with its bookkeeping metadata. It is
// owned exclusively by the pool.
type poolEntry struct {
	conn      *Conn
	createdAt time.Time
	lastUsed  time.Time
}

// PoolStats reports pool utilization.
type PoolStats struct {
	TotalConnections  int
	ActiveConnections int
	IdleConnections   int
	Utilization       float64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolMetrics wires the pool gauges into the core metrics.
func WithPoolMetrics(m *metric.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// WithPoolLogger sets the pool logger.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

// WithConnOptions passes options to every connection the pool creates.
func WithConnOptions(opts ...ConnOption) PoolOption {
	return func(p *Pool) { p.connOpts = opts }
}

// withConnector substitutes the connection factory (tests only).
func withConnector(connect func(ctx context.Context, cfg Config) (*Conn, error)) PoolOption {
	return func(p *Pool) { p.connect = connect }
}

// Pool reuses realtime connections across callers with identical
// configuration fingerprints. It bounds total connections and evicts idle
// entries past the TTL. The pool is the sole mutator of its entries.
type Pool struct {
	maxSize int
	ttl     time.Duration

	mu      sync.Mutex
	entries map[string]*poolEntry
	pending int // reserved slots for in-flight connects

	connect  func(ctx context.Context, cfg Config) (*Conn, error)
	connOpts []ConnOption
	metrics  *metric.Metrics
	logger   *slog.Logger
}

// NewPool creates a connection pool.
func NewPool(maxSize int, ttl time.Duration, opts ...PoolOption) *Pool {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	p := &Pool{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[string]*poolEntry),
		logger:  slog.Default().With("component", "pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.connect == nil {
		p.connect = func(ctx context.Context, cfg Config) (*Conn, error) {
			conn := NewConn(cfg, p.connOpts...)
			if err := conn.Connect(ctx, cfg.MaxRetries, cfg.RetryDelay); err != nil {
				conn.Disconnect()
				return nil, err
			}
			return conn, nil
		}
	}
	return p
}

// WithConnection runs fn with a connection acquired for the given
// configuration, guaranteeing release back to the pool on every exit path.
// Released connections stay open for reuse.
func (p *Pool) WithConnection(ctx context.Context, cfg Config, fn func(*Conn) error) error {
	conn, err := p.Acquire(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	return fn(conn)
}

// Acquire returns a compatible connected entry, or creates a new one when
// the pool has room. When full it runs one idle sweep; if still full the
// acquisition fails with ErrPoolExhausted and no connection is created.
func (p *Pool) Acquire(ctx context.Context, cfg Config) (*Conn, error) {
	want := cfg.Fingerprint()
	var stale []*Conn

	p.mu.Lock()
	var reused *Conn
	for id, entry := range p.entries {
		if entry.conn.Config().Fingerprint() != want {
			continue
		}
		if entry.conn.IsConnected() {
			entry.lastUsed = time.Now()
			reused = entry.conn
			break
		}
		// Compatible but no longer connected: evict immediately.
		stale = append(stale, entry.conn)
		delete(p.entries, id)
	}

	if reused != nil {
		p.publishGauges()
		p.mu.Unlock()
		p.disconnectAll(stale)
		return reused, nil
	}

	if len(p.entries)+p.pending >= p.maxSize {
		expired := p.evictIdleLocked()
		stale = append(stale, expired...)
		if len(p.entries)+p.pending >= p.maxSize {
			p.publishGauges()
			p.mu.Unlock()
			p.disconnectAll(stale)
			if p.metrics != nil {
				p.metrics.PoolExhaustions.Inc()
			}
			return nil, errors.ErrPoolExhausted
		}
	}
	// Reserve the slot before dialing; the dial happens outside the lock
	// and other acquisitions may race for the remaining capacity.
	p.pending++
	p.mu.Unlock()

	p.disconnectAll(stale)

	conn, err := p.connect(ctx, cfg)

	p.mu.Lock()
	p.pending--
	if err != nil {
		p.publishGauges()
		p.mu.Unlock()
		return nil, errors.Wrap(err, "pool", "Acquire", "create connection")
	}
	now := time.Now()
	p.entries[uuid.NewString()] = &poolEntry{
		conn:      conn,
		createdAt: now,
		lastUsed:  now,
	}
	p.publishGauges()
	p.mu.Unlock()

	p.logger.Debug("created pooled connection", "fingerprint", want)
	return conn, nil
}

// Release refreshes the last-used timestamp of the entry owning conn. The
// connection is not closed; pooled connections persist across uses.
func (p *Pool) Release(conn *Conn) {
	p.mu.Lock()
	for _, entry := range p.entries {
		if entry.conn == conn {
			entry.lastUsed = time.Now()
			break
		}
	}
	p.mu.Unlock()
}

// EvictIdle disconnects and removes every entry idle past the TTL.
func (p *Pool) EvictIdle() int {
	p.mu.Lock()
	expired := p.evictIdleLocked()
	p.publishGauges()
	p.mu.Unlock()

	p.disconnectAll(expired)
	return len(expired)
}

// evictIdleLocked removes idle entries and returns their connections for
// disconnection outside the lock. Callers hold p.mu.
func (p *Pool) evictIdleLocked() []*Conn {
	cutoff := time.Now().Add(-p.ttl)
	var expired []*Conn
	for id, entry := range p.entries {
		if entry.lastUsed.Before(cutoff) {
			expired = append(expired, entry.conn)
			delete(p.entries, id)
		}
	}
	return expired
}

// Close evicts every entry unconditionally. Used at shutdown.
func (p *Pool) Close() {
	p.mu.Lock()
	var conns []*Conn
	for id, entry := range p.entries {
		conns = append(conns, entry.conn)
		delete(p.entries, id)
	}
	p.publishGauges()
	p.mu.Unlock()

	p.disconnectAll(conns)
}

// Stats reports current pool utilization.
func (p *Pool) Stats() PoolStats {
	cutoff := time.Now().Add(-p.ttl)

	p.mu.Lock()
	defer p.mu.Unlock()

	active := 0
	for _, entry := range p.entries {
		if !entry.lastUsed.Before(cutoff) {
			active++
		}
	}
	total := len(p.entries)
	return PoolStats{
		TotalConnections:  total,
		ActiveConnections: active,
		IdleConnections:   total - active,
		Utilization:       float64(total) / float64(p.maxSize),
	}
}

// Health implements health.Reporter.
func (p *Pool) Health() health.Status {
	stats := p.Stats()
	if stats.Utilization >= 1.0 {
		return health.Degraded("pool", "pool at capacity")
	}
	return health.Healthy("pool", "")
}

// publishGauges updates the Prometheus gauges; callers hold p.mu.
func (p *Pool) publishGauges() {
	if p.metrics == nil {
		return
	}
	p.metrics.PoolConnections.Set(float64(len(p.entries)))
	p.metrics.PoolUtilization.Set(float64(len(p.entries)) / float64(p.maxSize))
}

func (p *Pool) disconnectAll(conns []*Conn) {
	for _, conn := range conns {
		conn.Disconnect()
	}
}
