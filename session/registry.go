package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/christianmcgivern/tech-app/errors"
	"github.com/christianmcgivern/tech-app/health"
	"github.com/christianmcgivern/tech-app/metric"
	"github.com/christianmcgivern/tech-app/realtime"
	"github.com/christianmcgivern/tech-app/resource"
)

// sessionTrackedSize is the nominal size accounted per session.
const sessionTrackedSize = 1024 * 1024

// Stats reports registry utilization.
type Stats struct {
	TotalSessions   int
	ActiveSessions  int
	ExpiredSessions int
	Utilization     float64
}

// RegistryConfig holds session registry settings.
type RegistryConfig struct {
	MaxSessions   int
	TTL           time.Duration
	SweepInterval time.Duration
}

// DefaultRegistryConfig returns the reference sizing: 100 sessions,
// 30-minute TTL, sweep every minute.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MaxSessions:   100,
		TTL:           30 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithPool makes the registry acquire connections from a pool instead of
// creating dedicated ones.
func WithPool(pool *realtime.Pool) RegistryOption {
	return func(r *Registry) { r.pool = pool }
}

// WithTracker wires session accounting into a resource tracker.
func WithTracker(tracker *resource.Tracker) RegistryOption {
	return func(r *Registry) { r.tracker = tracker }
}

// WithMetrics wires the session gauges into the core metrics.
func WithMetrics(m *metric.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// withConnector substitutes the dedicated-connection factory (tests only).
func withConnector(connect func(ctx context.Context, cfg realtime.Config) (*realtime.Conn, error)) RegistryOption {
	return func(r *Registry) { r.connect = connect }
}

// Registry owns all sessions. It is the sole mutator of the session map;
// pooled connections remain the pool's responsibility.
type Registry struct {
	cfg RegistryConfig

	mu       sync.Mutex
	sessions map[string]*Session

	pool    *realtime.Pool
	tracker *resource.Tracker
	connect func(ctx context.Context, cfg realtime.Config) (*realtime.Conn, error)
	metrics *metric.Metrics
	logger  *slog.Logger
}

// NewRegistry creates a session registry. The background sweep does not
// start until Run is called.
func NewRegistry(cfg RegistryConfig, opts ...RegistryOption) *Registry {
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = 100
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	r := &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		logger:   slog.Default().With("component", "session"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.connect == nil {
		r.connect = func(ctx context.Context, cfg realtime.Config) (*realtime.Conn, error) {
			var connOpts []realtime.ConnOption
			if r.tracker != nil {
				connOpts = append(connOpts, realtime.WithTracker(r.tracker))
			}
			conn := realtime.NewConn(cfg, connOpts...)
			if err := conn.Connect(ctx, cfg.MaxRetries, cfg.RetryDelay); err != nil {
				return nil, err
			}
			return conn, nil
		}
	}
	return r
}

// Create allocates a session bound to a pooled or dedicated connection.
// When the registry is at capacity it sweeps expired sessions first; if
// still full it fails with ErrSessionLimit. A dedicated connection created
// for a session that subsequently fails to register is disconnected.
func (r *Registry) Create(ctx context.Context, cfg realtime.Config) (*Session, error) {
	r.mu.Lock()
	atCapacity := len(r.sessions) >= r.cfg.MaxSessions
	r.mu.Unlock()

	if atCapacity {
		r.CleanupExpired()
		r.mu.Lock()
		stillFull := len(r.sessions) >= r.cfg.MaxSessions
		r.mu.Unlock()
		if stillFull {
			return nil, errors.ErrSessionLimit
		}
	}

	sess := newSession(uuid.NewString(), cfg)

	if r.pool != nil {
		// Pooled sessions bind a connection for the create call only; the
		// pool keeps ownership and later operations re-acquire.
		err := r.pool.WithConnection(ctx, cfg, func(*realtime.Conn) error { return nil })
		if err != nil {
			return nil, errors.Wrap(err, "session", "Create", "acquire pooled connection")
		}
		sess.Pooled = true
	} else {
		conn, err := r.connect(ctx, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "session", "Create", "establish connection")
		}
		sess.Conn = conn
	}

	if err := sess.transition(StateActive); err != nil {
		if sess.Conn != nil {
			sess.Conn.Disconnect()
		}
		return nil, errors.Wrap(err, "session", "Create", "activate")
	}

	if r.tracker != nil {
		r.tracker.Track(sess.ID, "session", sessionTrackedSize, map[string]string{
			"model_version": cfg.ModelVersion,
		})
	}

	r.mu.Lock()
	// Re-validate capacity: another caller may have filled the registry
	// while this one was connecting.
	if len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		if sess.Conn != nil {
			sess.Conn.Disconnect()
		}
		if r.tracker != nil {
			r.tracker.Release(sess.ID)
		}
		return nil, errors.ErrSessionLimit
	}
	r.sessions[sess.ID] = sess
	r.publishGauges()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SessionsCreated.Inc()
	}
	r.logger.Info("session created", "session_id", sess.ID, "pooled", sess.Pooled)
	return sess, nil
}

// Get returns a session if present and not expired, refreshing its
// last-active timestamp. An expired session is purged as a side effect and
// nil is returned.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	sess, exists := r.sessions[id]
	r.mu.Unlock()

	if !exists {
		return nil
	}
	if sess.Expired(r.cfg.TTL) {
		r.Cleanup(id)
		return nil
	}
	sess.Touch()
	return sess
}

// Cleanup removes a session: dedicated connections are disconnected, the
// tracked resource entry is released, and the registry entry removed.
// Pooled connections are left to the pool.
func (r *Registry) Cleanup(id string) {
	r.mu.Lock()
	sess, exists := r.sessions[id]
	if exists {
		delete(r.sessions, id)
		r.publishGauges()
	}
	r.mu.Unlock()

	if !exists {
		return
	}
	if err := sess.transition(StateExpired); err != nil {
		// Already expired; nothing to do.
		r.logger.Debug("session already expired", "session_id", id)
	}
	if sess.Conn != nil {
		sess.Conn.Disconnect()
	}
	if r.tracker != nil {
		r.tracker.Release(id)
	}
	r.logger.Info("session cleaned up", "session_id", id)
}

// CleanupExpired purges every session past its TTL.
func (r *Registry) CleanupExpired() int {
	r.mu.Lock()
	var expired []string
	for id, sess := range r.sessions {
		if sess.Expired(r.cfg.TTL) {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.Cleanup(id)
		if r.metrics != nil {
			r.metrics.SessionsExpired.Inc()
		}
	}
	return len(expired)
}

// CleanupAll purges every session unconditionally. Run at shutdown after
// the background sweep stops.
func (r *Registry) CleanupAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Cleanup(id)
	}
}

// Run executes the periodic expiry sweep until the context is cancelled.
// Cancellation is cooperative; an explicit CleanupAll must still run at
// shutdown.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.CleanupExpired(); n > 0 {
				r.logger.Info("expired session sweep", "purged", n)
			}
		}
	}
}

// Stats reports session counts and utilization.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := 0
	for _, sess := range r.sessions {
		if !sess.Expired(r.cfg.TTL) {
			active++
		}
	}
	total := len(r.sessions)
	return Stats{
		TotalSessions:   total,
		ActiveSessions:  active,
		ExpiredSessions: total - active,
		Utilization:     float64(total) / float64(r.cfg.MaxSessions),
	}
}

// Health implements health.Reporter.
func (r *Registry) Health() health.Status {
	stats := r.Stats()
	if stats.Utilization >= 1.0 {
		return health.Degraded("session", "session registry at capacity")
	}
	return health.Healthy("session", "")
}

// publishGauges updates the Prometheus gauges; callers hold r.mu.
func (r *Registry) publishGauges() {
	if r.metrics == nil {
		return
	}
	r.metrics.SessionsActive.Set(float64(len(r.sessions)))
}
