// Package resource provides accounting for named resources (connections,
// sessions, messages, audio chunks) with idle-timeout sweeps and a
// memory-pressure monitor that triggers cleanup when the process grows past
// a configured threshold.
package resource

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/christianmcgivern/tech-app/health"
	"github.com/christianmcgivern/tech-app/metric"
)

// Usage describes one tracked resource.
type Usage struct {
	Type        string
	SizeBytes   int64
	AllocatedAt time.Time
	LastUsed    time.Time
	Metadata    map[string]string
}

// Stats summarizes the tracker state.
type Stats struct {
	TotalResources int
	TotalBytes     int64
}

// Config holds tracker settings.
type Config struct {
	// CleanupThreshold is the process memory fraction (0-1) above which the
	// monitor loop forces an idle sweep.
	CleanupThreshold float64
	// MonitorInterval is the delay between memory checks.
	MonitorInterval time.Duration
	// IdleTimeout is the age past last use at which a sweep releases a
	// resource.
	IdleTimeout time.Duration
}

// DefaultConfig returns the reference thresholds: sweep at 80% process
// memory, check every minute, release after 5 idle minutes.
func DefaultConfig() Config {
	return Config{
		CleanupThreshold: 0.8,
		MonitorInterval:  time.Minute,
		IdleTimeout:      5 * time.Minute,
	}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMetrics wires the tracker gauges into the core metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithMemoryProbe replaces the process-memory probe, used by tests and by
// deployments that account memory differently.
func WithMemoryProbe(probe func() (float64, error)) Option {
	return func(t *Tracker) { t.memProbe = probe }
}

// WithLogger sets the tracker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// Tracker accounts for resource usage across the dispatch core. Every other
// component writes to it; the tracker is the sole mutator of its map.
type Tracker struct {
	cfg Config

	mu         sync.Mutex
	resources  map[string]*Usage
	totalBytes int64

	metrics  *metric.Metrics
	memProbe func() (float64, error)
	logger   *slog.Logger
}

// NewTracker creates a resource tracker. The background monitor does not
// start until Run is called.
func NewTracker(cfg Config, opts ...Option) *Tracker {
	if cfg.CleanupThreshold <= 0 {
		cfg.CleanupThreshold = 0.8
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}

	t := &Tracker{
		cfg:       cfg,
		resources: make(map[string]*Usage),
		memProbe:  processMemoryFraction,
		logger:    slog.Default().With("component", "resource"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track registers a resource. Re-tracking an existing id replaces the entry
// and adjusts the byte total, keeping the sum invariant.
func (t *Tracker) Track(id, resourceType string, sizeBytes int64, metadata map[string]string) {
	now := time.Now()

	t.mu.Lock()
	if prev, exists := t.resources[id]; exists {
		t.totalBytes -= prev.SizeBytes
	}
	t.resources[id] = &Usage{
		Type:        resourceType,
		SizeBytes:   sizeBytes,
		AllocatedAt: now,
		LastUsed:    now,
		Metadata:    metadata,
	}
	t.totalBytes += sizeBytes
	t.publishGauges()
	t.mu.Unlock()

	t.logger.Debug("tracking resource", "id", id, "type", resourceType, "bytes", sizeBytes)
}

// Release removes a tracked resource. Returns false if the id was unknown.
func (t *Tracker) Release(id string) bool {
	t.mu.Lock()
	usage, exists := t.resources[id]
	if exists {
		t.totalBytes -= usage.SizeBytes
		delete(t.resources, id)
		t.publishGauges()
	}
	t.mu.Unlock()

	if exists {
		t.logger.Debug("released resource", "id", id, "bytes", usage.SizeBytes)
	}
	return exists
}

// Touch refreshes the last-used timestamp of a resource.
func (t *Tracker) Touch(id string) {
	t.mu.Lock()
	if usage, exists := t.resources[id]; exists {
		usage.LastUsed = time.Now()
	}
	t.mu.Unlock()
}

// Get returns a copy of the usage record for id.
func (t *Tracker) Get(id string) (Usage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	usage, exists := t.resources[id]
	if !exists {
		return Usage{}, false
	}
	return *usage, true
}

// Stats returns the current accounting totals.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		TotalResources: len(t.resources),
		TotalBytes:     t.totalBytes,
	}
}

// SweepIdle releases every resource idle for longer than the configured
// timeout and returns the released count and byte total.
func (t *Tracker) SweepIdle() (int, int64) {
	cutoff := time.Now().Add(-t.cfg.IdleTimeout)

	t.mu.Lock()
	var count int
	var bytes int64
	for id, usage := range t.resources {
		if usage.LastUsed.Before(cutoff) {
			bytes += usage.SizeBytes
			count++
			t.totalBytes -= usage.SizeBytes
			delete(t.resources, id)
		}
	}
	t.publishGauges()
	t.mu.Unlock()

	if count > 0 {
		t.logger.Info("idle sweep released resources", "count", count, "bytes", bytes)
	}
	return count, bytes
}

// Run executes the memory monitor loop until the context is cancelled.
// When process memory exceeds the cleanup threshold it forces an idle sweep.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fraction, err := t.memProbe()
			if err != nil {
				t.logger.Error("memory probe failed", "error", err)
				continue
			}
			if fraction > t.cfg.CleanupThreshold {
				t.logger.Warn("memory usage above threshold, sweeping",
					"usage", fraction, "threshold", t.cfg.CleanupThreshold)
				t.SweepIdle()
			}
		}
	}
}

// Health implements health.Reporter.
func (t *Tracker) Health() health.Status {
	if fraction, err := t.memProbe(); err == nil && fraction > t.cfg.CleanupThreshold {
		return health.Degraded("resource", "memory usage above cleanup threshold")
	}
	return health.Healthy("resource", "")
}

// publishGauges updates the Prometheus gauges; callers hold t.mu.
func (t *Tracker) publishGauges() {
	if t.metrics == nil {
		return
	}
	t.metrics.TrackedResources.Set(float64(len(t.resources)))
	t.metrics.TrackedBytes.Set(float64(t.totalBytes))
}

// processMemoryFraction returns the process RSS as a fraction of total
// system memory.
func processMemoryFraction() (float64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	pct, err := proc.MemoryPercent()
	if err != nil {
		return 0, err
	}
	return float64(pct) / 100.0, nil
}
