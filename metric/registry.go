package metric

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registrar defines the interface components use to register their own
// metrics without depending on the concrete registry.
type Registrar interface {
	RegisterCounter(component, name string, counter prometheus.Counter) error
	RegisterGauge(component, name string, gauge prometheus.Gauge) error
	RegisterCounterVec(component, name string, vec *prometheus.CounterVec) error
	RegisterHistogram(component, name string, histogram prometheus.Histogram) error
	Unregister(component, name string) bool
}

// Registry manages registration and lifecycle of all Prometheus metrics.
// Core platform metrics are registered at construction; components add
// their own under a "component/name" key so they can be unregistered when
// the component stops.
type Registry struct {
	prom       *prometheus.Registry
	Metrics    *Metrics
	registered map[string]prometheus.Collector
	mu         sync.RWMutex
}

// NewRegistry creates a metrics registry with the core platform metrics and
// Go runtime collectors pre-registered.
func NewRegistry() *Registry {
	prom := prometheus.NewRegistry()

	r := &Registry{
		prom:       prom,
		Metrics:    NewMetrics(),
		registered: make(map[string]prometheus.Collector),
	}

	for _, c := range r.Metrics.collectors() {
		prom.MustRegister(c)
	}

	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// PrometheusRegistry returns the underlying registry for HTTP exposition.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prom
}

func (r *Registry) register(component, name string, c prometheus.Collector) error {
	key := component + "/" + name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registered[key]; exists {
		return fmt.Errorf("metric %q already registered", key)
	}
	if err := r.prom.Register(c); err != nil {
		return fmt.Errorf("register metric %q: %w", key, err)
	}
	r.registered[key] = c
	return nil
}

// RegisterCounter registers a component-owned counter.
func (r *Registry) RegisterCounter(component, name string, counter prometheus.Counter) error {
	return r.register(component, name, counter)
}

// RegisterGauge registers a component-owned gauge.
func (r *Registry) RegisterGauge(component, name string, gauge prometheus.Gauge) error {
	return r.register(component, name, gauge)
}

// RegisterCounterVec registers a component-owned counter vector.
func (r *Registry) RegisterCounterVec(component, name string, vec *prometheus.CounterVec) error {
	return r.register(component, name, vec)
}

// RegisterHistogram registers a component-owned histogram.
func (r *Registry) RegisterHistogram(component, name string, histogram prometheus.Histogram) error {
	return r.register(component, name, histogram)
}

// Unregister removes a component-owned metric. Returns false if the metric
// was never registered.
func (r *Registry) Unregister(component, name string) bool {
	key := component + "/" + name

	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.registered[key]
	if !exists {
		return false
	}
	delete(r.registered, key)
	return r.prom.Unregister(c)
}
