package workorder

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/christianmcgivern/tech-app/errors"
	"github.com/christianmcgivern/tech-app/metric"
)

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics wires transition counters and the queue-depth gauge into the
// core metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// Registry manages work orders and the dispatch queue. The queue is kept
// in descending priority order with FIFO ordering among equal priorities.
type Registry struct {
	mu     sync.Mutex
	orders map[string]*Order
	queue  []string // order ids, descending priority

	metrics *metric.Metrics
	logger  *slog.Logger
}

// NewRegistry creates an empty work order registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		orders: make(map[string]*Order),
		logger: slog.Default().With("component", "workorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// audit emits the transaction record every mutating operation produces.
// Records are logged only, never persisted.
func (r *Registry) audit(orderID, action string, details ...any) {
	attrs := append([]any{
		"timestamp", time.Now().Format(time.RFC3339),
		"order_id", orderID,
		"action", action,
	}, details...)
	r.logger.Info("work order transaction", attrs...)
}

// CreateOrder stores a new order in pending status and inserts it into the
// dispatch queue. The id must be non-empty and unique; the priority must be
// a defined level.
func (r *Registry) CreateOrder(id, description string, priority Priority) (*Order, error) {
	if id == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidOrderID, "workorder", "CreateOrder", "validate id")
	}
	if !priority.valid() {
		return nil, errors.WrapInvalid(errors.ErrInvalidPriority, "workorder", "CreateOrder", "validate priority")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[id]; exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%q: %w", id, errors.ErrDuplicateOrder),
			"workorder", "CreateOrder", "validate id")
	}

	order := &Order{
		ID:          id,
		Description: description,
		Priority:    priority,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
	r.orders[id] = order
	r.enqueueLocked(id)
	r.publishQueueDepthLocked()

	r.audit(id, "created", "priority", priority.String())
	return order, nil
}

// enqueueLocked inserts an order id before the first queued entry with a
// strictly lower priority, preserving FIFO order among equals. Callers
// hold r.mu.
func (r *Registry) enqueueLocked(id string) {
	order := r.orders[id]
	for i, queuedID := range r.queue {
		if order.Priority > r.orders[queuedID].Priority {
			r.queue = append(r.queue[:i], append([]string{id}, r.queue[i:]...)...)
			r.audit(id, "queue_inserted", "position", i)
			return
		}
	}
	r.queue = append(r.queue, id)
	r.audit(id, "queue_appended", "position", len(r.queue)-1)
}

// transitionLocked applies a guarded status change and records it. Callers
// hold r.mu.
func (r *Registry) transitionLocked(order *Order, target Status) error {
	if !order.Status.CanTransition(target) {
		return errors.WrapInvalid(
			fmt.Errorf("%s -> %s: %w", order.Status, target, errors.ErrInvalidStatus),
			"workorder", "transition", "validate")
	}
	order.Status = target
	if r.metrics != nil {
		r.metrics.WorkOrderTransitions.WithLabelValues(target.String()).Inc()
	}
	return nil
}

// AssignOrder assigns a pending order to a technician.
func (r *Registry) AssignOrder(id, technicianID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, exists := r.orders[id]
	if !exists {
		return errors.WrapInvalid(errors.ErrOrderNotFound, "workorder", "AssignOrder", "lookup")
	}
	if order.Status != StatusPending {
		return errors.WrapInvalid(
			fmt.Errorf("order %q is %s: %w", id, order.Status, errors.ErrInvalidStatus),
			"workorder", "AssignOrder", "validate status")
	}
	if err := r.transitionLocked(order, StatusAssigned); err != nil {
		return err
	}
	order.AssignedTechnician = technicianID

	r.audit(id, "assigned", "technician_id", technicianID)
	return nil
}

// StartOrder moves an assigned order into progress and records the start
// time.
func (r *Registry) StartOrder(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, exists := r.orders[id]
	if !exists {
		return errors.WrapInvalid(errors.ErrOrderNotFound, "workorder", "StartOrder", "lookup")
	}
	if order.Status != StatusAssigned {
		return errors.WrapInvalid(
			fmt.Errorf("order %q is %s: %w", id, order.Status, errors.ErrInvalidStatus),
			"workorder", "StartOrder", "validate status")
	}
	if err := r.transitionLocked(order, StatusInProgress); err != nil {
		return err
	}
	order.StartedAt = time.Now()

	r.audit(id, "started")
	return nil
}

// CompleteOrder finishes an in-progress order, recording the completion
// time and, when notes text is supplied, a note authored by the assigned
// technician.
func (r *Registry) CompleteOrder(id, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, exists := r.orders[id]
	if !exists {
		return errors.WrapInvalid(errors.ErrOrderNotFound, "workorder", "CompleteOrder", "lookup")
	}
	if order.Status != StatusInProgress {
		return errors.WrapInvalid(
			fmt.Errorf("order %q is %s: %w", id, order.Status, errors.ErrInvalidStatus),
			"workorder", "CompleteOrder", "validate status")
	}
	if err := r.transitionLocked(order, StatusCompleted); err != nil {
		return err
	}
	order.CompletedAt = time.Now()
	if notes != "" {
		order.Notes = append(order.Notes, Note{
			Timestamp: time.Now(),
			Content:   notes,
			Author:    order.AssignedTechnician,
		})
	}
	r.dequeueLocked(id)
	r.publishQueueDepthLocked()

	r.audit(id, "completed", "notes", notes != "")
	return nil
}

// CancelOrder cancels any non-terminal order.
func (r *Registry) CancelOrder(id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, exists := r.orders[id]
	if !exists {
		return errors.WrapInvalid(errors.ErrOrderNotFound, "workorder", "CancelOrder", "lookup")
	}
	if err := r.transitionLocked(order, StatusCancelled); err != nil {
		return err
	}
	if reason != "" {
		order.Notes = append(order.Notes, Note{
			Timestamp: time.Now(),
			Content:   reason,
			Author:    order.AssignedTechnician,
		})
	}
	r.dequeueLocked(id)
	r.publishQueueDepthLocked()

	r.audit(id, "cancelled", "reason", reason)
	return nil
}

// HoldOrder pauses any non-terminal order, remembering the status it will
// resume to.
func (r *Registry) HoldOrder(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, exists := r.orders[id]
	if !exists {
		return errors.WrapInvalid(errors.ErrOrderNotFound, "workorder", "HoldOrder", "lookup")
	}
	from := order.Status
	if err := r.transitionLocked(order, StatusOnHold); err != nil {
		return err
	}
	order.heldFrom = from

	r.audit(id, "held", "held_from", from.String())
	return nil
}

// ResumeOrder returns a held order to the status it was held from.
func (r *Registry) ResumeOrder(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, exists := r.orders[id]
	if !exists {
		return errors.WrapInvalid(errors.ErrOrderNotFound, "workorder", "ResumeOrder", "lookup")
	}
	if order.Status != StatusOnHold {
		return errors.WrapInvalid(
			fmt.Errorf("order %q is %s: %w", id, order.Status, errors.ErrInvalidStatus),
			"workorder", "ResumeOrder", "validate status")
	}
	if err := r.transitionLocked(order, order.heldFrom); err != nil {
		return err
	}

	r.audit(id, "resumed", "resumed_to", order.Status.String())
	return nil
}

// UpdateLocation validates coordinates and replaces the order's location.
// Invalid coordinates fail without mutating the order.
func (r *Registry) UpdateLocation(id string, latitude, longitude float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, exists := r.orders[id]
	if !exists {
		return errors.WrapInvalid(errors.ErrOrderNotFound, "workorder", "UpdateLocation", "lookup")
	}

	loc, err := NewLocation(latitude, longitude)
	if err != nil {
		return err
	}
	order.Location = &loc

	r.audit(id, "location_updated", "latitude", latitude, "longitude", longitude)
	return nil
}

// GetOrder returns the order for id, or nil.
func (r *Registry) GetOrder(id string) *Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

// GetQueue returns the dispatch queue in priority order.
func (r *Registry) GetQueue() []*Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Order, 0, len(r.queue))
	for _, id := range r.queue {
		out = append(out, r.orders[id])
	}
	return out
}

// QueueSize returns the current dispatch queue depth.
func (r *Registry) QueueSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// ValidateQueueIntegrity verifies the descending-priority invariant across
// the whole queue. The first violating pair is logged; the queue is not
// repaired.
func (r *Registry) ValidateQueueIntegrity() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i+1 < len(r.queue); i++ {
		current := r.orders[r.queue[i]]
		next := r.orders[r.queue[i+1]]
		if current.Priority < next.Priority {
			r.logger.Error("queue integrity violation",
				"current", current.ID, "next", next.ID)
			return false
		}
	}
	return true
}

// dequeueLocked removes an order id from the queue when it reaches a
// terminal status. Callers hold r.mu.
func (r *Registry) dequeueLocked(id string) {
	for i, queuedID := range r.queue {
		if queuedID == id {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return
		}
	}
}

// publishQueueDepthLocked updates the queue gauge; callers hold r.mu.
func (r *Registry) publishQueueDepthLocked() {
	if r.metrics != nil {
		r.metrics.DispatchQueueDepth.Set(float64(len(r.queue)))
	}
}
