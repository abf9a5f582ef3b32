// Package resources implements the PerOrderResourceManager: it allocates a
// dedicated queue/worker bundle scoped to a single orderId and tears the
// whole bundle down after an inactivity timeout or on process shutdown.
// Per the design notes, the manager constructs the workers and queues it
// owns but never learns about the publisher that feeds them — callers reach
// the manager back through the narrow ScopeProvider interface instead.
package resources

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/swapexec/internal/domain/order"
	"github.com/coachpo/swapexec/internal/observability"
	"github.com/coachpo/swapexec/internal/queue/substrate"
)

// DefaultIdleTimeout is the wall-clock interval since the last published
// event after which a resource record is reaped.
const DefaultIdleTimeout = 15 * time.Minute

const (
	statusQueueBuffer = 64
	execQueueBuffer   = 4
)

// Worker is implemented by whatever the manager starts against a queue
// (a delivery worker or an execution worker). Stop must block until the
// worker's goroutine has exited.
type Worker interface {
	Stop()
}

// Scope bundles the seven queues allocated for a single orderId: six
// per-status event queues plus the order's execution queue.
type Scope struct {
	OrderID      string
	StatusQueues map[order.Status]*substrate.Queue[order.StatusEvent]
	ExecQueue    *substrate.Queue[string]
}

// DeliveryWorkerFactory starts a worker bound to queue for orderID/status
// and returns a handle to stop it.
type DeliveryWorkerFactory func(orderID string, status order.Status, queue *substrate.Queue[order.StatusEvent]) Worker

// ExecutionWorkerFactory starts the execution worker bound to queue for
// orderID and returns a handle to stop it.
type ExecutionWorkerFactory func(orderID string, queue *substrate.Queue[string]) Worker

// Manager is the PerOrderResourceManager.
type Manager struct {
	newDelivery  DeliveryWorkerFactory
	newExecution ExecutionWorkerFactory
	idleTimeout  time.Duration

	mu      sync.Mutex
	records map[string]*record
}

type record struct {
	scope           *Scope
	deliveryWorkers []Worker
	executionWorker Worker
	timer           *time.Timer
}

// New constructs a Manager. idleTimeout <= 0 falls back to
// DefaultIdleTimeout.
func New(newDelivery DeliveryWorkerFactory, newExecution ExecutionWorkerFactory, idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		newDelivery:  newDelivery,
		newExecution: newExecution,
		idleTimeout:  idleTimeout,
		records:      make(map[string]*record),
	}
}

// Allocate creates the resource bundle for orderID: the seven queues, six
// delivery workers, one execution worker, and an armed idle timer. Calling
// it again for an orderID that already has a record is a no-op that
// returns the existing scope, preserving "at most one resource record per
// orderId."
func (m *Manager) Allocate(orderID string) *Scope {
	m.mu.Lock()
	if existing, ok := m.records[orderID]; ok {
		m.mu.Unlock()
		return existing.scope
	}

	scope := &Scope{
		OrderID:      orderID,
		StatusQueues: make(map[order.Status]*substrate.Queue[order.StatusEvent], len(order.AllStatuses)),
		ExecQueue:    substrate.NewQueue[string](fmt.Sprintf("execute/%s", orderID), execQueueBuffer, true),
	}
	for _, status := range order.AllStatuses {
		scope.StatusQueues[status] = substrate.NewQueue[order.StatusEvent](
			fmt.Sprintf("status/%s/%s", status, orderID), statusQueueBuffer, false)
	}

	rec := &record{scope: scope}
	for _, status := range order.AllStatuses {
		rec.deliveryWorkers = append(rec.deliveryWorkers, m.newDelivery(orderID, status, scope.StatusQueues[status]))
	}
	rec.executionWorker = m.newExecution(orderID, scope.ExecQueue)
	rec.timer = time.AfterFunc(m.idleTimeout, func() { m.teardown(orderID, "idle_timeout") })

	m.records[orderID] = rec
	m.mu.Unlock()

	observability.Log().Info("resources: allocated per-order scope", observability.Field{Key: "order_id", Value: orderID})
	return scope
}

// ScopeFor returns the live scope for orderID, or ok=false if no resource
// record exists. EventPublisher treats ok=false as a no-op.
func (m *Manager) ScopeFor(orderID string) (*Scope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[orderID]
	if !ok {
		return nil, false
	}
	return rec.scope, true
}

// Touch resets orderID's idle timer. Called on every published event.
func (m *Manager) Touch(orderID string) {
	m.mu.Lock()
	rec, ok := m.records[orderID]
	m.mu.Unlock()
	if !ok {
		return
	}
	rec.timer.Reset(m.idleTimeout)
}

// teardown stops the workers, closes the queues, and drops the record for
// orderID. Safe to call more than once; later calls are no-ops.
func (m *Manager) teardown(orderID, reason string) {
	m.mu.Lock()
	rec, ok := m.records[orderID]
	if ok {
		delete(m.records, orderID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	rec.timer.Stop()
	for _, w := range rec.deliveryWorkers {
		w.Stop()
	}
	rec.executionWorker.Stop()
	for _, q := range rec.scope.StatusQueues {
		q.Close()
	}
	rec.scope.ExecQueue.Close()
	// The substrate is in-process; closing the scope's queues already drops
	// every *<orderId>* key it held, so there is no separate purge step.

	observability.Log().Info("resources: torn down per-order scope",
		observability.Field{Key: "order_id", Value: orderID},
		observability.Field{Key: "reason", Value: reason},
	)
}

// Shutdown tears down every live resource record in parallel. ctx bounds how
// long the caller is willing to wait but teardown itself does not consult
// it beyond that; callers needing a hard deadline should run Shutdown in a
// goroutine and select on ctx.Done().
func (m *Manager) Shutdown(_ context.Context) {
	m.mu.Lock()
	orderIDs := make([]string, 0, len(m.records))
	for id := range m.records {
		orderIDs = append(orderIDs, id)
	}
	m.mu.Unlock()

	p := pool.New().WithMaxGoroutines(16)
	for _, id := range orderIDs {
		orderID := id
		p.Go(func() { m.teardown(orderID, "process_shutdown") })
	}
	p.Wait()
}
