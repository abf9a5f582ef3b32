// Package execqueue implements the per-order execution queue: a single
// queue per orderId carrying {orderId} jobs, keyed so a duplicate enqueue
// for the same order is a no-op.
package execqueue

import (
	"context"

	"github.com/coachpo/swapexec/internal/resources"
)

// ScopeProvider is the narrow interface Enqueuer uses to reach the resource
// manager.
type ScopeProvider interface {
	ScopeFor(orderID string) (*resources.Scope, bool)
	Touch(orderID string)
}

// Enqueuer hands orderId off to its execution queue. SubmissionAPI calls it
// once right after persisting the PENDING row.
type Enqueuer struct {
	scopes ScopeProvider
}

// NewEnqueuer constructs an Enqueuer.
func NewEnqueuer(scopes ScopeProvider) *Enqueuer {
	return &Enqueuer{scopes: scopes}
}

// Enqueue submits orderID for execution. A duplicate enqueue for an orderID
// whose job is still buffered on its queue is a no-op (job key = orderId).
// Once the worker has dequeued the job, a later enqueue is accepted and
// runs Lifecycle.Run again. A missing resource record
// is treated as a fatal error for this order's creation, per §7 error kind
// 4: connect failures during order creation are fatal to that order.
func (e *Enqueuer) Enqueue(ctx context.Context, orderID string) error {
	scope, ok := e.scopes.ScopeFor(orderID)
	if !ok {
		return errNoResourceRecord(orderID)
	}

	if _, err := scope.ExecQueue.Enqueue(ctx, orderID, orderID); err != nil {
		return err
	}
	e.scopes.Touch(orderID)
	return nil
}

func errNoResourceRecord(orderID string) error {
	return &noResourceRecordError{orderID: orderID}
}

type noResourceRecordError struct {
	orderID string
}

func (e *noResourceRecordError) Error() string {
	return "execqueue: no resource record for order " + e.orderID
}
