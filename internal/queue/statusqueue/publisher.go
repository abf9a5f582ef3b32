// Package statusqueue implements EventPublisher: it converts a persisted
// StatusEvent into a durable entry on the matching per-status queue for the
// emitting order.
package statusqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/coachpo/swapexec/internal/domain/order"
	"github.com/coachpo/swapexec/internal/observability"
	"github.com/coachpo/swapexec/internal/resources"
)

// DefaultMaxAttempts and DefaultInitialBackoff match §4.2's retry policy:
// up to 3 attempts with exponential backoff starting at 1s.
const (
	DefaultMaxAttempts   = 3
	DefaultInitialBackoff = time.Second
)

// ScopeProvider is the narrow interface Publisher uses to reach the
// resource manager: it fetches the live per-order queue scope and resets
// the manager's idle timer, without Publisher knowing anything else about
// resource lifecycle.
type ScopeProvider interface {
	ScopeFor(orderID string) (*resources.Scope, bool)
	Touch(orderID string)
}

// Publisher implements lifecycle.Publisher against the per-order queue
// scopes vended by a ScopeProvider.
type Publisher struct {
	scopes       ScopeProvider
	maxAttempts  uint
	initialDelay time.Duration
}

// NewPublisher constructs a Publisher. maxAttempts <= 0 and initialDelay <=
// 0 fall back to the package defaults.
func NewPublisher(scopes ScopeProvider, maxAttempts int, initialDelay time.Duration) *Publisher {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if initialDelay <= 0 {
		initialDelay = DefaultInitialBackoff
	}
	return &Publisher{scopes: scopes, maxAttempts: uint(maxAttempts), initialDelay: initialDelay}
}

// Publish returns promptly: it enqueues event onto the queue matching
// event.Status, retrying transient enqueue failures with exponential
// backoff, and logs-and-drops on exhaustion rather than blocking the
// caller. A missing resource record is a no-op, per §4.4's invariant that
// the persisted row remains the source of truth.
func (p *Publisher) Publish(ctx context.Context, event order.StatusEvent) {
	scope, ok := p.scopes.ScopeFor(event.OrderID)
	if !ok {
		observability.Log().Info("statusqueue: publish with no resource record",
			observability.Field{Key: "order_id", Value: event.OrderID},
			observability.Field{Key: "status", Value: string(event.Status)},
		)
		return
	}
	queue, ok := scope.StatusQueues[event.Status]
	if !ok {
		observability.Log().Error("statusqueue: no queue provisioned for status",
			observability.Field{Key: "order_id", Value: event.OrderID},
			observability.Field{Key: "status", Value: string(event.Status)},
		)
		return
	}

	key := fmt.Sprintf("%s:%s:%d", event.OrderID, event.Status, time.Now().UnixNano())
	op := func() (struct{}, error) {
		enqueued, err := queue.Enqueue(ctx, key, event)
		if err != nil {
			return struct{}{}, err
		}
		if !enqueued {
			return struct{}{}, fmt.Errorf("statusqueue: enqueue rejected for key %s", key)
		}
		return struct{}{}, nil
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = p.initialDelay

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backOff),
		backoff.WithMaxTries(p.maxAttempts),
	)
	if err != nil {
		observability.Log().Error("statusqueue: publish dropped after retries",
			observability.Field{Key: "order_id", Value: event.OrderID},
			observability.Field{Key: "status", Value: string(event.Status)},
			observability.Field{Key: "error", Value: err.Error()},
		)
		return
	}

	p.scopes.Touch(event.OrderID)
}
