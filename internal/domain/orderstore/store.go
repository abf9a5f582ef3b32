// Package orderstore defines the persistence contract for Order rows.
// The core treats the concrete implementation (internal/infra/persistence/
// postgres) as an external collaborator injected at construction.
package orderstore

import (
	"context"

	"github.com/coachpo/swapexec/internal/domain/order"
)

// Query scopes listOrders lookups.
type Query struct {
	Limit  int
	Offset int
}

// Store defines the contract for durable CRUD on orders. OrderLifecycle is
// the only caller that mutates an existing row; SubmissionAPI only
// creates rows and reads them back.
type Store interface {
	// CreateOrder persists the initial PENDING row. Implementations must
	// treat a duplicate OrderID as a no-op (ON CONFLICT DO NOTHING) so
	// that a retried createOrder call never errors.
	CreateOrder(ctx context.Context, o order.Order) error
	// UpdateOrder persists a lifecycle transition. updatedAt must be
	// refreshed by the implementation on every call.
	UpdateOrder(ctx context.Context, o order.Order) error
	// GetOrder reads a single order by id. Implementations return
	// apperr.CodeNotFound when no row exists.
	GetOrder(ctx context.Context, orderID string) (order.Order, error)
	// ListOrders returns orders newest-first, paginated by Query.
	ListOrders(ctx context.Context, query Query) ([]order.Order, error)
}
