// Package order defines the Order entity, its status transition table, and
// the StatusEvent wire record. The OrderLifecycle that drives an order
// through routing, building, submitting, and confirming lives in
// internal/domain/lifecycle.
package order

import (
	"fmt"
	"time"
)

// Status is one of the fixed lifecycle states an order passes through.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRouting   Status = "routing"
	StatusBuilding  Status = "building"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// AllStatuses lists every status in lifecycle order, PENDING first and
// FAILED last. The per-order resource manager iterates this slice to
// provision one status queue and delivery worker per status.
var AllStatuses = []Status{
	StatusPending,
	StatusRouting,
	StatusBuilding,
	StatusSubmitted,
	StatusConfirmed,
	StatusFailed,
}

// Terminal reports whether status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Priority returns the delivery priority associated with a status; higher
// values mean more urgent. Nothing in this module consults it: each status
// has its own FIFO queue and queues are never compared against each other,
// so priority has no observable effect on delivery order.
func (s Status) Priority() int {
	switch s {
	case StatusFailed:
		return 10
	case StatusConfirmed:
		return 9
	case StatusSubmitted:
		return 8
	case StatusBuilding:
		return 7
	case StatusRouting:
		return 6
	case StatusPending:
		return 5
	default:
		return 0
	}
}

// next maps each non-terminal status to the only status that may follow
// it. The lifecycle consults this table to reject transitions that skip
// or reverse stages.
var next = map[Status]Status{
	StatusPending:   StatusRouting,
	StatusRouting:   StatusBuilding,
	StatusBuilding:  StatusSubmitted,
	StatusSubmitted: StatusConfirmed,
}

// CanAdvanceTo reports whether to is a legal successor of from. FAILED is
// always reachable from any non-terminal state.
func CanAdvanceTo(from, to Status) bool {
	if to == StatusFailed {
		return !from.Terminal()
	}
	return next[from] == to
}

// DexType identifies the router/venue selected during the building stage.
type DexType string

const (
	DexRaydium DexType = "raydium"
	DexMeteora DexType = "meteora"
)

// Order is the central persisted entity. Only OrderLifecycle mutates an
// existing row's status and derived fields; SubmissionAPI creates the
// initial PENDING row.
type Order struct {
	OrderID           string
	TokenIn           string
	TokenOut          string
	AmountIn          string
	SlippageTolerance float64
	MinAmountOut      *string
	Status            Status
	DexType           *DexType
	ExecutedPrice     *string
	TxHash            *string
	ErrorReason       *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate enforces the invariants from §3: errorReason set iff status is
// failed, and createdAt <= updatedAt.
func (o Order) Validate() error {
	if (o.ErrorReason != nil) != (o.Status == StatusFailed) {
		return fmt.Errorf("order %s: errorReason must be set iff status=failed", o.OrderID)
	}
	if o.UpdatedAt.Before(o.CreatedAt) {
		return fmt.Errorf("order %s: updatedAt must not precede createdAt", o.OrderID)
	}
	return nil
}

// StatusEvent is the wire record flowing through status queues and out to
// subscribers. It mirrors the optional fields of Order that are relevant
// at the moment of a given transition.
type StatusEvent struct {
	OrderID       string
	Status        Status
	DexType       *DexType
	ExecutedPrice *string
	TxHash        *string
	ErrorReason   *string
	Timestamp     time.Time
}

// FromOrder builds the StatusEvent corresponding to the order's current
// persisted state.
func FromOrder(o Order) StatusEvent {
	return StatusEvent{
		OrderID:       o.OrderID,
		Status:        o.Status,
		DexType:       o.DexType,
		ExecutedPrice: o.ExecutedPrice,
		TxHash:        o.TxHash,
		ErrorReason:   o.ErrorReason,
		Timestamp:     o.UpdatedAt,
	}
}
