// Package lifecycle implements OrderLifecycle, the state machine that
// drives a single order through routing, building, submitting, and
// confirming, persisting every transition and publishing the
// corresponding StatusEvent. It lives apart from internal/domain/order to
// avoid a cycle: Router already depends on the order package for its
// request/response types, so the orchestrator that depends on Router and
// Chain (and on OrderStore) cannot live inside order itself.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"

	"github.com/coachpo/swapexec/internal/domain/chain"
	"github.com/coachpo/swapexec/internal/domain/order"
	"github.com/coachpo/swapexec/internal/domain/orderstore"
	"github.com/coachpo/swapexec/internal/domain/router"
	"github.com/coachpo/swapexec/internal/money"
	"github.com/coachpo/swapexec/internal/observability"
)

// DefaultConfirmationTimeout bounds how long the CONFIRMED stage waits on
// Chain.AwaitConfirmation before failing the order out.
const DefaultConfirmationTimeout = 60 * time.Second

// Publisher is the narrow interface OrderLifecycle uses to emit a
// StatusEvent after each persisted transition. The concrete implementation
// (internal/queue/statusqueue.Publisher) owns queueing, retry, and drop
// semantics; Lifecycle only knows it "returns promptly."
type Publisher interface {
	Publish(ctx context.Context, event order.StatusEvent)
}

// Lifecycle drives orders through §4.1's fixed stage sequence. Router,
// Chain, and Store are external capabilities injected at construction;
// Lifecycle never names a concrete implementation of any of them.
type Lifecycle struct {
	store     orderstore.Store
	router    router.Router
	chain     chain.Chain
	publisher Publisher

	confirmTimeout time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New constructs a Lifecycle. confirmTimeout <= 0 falls back to
// DefaultConfirmationTimeout.
func New(store orderstore.Store, rtr router.Router, chn chain.Chain, publisher Publisher, confirmTimeout time.Duration) *Lifecycle {
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmationTimeout
	}
	return &Lifecycle{
		store:          store,
		router:         rtr,
		chain:          chn,
		publisher:      publisher,
		confirmTimeout: confirmTimeout,
		locks:          make(map[string]*sync.Mutex),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // simulated microvariance, not cryptographic
	}
}

// Run drives orderID through every remaining stage. It is idempotent: an
// order already in a terminal state returns nil without touching the store
// or publishing anything. Exactly one Run call per orderId is ever
// in-flight at a time (guarded by a per-order lock), satisfying §4.1's
// "one in-flight execution per orderId" ordering guarantee even if the
// execution worker retries a job.
func (l *Lifecycle) Run(ctx context.Context, orderID string) error {
	lock := l.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	o, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("lifecycle: load order %s: %w", orderID, err)
	}
	if o.Status.Terminal() {
		return nil
	}

	var quote router.Quote
	var build router.BuildResult

	if o.Status == order.StatusPending {
		stageStart := time.Now()
		q, qerr := l.router.BestQuote(ctx, o)
		if qerr != nil {
			recordStageDuration(string(order.StatusRouting), stageStart, "error")
			return backoff.Permanent(l.fail(ctx, o, fmt.Sprintf("DEX routing failed: %v", qerr)))
		}
		quote = q
		next, terr := l.transition(ctx, o, order.StatusRouting, nil)
		if terr != nil {
			recordStageDuration(string(order.StatusRouting), stageStart, "error")
			return terr
		}
		recordStageDuration(string(order.StatusRouting), stageStart, "success")
		o = next
	} else {
		// Resumed mid-pipeline after a crashed worker retry: §3 carries no
		// columns for an in-flight quote, so re-derive one. Router/Chain
		// are simulated collaborators and safe to call again; the state
		// machine still refuses to persist a transition that skips ahead.
		q, qerr := l.router.BestQuote(ctx, o)
		if qerr != nil {
			return backoff.Permanent(l.fail(ctx, o, fmt.Sprintf("DEX routing failed: %v", qerr)))
		}
		quote = q
	}

	if o.Status == order.StatusRouting {
		stageStart := time.Now()
		b, berr := l.router.BuildTx(ctx, o, quote)
		if berr != nil {
			recordStageDuration(string(order.StatusBuilding), stageStart, "error")
			return backoff.Permanent(l.fail(ctx, o, fmt.Sprintf("Transaction building failed: %v", berr)))
		}
		build = b
		dex := b.Dex
		next, terr := l.transition(ctx, o, order.StatusBuilding, func(n *order.Order) { n.DexType = &dex })
		if terr != nil {
			recordStageDuration(string(order.StatusBuilding), stageStart, "error")
			return terr
		}
		recordStageDuration(string(order.StatusBuilding), stageStart, "success")
		o = next
	} else if o.Status != order.StatusPending {
		build = router.BuildResult{Dex: derefDex(o.DexType)}
	}

	if o.Status == order.StatusBuilding {
		stageStart := time.Now()
		txHash, serr := l.chain.Submit(ctx, build.TxBlob)
		if serr != nil {
			recordStageDuration(string(order.StatusSubmitted), stageStart, "error")
			return backoff.Permanent(l.fail(ctx, o, fmt.Sprintf("Transaction submission failed: %v", serr)))
		}
		next, terr := l.transition(ctx, o, order.StatusSubmitted, func(n *order.Order) { n.TxHash = &txHash })
		if terr != nil {
			recordStageDuration(string(order.StatusSubmitted), stageStart, "error")
			return terr
		}
		recordStageDuration(string(order.StatusSubmitted), stageStart, "success")
		o = next
	}

	if o.Status == order.StatusSubmitted {
		stageStart := time.Now()
		confirmCtx, cancel := context.WithTimeout(ctx, l.confirmTimeout)
		result, cerr := l.chain.AwaitConfirmation(confirmCtx, derefStr(o.TxHash))
		timedOut := errors.Is(confirmCtx.Err(), context.DeadlineExceeded)
		cancel()
		if timedOut {
			recordStageDuration(string(order.StatusConfirmed), stageStart, "timeout")
			return backoff.Permanent(l.fail(ctx, o, "Transaction confirmation timeout"))
		}
		if cerr != nil {
			recordStageDuration(string(order.StatusConfirmed), stageStart, "error")
			return backoff.Permanent(l.fail(ctx, o, fmt.Sprintf("Transaction failed: %v", cerr)))
		}
		if !result.Confirmed {
			reason := result.Reason
			if reason == "" {
				reason = "rejected by chain"
			}
			recordStageDuration(string(order.StatusConfirmed), stageStart, "rejected")
			return backoff.Permanent(l.fail(ctx, o, fmt.Sprintf("Transaction failed: %s", reason)))
		}
		price := l.executedPrice(quote, o.SlippageTolerance)
		if _, terr := l.transition(ctx, o, order.StatusConfirmed, func(n *order.Order) { n.ExecutedPrice = &price }); terr != nil {
			recordStageDuration(string(order.StatusConfirmed), stageStart, "error")
			return terr
		}
		recordStageDuration(string(order.StatusConfirmed), stageStart, "success")
	}

	return nil
}

// transition enforces CanAdvanceTo, applies mutate to a copy of o, refreshes
// updatedAt, persists the row, and publishes the resulting StatusEvent.
func (l *Lifecycle) transition(ctx context.Context, o order.Order, target order.Status, mutate func(*order.Order)) (order.Order, error) {
	if !order.CanAdvanceTo(o.Status, target) {
		return o, fmt.Errorf("lifecycle: order %s cannot advance from %s to %s", o.OrderID, o.Status, target)
	}
	next := o
	next.Status = target
	next.UpdatedAt = nextTimestamp(o.UpdatedAt)
	if mutate != nil {
		mutate(&next)
	}
	if err := l.store.UpdateOrder(ctx, next); err != nil {
		return o, fmt.Errorf("lifecycle: persist %s for order %s: %w", target, o.OrderID, err)
	}
	l.publisher.Publish(ctx, order.FromOrder(next))
	return next, nil
}

// fail persists the terminal FAILED status with reason and publishes the
// terminal event before surfacing the error to the caller. Per §4.1, a
// store-write failure for FAILED is retried once directly, bypassing event
// publication for the retry itself.
func (l *Lifecycle) fail(ctx context.Context, o order.Order, reason string) error {
	next := o
	next.Status = order.StatusFailed
	next.ErrorReason = &reason
	next.UpdatedAt = nextTimestamp(o.UpdatedAt)

	if err := l.store.UpdateOrder(ctx, next); err != nil {
		observability.Log().Error("lifecycle: persist failed status",
			observability.Field{Key: "order_id", Value: o.OrderID},
			observability.Field{Key: "error", Value: err.Error()},
		)
		if err2 := l.store.UpdateOrder(ctx, next); err2 != nil {
			observability.Log().Error("lifecycle: retry persist failed status also failed",
				observability.Field{Key: "order_id", Value: o.OrderID},
				observability.Field{Key: "error", Value: err2.Error()},
			)
			return fmt.Errorf("order %s: %s (store write failed: %w)", o.OrderID, reason, err2)
		}
	}
	l.publisher.Publish(ctx, order.FromOrder(next))
	return fmt.Errorf("order %s: %s", o.OrderID, reason)
}

func (l *Lifecycle) executedPrice(quote router.Quote, slippageTolerance float64) string {
	effective, err := decimal.NewFromString(quote.EffectivePrice)
	if err != nil {
		effective = decimal.Zero
	}
	quoted, err := decimal.NewFromString(quote.QuotePrice)
	if err != nil {
		quoted = effective
	}
	tolerance := decimal.NewFromFloat(slippageTolerance)

	l.rngMu.Lock()
	price := money.ExecutedPrice(effective, quoted, tolerance, l.rng)
	l.rngMu.Unlock()
	return price.String()
}

func (l *Lifecycle) lockFor(orderID string) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	lock, ok := l.locks[orderID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[orderID] = lock
	}
	return lock
}

// nextTimestamp returns a timestamp strictly after prior, guaranteeing
// updatedAt is non-decreasing even under a stalled or backward-skewed clock.
func nextTimestamp(prior time.Time) time.Time {
	now := time.Now().UTC()
	if now.After(prior) {
		return now
	}
	return prior.Add(time.Nanosecond)
}

func derefDex(d *order.DexType) order.DexType {
	if d == nil {
		return ""
	}
	return *d
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
