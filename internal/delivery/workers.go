// Package delivery implements DeliveryWorkers: one long-running consumer
// per status queue that drains jobs and invokes the push registry.
package delivery

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/coachpo/swapexec/internal/domain/order"
	"github.com/coachpo/swapexec/internal/observability"
	"github.com/coachpo/swapexec/internal/queue/substrate"
	"github.com/coachpo/swapexec/internal/resources"
)

// DefaultConcurrency is the default number of in-flight deliveries per
// worker.
const DefaultConcurrency = 50

// DefaultRateLimitPerMinute is the default token-bucket rate applied to a
// single status queue's worker.
const DefaultRateLimitPerMinute = 1000

// stallWarning is how long an in-flight emit runs before it is logged as
// stalled; stalling is never treated as fatal.
const stallWarning = 5 * time.Second

// Emitter is the narrow view of PushRegistry a delivery worker needs.
type Emitter interface {
	Emit(orderID string, event order.StatusEvent) int
}

// Worker drains a single per-status queue for one orderId and calls Emitter
// for every job it dequeues.
type Worker struct {
	orderID string
	status  order.Status
	cancel  context.CancelFunc
	done    chan struct{}
}

// Stop cancels the worker's run loop and blocks until it has exited.
func (w *Worker) Stop() {
	w.cancel()
	<-w.done
}

// NewFactory returns a resources.DeliveryWorkerFactory bound to emitter.
// concurrency <= 0 and ratePerMinute <= 0 fall back to their package
// defaults.
func NewFactory(emitter Emitter, concurrency, ratePerMinute int) resources.DeliveryWorkerFactory {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if ratePerMinute <= 0 {
		ratePerMinute = DefaultRateLimitPerMinute
	}
	limit := rate.Limit(float64(ratePerMinute) / 60.0)

	return func(orderID string, status order.Status, queue *substrate.Queue[order.StatusEvent]) resources.Worker {
		ctx, cancel := context.WithCancel(context.Background())
		w := &Worker{
			orderID: orderID,
			status:  status,
			cancel:  cancel,
			done:    make(chan struct{}),
		}
		limiter := rate.NewLimiter(limit, ratePerMinute)
		go w.run(ctx, queue, emitter, limiter, concurrency)
		return w
	}
}

func (w *Worker) run(ctx context.Context, queue *substrate.Queue[order.StatusEvent], emitter Emitter, limiter *rate.Limiter, concurrency int) {
	defer close(w.done)
	p := pool.New().WithMaxGoroutines(concurrency)
	for {
		job, ok := queue.Dequeue(ctx)
		if !ok {
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		event := job.Payload
		p.Go(func() { w.deliver(emitter, event) })
	}
	p.Wait()
}

func (w *Worker) deliver(emitter Emitter, event order.StatusEvent) {
	stallTimer := time.AfterFunc(stallWarning, func() {
		observability.Log().Info("delivery: job stalled",
			observability.Field{Key: "order_id", Value: w.orderID},
			observability.Field{Key: "status", Value: string(w.status)},
		)
	})
	defer stallTimer.Stop()

	started := time.Now()
	count := emitter.Emit(w.orderID, event)
	recordDeliveryLatency(string(w.status), count, started)
	observability.Log().Debug("delivery: emitted status event",
		observability.Field{Key: "order_id", Value: w.orderID},
		observability.Field{Key: "status", Value: string(w.status)},
		observability.Field{Key: "subscribers", Value: count},
	)
}
