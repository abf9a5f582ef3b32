// Package execution implements ExecutionWorker: the per-order consumer of
// the execution queue that drives OrderLifecycle off-thread.
package execution

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/coachpo/swapexec/internal/observability"
	"github.com/coachpo/swapexec/internal/queue/substrate"
	"github.com/coachpo/swapexec/internal/resources"
)

// Default concurrency, rate limit, retry attempts, and initial backoff
// match §4.6: concurrency 10, rate limit 100/min per order-scope, 3
// attempts starting at 2s.
const (
	DefaultConcurrency        = 10
	DefaultRateLimitPerMinute = 100
	DefaultMaxAttempts        = 3
	DefaultInitialBackoff     = 2 * time.Second
)

// Runner drives a single order through its remaining lifecycle stages. The
// concrete implementation is lifecycle.Lifecycle; Worker never names it.
type Runner interface {
	Run(ctx context.Context, orderID string) error
}

// Worker drains the execution queue for one orderId and calls Runner.Run
// for every job it dequeues.
type Worker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the worker's run loop and blocks until it has exited.
func (w *Worker) Stop() {
	w.cancel()
	<-w.done
}

// NewFactory returns a resources.ExecutionWorkerFactory bound to runner.
// Zero or negative tuning parameters fall back to package defaults.
func NewFactory(runner Runner, concurrency, ratePerMinute, maxAttempts int, initialBackoff time.Duration) resources.ExecutionWorkerFactory {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if ratePerMinute <= 0 {
		ratePerMinute = DefaultRateLimitPerMinute
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if initialBackoff <= 0 {
		initialBackoff = DefaultInitialBackoff
	}
	limit := rate.Limit(float64(ratePerMinute) / 60.0)

	return func(orderID string, queue *substrate.Queue[string]) resources.Worker {
		ctx, cancel := context.WithCancel(context.Background())
		w := &Worker{cancel: cancel, done: make(chan struct{})}
		limiter := rate.NewLimiter(limit, ratePerMinute)
		go w.run(ctx, queue, runner, limiter, concurrency, uint(maxAttempts), initialBackoff)
		return w
	}
}

func (w *Worker) run(ctx context.Context, queue *substrate.Queue[string], runner Runner, limiter *rate.Limiter, concurrency int, maxAttempts uint, initialBackoff time.Duration) {
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
		orderID := job.Payload
		p.Go(func() { w.execute(ctx, orderID, runner, maxAttempts, initialBackoff) })
	}
	p.Wait()
}

func (w *Worker) execute(ctx context.Context, orderID string, runner Runner, maxAttempts uint, initialBackoff time.Duration) {
	op := func() (struct{}, error) {
		return struct{}{}, runner.Run(ctx, orderID)
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = initialBackoff

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backOff),
		backoff.WithMaxTries(maxAttempts),
	)
	if err != nil {
		// The lifecycle has already persisted and published FAILED before
		// returning its error; there is nothing left to retry here.
		observability.Log().Error("execution: lifecycle run exhausted retries",
			observability.Field{Key: "order_id", Value: orderID},
			observability.Field{Key: "error", Value: err.Error()},
		)
	}
}
