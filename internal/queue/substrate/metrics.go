package substrate

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/swapexec/internal/telemetry"
)

// depthReporter is the narrow view of Queue[T] the depth gauge needs; it is
// satisfied by every instantiation of Queue[T] regardless of T.
type depthReporter interface {
	Name() string
	Depth() int
	Capacity() int
}

var (
	trackedMu  sync.Mutex
	tracked    = make(map[uint64]depthReporter)
	trackedSeq uint64

	gaugeOnce sync.Once
)

func track(q depthReporter) uint64 {
	trackedMu.Lock()
	defer trackedMu.Unlock()
	trackedSeq++
	id := trackedSeq
	tracked[id] = q
	registerDepthGauge()
	return id
}

func untrack(id uint64) {
	trackedMu.Lock()
	defer trackedMu.Unlock()
	delete(tracked, id)
}

// registerDepthGauge installs the observable gauge on first use. Called
// under trackedMu so the registration race is harmless either way, but
// sync.Once keeps the otel registration itself a one-time cost.
func registerDepthGauge() {
	gaugeOnce.Do(func() {
		meter := otel.Meter("queue.substrate")
		env := telemetry.Environment()
		_, _ = meter.Int64ObservableGauge("swapexec_queue_depth",
			metric.WithDescription("Buffered jobs waiting in a status or execution queue"),
			metric.WithUnit("{job}"),
			metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
				trackedMu.Lock()
				snapshot := make([]depthReporter, 0, len(tracked))
				for _, q := range tracked {
					snapshot = append(snapshot, q)
				}
				trackedMu.Unlock()

				for _, q := range snapshot {
					observer.Observe(int64(q.Depth()),
						metric.WithAttributes(
							attribute.String("environment", env),
							attribute.String("queue.name", queueKind(q.Name())),
						),
					)
				}
				return nil
			}),
		)
	})
}

// queueKind collapses a per-order queue name like "status/confirmed/ord_123"
// or "execute/ord_123" down to its leading segment so the gauge's
// cardinality stays bounded by queue kind rather than by order count.
func queueKind(name string) string {
	if idx := strings.IndexByte(name, '/'); idx >= 0 {
		return name[:idx]
	}
	return name
}
