package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	infratelemetry "github.com/coachpo/swapexec/internal/infra/telemetry"
	"github.com/coachpo/swapexec/internal/telemetry"
)

var (
	stageMetricsOnce sync.Once
	stageDuration    metric.Float64Histogram
)

func stageMetrics() metric.Float64Histogram {
	stageMetricsOnce.Do(func() {
		meter := otel.Meter("lifecycle")
		hist, err := meter.Float64Histogram("swapexec_lifecycle_stage_duration_seconds",
			metric.WithDescription("Time OrderLifecycle spends advancing an order into a given stage"),
			metric.WithUnit("s"),
		)
		if err == nil {
			stageDuration = hist
		}
	})
	return stageDuration
}

// recordStageDuration times how long it took to reach target from the
// caller's perspective (since the start of that stage within Run), not just
// the transition call itself, so the histogram reflects end-to-end stage cost
// including the router/chain round trip that precedes the persisted write.
func recordStageDuration(stage string, started time.Time, result string) {
	hist := stageMetrics()
	if hist == nil {
		return
	}
	attrs := infratelemetry.StageAttributes(telemetry.Environment(), stage, result)
	hist.Record(context.Background(), time.Since(started).Seconds(), metric.WithAttributes(attrs...))
}
