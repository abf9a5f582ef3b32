package delivery

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
	deliveryMetricsOnce sync.Once
	deliveryLatency     metric.Float64Histogram
)

func deliveryMetrics() metric.Float64Histogram {
	deliveryMetricsOnce.Do(func() {
		meter := otel.Meter("delivery.workers")
		hist, err := meter.Float64Histogram("swapexec_delivery_latency_seconds",
			metric.WithDescription("Time to fan a status event out to its push-channel subscribers"),
			metric.WithUnit("s"),
		)
		if err == nil {
			deliveryLatency = hist
		}
	})
	return deliveryLatency
}

func recordDeliveryLatency(status string, subscribers int, started time.Time) {
	hist := deliveryMetrics()
	if hist == nil {
		return
	}
	result := "delivered"
	if subscribers == 0 {
		result = "no_subscribers"
	}
	attrs := infratelemetry.QueueAttributes(telemetry.Environment(), "status", status)
	attrs = append(attrs, infratelemetry.OperationResultAttributes(telemetry.Environment(), "deliver", result)...)
	hist.Record(context.Background(), time.Since(started).Seconds(), metric.WithAttributes(attrs...))
}
