// Package telemetry provides semantic conventions for swapexec observability.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for swapexec-specific telemetry.
// Following OpenTelemetry naming conventions: namespace.attribute_name

const (
	// AttrOrderStatus labels metrics with the order lifecycle status
	// (pending, routing, building, submitted, confirmed, failed).
	AttrOrderStatus = attribute.Key("order.status")
	// AttrDexType identifies which venue (raydium, meteora) a build/submit
	// targeted.
	AttrDexType = attribute.Key("dex.type")
	// AttrQueueKind distinguishes the status queues from the per-order
	// execution queue.
	AttrQueueKind = attribute.Key("queue.kind")
	// AttrStage names the lifecycle stage a duration or counter measures
	// (routing, building, submitted, confirmed).
	AttrStage = attribute.Key("stage")
	// AttrOperation differentiates specific component operations (e.g.
	// publish, deliver, teardown).
	AttrOperation = attribute.Key("operation")
	// AttrResult records the outcome of an operation (success, error class,
	// dropped, timeout).
	AttrResult = attribute.Key("result")
	// AttrEnvironment specifies the deployment environment (dev/staging/prod)
	// for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrErrorType categorizes failures by canonical error family.
	AttrErrorType = attribute.Key("error.type")
	// AttrReason provides additional free-form context for errors/rejections.
	AttrReason = attribute.Key("reason")
	// AttrDBPool labels a pgx pool by logical name.
	AttrDBPool = attribute.Key("db_pool")
)

// Helper functions for creating common attribute sets

// OrderAttributes returns attributes for order lifecycle metrics.
func OrderAttributes(environment, status, dexType string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrOrderStatus.String(status),
	}
	if dexType != "" {
		attrs = append(attrs, AttrDexType.String(dexType))
	}
	return attrs
}

// QueueAttributes returns attributes for status/execution queue metrics.
func QueueAttributes(environment, queueKind, status string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrQueueKind.String(queueKind),
	}
	if status != "" {
		attrs = append(attrs, AttrOrderStatus.String(status))
	}
	return attrs
}

// StageAttributes returns attributes for a single lifecycle stage's duration
// or outcome.
func StageAttributes(environment, stage, result string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrStage.String(stage),
	}
	if result != "" {
		attrs = append(attrs, AttrResult.String(result))
	}
	return attrs
}

// ErrorAttributes returns attributes for error metrics.
func ErrorAttributes(environment, errorType, reason string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrErrorType.String(errorType),
		AttrReason.String(reason),
	}
}

// OperationResultAttributes returns attributes for operation metrics with
// result classification (e.g. delivery emit success/failure, resource
// teardown outcomes).
func OperationResultAttributes(environment, operation, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrOperation.String(operation),
		AttrResult.String(result),
	}
}
