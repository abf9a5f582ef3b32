package observability_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/swapexec/internal/observability"
)

type recordingLogger struct {
	debugs []observability.Field
	infos  []observability.Field
	errors []observability.Field
}

func (r *recordingLogger) Debug(_ string, fields ...observability.Field) {
	r.debugs = append(r.debugs, fields...)
}
func (r *recordingLogger) Info(_ string, fields ...observability.Field) {
	r.infos = append(r.infos, fields...)
}
func (r *recordingLogger) Error(_ string, fields ...observability.Field) {
	r.errors = append(r.errors, fields...)
}

func TestSetLoggerOverridesGlobal(t *testing.T) {
	recorder := new(recordingLogger)
	observability.SetLogger(recorder)
	defer observability.SetLogger(nil)

	observability.Log().Info("resources: allocated per-order scope",
		observability.Field{Key: "order_id", Value: "order-123"})
	require.Len(t, recorder.infos, 1)
	require.Equal(t, "order_id", recorder.infos[0].Key)
	require.Equal(t, "order-123", recorder.infos[0].Value)
}

func TestSetLoggerNilRestoresNoop(t *testing.T) {
	recorder := new(recordingLogger)
	observability.SetLogger(recorder)
	observability.SetLogger(nil)

	observability.Log().Error("lifecycle: persist failed status",
		observability.Field{Key: "order_id", Value: "order-456"})
	require.Empty(t, recorder.errors, "logger was reset to noop; recorder should not have observed this call")
}
