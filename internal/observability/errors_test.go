package observability_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/swapexec/internal/observability"
)

func TestAggregateErrorsAllNilReturnsNil(t *testing.T) {
	err := observability.AggregateErrors("graceful_shutdown", []error{nil, nil})
	assert.NoError(t, err)
}

func TestAggregateErrorsJoinsAndLogs(t *testing.T) {
	recorder := new(recordingLogger)
	observability.SetLogger(recorder)
	defer observability.SetLogger(nil)

	httpErr := errors.New("stopping http server: context deadline exceeded")
	poolErr := errors.New("closing database pool: connection refused")

	err := observability.AggregateErrors("graceful_shutdown", []error{nil, httpErr, poolErr})
	require.Error(t, err)
	assert.ErrorIs(t, err, httpErr)
	assert.ErrorIs(t, err, poolErr)
	assert.Contains(t, err.Error(), "graceful_shutdown failed")

	require.NotEmpty(t, recorder.errors)
	var sawErrorCount bool
	for _, f := range recorder.errors {
		if f.Key == "error_count" {
			sawErrorCount = true
			assert.Equal(t, 2, f.Value)
		}
	}
	assert.True(t, sawErrorCount, "expected an error_count field in the aggregated log entry")
}
