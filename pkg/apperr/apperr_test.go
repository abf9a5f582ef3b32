package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesOptions(t *testing.T) {
	cause := errors.New("boom")
	err := New("orderLifecycle.routing", CodeUpstreamFailed,
		WithMessage("DEX routing failed: no liquidity"),
		WithRemediation("retry with a larger slippage tolerance"),
		WithCause(cause),
	)

	require.Equal(t, "orderLifecycle.routing", err.Op)
	require.Equal(t, CodeUpstreamFailed, err.Code)
	assert.Contains(t, err.Error(), "DEX routing failed")
	assert.Equal(t, cause, err.Unwrap())
}

func TestIsComparesByCode(t *testing.T) {
	a := New("store.getOrder", CodeNotFound)
	b := NotFound("store.getOrder", "order missing")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, New("store.getOrder", CodeConflict)))
}

func TestConvenienceConstructors(t *testing.T) {
	assert.Equal(t, CodeInvalidRequest, Invalid("submissionAPI.createOrder", "amountIn must be positive").Code)
	assert.Equal(t, CodeUnavailable, Unavailable("queue.publish", "substrate unreachable").Code)
	assert.Equal(t, CodeUpstreamFailed, Upstream("chain.submit", "rpc error", errors.New("rpc")).Code)
}
