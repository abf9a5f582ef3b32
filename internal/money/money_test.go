package money

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePositiveRejectsZeroAndNegative(t *testing.T) {
	_, err := ParsePositive("0")
	assert.Error(t, err)

	_, err = ParsePositive("-1.5")
	assert.Error(t, err)

	d, err := ParsePositive("1.5")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromFloat(1.5)))
}

func TestParseNonNegativeOptional(t *testing.T) {
	_, ok, err := ParseNonNegative("")
	require.NoError(t, err)
	assert.False(t, ok)

	d, ok, err := ParseNonNegative("0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, d.IsZero())

	_, _, err = ParseNonNegative("-0.01")
	assert.Error(t, err)
}

func TestExecutedPriceZeroToleranceWithSlippage(t *testing.T) {
	effective := decimal.NewFromFloat(100)
	quote := decimal.NewFromFloat(101)
	tolerance := decimal.Zero
	rng := rand.New(rand.NewSource(1))

	price := ExecutedPrice(effective, quote, tolerance, rng)
	assert.True(t, price.Equal(effective.Round(ExecutedPriceScale)), "expected executedPrice == E when S=0 and sigma>0, got %s", price)
}

func TestExecutedPriceZeroSigmaUsesMicrovariance(t *testing.T) {
	effective := decimal.NewFromFloat(100)
	quote := decimal.NewFromFloat(100)
	tolerance := decimal.NewFromFloat(0.5)
	rng := rand.New(rand.NewSource(1))

	price := ExecutedPrice(effective, quote, tolerance, rng)
	assert.True(t, price.LessThanOrEqual(effective))
	assert.True(t, price.GreaterThan(effective.Mul(decimal.NewFromFloat(0.999))))
}

func TestExecutedPriceClampsToToleranceBoundary(t *testing.T) {
	effective := decimal.NewFromFloat(100)
	quote := decimal.NewFromFloat(110)
	tolerance := decimal.NewFromFloat(2)
	rng := rand.New(rand.NewSource(1))

	price := ExecutedPrice(effective, quote, tolerance, rng)
	expected := effective.Mul(decimal.NewFromFloat(0.98)).Round(ExecutedPriceScale)
	assert.True(t, price.Equal(expected), "expected %s got %s", expected, price)
}
