// Package money provides decimal arithmetic helpers for order amounts,
// quote prices, and the slippage-bounded executed-price computation.
package money

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/shopspring/decimal"
)

// ExecutedPriceScale is the number of fractional digits reported for
// executedPrice values.
const ExecutedPriceScale = 8

// ParsePositive parses a decimal string and requires it to be strictly
// greater than zero, as required for amountIn.
func ParsePositive(value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse decimal %q: %w", value, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("value %q must be positive", value)
	}
	return d, nil
}

// ParseNonNegative parses a decimal string and requires it to be >= 0. An
// empty string returns the zero value with ok=false, for optional fields
// such as minAmountOut.
func ParseNonNegative(value string) (decimal.Decimal, bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, false, nil
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse decimal %q: %w", value, err)
	}
	if d.IsNegative() {
		return decimal.Zero, false, fmt.Errorf("value %q must not be negative", value)
	}
	return d, true, nil
}

// ParsePercent parses a slippage tolerance percentage and requires it to
// fall within [0, 100].
func ParsePercent(value float64) (decimal.Decimal, error) {
	d := decimal.NewFromFloat(value)
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("slippage tolerance %v out of range [0, 100]", value)
	}
	return d, nil
}

// ExecutedPrice implements the slippage-bounded executed-price rule from
// the order lifecycle's CONFIRMED stage: given the quote's effective price
// E, quoted price Q, and the order's slippage tolerance S (percent), the
// observed slippage sigma = |Q - E| / E * 100 is compared against S. When
// the observed slippage exceeds tolerance the price is clamped to the
// worst acceptable boundary; otherwise a small simulated microvariance is
// applied. rng must not be nil.
func ExecutedPrice(effectivePrice, quotePrice, slippageTolerance decimal.Decimal, rng *rand.Rand) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	var sigma decimal.Decimal
	if effectivePrice.IsZero() {
		sigma = decimal.Zero
	} else {
		sigma = quotePrice.Sub(effectivePrice).Abs().Div(effectivePrice).Mul(hundred)
	}

	var price decimal.Decimal
	if sigma.GreaterThan(slippageTolerance) {
		factor := decimal.NewFromInt(1).Sub(slippageTolerance.Div(hundred))
		price = effectivePrice.Mul(factor)
	} else {
		microvariance := decimal.NewFromFloat(rng.Float64() * 0.001)
		factor := decimal.NewFromInt(1).Sub(microvariance)
		price = effectivePrice.Mul(factor)
	}
	return price.Round(ExecutedPriceScale)
}

// FormatOptional renders a decimal pointer as a *string for JSON/SQL
// marshalling, returning nil when ptr is nil.
func FormatOptional(ptr *decimal.Decimal) *string {
	if ptr == nil {
		return nil
	}
	s := ptr.String()
	return &s
}
