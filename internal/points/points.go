// Package points holds the pool arithmetic of the guarantor incentive ledger.
// All values are shopspring decimals; nothing here rounds for storage.
package points

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SharePrecision is the number of fractional digits kept when a pool does not
// split evenly. Shares are always recomputed from the booking amount, so this
// bound never compounds across rebalances. When the guarantor count does not
// divide the pool, the shares sum to the pool within 1e-18, not exactly.
const SharePrecision int32 = 18

// DisplayPlaces is used only when rendering balances to people.
const DisplayPlaces int32 = 2

// Pool is amount * rate.
func Pool(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate)
}

// Share splits pool evenly between guarantors.
func Share(pool decimal.Decimal, guarantors int) (decimal.Decimal, error) {
	if guarantors < 1 {
		return decimal.Zero, fmt.Errorf("guarantor count must be positive, got %d", guarantors)
	}
	return pool.DivRound(decimal.NewFromInt(int64(guarantors)), SharePrecision), nil
}

// PerGuarantor is Share(Pool(amount, rate), guarantors).
func PerGuarantor(amount, rate decimal.Decimal, guarantors int) (decimal.Decimal, error) {
	return Share(Pool(amount, rate), guarantors)
}

// Display renders d with two decimals.
func Display(d decimal.Decimal) string {
	return d.StringFixed(DisplayPlaces)
}

// ParseRate reads a pool rate such as "0.10" and checks it is within (0, 1].
func ParseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse pool rate %q: %w", raw, err)
	}
	if !rate.IsPositive() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("pool rate %s out of range (0, 1]", rate)
	}
	return rate, nil
}
