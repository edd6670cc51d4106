// Package leverage provides the pure fixed-point arithmetic behind the
// position engine: loan sizing, LTV, health factor, share price and
// rebalance deltas. Everything here is stateless and total; degenerate
// inputs map to sentinel results, never to errors.
package leverage

import (
	"math"

	"github.com/shopspring/decimal"
)

// BPS is the basis-point denominator: 10,000 bps = 100%.
const BPS int64 = 10_000

// MaxLeverage is the sentinel returned by LtvToLeverage for ltvBps >= BPS,
// where the loop is unbounded. Callers reject such targets upstream.
const MaxLeverage int64 = math.MaxInt64

var (
	bpsDec = decimal.NewFromInt(BPS)

	// Unbounded is the sentinel for "infinitely healthy" positions (zero debt).
	Unbounded = decimal.NewFromInt(math.MaxInt64)
)

// FlashLoanAmount returns the bridge-loan size that, combined with deposit,
// builds a position at the target LTV:
//
//	loan = deposit * ltv / (BPS - ltv)
//
// A target of 0 means no loop; targets at or beyond BPS are degenerate and
// also size to 0 rather than erroring.
func FlashLoanAmount(deposit decimal.Decimal, targetLtvBps int64) decimal.Decimal {
	if targetLtvBps <= 0 || targetLtvBps >= BPS {
		return decimal.Zero
	}
	num := deposit.Mul(decimal.NewFromInt(targetLtvBps))
	return num.Div(decimal.NewFromInt(BPS - targetLtvBps))
}

// LtvToLeverage converts an LTV in bps to a leverage multiple on a x100
// scale (400 = 4.00x). ltvBps >= BPS returns MaxLeverage.
func LtvToLeverage(ltvBps int64) int64 {
	if ltvBps >= BPS {
		return MaxLeverage
	}
	if ltvBps < 0 {
		ltvBps = 0
	}
	return BPS * 100 / (BPS - ltvBps)
}

// Ltv returns debt/collateral in bps. Zero collateral reads as "no position"
// and yields 0.
func Ltv(collateral, debt decimal.Decimal) int64 {
	if collateral.IsZero() || collateral.IsNegative() {
		return 0
	}
	return debt.Mul(bpsDec).Div(collateral).IntPart()
}

// HealthFactor returns collateral/debt as a decimal ratio; 1.0 is the
// insolvency boundary. Zero debt is infinitely healthy and returns Unbounded.
func HealthFactor(collateral, debt decimal.Decimal) decimal.Decimal {
	if debt.IsZero() || debt.IsNegative() {
		return Unbounded
	}
	return collateral.Div(debt)
}

// NetValue returns collateral minus debt, floored at zero.
func NetValue(collateral, debt decimal.Decimal) decimal.Decimal {
	nv := collateral.Sub(debt)
	if nv.IsNegative() {
		return decimal.Zero
	}
	return nv
}

// SharePrice returns value per share. With zero shares outstanding the
// bootstrap price is exactly 1.
func SharePrice(totalValue, totalShares decimal.Decimal) decimal.Decimal {
	if totalShares.IsZero() || totalShares.IsNegative() {
		return decimal.NewFromInt(1)
	}
	return totalValue.Div(totalShares)
}

// NeedsRebalance reports whether the position has drifted beyond the
// threshold and in which direction. The boundary itself does not trigger:
// |current - target| must strictly exceed the threshold.
func NeedsRebalance(currentLtvBps, targetLtvBps, thresholdBps int64) (needs bool, isOverLeveraged bool) {
	diff := currentLtvBps - targetLtvBps
	if diff < 0 {
		diff = -diff
	}
	return diff > thresholdBps, currentLtvBps > targetLtvBps
}

// DeleverageAmount returns the bridge-loan size that unwinds the position
// down to the target LTV. Repaying the loan releases the same amount of
// collateral, so the naive debt delta is scaled up by BPS/(BPS - target):
//
//	loan = (debt*BPS - collateral*target) / (BPS - target)
//
// Floored at zero; degenerate targets at or beyond BPS size to zero.
func DeleverageAmount(collateral, debt decimal.Decimal, targetLtvBps int64) decimal.Decimal {
	if targetLtvBps < 0 || targetLtvBps >= BPS {
		return decimal.Zero
	}
	num := debt.Mul(bpsDec).Sub(collateral.Mul(decimal.NewFromInt(targetLtvBps)))
	if num.IsNegative() {
		return decimal.Zero
	}
	return num.Div(decimal.NewFromInt(BPS - targetLtvBps))
}

// ReleverageAmount returns the bridge-loan size that levers the position up
// to the target LTV. The loan lands as new collateral while the matching
// borrow becomes new debt, mirroring DeleverageAmount:
//
//	loan = (collateral*target - debt*BPS) / (BPS - target)
//
// Floored at zero; degenerate targets at or beyond BPS size to zero.
func ReleverageAmount(collateral, debt decimal.Decimal, targetLtvBps int64) decimal.Decimal {
	if targetLtvBps <= 0 || targetLtvBps >= BPS {
		return decimal.Zero
	}
	num := collateral.Mul(decimal.NewFromInt(targetLtvBps)).Sub(debt.Mul(bpsDec))
	if num.IsNegative() {
		return decimal.Zero
	}
	return num.Div(decimal.NewFromInt(BPS - targetLtvBps))
}

// ValidateSharePrice reports whether the current share price holds the floor.
func ValidateSharePrice(current, min decimal.Decimal) bool {
	return current.GreaterThanOrEqual(min)
}
