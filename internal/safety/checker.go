// Package safety provides the gates consulted around every mutating engine
// operation: profitability, depeg circuit breaker, health-factor floor and
// share-price regression guard.
package safety

import (
	"context"
	"fmt"
	"leverager/internal/core"
	"leverager/internal/leverage"
	apperrors "leverager/pkg/errors"

	"github.com/shopspring/decimal"
)

// ProfitabilityConfig bounds the leveraged carry trade.
type ProfitabilityConfig struct {
	// BorrowRateCeiling is the maximum acceptable venue borrow APR.
	BorrowRateCeiling decimal.Decimal
	// MinNetSpread is the floor on the projected levered spread.
	MinNetSpread decimal.Decimal
}

// ProfitabilityGate decides whether looping at the target LTV is worth it.
// A failed check is not an error: deposits degrade to unleveraged supply.
type ProfitabilityGate struct {
	config ProfitabilityConfig
	logger core.ILogger
}

// NewProfitabilityGate creates a new profitability gate
func NewProfitabilityGate(config ProfitabilityConfig, logger core.ILogger) *ProfitabilityGate {
	return &ProfitabilityGate{
		config: config,
		logger: logger.WithField("component", "profitability_gate"),
	}
}

// Profitable reads current venue rates and projects the net spread at the
// target leverage:
//
//	spread = supplyRate*leverage - borrowRate*(leverage-1)
//
// Rate read failures propagate as errors; an unprofitable spread returns
// (false, nil).
func (g *ProfitabilityGate) Profitable(ctx context.Context, venue core.IVenue, targetLtvBps int64) (bool, error) {
	borrowRate, err := venue.BorrowRate(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read borrow rate: %w", err)
	}
	supplyRate, err := venue.SupplyRate(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read supply rate: %w", err)
	}

	if borrowRate.GreaterThan(g.config.BorrowRateCeiling) {
		g.logger.Info("Borrow rate above ceiling, leverage not profitable",
			"borrow_rate", borrowRate, "ceiling", g.config.BorrowRateCeiling)
		return false, nil
	}

	lev := decimal.NewFromInt(leverage.LtvToLeverage(targetLtvBps)).Div(decimal.NewFromInt(100))
	netSpread := supplyRate.Mul(lev).Sub(borrowRate.Mul(lev.Sub(decimal.NewFromInt(1))))

	if netSpread.LessThan(g.config.MinNetSpread) {
		g.logger.Info("Projected net spread below floor",
			"net_spread", netSpread, "floor", g.config.MinNetSpread,
			"supply_rate", supplyRate, "borrow_rate", borrowRate)
		return false, nil
	}

	return true, nil
}

// CheckHealthFactor verifies the post-operation health factor holds the
// configured floor. The floor sits slightly above 1.0.
func CheckHealthFactor(collateral, debt, floor decimal.Decimal) error {
	hf := leverage.HealthFactor(collateral, debt)
	if hf.LessThan(floor) {
		return fmt.Errorf("%w: %s < %s", apperrors.ErrHealthFactorTooLow, hf, floor)
	}
	return nil
}

// CheckSharePrice verifies the share price has not regressed below the
// caller-supplied floor.
func CheckSharePrice(current, min decimal.Decimal) error {
	if !leverage.ValidateSharePrice(current, min) {
		return fmt.Errorf("%w: %s < %s", apperrors.ErrSharePriceBelowFloor, current, min)
	}
	return nil
}

// ValidateEngineParameters validates target LTV and buffer bounds the way
// every setter must.
func ValidateEngineParameters(targetLtvBps, safetyBufBps, minLtvBps, maxLtvBps int64) error {
	if targetLtvBps < minLtvBps || targetLtvBps > maxLtvBps {
		return fmt.Errorf("%w: %d not in [%d, %d]", apperrors.ErrLtvOutOfRange, targetLtvBps, minLtvBps, maxLtvBps)
	}
	if safetyBufBps < 0 || safetyBufBps >= leverage.BPS {
		return fmt.Errorf("%w: safety buffer %d bps", apperrors.ErrLtvOutOfRange, safetyBufBps)
	}
	return nil
}
