// Package swap provides a swap route used to convert reward tokens and
// released collateral into the position's base asset.
package swap

import (
	"context"
	"fmt"
	"sync"

	apperrors "leverager/pkg/errors"

	"github.com/shopspring/decimal"
)

// FixedRateRouter quotes swaps from a configured rate table and charges a
// fixed fee, approximating a DEX aggregator route.
type FixedRateRouter struct {
	mu     sync.RWMutex
	rates  map[string]decimal.Decimal
	feeBps int64
}

// NewFixedRateRouter creates a router charging feeBps on every swap.
func NewFixedRateRouter(feeBps int64) *FixedRateRouter {
	return &FixedRateRouter{
		rates:  make(map[string]decimal.Decimal),
		feeBps: feeBps,
	}
}

// SetRate quotes tokenOut per tokenIn for the given pair.
func (r *FixedRateRouter) SetRate(tokenIn, tokenOut string, rate decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[pairKey(tokenIn, tokenOut)] = rate
}

// Swap converts amountIn of tokenIn into tokenOut at the quoted rate minus
// the fee, failing when the output would land below minAmountOut.
func (r *FixedRateRouter) Swap(ctx context.Context, tokenIn, tokenOut string, amountIn, minAmountOut decimal.Decimal) (decimal.Decimal, error) {
	if !amountIn.IsPositive() {
		return decimal.Zero, fmt.Errorf("swap amount %s must be positive", amountIn)
	}
	if tokenIn == tokenOut {
		return amountIn, nil
	}

	r.mu.RLock()
	rate, ok := r.rates[pairKey(tokenIn, tokenOut)]
	r.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("no route from %s to %s", tokenIn, tokenOut)
	}

	fee := decimal.NewFromInt(10_000 - r.feeBps).Div(decimal.NewFromInt(10_000))
	out := amountIn.Mul(rate).Mul(fee)
	if out.LessThan(minAmountOut) {
		return decimal.Zero, fmt.Errorf("%w: out %s < min %s", apperrors.ErrSlippageExceeded, out, minAmountOut)
	}
	return out, nil
}

func pairKey(tokenIn, tokenOut string) string {
	return tokenIn + "/" + tokenOut
}
