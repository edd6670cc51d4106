package swap

import (
	"context"
	"testing"

	apperrors "leverager/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwapAppliesRateAndFee(t *testing.T) {
	r := NewFixedRateRouter(30) // 0.30% fee
	r.SetRate("ARB", "USDC", decimal.NewFromFloat(0.5))

	out, err := r.Swap(context.Background(), "ARB", "USDC", decimal.NewFromInt(1000), decimal.Zero)
	require.NoError(t, err)
	// 1000 * 0.5 * 0.997
	assert.True(t, out.Equal(decimal.NewFromFloat(498.5)), "out = %s", out)
}

func TestSwapSameTokenPassesThrough(t *testing.T) {
	r := NewFixedRateRouter(30)
	out, err := r.Swap(context.Background(), "USDC", "USDC", decimal.NewFromInt(7), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, out.Equal(decimal.NewFromInt(7)), "no fee on an identity swap")
}

func TestSwapEnforcesMinOut(t *testing.T) {
	r := NewFixedRateRouter(0)
	r.SetRate("ARB", "USDC", decimal.NewFromFloat(0.5))

	_, err := r.Swap(context.Background(), "ARB", "USDC", decimal.NewFromInt(100), decimal.NewFromInt(51))
	assert.ErrorIs(t, err, apperrors.ErrSlippageExceeded)

	out, err := r.Swap(context.Background(), "ARB", "USDC", decimal.NewFromInt(100), decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, out.Equal(decimal.NewFromInt(50)))
}

func TestSwapUnknownRouteAndBadAmount(t *testing.T) {
	r := NewFixedRateRouter(0)

	_, err := r.Swap(context.Background(), "ARB", "USDC", decimal.NewFromInt(1), decimal.Zero)
	assert.ErrorContains(t, err, "no route")

	_, err = r.Swap(context.Background(), "ARB", "USDC", decimal.Zero, decimal.Zero)
	assert.ErrorContains(t, err, "must be positive")
}
