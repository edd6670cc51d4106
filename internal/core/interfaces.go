// Package core defines the domain types and capability interfaces for the
// leveraged position engine.
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// IVenue is the narrow capability every lending venue adapter must normalize
// to. One engine instance is bound to exactly one venue; the venue position
// is never mutated by anyone else.
type IVenue interface {
	// Identity
	GetName() string
	BaseAsset() string

	// Position operations
	Supply(ctx context.Context, amount decimal.Decimal) error
	Borrow(ctx context.Context, amount decimal.Decimal, recipient string) error
	Repay(ctx context.Context, amount decimal.Decimal) error
	Withdraw(ctx context.Context, amount decimal.Decimal, recipient string) error

	// Balance reads, always fresh
	CollateralBalance(ctx context.Context) (decimal.Decimal, error)
	DebtBalance(ctx context.Context) (decimal.Decimal, error)

	// Rates, annualized fractions (0.03 = 3% APR)
	SupplyRate(ctx context.Context) (decimal.Decimal, error)
	BorrowRate(ctx context.Context) (decimal.Decimal, error)
}

// ISnapshotter is implemented by venues that can capture and restore their
// balances, which the engine uses for all-or-nothing rollback. Venues that
// cannot snapshot are rejected for mutating operations.
type ISnapshotter interface {
	Snapshot() any
	Restore(snapshot any) error
}

// IBridgeLoanReceiver is the callback half of the bridge-loan protocol.
// The lender invokes it exactly once per requested loan, synchronously,
// mid-operation.
type IBridgeLoanReceiver interface {
	OnBridgeLoan(ctx context.Context, lender IBridgeLender, loan *BridgeLoan) error
}

// IBridgeLender provides uncollateralized capital for the duration of a
// single atomic operation. RequestLoan transfers the amount, invokes the
// receiver's callback, and fails unless amount+premium is repayable before
// it returns.
type IBridgeLender interface {
	GetName() string
	RequestLoan(ctx context.Context, receiver IBridgeLoanReceiver, asset string, amount decimal.Decimal, payload LoanPayload) error
	// ApproveRepayment authorizes the lender to pull the repayment for the
	// identified in-flight loan before RequestLoan returns.
	ApproveRepayment(operationID string, amount decimal.Decimal) error
}

// ISwapRouter converts between assets with a caller-supplied minimum output.
// The whole enclosing operation fails when the bound is not met.
type ISwapRouter interface {
	Swap(ctx context.Context, tokenIn, tokenOut string, amountIn, minAmountOut decimal.Decimal) (decimal.Decimal, error)
}

// IRewardDistributor pays out third-party incentive rewards against opaque proofs.
type IRewardDistributor interface {
	Claim(ctx context.Context, claims []RewardClaim) ([]RewardClaim, error)
}

// IPriceFeed reports the latest observed price for a pegged asset. Staleness
// is judged by the caller from ObservedAt.
type IPriceFeed interface {
	Price(ctx context.Context) (PricePoint, error)
}

// IStateStore persists engine bookkeeping snapshots.
type IStateStore interface {
	SaveState(ctx context.Context, state *EngineState) error
	LoadState(ctx context.Context) (*EngineState, error)
}

// ILogger is the structured logging interface used across the system.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
