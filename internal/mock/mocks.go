// Package mock provides testify-backed doubles for the engine's collaborator
// interfaces, used to inject failures the simulated implementations never
// produce on their own.
package mock

import (
	"context"

	"leverager/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockVenue implements core.IVenue for testing
type MockVenue struct {
	mock.Mock
}

func (m *MockVenue) GetName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockVenue) BaseAsset() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockVenue) Supply(ctx context.Context, amount decimal.Decimal) error {
	args := m.Called(ctx, amount)
	return args.Error(0)
}

func (m *MockVenue) Borrow(ctx context.Context, amount decimal.Decimal, recipient string) error {
	args := m.Called(ctx, amount, recipient)
	return args.Error(0)
}

func (m *MockVenue) Repay(ctx context.Context, amount decimal.Decimal) error {
	args := m.Called(ctx, amount)
	return args.Error(0)
}

func (m *MockVenue) Withdraw(ctx context.Context, amount decimal.Decimal, recipient string) error {
	args := m.Called(ctx, amount, recipient)
	return args.Error(0)
}

func (m *MockVenue) CollateralBalance(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockVenue) DebtBalance(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockVenue) SupplyRate(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockVenue) BorrowRate(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockLender implements core.IBridgeLender for testing
type MockLender struct {
	mock.Mock
}

func (m *MockLender) GetName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockLender) RequestLoan(ctx context.Context, receiver core.IBridgeLoanReceiver, asset string, amount decimal.Decimal, payload core.LoanPayload) error {
	args := m.Called(ctx, receiver, asset, amount, payload)
	return args.Error(0)
}

func (m *MockLender) ApproveRepayment(operationID string, amount decimal.Decimal) error {
	args := m.Called(operationID, amount)
	return args.Error(0)
}

// MockSwapRouter implements core.ISwapRouter for testing
type MockSwapRouter struct {
	mock.Mock
}

func (m *MockSwapRouter) Swap(ctx context.Context, tokenIn, tokenOut string, amountIn, minAmountOut decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, tokenIn, tokenOut, amountIn, minAmountOut)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockDistributor implements core.IRewardDistributor for testing
type MockDistributor struct {
	mock.Mock
}

func (m *MockDistributor) Claim(ctx context.Context, claims []core.RewardClaim) ([]core.RewardClaim, error) {
	args := m.Called(ctx, claims)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]core.RewardClaim), args.Error(1)
}

// MockPriceFeed implements core.IPriceFeed for testing
type MockPriceFeed struct {
	mock.Mock
}

func (m *MockPriceFeed) Price(ctx context.Context) (core.PricePoint, error) {
	args := m.Called(ctx)
	return args.Get(0).(core.PricePoint), args.Error(1)
}

// MockStateStore implements core.IStateStore for testing
type MockStateStore struct {
	mock.Mock
}

func (m *MockStateStore) SaveState(ctx context.Context, state *core.EngineState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockStateStore) LoadState(ctx context.Context) (*core.EngineState, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core.EngineState), args.Error(1)
}
