package engine

import (
	"context"
	"testing"
	"time"

	"leverager/internal/core"
	"leverager/internal/feed"
	"leverager/internal/lender"
	"leverager/internal/safety"
	"leverager/internal/venue"
	apperrors "leverager/pkg/errors"
	"leverager/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRig struct {
	engine *Engine
	venue  *venue.Simulated
	lender *lender.Simulated
	feed   *feed.FixedFeed
	store  *MemoryStore
}

type rigOption func(*rigConfig)

type rigConfig struct {
	premiumBps int64
	supplyAPR  float64
	borrowAPR  float64
	guard      bool
	delay      time.Duration
}

func withPremium(bps int64) rigOption {
	return func(c *rigConfig) { c.premiumBps = bps }
}

func withRates(supply, borrow float64) rigOption {
	return func(c *rigConfig) {
		c.supplyAPR = supply
		c.borrowAPR = borrow
	}
}

func withDepegGuard() rigOption {
	return func(c *rigConfig) { c.guard = true }
}

func withGovernanceDelay(d time.Duration) rigOption {
	return func(c *rigConfig) { c.delay = d }
}

func newTestRig(t *testing.T, opts ...rigOption) *testRig {
	t.Helper()

	rc := rigConfig{supplyAPR: 0.05, borrowAPR: 0.03}
	for _, opt := range opts {
		opt(&rc)
	}

	ven, err := venue.NewSimulated(venue.SimulatedConfig{
		Name:      "testpool",
		Asset:     "USDC",
		MaxLtvBps: 9300,
		SupplyAPR: decimal.NewFromFloat(rc.supplyAPR),
		BorrowAPR: decimal.NewFromFloat(rc.borrowAPR),
	})
	require.NoError(t, err)

	logger := logging.GetGlobalLogger()
	bridge := lender.NewSimulated("bridge", rc.premiumBps)
	gate := safety.NewProfitabilityGate(safety.ProfitabilityConfig{
		BorrowRateCeiling: decimal.NewFromFloat(0.20),
	}, logger)

	var guard *safety.DepegGuard
	priceFeed := feed.NewFixedFeed(decimal.NewFromInt(1))
	if rc.guard {
		guard = safety.NewDepegGuard(safety.DepegConfig{
			Asset:           "USDC",
			MaxAge:          time.Minute,
			MaxDeviationBps: 100,
		}, priceFeed, logger)
	}

	store := NewMemoryStore()
	eng, err := New(ven, bridge, nil, gate, guard, store, logger, Config{
		BaseAsset:         "USDC",
		TargetLtvBps:      7500,
		SafetyBufferBps:   100,
		MinTargetLtvBps:   3000,
		MaxTargetLtvBps:   9500,
		HealthFactorFloor: decimal.NewFromFloat(1.01),
		GovernanceDelay:   rc.delay,
	})
	require.NoError(t, err)

	return &testRig{engine: eng, venue: ven, lender: bridge, feed: priceFeed, store: store}
}

func TestDepositBuildsLeverage(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	deposited, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, deposited.Equal(decimal.NewFromInt(100)))

	view, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	assert.True(t, view.Collateral.Equal(decimal.NewFromInt(400)), "collateral = %s", view.Collateral)
	assert.True(t, view.Debt.Equal(decimal.NewFromInt(300)), "debt = %s", view.Debt)
	assert.True(t, view.Principal.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, int64(7500), view.LtvBps)

	lev, err := rig.engine.GetCurrentLeverage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(400), lev, "7500 bps is 4.00x")
}

func TestDepositWithdrawAllRoundTrip(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	freed, err := rig.engine.WithdrawAll(ctx)
	require.NoError(t, err)
	assert.True(t, freed.Equal(decimal.NewFromInt(100)), "freed = %s", freed)

	view, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	assert.True(t, view.Collateral.IsZero())
	assert.True(t, view.Debt.IsZero())
	assert.True(t, view.Principal.IsZero())
}

func TestWithdrawAllPaysPremiumFromPosition(t *testing.T) {
	rig := newTestRig(t, withPremium(9))
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	freed, err := rig.engine.WithdrawAll(ctx)
	require.NoError(t, err)

	// Two loans of about 300 each at 9 bps cost around 0.54 in premiums.
	assert.True(t, freed.LessThan(decimal.NewFromInt(100)))
	assert.True(t, freed.GreaterThan(decimal.NewFromInt(99)), "freed = %s", freed)

	view, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	assert.True(t, view.Debt.IsZero())
	assert.True(t, view.Principal.IsZero())
}

func TestPartialWithdrawKeepsTargetLtv(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	freed, err := rig.engine.Withdraw(ctx, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, freed.Equal(decimal.NewFromInt(50)), "freed = %s", freed)

	view, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	assert.True(t, view.Collateral.Equal(decimal.NewFromInt(200)))
	assert.True(t, view.Debt.Equal(decimal.NewFromInt(150)))
	assert.True(t, view.Principal.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, int64(7500), view.LtvBps)
}

func TestWithdrawCapsAtPrincipal(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	freed, err := rig.engine.Withdraw(ctx, decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.True(t, freed.Equal(decimal.NewFromInt(100)))
	assert.True(t, rig.engine.Principal().IsZero())
}

func TestRebalanceIsIdempotentAtTarget(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	before, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)

	require.NoError(t, rig.engine.Rebalance(ctx))
	require.NoError(t, rig.engine.Rebalance(ctx))

	after, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	assert.True(t, before.Collateral.Equal(after.Collateral))
	assert.True(t, before.Debt.Equal(after.Debt))
	assert.True(t, rig.lender.TotalExtended().Equal(decimal.NewFromInt(300)), "no further loans after the build")
}

func TestRebalanceRestoresDriftedPosition(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	// Borrow interest outpacing supply yield pushes the LTV up past the
	// buffer.
	rig.venue.SetRates(decimal.Zero, decimal.NewFromFloat(0.10))
	rig.venue.AccrueInterest(2 * 365 * 24 * time.Hour)

	view, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	require.Greater(t, view.LtvBps, int64(7600), "drift should exceed the buffer")

	require.NoError(t, rig.engine.Rebalance(ctx))

	view, err = rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), view.LtvBps)
}

func TestAdjustLeverageUp(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	require.NoError(t, rig.engine.AdjustLeverage(ctx, 8000, decimal.Zero))

	view, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8000), view.LtvBps)
	assert.Equal(t, int64(8000), rig.engine.TargetLtvBps())
	assert.True(t, view.Principal.Equal(decimal.NewFromInt(100)), "principal untouched by leverage changes")
}

func TestAdjustLeverageOutOfBoundsRejected(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	err = rig.engine.AdjustLeverage(ctx, 9800, decimal.Zero)
	assert.ErrorIs(t, err, apperrors.ErrLtvOutOfRange)
	assert.Equal(t, int64(7500), rig.engine.TargetLtvBps())
}

func TestAdjustLeverageSharePriceFloorRollsBack(t *testing.T) {
	rig := newTestRig(t, withPremium(9))
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	before, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)

	// Premiums already put the share price a hair under 1, so a floor of 1
	// must fail and discard the whole adjustment.
	err = rig.engine.AdjustLeverage(ctx, 8000, decimal.NewFromInt(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSharePriceBelowFloor)

	after, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	assert.True(t, before.Collateral.Equal(after.Collateral), "collateral %s != %s", before.Collateral, after.Collateral)
	assert.True(t, before.Debt.Equal(after.Debt))
	assert.Equal(t, int64(7500), rig.engine.TargetLtvBps(), "target restored on rollback")
}

func TestEmergencyDeleverage(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	freed, err := rig.engine.EmergencyDeleverage(ctx)
	require.NoError(t, err)
	assert.True(t, freed.Equal(decimal.NewFromInt(100)))

	view, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	assert.True(t, view.Collateral.IsZero())
	assert.True(t, view.Debt.IsZero())
	assert.False(t, rig.engine.IsActive())

	_, err = rig.engine.Deposit(ctx, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, apperrors.ErrNotActive)
}

func TestInactiveEngineStillAllowsWithdrawals(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	rig.engine.SetActive(false)

	_, err = rig.engine.Deposit(ctx, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, apperrors.ErrNotActive)

	freed, err := rig.engine.Withdraw(ctx, decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.True(t, freed.Equal(decimal.NewFromInt(25)))
}

func TestUnprofitableDepositDegradesToPlainSupply(t *testing.T) {
	// Borrowing at 6% to earn 1% never pays at any leverage.
	rig := newTestRig(t, withRates(0.01, 0.06))
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	view, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	assert.True(t, view.Collateral.Equal(decimal.NewFromInt(100)), "collateral = %s", view.Collateral)
	assert.True(t, view.Debt.IsZero())
	assert.True(t, view.Principal.Equal(decimal.NewFromInt(100)))
	assert.True(t, rig.lender.TotalExtended().IsZero(), "no loan for an unprofitable build")
}

func TestDepegGuardDegradesDepositAndBlocksRebalance(t *testing.T) {
	rig := newTestRig(t, withDepegGuard())
	ctx := context.Background()

	rig.feed.Set(decimal.NewFromFloat(0.97))

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	view, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	assert.True(t, view.Debt.IsZero(), "depeg must not build leverage")

	// Unleveraged position sits far below target, so a rebalance wants to
	// lever up and the guard must stop it.
	err = rig.engine.Rebalance(ctx)
	assert.ErrorIs(t, err, apperrors.ErrPriceDeviation)

	// Peg restored: the guard recovers and the rebalance goes through.
	rig.feed.Set(decimal.NewFromInt(1))
	require.NoError(t, rig.engine.Rebalance(ctx))

	view, err = rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), view.LtvBps)
}

func TestForgedCallbackRejected(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	loan := &core.BridgeLoan{
		OperationID: "made-up",
		Asset:       "USDC",
		Amount:      decimal.NewFromInt(1000),
		Payload:     core.LoanPayload{Action: core.LoanActionDeposit},
	}

	// Wrong lender instance.
	stranger := lender.NewSimulated("stranger", 0)
	err := rig.engine.OnBridgeLoan(ctx, stranger, loan)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorizedCallback)

	// Right lender, but no operation in flight.
	err = rig.engine.OnBridgeLoan(ctx, rig.lender, loan)
	assert.ErrorIs(t, err, apperrors.ErrNoPendingLoan)

	// Nothing must have touched the books.
	view, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	assert.True(t, view.Collateral.IsZero())
	assert.True(t, view.Debt.IsZero())
}

func TestStateRestoredAcrossRestart(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)
	require.NoError(t, rig.engine.AdjustLeverage(ctx, 8000, decimal.Zero))

	logger := logging.GetGlobalLogger()
	restarted, err := New(rig.venue, rig.lender, nil, nil, nil, rig.store, logger, Config{
		BaseAsset:         "USDC",
		TargetLtvBps:      7500,
		SafetyBufferBps:   100,
		MinTargetLtvBps:   3000,
		MaxTargetLtvBps:   9500,
		HealthFactorFloor: decimal.NewFromFloat(1.01),
	})
	require.NoError(t, err)

	assert.True(t, restarted.Principal().Equal(decimal.NewFromInt(100)))
	assert.Equal(t, int64(8000), restarted.TargetLtvBps(), "persisted target wins over config")
}

func TestGovernanceDelayGatesParameterChanges(t *testing.T) {
	rig := newTestRig(t, withGovernanceDelay(time.Hour))
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	change, err := rig.engine.ProposeTargetLtv(8000)
	require.NoError(t, err)
	assert.True(t, change.EligibleAt.After(time.Now()))
	assert.Len(t, rig.engine.PendingChanges(), 1)

	applied, err := rig.engine.ApplyPendingChanges()
	require.NoError(t, err)
	assert.Equal(t, 0, applied, "change not yet eligible")
	assert.Equal(t, int64(7500), rig.engine.TargetLtvBps())
}

func TestGovernanceChangeAppliesAfterDelay(t *testing.T) {
	rig := newTestRig(t) // zero delay: eligible immediately
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	_, err = rig.engine.ProposeTargetLtv(8000)
	require.NoError(t, err)

	applied, err := rig.engine.ApplyPendingChanges()
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, int64(8000), rig.engine.TargetLtvBps())
	assert.Empty(t, rig.engine.PendingChanges())
}

func TestProposeOutOfBoundsRejectedImmediately(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.engine.ProposeTargetLtv(9800)
	assert.ErrorIs(t, err, apperrors.ErrLtvOutOfRange)
	assert.Empty(t, rig.engine.PendingChanges())
}

func TestInvalidAmountsRejected(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.Zero)
	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)

	_, err = rig.engine.Deposit(ctx, decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)

	_, err = rig.engine.Withdraw(ctx, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount, "withdraw from empty position")
}

func TestReinvestGrowsSharePriceNotPrincipal(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.engine.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	require.NoError(t, rig.engine.Reinvest(ctx, decimal.NewFromInt(10)))

	view, err := rig.engine.GetPosition(ctx)
	require.NoError(t, err)
	assert.True(t, view.Principal.Equal(decimal.NewFromInt(100)), "reinvest never mints principal")
	assert.True(t, view.NetValue.Equal(decimal.NewFromInt(110)), "net = %s", view.NetValue)

	sp, err := rig.engine.SharePrice(ctx)
	require.NoError(t, err)
	assert.True(t, sp.Equal(decimal.NewFromFloat(1.1)), "share price = %s", sp)
}
