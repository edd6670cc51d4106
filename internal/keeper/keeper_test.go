package keeper

import (
	"context"
	"testing"
	"time"

	"leverager/internal/engine"
	"leverager/internal/lender"
	"leverager/internal/safety"
	"leverager/internal/venue"
	"leverager/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeeperEngine(t *testing.T) *engine.Engine {
	t.Helper()

	ven, err := venue.NewSimulated(venue.SimulatedConfig{
		Name:      "testpool",
		Asset:     "USDC",
		MaxLtvBps: 9300,
		SupplyAPR: decimal.NewFromFloat(0.05),
		BorrowAPR: decimal.NewFromFloat(0.03),
	})
	require.NoError(t, err)

	logger := logging.GetGlobalLogger()
	gate := safety.NewProfitabilityGate(safety.ProfitabilityConfig{
		BorrowRateCeiling: decimal.NewFromFloat(0.20),
	}, logger)

	eng, err := engine.New(ven, lender.NewSimulated("bridge", 0), nil, gate, nil,
		engine.NewMemoryStore(), logger, engine.Config{
			BaseAsset:         "USDC",
			TargetLtvBps:      7500,
			SafetyBufferBps:   100,
			HealthFactorFloor: decimal.NewFromFloat(1.01),
		})
	require.NoError(t, err)
	return eng
}

func newTestKeeper(eng *engine.Engine) *Keeper {
	return New(Config{
		Interval:   10 * time.Millisecond,
		MaxRetries: 1,
		PoolSize:   2,
		PoolBuffer: 8,
	}, eng, nil, nil)
}

func TestTriggerRebalanceRunsMaintenance(t *testing.T) {
	ctx := context.Background()
	eng := newKeeperEngine(t)
	_, err := eng.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	k := newTestKeeper(eng)
	defer k.pool.Stop()

	require.NoError(t, k.TriggerRebalance(ctx))
	require.Eventually(t, func() bool {
		return k.GetStatus().Runs >= 1
	}, 2*time.Second, 10*time.Millisecond)

	status := k.GetStatus()
	assert.Empty(t, status.LastError)
	assert.Zero(t, status.Failures)
	assert.False(t, status.LastRun.IsZero())
}

func TestMaintenanceSkipsInactiveEngine(t *testing.T) {
	ctx := context.Background()
	k := newTestKeeper(newKeeperEngine(t))
	defer k.pool.Stop()

	require.NoError(t, k.TriggerRebalance(ctx))
	time.Sleep(50 * time.Millisecond)

	status := k.GetStatus()
	assert.Zero(t, status.Runs, "nothing to maintain before the first deposit")
}

func TestStartStopLifecycle(t *testing.T) {
	ctx := context.Background()
	eng := newKeeperEngine(t)
	_, err := eng.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	k := newTestKeeper(eng)
	k.Start(ctx)
	assert.True(t, k.GetStatus().Running)

	require.Eventually(t, func() bool {
		return k.GetStatus().Runs >= 2
	}, 2*time.Second, 10*time.Millisecond)

	k.Stop()
	assert.False(t, k.GetStatus().Running)

	runs := k.GetStatus().Runs
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, runs, k.GetStatus().Runs, "no ticks after stop")
}

func TestMaintenanceAppliesMaturedParameterChange(t *testing.T) {
	ctx := context.Background()
	eng := newKeeperEngine(t) // zero governance delay: changes mature immediately
	_, err := eng.Deposit(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)

	_, err = eng.ProposeTargetLtv(8000)
	require.NoError(t, err)

	k := newTestKeeper(eng)
	defer k.pool.Stop()
	assert.Equal(t, 1, k.GetStatus().PendingChange)

	require.NoError(t, k.TriggerRebalance(ctx))
	require.Eventually(t, func() bool {
		return k.GetStatus().PendingChange == 0
	}, 2*time.Second, 10*time.Millisecond)

	view, err := eng.GetPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8000), view.TargetLtvBps)
	assert.Equal(t, int64(8000), view.LtvBps, "the pass releverages to the new target")
}
