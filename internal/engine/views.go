package engine

import (
	"context"
	"fmt"

	"leverager/internal/core"
	"leverager/internal/leverage"

	"github.com/shopspring/decimal"
)

// TotalValue returns the position's current net asset value: collateral
// minus debt, read fresh from the venue.
func (e *Engine) TotalValue(ctx context.Context) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	collateral, debt, err := e.readBalances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return leverage.NetValue(collateral, debt), nil
}

// GetHealthFactor returns collateral/debt; leverage.Unbounded when debt is zero.
func (e *Engine) GetHealthFactor(ctx context.Context) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	collateral, debt, err := e.readBalances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return leverage.HealthFactor(collateral, debt), nil
}

// GetCurrentLeverage returns the leverage multiple on a x100 scale
// (400 = 4.00x), derived from fresh venue balances.
func (e *Engine) GetCurrentLeverage(ctx context.Context) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	collateral, debt, err := e.readBalances(ctx)
	if err != nil {
		return 0, err
	}
	return leverage.LtvToLeverage(leverage.Ltv(collateral, debt)), nil
}

// GetPosition returns collateral, debt, principal and net value in one snapshot.
func (e *Engine) GetPosition(ctx context.Context) (core.PositionView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	collateral, debt, err := e.readBalances(ctx)
	if err != nil {
		return core.PositionView{}, err
	}
	net := leverage.NetValue(collateral, debt)
	return core.PositionView{
		Collateral:   collateral,
		Debt:         debt,
		Principal:    e.pos.Principal,
		NetValue:     net,
		LtvBps:       leverage.Ltv(collateral, debt),
		TargetLtvBps: e.pos.TargetLtvBps,
		HealthFactor: leverage.HealthFactor(collateral, debt),
		SharePrice:   leverage.SharePrice(net, e.pos.Principal),
		Active:       e.pos.Active,
	}, nil
}

// SharePrice returns net value per unit of principal; 1.0 at bootstrap.
func (e *Engine) SharePrice(ctx context.Context) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	collateral, debt, err := e.readBalances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return leverage.SharePrice(leverage.NetValue(collateral, debt), e.pos.Principal), nil
}

// Principal returns the cumulative contribution net of withdrawals.
func (e *Engine) Principal() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos.Principal
}

// TargetLtvBps returns the current leverage target.
func (e *Engine) TargetLtvBps() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos.TargetLtvBps
}

// IsActive reports whether new deposits are accepted. Unwinding is always
// possible regardless.
func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos.Active
}

// VenueName identifies the venue this engine is bound to.
func (e *Engine) VenueName() string {
	return e.venue.GetName()
}

func positionFromState(state *core.EngineState) (core.Position, error) {
	principal, err := decimal.NewFromString(state.Principal)
	if err != nil {
		return core.Position{}, fmt.Errorf("invalid persisted principal %q: %w", state.Principal, err)
	}
	sharePrice, err := decimal.NewFromString(state.LastSharePrice)
	if err != nil {
		return core.Position{}, fmt.Errorf("invalid persisted share price %q: %w", state.LastSharePrice, err)
	}
	return core.Position{
		Principal:      principal,
		TargetLtvBps:   state.TargetLtvBps,
		SafetyBufBps:   state.SafetyBufBps,
		Active:         state.Active,
		LastSharePrice: sharePrice,
	}, nil
}
