// Package engine implements the leveraged position orchestrator: the state
// machine that builds, rebalances and unwinds a collateral/debt position
// against one venue using bridge loans, with all-or-nothing semantics.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"leverager/internal/core"
	"leverager/internal/leverage"
	"leverager/internal/safety"
	apperrors "leverager/pkg/errors"
	"leverager/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// Config holds the engine parameters. Bounds are enforced at construction and
// at every setter.
type Config struct {
	BaseAsset       string
	CollateralAsset string // empty means same as BaseAsset
	TargetLtvBps    int64
	SafetyBufferBps int64
	MinTargetLtvBps int64
	MaxTargetLtvBps int64
	// HealthFactorFloor is checked after every mutating operation,
	// slightly above 1.0.
	HealthFactorFloor decimal.Decimal
	// SwapSlippageBps bounds cross-asset conversions during unwind.
	SwapSlippageBps int64
	// GovernanceDelay gates the most sensitive setters behind a
	// pending-change record.
	GovernanceDelay time.Duration
}

// Engine is one depositor-facing leveraged position bound to one venue.
// A single mutex serializes every mutating entry point, including the
// nested bridge-loan callback.
type Engine struct {
	venue      core.IVenue
	lender     core.IBridgeLender
	swapper    core.ISwapRouter
	profitGate *safety.ProfitabilityGate
	depegGuard *safety.DepegGuard // nil for single-asset engines
	store      core.IStateStore   // nil disables persistence
	logger     core.ILogger

	cfg Config

	mu  sync.Mutex
	pos core.Position

	// Guarded resumption record for the in-flight bridge loan. Written by
	// the orchestrator immediately before RequestLoan, read-and-consumed
	// exactly once by the callback.
	pendingMu sync.Mutex
	pending   *pendingLoan

	// lastProceeds carries unwind proceeds from requestLoan back to the
	// enclosing operation. Only touched under mu.
	lastProceeds decimal.Decimal

	// Governance-delayed parameter updates.
	changes []core.PendingChange
}

type pendingLoan struct {
	opID     string
	payload  core.LoanPayload
	consumed bool
	// proceeds is what the unwind callback freed beyond the loan repayment.
	proceeds decimal.Decimal
}

// New creates an engine bound to one venue and one bridge lender.
func New(
	venue core.IVenue,
	lender core.IBridgeLender,
	swapper core.ISwapRouter,
	profitGate *safety.ProfitabilityGate,
	depegGuard *safety.DepegGuard,
	store core.IStateStore,
	logger core.ILogger,
	cfg Config,
) (*Engine, error) {
	if cfg.MinTargetLtvBps == 0 && cfg.MaxTargetLtvBps == 0 {
		cfg.MinTargetLtvBps = 3000
		cfg.MaxTargetLtvBps = 9500
	}
	if err := safety.ValidateEngineParameters(cfg.TargetLtvBps, cfg.SafetyBufferBps, cfg.MinTargetLtvBps, cfg.MaxTargetLtvBps); err != nil {
		return nil, err
	}
	if cfg.HealthFactorFloor.IsZero() {
		cfg.HealthFactorFloor = decimal.NewFromFloat(1.01)
	}
	if cfg.CollateralAsset == "" {
		cfg.CollateralAsset = cfg.BaseAsset
	}

	e := &Engine{
		venue:      venue,
		lender:     lender,
		swapper:    swapper,
		profitGate: profitGate,
		depegGuard: depegGuard,
		store:      store,
		logger:     logger.WithField("component", "engine").WithField("venue", venue.GetName()),
		cfg:        cfg,
		pos: core.Position{
			Principal:      decimal.Zero,
			TargetLtvBps:   cfg.TargetLtvBps,
			SafetyBufBps:   cfg.SafetyBufferBps,
			Active:         true,
			LastSharePrice: decimal.NewFromInt(1),
		},
	}

	if store != nil {
		if err := e.restore(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to restore engine state: %w", err)
		}
	}

	return e, nil
}

// Deposit pulls amount of base asset from the capital owner and builds
// leverage toward the target LTV. When the profitability gate fails (or the
// depeg guard is blocking), it degrades to an unleveraged supply instead of
// failing. Returns the amount deposited.
func (e *Engine) Deposit(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount.IsZero() || amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: deposit %s", apperrors.ErrInvalidAmount, amount)
	}
	if !e.pos.Active {
		return decimal.Zero, apperrors.ErrNotActive
	}

	uow, err := e.begin("deposit")
	if err != nil {
		return decimal.Zero, err
	}

	leveraged := true
	if e.depegGuard != nil {
		if err := e.depegGuard.Check(ctx); err != nil {
			e.logger.Warn("Depeg guard blocking leverage, degrading to plain supply", "error", err.Error())
			leveraged = false
		}
	}
	if leveraged && e.profitGate != nil {
		profitable, err := e.profitGate.Profitable(ctx, e.venue, e.pos.TargetLtvBps)
		if err != nil {
			return decimal.Zero, e.rollback(ctx, uow, err)
		}
		if !profitable {
			e.logger.Info("Profitability gate failed, degrading to plain supply", "amount", amount)
			telemetry.GetGlobalMetrics().RecordGateSkip(ctx, e.venue.GetName())
			leveraged = false
		}
	}

	loanSize := leverage.FlashLoanAmount(amount, e.pos.TargetLtvBps)
	if !leveraged || loanSize.IsZero() {
		if err := e.venue.Supply(ctx, amount); err != nil {
			return decimal.Zero, e.rollback(ctx, uow, fmt.Errorf("unleveraged supply failed: %w", err))
		}
	} else {
		payload := core.LoanPayload{Action: core.LoanActionDeposit, Amount: amount}
		if err := e.requestLoan(ctx, uow, loanSize, payload); err != nil {
			return decimal.Zero, e.rollback(ctx, uow, err)
		}
	}

	e.pos.Principal = e.pos.Principal.Add(amount)

	if err := e.postChecks(ctx); err != nil {
		return decimal.Zero, e.rollback(ctx, uow, err)
	}
	e.commit(ctx, uow)
	return amount, nil
}

// Withdraw unwinds a principal-proportional slice of the position and returns
// the base asset actually freed. Amount is capped at the current principal.
// Withdrawals are always possible regardless of the active flag or gates.
func (e *Engine) Withdraw(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount.IsZero() || amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: withdraw %s", apperrors.ErrInvalidAmount, amount)
	}
	return e.withdrawLocked(ctx, amount, false)
}

// WithdrawAll unwinds the position to zero debt and zero collateral and
// zeroes the principal. Returns the base asset freed.
func (e *Engine) WithdrawAll(ctx context.Context) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.withdrawLocked(ctx, e.pos.Principal, true)
}

func (e *Engine) withdrawLocked(ctx context.Context, amount decimal.Decimal, full bool) (decimal.Decimal, error) {
	if e.pos.Principal.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: nothing to withdraw", apperrors.ErrInvalidAmount)
	}
	if amount.GreaterThan(e.pos.Principal) {
		amount = e.pos.Principal
	}
	if amount.Equal(e.pos.Principal) {
		full = true
	}

	uow, err := e.begin("withdraw")
	if err != nil {
		return decimal.Zero, err
	}

	collateral, debt, err := e.readBalances(ctx)
	if err != nil {
		return decimal.Zero, e.rollback(ctx, uow, err)
	}

	var freed decimal.Decimal
	switch {
	case debt.IsZero():
		// No loop to unwind, release collateral directly.
		slice := collateral
		if !full {
			slice = collateral.Mul(amount).Div(e.pos.Principal)
		}
		if slice.GreaterThan(collateral) {
			slice = collateral
		}
		if !slice.IsZero() {
			if err := e.venue.Withdraw(ctx, slice, e.cfg.BaseAsset); err != nil {
				return decimal.Zero, e.rollback(ctx, uow, fmt.Errorf("collateral withdrawal failed: %w", err))
			}
		}
		freed = slice
	default:
		debtSlice := debt
		payload := core.LoanPayload{Action: core.LoanActionWithdraw, Amount: amount, FullUnwind: true}
		if !full {
			ratio := amount.Div(e.pos.Principal)
			debtSlice = debt.Mul(ratio)
			payload.FullUnwind = false
			payload.Collateral = collateral.Mul(ratio)
		}
		if err := e.requestLoan(ctx, uow, debtSlice, payload); err != nil {
			return decimal.Zero, e.rollback(ctx, uow, err)
		}
		freed = e.takeProceeds()
	}

	if full {
		e.pos.Principal = decimal.Zero
	} else {
		e.pos.Principal = e.pos.Principal.Sub(amount)
		if e.pos.Principal.IsNegative() {
			e.pos.Principal = decimal.Zero
		}
	}

	if err := e.postChecks(ctx); err != nil {
		return decimal.Zero, e.rollback(ctx, uow, err)
	}
	e.commit(ctx, uow)
	return freed, nil
}

// Rebalance drives the position back to the target LTV when it has drifted
// past the safety buffer. A position inside the buffer is a no-op, which
// makes back-to-back calls idempotent. Keeper-triggered.
func (e *Engine) Rebalance(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.steerLocked(ctx, "rebalance", e.pos.TargetLtvBps, e.pos.SafetyBufBps)
}

// AdjustLeverage moves the position to an explicitly new target LTV. The
// whole operation is discarded when the resulting share price falls below
// minSharePrice. Strategist-triggered.
func (e *Engine) AdjustLeverage(ctx context.Context, newLtvBps int64, minSharePrice decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := safety.ValidateEngineParameters(newLtvBps, e.pos.SafetyBufBps, e.cfg.MinTargetLtvBps, e.cfg.MaxTargetLtvBps); err != nil {
		return err
	}

	uow, err := e.begin("adjust_leverage")
	if err != nil {
		return err
	}

	e.pos.TargetLtvBps = newLtvBps
	if err := e.steerToward(ctx, uow, newLtvBps, 0); err != nil {
		return e.rollback(ctx, uow, err)
	}

	collateral, debt, err := e.readBalances(ctx)
	if err != nil {
		return e.rollback(ctx, uow, err)
	}
	sharePrice := leverage.SharePrice(leverage.NetValue(collateral, debt), e.pos.Principal)
	if err := safety.CheckSharePrice(sharePrice, minSharePrice); err != nil {
		return e.rollback(ctx, uow, err)
	}
	if err := e.postChecks(ctx); err != nil {
		return e.rollback(ctx, uow, err)
	}

	e.pos.LastSharePrice = sharePrice
	e.commit(ctx, uow)
	return nil
}

// EmergencyDeleverage unconditionally drives debt to zero and withdraws all
// collateral, ignoring profitability and target-LTV considerations.
// Guardian-triggered incident response; the engine stops accepting deposits.
func (e *Engine) EmergencyDeleverage(ctx context.Context) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	uow, err := e.begin("emergency_deleverage")
	if err != nil {
		return decimal.Zero, err
	}

	collateral, debt, err := e.readBalances(ctx)
	if err != nil {
		return decimal.Zero, e.rollback(ctx, uow, err)
	}

	var freed decimal.Decimal
	if debt.IsZero() {
		if !collateral.IsZero() {
			if err := e.venue.Withdraw(ctx, collateral, e.cfg.BaseAsset); err != nil {
				return decimal.Zero, e.rollback(ctx, uow, fmt.Errorf("emergency withdrawal failed: %w", err))
			}
		}
		freed = collateral
	} else {
		payload := core.LoanPayload{Action: core.LoanActionWithdraw, FullUnwind: true}
		if err := e.requestLoan(ctx, uow, debt, payload); err != nil {
			return decimal.Zero, e.rollback(ctx, uow, err)
		}
		freed = e.takeProceeds()
	}

	e.pos.Principal = decimal.Zero
	e.pos.Active = false
	e.logger.Warn("Emergency deleverage completed, deposits disabled", "freed", freed)
	e.commit(ctx, uow)
	return freed, nil
}

// Reinvest builds additional leverage from already-held base asset (claimed
// reward proceeds) without touching principal, so compounded yield accrues
// as share-price appreciation.
func (e *Engine) Reinvest(ctx context.Context, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount.IsZero() || amount.IsNegative() {
		return fmt.Errorf("%w: reinvest %s", apperrors.ErrInvalidAmount, amount)
	}

	uow, err := e.begin("reinvest")
	if err != nil {
		return err
	}

	leveraged := true
	if e.depegGuard != nil && e.depegGuard.Check(ctx) != nil {
		leveraged = false
	}
	if leveraged && e.profitGate != nil {
		profitable, err := e.profitGate.Profitable(ctx, e.venue, e.pos.TargetLtvBps)
		if err != nil {
			return e.rollback(ctx, uow, err)
		}
		leveraged = profitable
	}

	loanSize := leverage.FlashLoanAmount(amount, e.pos.TargetLtvBps)
	if !leveraged || loanSize.IsZero() {
		if err := e.venue.Supply(ctx, amount); err != nil {
			return e.rollback(ctx, uow, fmt.Errorf("reinvest supply failed: %w", err))
		}
	} else {
		payload := core.LoanPayload{Action: core.LoanActionDeposit, Amount: amount}
		if err := e.requestLoan(ctx, uow, loanSize, payload); err != nil {
			return e.rollback(ctx, uow, err)
		}
	}

	if err := e.postChecks(ctx); err != nil {
		return e.rollback(ctx, uow, err)
	}
	e.commit(ctx, uow)
	return nil
}

// steerLocked is the shared rebalance core: a no-op inside the buffer, a
// directional bridge loan otherwise.
func (e *Engine) steerLocked(ctx context.Context, op string, targetLtvBps, bufferBps int64) error {
	uow, err := e.begin(op)
	if err != nil {
		return err
	}
	if err := e.steerToward(ctx, uow, targetLtvBps, bufferBps); err != nil {
		return e.rollback(ctx, uow, err)
	}
	if err := e.postChecks(ctx); err != nil {
		return e.rollback(ctx, uow, err)
	}
	e.commit(ctx, uow)
	return nil
}

func (e *Engine) steerToward(ctx context.Context, uow *unitOfWork, targetLtvBps, bufferBps int64) error {
	collateral, debt, err := e.readBalances(ctx)
	if err != nil {
		return err
	}

	currentLtv := leverage.Ltv(collateral, debt)
	needs, over := leverage.NeedsRebalance(currentLtv, targetLtvBps, bufferBps)
	if !needs {
		return nil
	}

	if e.depegGuard != nil {
		if err := e.depegGuard.Check(ctx); err != nil {
			return err
		}
	}

	if over {
		amt := leverage.DeleverageAmount(collateral, debt, targetLtvBps)
		if amt.IsZero() {
			return nil
		}
		// Zero Collateral in the payload makes the callback release exactly
		// the loan repayment.
		payload := core.LoanPayload{Action: core.LoanActionWithdraw}
		if err := e.requestLoan(ctx, uow, amt, payload); err != nil {
			return err
		}
	} else {
		amt := leverage.ReleverageAmount(collateral, debt, targetLtvBps)
		if amt.IsZero() {
			return nil
		}
		payload := core.LoanPayload{Action: core.LoanActionDeposit, Amount: decimal.Zero}
		if err := e.requestLoan(ctx, uow, amt, payload); err != nil {
			return err
		}
	}

	telemetry.GetGlobalMetrics().RecordRebalance(ctx, e.venue.GetName())
	e.logger.Info("Position steered toward target",
		"previous_ltv_bps", currentLtv,
		"target_ltv_bps", targetLtvBps,
		"was_over_leveraged", over)
	return nil
}

// requestLoan records the guarded resumption record and calls out to the
// lender, which synchronously re-enters through OnBridgeLoan.
func (e *Engine) requestLoan(ctx context.Context, uow *unitOfWork, amount decimal.Decimal, payload core.LoanPayload) error {
	e.pendingMu.Lock()
	if e.pending != nil && !e.pending.consumed {
		e.pendingMu.Unlock()
		return apperrors.ErrOperationInProgress
	}
	payload.OperationID = uow.id
	e.pending = &pendingLoan{opID: uow.id, payload: payload}
	e.pendingMu.Unlock()

	telemetry.GetGlobalMetrics().RecordLoan(ctx, e.venue.GetName(), payload.Action.String())
	err := e.lender.RequestLoan(ctx, e, e.cfg.BaseAsset, amount, payload)

	e.pendingMu.Lock()
	pending := e.pending
	e.pending = nil
	e.pendingMu.Unlock()

	if err != nil {
		return fmt.Errorf("bridge loan failed: %w", err)
	}
	if pending == nil || !pending.consumed {
		return fmt.Errorf("%w: lender returned without invoking callback", apperrors.ErrNoPendingLoan)
	}
	// Stash proceeds for the caller before the record is dropped.
	e.lastProceeds = pending.proceeds
	return nil
}

func (e *Engine) takeProceeds() decimal.Decimal {
	p := e.lastProceeds
	e.lastProceeds = decimal.Zero
	return p
}

func (e *Engine) readBalances(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	collateral, err := e.venue.CollateralBalance(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to read collateral: %w", err)
	}
	debt, err := e.venue.DebtBalance(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to read debt: %w", err)
	}
	return collateral, debt, nil
}

// postChecks enforces the health-factor floor after a mutating operation and
// refreshes the exported gauges.
func (e *Engine) postChecks(ctx context.Context) error {
	collateral, debt, err := e.readBalances(ctx)
	if err != nil {
		return err
	}
	if err := safety.CheckHealthFactor(collateral, debt, e.cfg.HealthFactorFloor); err != nil {
		return err
	}

	hf, _ := leverage.HealthFactor(collateral, debt).Float64()
	sp, _ := leverage.SharePrice(leverage.NetValue(collateral, debt), e.pos.Principal).Float64()
	c, _ := collateral.Float64()
	d, _ := debt.Float64()
	p, _ := e.pos.Principal.Float64()
	telemetry.GetGlobalMetrics().SetPositionGauges(e.venue.GetName(), c, d, p, leverage.Ltv(collateral, debt), hf, sp)
	return nil
}
