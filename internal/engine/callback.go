package engine

import (
	"context"
	"fmt"

	"leverager/internal/core"
	apperrors "leverager/pkg/errors"

	"github.com/shopspring/decimal"
)

// OnBridgeLoan is the re-entry point the lender invokes mid-operation. It
// authenticates the lender, matches the loan to this engine's in-flight
// resumption record, consumes the record exactly once, and performs the
// second half of the build or unwind before authorizing repayment.
//
// A forged invocation (wrong lender, no in-flight operation, or a mismatched
// operation id) is rejected unconditionally.
func (e *Engine) OnBridgeLoan(ctx context.Context, lender core.IBridgeLender, loan *core.BridgeLoan) error {
	if lender == nil || lender != e.lender {
		return apperrors.ErrUnauthorizedCallback
	}

	e.pendingMu.Lock()
	pending := e.pending
	if pending == nil || pending.consumed || pending.opID != loan.OperationID {
		e.pendingMu.Unlock()
		return fmt.Errorf("%w: operation %q not in flight", apperrors.ErrNoPendingLoan, loan.OperationID)
	}
	pending.consumed = true
	e.pendingMu.Unlock()

	switch pending.payload.Action {
	case core.LoanActionDeposit:
		return e.finishBuild(ctx, pending, loan)
	case core.LoanActionWithdraw:
		return e.finishUnwind(ctx, pending, loan)
	default:
		return fmt.Errorf("%w: unknown action %v", apperrors.ErrNoPendingLoan, pending.payload.Action)
	}
}

// finishBuild supplies the combined contribution + loan as collateral, then
// borrows exactly the loan repayment from the venue and authorizes the lender
// to pull it.
func (e *Engine) finishBuild(ctx context.Context, pending *pendingLoan, loan *core.BridgeLoan) error {
	supply := pending.payload.Amount.Add(loan.Amount)
	if err := e.venue.Supply(ctx, supply); err != nil {
		return fmt.Errorf("collateral supply failed: %w", err)
	}
	if err := e.venue.Borrow(ctx, loan.Repayment(), e.lender.GetName()); err != nil {
		return fmt.Errorf("venue borrow failed: %w", err)
	}
	if err := e.lender.ApproveRepayment(loan.OperationID, loan.Repayment()); err != nil {
		return fmt.Errorf("loan repayment approval failed: %w", err)
	}
	return nil
}

// finishUnwind repays venue debt with the loaned funds, releases the
// corresponding collateral (all of it on the full-unwind sentinel), swaps
// when the collateral asset differs from the loan asset, and authorizes
// repayment out of the proceeds. What remains above the repayment is handed
// back to the enclosing operation.
func (e *Engine) finishUnwind(ctx context.Context, pending *pendingLoan, loan *core.BridgeLoan) error {
	debt, err := e.venue.DebtBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read debt: %w", err)
	}

	repay := loan.Amount
	if pending.payload.FullUnwind || repay.GreaterThan(debt) {
		repay = debt
	}
	if !repay.IsZero() {
		if err := e.venue.Repay(ctx, repay); err != nil {
			return fmt.Errorf("debt repayment failed: %w", err)
		}
	}

	collateral, err := e.venue.CollateralBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read collateral: %w", err)
	}

	release := pending.payload.Collateral
	switch {
	case pending.payload.FullUnwind:
		release = collateral
	case release.IsZero():
		// Deleverage: free just enough to cover the loan.
		release = loan.Repayment()
	}
	if release.GreaterThan(collateral) {
		release = collateral
	}
	if !release.IsZero() {
		if err := e.venue.Withdraw(ctx, release, e.cfg.BaseAsset); err != nil {
			return fmt.Errorf("collateral release failed: %w", err)
		}
	}

	proceeds := release
	if e.cfg.CollateralAsset != e.cfg.BaseAsset {
		if e.swapper == nil {
			return fmt.Errorf("%w: no swap route for %s", apperrors.ErrSlippageExceeded, e.cfg.CollateralAsset)
		}
		minOut := release.Mul(decimal.NewFromInt(10_000 - e.cfg.SwapSlippageBps)).Div(decimal.NewFromInt(10_000))
		out, err := e.swapper.Swap(ctx, e.cfg.CollateralAsset, e.cfg.BaseAsset, release, minOut)
		if err != nil {
			return fmt.Errorf("unwind swap failed: %w", err)
		}
		proceeds = out
	}

	if proceeds.LessThan(loan.Repayment()) {
		return fmt.Errorf("%w: proceeds %s < repayment %s", apperrors.ErrRepaymentShort, proceeds, loan.Repayment())
	}
	if err := e.lender.ApproveRepayment(loan.OperationID, loan.Repayment()); err != nil {
		return fmt.Errorf("loan repayment approval failed: %w", err)
	}

	pending.proceeds = proceeds.Sub(loan.Repayment())
	return nil
}
