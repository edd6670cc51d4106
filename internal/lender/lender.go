// Package lender provides an in-process bridge lender. It fronts the
// requested amount instantly, re-enters the receiver synchronously, and
// verifies the receiver authorized repayment of principal plus premium
// before the loan call returns.
package lender

import (
	"context"
	"fmt"
	"sync"

	"leverager/internal/core"
	"leverager/pkg/logging"

	"github.com/shopspring/decimal"
)

const defaultPremiumBps int64 = 9 // 0.09%, the common flash-loan fee

// Simulated is an unlimited-liquidity bridge lender.
type Simulated struct {
	name       string
	premiumBps int64
	logger     core.ILogger

	mu        sync.Mutex
	approvals map[string]decimal.Decimal
	// extended tallies total principal lent, for inspection in tests.
	extended decimal.Decimal
}

// NewSimulated creates a lender charging premiumBps on every loan. Zero is a
// valid free lender; a negative premium falls back to the default fee.
func NewSimulated(name string, premiumBps int64) *Simulated {
	if premiumBps < 0 {
		premiumBps = defaultPremiumBps
	}
	return &Simulated{
		name:       name,
		premiumBps: premiumBps,
		logger:     logging.GetGlobalLogger().WithField("component", "bridge_lender"),
		approvals:  make(map[string]decimal.Decimal),
	}
}

func (l *Simulated) GetName() string { return l.name }

// PremiumFor returns the fee charged on a loan of the given size.
func (l *Simulated) PremiumFor(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(l.premiumBps)).Div(decimal.NewFromInt(10_000))
}

// RequestLoan hands the loan to the receiver's callback and settles it in the
// same call. The loan fails if the receiver returns an error or never
// authorizes full repayment.
func (l *Simulated) RequestLoan(ctx context.Context, receiver core.IBridgeLoanReceiver, asset string, amount decimal.Decimal, payload core.LoanPayload) error {
	if amount.IsNegative() {
		return fmt.Errorf("loan amount %s is negative", amount)
	}

	loan := &core.BridgeLoan{
		OperationID: payload.OperationID,
		Asset:       asset,
		Amount:      amount,
		Premium:     l.PremiumFor(amount),
		Payload:     payload,
	}

	l.mu.Lock()
	l.extended = l.extended.Add(amount)
	l.mu.Unlock()

	if err := receiver.OnBridgeLoan(ctx, l, loan); err != nil {
		l.clearApproval(loan.OperationID)
		return fmt.Errorf("receiver rejected loan: %w", err)
	}

	approved := l.takeApproval(loan.OperationID)
	if approved.LessThan(loan.Repayment()) {
		return fmt.Errorf("repayment not authorized: approved %s, owed %s", approved, loan.Repayment())
	}

	l.logger.Debug("Bridge loan settled",
		"operation_id", loan.OperationID,
		"asset", asset,
		"amount", amount.String(),
		"premium", loan.Premium.String())
	return nil
}

// ApproveRepayment records the receiver's authorization to pull funds for the
// named operation.
func (l *Simulated) ApproveRepayment(operationID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("repayment amount %s is negative", amount)
	}
	l.mu.Lock()
	l.approvals[operationID] = l.approvals[operationID].Add(amount)
	l.mu.Unlock()
	return nil
}

// TotalExtended returns the cumulative principal lent out.
func (l *Simulated) TotalExtended() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extended
}

func (l *Simulated) takeApproval(operationID string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount := l.approvals[operationID]
	delete(l.approvals, operationID)
	return amount
}

func (l *Simulated) clearApproval(operationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.approvals, operationID)
}
