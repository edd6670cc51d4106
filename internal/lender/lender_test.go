package lender

import (
	"context"
	"errors"
	"testing"

	"leverager/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedReceiver approves whatever fraction of the repayment it is told to.
type scriptedReceiver struct {
	approveFraction decimal.Decimal
	failWith        error
	seen            *core.BridgeLoan
}

func (r *scriptedReceiver) OnBridgeLoan(ctx context.Context, l core.IBridgeLender, loan *core.BridgeLoan) error {
	r.seen = loan
	if r.failWith != nil {
		return r.failWith
	}
	return l.ApproveRepayment(loan.OperationID, loan.Repayment().Mul(r.approveFraction))
}

func TestRequestLoanSettlesWithFullApproval(t *testing.T) {
	l := NewSimulated("bridge", 9)
	receiver := &scriptedReceiver{approveFraction: decimal.NewFromInt(1)}

	payload := core.LoanPayload{OperationID: "op-1", Action: core.LoanActionDeposit}
	err := l.RequestLoan(context.Background(), receiver, "USDC", decimal.NewFromInt(1000), payload)
	require.NoError(t, err)

	require.NotNil(t, receiver.seen)
	assert.Equal(t, "op-1", receiver.seen.OperationID, "lender echoes the operation id")
	assert.True(t, receiver.seen.Premium.Equal(decimal.NewFromFloat(0.9)), "9 bps of 1000")
	assert.True(t, l.TotalExtended().Equal(decimal.NewFromInt(1000)))
}

func TestRequestLoanFailsOnShortApproval(t *testing.T) {
	l := NewSimulated("bridge", 9)
	receiver := &scriptedReceiver{approveFraction: decimal.NewFromFloat(0.5)}

	err := l.RequestLoan(context.Background(), receiver, "USDC",
		decimal.NewFromInt(1000), core.LoanPayload{OperationID: "op-2"})
	assert.ErrorContains(t, err, "repayment not authorized")
}

func TestRequestLoanPropagatesReceiverError(t *testing.T) {
	l := NewSimulated("bridge", 0)
	receiver := &scriptedReceiver{failWith: errors.New("position unhealthy")}

	err := l.RequestLoan(context.Background(), receiver, "USDC",
		decimal.NewFromInt(100), core.LoanPayload{OperationID: "op-3"})
	assert.ErrorContains(t, err, "position unhealthy")
}

func TestApprovalConsumedPerOperation(t *testing.T) {
	l := NewSimulated("bridge", 0)
	receiver := &scriptedReceiver{approveFraction: decimal.NewFromInt(1)}

	require.NoError(t, l.RequestLoan(context.Background(), receiver, "USDC",
		decimal.NewFromInt(100), core.LoanPayload{OperationID: "op-4"}))

	// The settled approval must not fund a later loan on the same id.
	receiver.approveFraction = decimal.Zero
	err := l.RequestLoan(context.Background(), receiver, "USDC",
		decimal.NewFromInt(100), core.LoanPayload{OperationID: "op-4"})
	assert.ErrorContains(t, err, "repayment not authorized")
}

func TestPremiumDefaults(t *testing.T) {
	assert.True(t, NewSimulated("a", -1).PremiumFor(decimal.NewFromInt(10_000)).Equal(decimal.NewFromInt(9)),
		"negative premium falls back to the default")
	assert.True(t, NewSimulated("b", 0).PremiumFor(decimal.NewFromInt(10_000)).IsZero(),
		"zero premium is a free lender")
	assert.Error(t, NewSimulated("c", 0).RequestLoan(context.Background(),
		&scriptedReceiver{approveFraction: decimal.NewFromInt(1)}, "USDC",
		decimal.NewFromInt(-1), core.LoanPayload{}))
}
