package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanAction identifies which half of an atomic operation the bridge-loan
// callback has to finish.
type LoanAction int

const (
	LoanActionDeposit LoanAction = iota
	LoanActionWithdraw
)

func (a LoanAction) String() string {
	switch a {
	case LoanActionDeposit:
		return "DEPOSIT"
	case LoanActionWithdraw:
		return "WITHDRAW"
	default:
		return "UNKNOWN"
	}
}

// Position is the engine's own bookkeeping for one pooled position.
// Collateral and debt live at the venue and are always re-read, never cached here.
type Position struct {
	Principal      decimal.Decimal
	TargetLtvBps   int64
	SafetyBufBps   int64
	Active         bool
	LastSharePrice decimal.Decimal
}

// PositionView is the read-only snapshot returned by GetPosition.
type PositionView struct {
	Collateral   decimal.Decimal
	Debt         decimal.Decimal
	Principal    decimal.Decimal
	NetValue     decimal.Decimal
	LtvBps       int64
	TargetLtvBps int64
	HealthFactor decimal.Decimal
	SharePrice   decimal.Decimal
	Active       bool
}

// LoanPayload carries the orchestrator's intent across the bridge-loan callback.
//
// For DEPOSIT, Amount is the base-asset contribution already held by the
// engine (zero when releveraging). For WITHDRAW, Collateral is the collateral
// to release; when zero the callback releases exactly the loan repayment
// (the deleverage case). FullUnwind is the sentinel meaning "unwind to zero"
// regardless of the other fields.
type LoanPayload struct {
	// OperationID ties the loan to the initiating in-flight operation; the
	// lender echoes it back on the BridgeLoan it hands to the callback.
	OperationID string
	Action      LoanAction
	Amount      decimal.Decimal
	Collateral  decimal.Decimal
	FullUnwind  bool
}

// BridgeLoan is the ephemeral loan handed to the callback. It exists only for
// the duration of one operation and is extinguished before the operation ends.
type BridgeLoan struct {
	OperationID string
	Asset       string
	Amount      decimal.Decimal
	Premium     decimal.Decimal
	Payload     LoanPayload
}

// Repayment returns principal plus premium owed back to the lender.
func (l *BridgeLoan) Repayment() decimal.Decimal {
	return l.Amount.Add(l.Premium)
}

// RewardClaim is one claimable incentive entry. Proof bytes are opaque and
// only meaningful to the distributor.
type RewardClaim struct {
	Token  string
	Amount decimal.Decimal
	Proof  []byte
}

// PricePoint is one observation from a price feed.
type PricePoint struct {
	Price      decimal.Decimal
	ObservedAt time.Time
}

// PendingChange records a governance-delayed parameter update. It becomes
// applicable once EligibleAt has passed.
type PendingChange struct {
	Field      string
	Value      int64
	EligibleAt time.Time
}

// EngineState is the persisted snapshot of engine bookkeeping, enough to
// resume after a restart. Venue balances are not persisted; they are
// re-read from the venue on every operation.
type EngineState struct {
	Principal      string `json:"principal"`
	TargetLtvBps   int64  `json:"target_ltv_bps"`
	SafetyBufBps   int64  `json:"safety_buffer_bps"`
	Active         bool   `json:"active"`
	LastSharePrice string `json:"last_share_price"`
	UpdatedAt      int64  `json:"updated_at"`
}
