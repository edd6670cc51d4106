// Package venue contains lending venue adapters. The simulated venues keep
// their books in memory and enforce the same borrow-power rule a real money
// market would, which makes them suitable both for tests and for dry runs.
package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"leverager/internal/core"
	"leverager/pkg/logging"

	"github.com/shopspring/decimal"
)

const bps int64 = 10_000

// SimulatedConfig parameterizes an in-memory single-asset money market.
type SimulatedConfig struct {
	Name string
	// Asset is the token supplied and borrowed. Base asset and collateral
	// asset are the same on this venue family.
	Asset string
	// MaxLtvBps caps borrow power: debt may never exceed
	// collateral * MaxLtvBps / 10000.
	MaxLtvBps int64
	SupplyAPR decimal.Decimal
	BorrowAPR decimal.Decimal
}

// Simulated is an in-memory money market for one asset.
type Simulated struct {
	cfg    SimulatedConfig
	logger core.ILogger

	mu         sync.Mutex
	collateral decimal.Decimal
	debt       decimal.Decimal
}

// simulatedBook is the opaque snapshot handed out through the Snapshot
// capability.
type simulatedBook struct {
	collateral decimal.Decimal
	debt       decimal.Decimal
}

// NewSimulated creates the venue. MaxLtvBps must sit strictly inside (0, 10000).
func NewSimulated(cfg SimulatedConfig) (*Simulated, error) {
	if cfg.MaxLtvBps <= 0 || cfg.MaxLtvBps >= bps {
		return nil, fmt.Errorf("max LTV %d bps out of range (0, %d)", cfg.MaxLtvBps, bps)
	}
	return &Simulated{
		cfg:    cfg,
		logger: logging.GetGlobalLogger().WithField("venue", cfg.Name),
	}, nil
}

func (v *Simulated) GetName() string   { return v.cfg.Name }
func (v *Simulated) BaseAsset() string { return v.cfg.Asset }

func (v *Simulated) Supply(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("supply amount %s must be positive", amount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.collateral = v.collateral.Add(amount)
	return nil
}

// Borrow sends the borrowed funds to the recipient. The simulated venue has
// no external accounts, so the recipient is recorded for the log only.
func (v *Simulated) Borrow(ctx context.Context, amount decimal.Decimal, recipient string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("borrow amount %s must be positive", amount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	newDebt := v.debt.Add(amount)
	if v.borrowPowerLocked().LessThan(newDebt) {
		return fmt.Errorf("borrow of %s exceeds borrow power %s", amount, v.borrowPowerLocked())
	}
	v.debt = newDebt
	v.logger.Debug("Borrowed", "amount", amount.String(), "recipient", recipient)
	return nil
}

func (v *Simulated) Repay(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("repay amount %s must be positive", amount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if amount.GreaterThan(v.debt) {
		amount = v.debt
	}
	v.debt = v.debt.Sub(amount)
	return nil
}

func (v *Simulated) Withdraw(ctx context.Context, amount decimal.Decimal, recipient string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("withdraw amount %s must be positive", amount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if amount.GreaterThan(v.collateral) {
		return fmt.Errorf("withdraw of %s exceeds collateral %s", amount, v.collateral)
	}
	remaining := v.collateral.Sub(amount)
	maxDebt := remaining.Mul(decimal.NewFromInt(v.cfg.MaxLtvBps)).Div(decimal.NewFromInt(bps))
	if v.debt.GreaterThan(maxDebt) {
		return fmt.Errorf("withdraw of %s would leave position undercollateralized", amount)
	}
	v.collateral = remaining
	v.logger.Debug("Withdrew", "amount", amount.String(), "recipient", recipient)
	return nil
}

func (v *Simulated) CollateralBalance(ctx context.Context) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.collateral, nil
}

func (v *Simulated) DebtBalance(ctx context.Context) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.debt, nil
}

func (v *Simulated) SupplyRate(ctx context.Context) (decimal.Decimal, error) {
	return v.cfg.SupplyAPR, nil
}

func (v *Simulated) BorrowRate(ctx context.Context) (decimal.Decimal, error) {
	return v.cfg.BorrowAPR, nil
}

// SetRates adjusts the quoted rates, used to drive the profitability gate in
// simulations.
func (v *Simulated) SetRates(supplyAPR, borrowAPR decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cfg.SupplyAPR = supplyAPR
	v.cfg.BorrowAPR = borrowAPR
}

// AccrueInterest advances the books by the given duration: debt grows at the
// borrow APR and collateral at the supply APR, simple interest.
func (v *Simulated) AccrueInterest(elapsed time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	year := decimal.NewFromFloat(float64(365 * 24 * time.Hour))
	frac := decimal.NewFromFloat(float64(elapsed)).Div(year)
	v.collateral = v.collateral.Add(v.collateral.Mul(v.cfg.SupplyAPR).Mul(frac))
	v.debt = v.debt.Add(v.debt.Mul(v.cfg.BorrowAPR).Mul(frac))
}

// Snapshot captures the books for later restoration.
func (v *Simulated) Snapshot() any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return simulatedBook{collateral: v.collateral, debt: v.debt}
}

// Restore rewinds the books to a snapshot taken from this venue family.
func (v *Simulated) Restore(snapshot any) error {
	book, ok := snapshot.(simulatedBook)
	if !ok {
		return fmt.Errorf("snapshot type %T does not belong to this venue", snapshot)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.collateral = book.collateral
	v.debt = book.debt
	return nil
}

func (v *Simulated) borrowPowerLocked() decimal.Decimal {
	return v.collateral.Mul(decimal.NewFromInt(v.cfg.MaxLtvBps)).Div(decimal.NewFromInt(bps))
}
