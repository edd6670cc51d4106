package venue

import (
	"context"
	"fmt"
	"sync"

	"leverager/internal/core"
	"leverager/pkg/logging"

	"github.com/shopspring/decimal"
)

// SharesConfig parameterizes a venue whose collateral is held as pool shares
// rather than the raw token.
type SharesConfig struct {
	Name string
	// BaseAsset is the token deposited and borrowed.
	BaseAsset string
	// ShareAsset names the pool share token collateral is held as.
	ShareAsset string
	MaxLtvBps  int64
	SupplyAPR  decimal.Decimal
	BorrowAPR  decimal.Decimal
	// InitialSharePrice is tokens per share; defaults to 1.
	InitialSharePrice decimal.Decimal
}

// SharesVenue holds collateral as pool shares and resolves every
// token-denominated request through the current share price, so callers only
// ever see token amounts.
type SharesVenue struct {
	cfg    SharesConfig
	logger core.ILogger

	mu         sync.Mutex
	shares     decimal.Decimal
	debt       decimal.Decimal
	sharePrice decimal.Decimal
}

type sharesBook struct {
	shares     decimal.Decimal
	debt       decimal.Decimal
	sharePrice decimal.Decimal
}

func NewShares(cfg SharesConfig) (*SharesVenue, error) {
	if cfg.MaxLtvBps <= 0 || cfg.MaxLtvBps >= bps {
		return nil, fmt.Errorf("max LTV %d bps out of range (0, %d)", cfg.MaxLtvBps, bps)
	}
	price := cfg.InitialSharePrice
	if !price.IsPositive() {
		price = decimal.NewFromInt(1)
	}
	return &SharesVenue{
		cfg:        cfg,
		logger:     logging.GetGlobalLogger().WithField("venue", cfg.Name),
		sharePrice: price,
	}, nil
}

func (v *SharesVenue) GetName() string   { return v.cfg.Name }
func (v *SharesVenue) BaseAsset() string { return v.cfg.BaseAsset }

// ShareAsset is the collateral token as seen by swap routes.
func (v *SharesVenue) ShareAsset() string { return v.cfg.ShareAsset }

// SetSharePrice moves the pool share price, simulating pool earnings or a
// drawdown.
func (v *SharesVenue) SetSharePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("share price %s must be positive", price)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sharePrice = price
	return nil
}

func (v *SharesVenue) Supply(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("supply amount %s must be positive", amount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shares = v.shares.Add(amount.Div(v.sharePrice))
	return nil
}

func (v *SharesVenue) Borrow(ctx context.Context, amount decimal.Decimal, recipient string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("borrow amount %s must be positive", amount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	newDebt := v.debt.Add(amount)
	power := v.collateralLocked().Mul(decimal.NewFromInt(v.cfg.MaxLtvBps)).Div(decimal.NewFromInt(bps))
	if power.LessThan(newDebt) {
		return fmt.Errorf("borrow of %s exceeds borrow power %s", amount, power)
	}
	v.debt = newDebt
	v.logger.Debug("Borrowed against shares", "amount", amount.String(), "recipient", recipient)
	return nil
}

func (v *SharesVenue) Repay(ctx context.Context, amount decimal.Decimal) error {
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

// Withdraw burns the shares backing the requested token amount.
func (v *SharesVenue) Withdraw(ctx context.Context, amount decimal.Decimal, recipient string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("withdraw amount %s must be positive", amount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	burn := amount.Div(v.sharePrice)
	if burn.GreaterThan(v.shares) {
		// Absorb rounding dust from the token-to-share conversion.
		if burn.Sub(v.shares).GreaterThan(decimal.New(1, -9)) {
			return fmt.Errorf("withdraw of %s exceeds collateral %s", amount, v.collateralLocked())
		}
		burn = v.shares
	}
	remaining := v.shares.Sub(burn).Mul(v.sharePrice)
	maxDebt := remaining.Mul(decimal.NewFromInt(v.cfg.MaxLtvBps)).Div(decimal.NewFromInt(bps))
	if v.debt.GreaterThan(maxDebt) {
		return fmt.Errorf("withdraw of %s would leave position undercollateralized", amount)
	}
	v.shares = v.shares.Sub(burn)
	v.logger.Debug("Withdrew from shares", "amount", amount.String(), "shares_burned", burn.String(), "recipient", recipient)
	return nil
}

// CollateralBalance reports token-denominated collateral at the current share
// price.
func (v *SharesVenue) CollateralBalance(ctx context.Context) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.collateralLocked(), nil
}

func (v *SharesVenue) DebtBalance(ctx context.Context) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.debt, nil
}

func (v *SharesVenue) SupplyRate(ctx context.Context) (decimal.Decimal, error) {
	return v.cfg.SupplyAPR, nil
}

func (v *SharesVenue) BorrowRate(ctx context.Context) (decimal.Decimal, error) {
	return v.cfg.BorrowAPR, nil
}

func (v *SharesVenue) Snapshot() any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return sharesBook{shares: v.shares, debt: v.debt, sharePrice: v.sharePrice}
}

func (v *SharesVenue) Restore(snapshot any) error {
	book, ok := snapshot.(sharesBook)
	if !ok {
		return fmt.Errorf("snapshot type %T does not belong to this venue", snapshot)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shares = book.shares
	v.debt = book.debt
	v.sharePrice = book.sharePrice
	return nil
}

func (v *SharesVenue) collateralLocked() decimal.Decimal {
	return v.shares.Mul(v.sharePrice)
}
