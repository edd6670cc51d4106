// Package rewards claims venue reward emissions, converts them into the
// position's base asset, and folds the proceeds back into the position.
package rewards

import (
	"context"
	"fmt"
	"sync"

	"leverager/internal/core"
	apperrors "leverager/pkg/errors"
	"leverager/pkg/logging"
	"leverager/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// Reinvestor is the slice of the engine the compounder needs.
type Reinvestor interface {
	Reinvest(ctx context.Context, amount decimal.Decimal) error
	IsActive() bool
	VenueName() string
}

// Config parameterizes the compounding pass.
type Config struct {
	// MinClaim skips dust: claimed amounts below it are left with the
	// distributor for a later pass.
	MinClaim decimal.Decimal
	// SlippageBps bounds how far below the quoted value a swap may fill.
	SlippageBps int64
	// AllowedTokens is the reward token allow-list. Tokens outside it are
	// never swapped.
	AllowedTokens []string
	// BaseAsset is what rewards are converted into.
	BaseAsset string
}

// Compounder converts claimed rewards into base-asset position growth.
type Compounder struct {
	cfg         Config
	distributor core.IRewardDistributor
	router      core.ISwapRouter
	engine      Reinvestor
	logger      core.ILogger

	allowed map[string]bool

	mu sync.Mutex
	// quotes holds the expected base-asset value of one reward token,
	// refreshed out of band. A token without a quote swaps with no floor.
	quotes map[string]decimal.Decimal
}

func NewCompounder(cfg Config, distributor core.IRewardDistributor, router core.ISwapRouter, engine Reinvestor) *Compounder {
	allowed := make(map[string]bool, len(cfg.AllowedTokens))
	for _, token := range cfg.AllowedTokens {
		allowed[token] = true
	}
	return &Compounder{
		cfg:         cfg,
		distributor: distributor,
		router:      router,
		engine:      engine,
		logger:      logging.GetGlobalLogger().WithField("component", "compounder"),
		allowed:     allowed,
		quotes:      make(map[string]decimal.Decimal),
	}
}

// SetQuote records the expected base-asset value of one unit of a reward
// token, which sets the swap floor for that token.
func (c *Compounder) SetQuote(token string, value decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[token] = value
}

// ClaimAndCompound claims the named rewards and folds the proceeds into the
// position. Unlike the periodic pass, every requested token must be on the
// allow-list and every swap must clear: any fault discards the whole call.
// Proofs ride along opaquely for the distributor.
func (c *Compounder) ClaimAndCompound(ctx context.Context, requested []core.RewardClaim) (decimal.Decimal, error) {
	if !c.engine.IsActive() {
		return decimal.Zero, apperrors.ErrNotActive
	}
	if len(requested) == 0 {
		return decimal.Zero, fmt.Errorf("no claims requested")
	}
	for _, claim := range requested {
		if !c.allowed[claim.Token] {
			return decimal.Zero, fmt.Errorf("%w: %s", apperrors.ErrTokenNotAllowed, claim.Token)
		}
	}

	claims, err := c.distributor.Claim(ctx, requested)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reward claim failed: %w", err)
	}

	total := decimal.Zero
	for _, claim := range claims {
		proceeds := claim.Amount
		if claim.Token != c.cfg.BaseAsset {
			out, err := c.router.Swap(ctx, claim.Token, c.cfg.BaseAsset, claim.Amount, c.minOut(claim.Token, claim.Amount))
			if err != nil {
				return decimal.Zero, fmt.Errorf("reward swap of %s failed: %w", claim.Token, err)
			}
			proceeds = out
		}
		total = total.Add(proceeds)
	}

	if !total.IsPositive() {
		return decimal.Zero, nil
	}
	if err := c.engine.Reinvest(ctx, total); err != nil {
		return decimal.Zero, fmt.Errorf("reinvest of %s failed: %w", total, err)
	}

	telemetry.GetGlobalMetrics().RecordCompounded(ctx, c.engine.VenueName(), total.InexactFloat64())
	c.logger.Info("Compounded claimed rewards", "amount", total.String(), "claims", len(claims))
	return total, nil
}

// CompoundOnce claims pending rewards, swaps the allowed ones into the base
// asset, and reinvests the total. It returns the amount folded back in. A
// token that fails to swap is logged and skipped rather than aborting the
// pass.
func (c *Compounder) CompoundOnce(ctx context.Context) (decimal.Decimal, error) {
	if !c.engine.IsActive() {
		return decimal.Zero, nil
	}

	claims, err := c.distributor.Claim(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reward claim failed: %w", err)
	}
	if len(claims) == 0 {
		return decimal.Zero, nil
	}

	total := decimal.Zero
	for _, claim := range claims {
		if !c.allowed[claim.Token] {
			c.logger.Warn("Skipping reward token outside allow-list", "token", claim.Token, "amount", claim.Amount.String())
			continue
		}
		if claim.Amount.LessThan(c.cfg.MinClaim) {
			c.logger.Debug("Skipping dust claim", "token", claim.Token, "amount", claim.Amount.String())
			continue
		}

		proceeds := claim.Amount
		if claim.Token != c.cfg.BaseAsset {
			out, err := c.router.Swap(ctx, claim.Token, c.cfg.BaseAsset, claim.Amount, c.minOut(claim.Token, claim.Amount))
			if err != nil {
				c.logger.Error("Reward swap failed", "token", claim.Token, "amount", claim.Amount.String(), "error", err)
				continue
			}
			proceeds = out
		}
		total = total.Add(proceeds)
	}

	if !total.IsPositive() {
		return decimal.Zero, nil
	}

	if err := c.engine.Reinvest(ctx, total); err != nil {
		return decimal.Zero, fmt.Errorf("reinvest of %s failed: %w", total, err)
	}

	telemetry.GetGlobalMetrics().RecordCompounded(ctx, c.engine.VenueName(), total.InexactFloat64())
	c.logger.Info("Compounded rewards", "amount", total.String(), "claims", len(claims))
	return total, nil
}

func (c *Compounder) minOut(token string, amount decimal.Decimal) decimal.Decimal {
	c.mu.Lock()
	quote, ok := c.quotes[token]
	c.mu.Unlock()
	if !ok || !quote.IsPositive() {
		return decimal.Zero
	}
	slip := decimal.NewFromInt(10_000 - c.cfg.SlippageBps).Div(decimal.NewFromInt(10_000))
	return amount.Mul(quote).Mul(slip)
}
