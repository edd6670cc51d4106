package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"leverager/internal/core"
	"leverager/internal/leverage"
	apperrors "leverager/pkg/errors"
	"leverager/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// DepegConfig bounds the price circuit breaker for cross-asset positions.
type DepegConfig struct {
	// Asset is the non-principal asset being watched.
	Asset string
	// MaxAge is the oldest acceptable feed observation.
	MaxAge time.Duration
	// MaxDeviationBps is the tolerated distance from 1:1 parity.
	MaxDeviationBps int64
}

// DepegGuard blocks leverage-affecting operations while the watched asset is
// off parity or its feed is stale. Single-asset engines run without one.
type DepegGuard struct {
	config DepegConfig
	feed   core.IPriceFeed
	logger core.ILogger

	mu   sync.Mutex
	open bool
}

// NewDepegGuard creates a new depeg guard
func NewDepegGuard(config DepegConfig, feed core.IPriceFeed, logger core.ILogger) *DepegGuard {
	return &DepegGuard{
		config: config,
		feed:   feed,
		logger: logger.WithField("component", "depeg_guard").WithField("asset", config.Asset),
	}
}

// Check reads the feed and returns an error when the price is stale or off
// parity. The guard reopens automatically once the price recovers; there is
// no manual reset.
func (g *DepegGuard) Check(ctx context.Context) error {
	point, err := g.feed.Price(ctx)
	if err != nil {
		g.trip("feed error")
		return fmt.Errorf("%w: %v", apperrors.ErrPriceFeedStale, err)
	}

	if time.Since(point.ObservedAt) > g.config.MaxAge {
		g.trip("stale observation")
		return fmt.Errorf("%w: observed %s ago", apperrors.ErrPriceFeedStale, time.Since(point.ObservedAt).Round(time.Second))
	}

	deviationBps := point.Price.Sub(decimal.NewFromInt(1)).Abs().Mul(decimal.NewFromInt(leverage.BPS)).IntPart()
	if deviationBps > g.config.MaxDeviationBps {
		g.trip("price deviation")
		return fmt.Errorf("%w: %d bps from parity (max %d)", apperrors.ErrPriceDeviation, deviationBps, g.config.MaxDeviationBps)
	}

	g.recover()
	return nil
}

// IsOpen reports whether the guard is currently blocking operations.
func (g *DepegGuard) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

func (g *DepegGuard) trip(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		g.logger.Warn("Depeg guard tripped, blocking leverage operations", "reason", reason)
	}
	g.open = true
	telemetry.GetGlobalMetrics().SetDepegGuardOpen(g.config.Asset, true)
}

func (g *DepegGuard) recover() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		g.logger.Info("Depeg guard recovered, operations unblocked")
	}
	g.open = false
	telemetry.GetGlobalMetrics().SetDepegGuardOpen(g.config.Asset, false)
}
