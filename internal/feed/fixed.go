// Package feed supplies peg price observations to the depeg guard. Sources
// range from a fixed value for simulation to websocket and polled HTTP
// tickers for live operation.
package feed

import (
	"context"
	"sync"
	"time"

	"leverager/internal/core"

	"github.com/shopspring/decimal"
)

// FixedFeed reports a settable price. The observation timestamp is refreshed
// on every Set, so a fixed feed left alone eventually reads as stale, same
// as a real source that stopped updating.
type FixedFeed struct {
	mu    sync.Mutex
	point core.PricePoint
}

func NewFixedFeed(price decimal.Decimal) *FixedFeed {
	return &FixedFeed{point: core.PricePoint{Price: price, ObservedAt: time.Now()}}
}

func (f *FixedFeed) Price(ctx context.Context) (core.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.point, nil
}

// Set replaces the reported price and stamps it as observed now.
func (f *FixedFeed) Set(price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.point = core.PricePoint{Price: price, ObservedAt: time.Now()}
}

// SetPoint replaces the full observation, timestamp included. Used to
// simulate stale sources.
func (f *FixedFeed) SetPoint(point core.PricePoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.point = point
}
