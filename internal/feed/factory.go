package feed

import (
	"fmt"
	"time"

	"leverager/internal/config"
	"leverager/internal/core"

	"github.com/shopspring/decimal"
)

// NewFeed creates a price feed based on configuration. The returned stop
// function releases any background resources the source holds.
func NewFeed(cfg *config.Config) (core.IPriceFeed, func(), error) {
	switch cfg.Feed.Source {
	case "", "fixed":
		price := decimal.NewFromFloat(cfg.Feed.FixedPrice)
		if !price.IsPositive() {
			price = decimal.NewFromInt(1)
		}
		return NewFixedFeed(price), func() {}, nil
	case "websocket":
		f := NewWebsocketFeed(cfg.Feed.URL, cfg.Feed.RateLimitPerSecond)
		f.Start()
		return f, f.Stop, nil
	case "http":
		interval := time.Duration(cfg.Feed.PollIntervalMillis) * time.Millisecond
		if interval <= 0 {
			interval = 5 * time.Second
		}
		f := NewHTTPFeed(cfg.Feed.URL, "", cfg.Feed.APIKey, interval, cfg.Feed.RateLimitPerSecond)
		return f, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported feed source: %s", cfg.Feed.Source)
	}
}
