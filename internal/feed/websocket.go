package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"leverager/internal/core"
	"leverager/pkg/logging"
	"leverager/pkg/websocket"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// tickerMessage is the wire shape of one price update.
type tickerMessage struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Timestamp int64  `json:"ts"` // milliseconds
}

// WebsocketFeed consumes a streaming price ticker and caches the latest
// observation. The limiter drops excess updates from bursty sources; the
// cached point keeps its original timestamp so staleness checks still work
// across reconnects.
type WebsocketFeed struct {
	client  *websocket.Client
	logger  core.ILogger
	limiter *rate.Limiter

	mu    sync.Mutex
	point core.PricePoint
	ok    bool
}

// NewWebsocketFeed creates a feed for the given stream URL. updatesPerSecond
// bounds how often the cached point is rewritten; zero means unlimited.
func NewWebsocketFeed(url string, updatesPerSecond int) *WebsocketFeed {
	logger := logging.GetGlobalLogger().WithField("component", "ws_feed")

	limit := rate.Inf
	if updatesPerSecond > 0 {
		limit = rate.Limit(updatesPerSecond)
	}

	f := &WebsocketFeed{
		logger:  logger,
		limiter: rate.NewLimiter(limit, 1),
	}
	f.client = websocket.NewClient(url, f.handleMessage, logger)
	return f
}

// Start begins consuming the stream.
func (f *WebsocketFeed) Start() {
	f.client.Start()
}

// Stop closes the stream.
func (f *WebsocketFeed) Stop() {
	f.client.Stop()
}

// Price returns the latest cached observation. It fails until the first
// update arrives.
func (f *WebsocketFeed) Price(ctx context.Context) (core.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ok {
		return core.PricePoint{}, fmt.Errorf("no price observed yet")
	}
	return f.point, nil
}

func (f *WebsocketFeed) handleMessage(message []byte) {
	if !f.limiter.Allow() {
		return
	}

	var tick tickerMessage
	if err := json.Unmarshal(message, &tick); err != nil {
		f.logger.Warn("Ignoring malformed ticker message", "error", err)
		return
	}

	price, err := decimal.NewFromString(tick.Price)
	if err != nil || !price.IsPositive() {
		f.logger.Warn("Ignoring ticker with bad price", "price", tick.Price)
		return
	}

	observed := time.Now()
	if tick.Timestamp > 0 {
		observed = time.UnixMilli(tick.Timestamp)
	}

	f.mu.Lock()
	f.point = core.PricePoint{Price: price, ObservedAt: observed}
	f.ok = true
	f.mu.Unlock()
}
