package feed

import (
	"context"
	"testing"
	"time"

	"leverager/internal/config"
	"leverager/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedFeedSetRefreshesTimestamp(t *testing.T) {
	f := NewFixedFeed(decimal.NewFromInt(1))

	before, err := f.Price(context.Background())
	require.NoError(t, err)
	assert.True(t, before.Price.Equal(decimal.NewFromInt(1)))

	f.Set(decimal.NewFromFloat(0.98))
	after, err := f.Price(context.Background())
	require.NoError(t, err)
	assert.True(t, after.Price.Equal(decimal.NewFromFloat(0.98)))
	assert.False(t, after.ObservedAt.Before(before.ObservedAt))
}

func TestFixedFeedSetPointKeepsTimestamp(t *testing.T) {
	f := NewFixedFeed(decimal.NewFromInt(1))
	stamp := time.Now().Add(-5 * time.Minute)
	f.SetPoint(core.PricePoint{Price: decimal.NewFromInt(1), ObservedAt: stamp})

	point, err := f.Price(context.Background())
	require.NoError(t, err)
	assert.True(t, point.ObservedAt.Equal(stamp))
}

func TestWebsocketFeedParsesTicker(t *testing.T) {
	f := NewWebsocketFeed("ws://unused.local/stream", 0)

	_, err := f.Price(context.Background())
	assert.ErrorContains(t, err, "no price observed yet")

	f.handleMessage([]byte(`{"symbol":"USDC/USD","price":"0.9991","ts":1756684800000}`))

	point, err := f.Price(context.Background())
	require.NoError(t, err)
	assert.True(t, point.Price.Equal(decimal.NewFromFloat(0.9991)))
	assert.True(t, point.ObservedAt.Equal(time.UnixMilli(1756684800000)))
}

func TestWebsocketFeedIgnoresBadMessages(t *testing.T) {
	f := NewWebsocketFeed("ws://unused.local/stream", 0)

	f.handleMessage([]byte(`not json`))
	f.handleMessage([]byte(`{"symbol":"USDC/USD","price":"zero"}`))
	f.handleMessage([]byte(`{"symbol":"USDC/USD","price":"-1"}`))

	_, err := f.Price(context.Background())
	assert.Error(t, err, "malformed updates never populate the cache")
}

func TestWebsocketFeedStampsMissingTimestamp(t *testing.T) {
	f := NewWebsocketFeed("ws://unused.local/stream", 0)
	start := time.Now()

	f.handleMessage([]byte(`{"symbol":"USDC/USD","price":"1.0002"}`))

	point, err := f.Price(context.Background())
	require.NoError(t, err)
	assert.False(t, point.ObservedAt.Before(start))
}

func TestWebsocketFeedRateLimitDropsBursts(t *testing.T) {
	f := NewWebsocketFeed("ws://unused.local/stream", 1)

	f.handleMessage([]byte(`{"symbol":"USDC/USD","price":"1.0001"}`))
	f.handleMessage([]byte(`{"symbol":"USDC/USD","price":"0.5000"}`))

	point, err := f.Price(context.Background())
	require.NoError(t, err)
	assert.True(t, point.Price.Equal(decimal.NewFromFloat(1.0001)), "burst update dropped, first observation kept")
}

func TestFeedFactory(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.Feed.Source = "fixed"
	cfg.Feed.FixedPrice = 0.999
	f, stop, err := NewFeed(cfg)
	require.NoError(t, err)
	defer stop()
	point, err := f.Price(context.Background())
	require.NoError(t, err)
	assert.True(t, point.Price.Equal(decimal.NewFromFloat(0.999)))
	assert.IsType(t, &FixedFeed{}, f)

	cfg.Feed.Source = ""
	cfg.Feed.FixedPrice = 0
	f, stop, err = NewFeed(cfg)
	require.NoError(t, err)
	defer stop()
	point, err = f.Price(context.Background())
	require.NoError(t, err)
	assert.True(t, point.Price.Equal(decimal.NewFromInt(1)), "empty source defaults to a fixed feed at parity")

	cfg.Feed.Source = "http"
	cfg.Feed.URL = "http://feed.local/price"
	f, stop, err = NewFeed(cfg)
	require.NoError(t, err)
	defer stop()
	assert.IsType(t, &HTTPFeed{}, f)

	cfg.Feed.Source = "chainlink"
	_, _, err = NewFeed(cfg)
	assert.Error(t, err)
}
