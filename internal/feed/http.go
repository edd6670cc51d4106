package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"leverager/internal/config"
	"leverager/internal/core"
	httpclient "leverager/pkg/http"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// apiKeySigner attaches the feed API key to each request.
type apiKeySigner struct {
	key config.Secret
}

func (s *apiKeySigner) SignRequest(req *http.Request) error {
	if s.key != "" {
		req.Header.Set("X-API-Key", s.key.Reveal())
	}
	return nil
}

// HTTPFeed polls a REST ticker endpoint on demand, caching the response for
// the poll interval so back-to-back checks do not hammer the source.
type HTTPFeed struct {
	client   *httpclient.Client
	path     string
	interval time.Duration
	limiter  *rate.Limiter

	mu    sync.Mutex
	point core.PricePoint
	ok    bool
}

// NewHTTPFeed creates a polling feed. requestsPerSecond bounds outbound
// calls regardless of how often callers ask for a price.
func NewHTTPFeed(baseURL, path string, apiKey config.Secret, pollInterval time.Duration, requestsPerSecond int) *HTTPFeed {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &HTTPFeed{
		client:   httpclient.NewClient(baseURL, 10*time.Second, &apiKeySigner{key: apiKey}),
		path:     path,
		interval: pollInterval,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Price returns the cached observation when it is fresh enough, otherwise
// polls the endpoint.
func (f *HTTPFeed) Price(ctx context.Context) (core.PricePoint, error) {
	f.mu.Lock()
	if f.ok && time.Since(f.point.ObservedAt) < f.interval {
		point := f.point
		f.mu.Unlock()
		return point, nil
	}
	f.mu.Unlock()

	if err := f.limiter.Wait(ctx); err != nil {
		return core.PricePoint{}, err
	}

	body, err := f.client.Get(ctx, f.path, nil)
	if err != nil {
		return core.PricePoint{}, fmt.Errorf("price poll failed: %w", err)
	}

	var tick tickerMessage
	if err := json.Unmarshal(body, &tick); err != nil {
		return core.PricePoint{}, fmt.Errorf("malformed ticker response: %w", err)
	}
	price, err := decimal.NewFromString(tick.Price)
	if err != nil || !price.IsPositive() {
		return core.PricePoint{}, fmt.Errorf("ticker returned bad price %q", tick.Price)
	}

	observed := time.Now()
	if tick.Timestamp > 0 {
		observed = time.UnixMilli(tick.Timestamp)
	}

	point := core.PricePoint{Price: price, ObservedAt: observed}
	f.mu.Lock()
	f.point = point
	f.ok = true
	f.mu.Unlock()
	return point, nil
}
