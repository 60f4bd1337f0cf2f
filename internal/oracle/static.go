package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// StaticFeed returns whatever price was last set. Used in dev mode and
// tests.
type StaticFeed struct {
	mu     sync.RWMutex
	prices map[string]domain.PriceQuote
	err    error
}

// NewStaticFeed returns an empty feed.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{prices: make(map[string]domain.PriceQuote)}
}

// Set stores price for asset at timestamp ts.
func (f *StaticFeed) Set(asset string, price domain.Amount, ts uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[asset] = domain.PriceQuote{Asset: asset, Price: price, Timestamp: ts}
}

// Fail makes every LastPrice call return err until cleared with nil.
func (f *StaticFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *StaticFeed) LastPrice(_ context.Context, asset string) (domain.PriceQuote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return domain.PriceQuote{}, f.err
	}
	q, ok := f.prices[asset]
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("oracle: no price for %s: %w", asset, domain.ErrNotFound)
	}
	return q, nil
}

var _ domain.PriceFeed = (*StaticFeed)(nil)
