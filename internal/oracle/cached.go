package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// CachedFeed serves quotes from a shared price cache while they are younger
// than maxAge and refreshes from the upstream feed otherwise.
type CachedFeed struct {
	upstream domain.PriceFeed
	cache    domain.PriceCache
	maxAge   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewCachedFeed wraps upstream with cache. A zero maxAge disables reads from
// the cache; every fetch still refreshes it.
func NewCachedFeed(upstream domain.PriceFeed, cache domain.PriceCache, maxAge time.Duration, logger *slog.Logger) *CachedFeed {
	return &CachedFeed{
		upstream: upstream,
		cache:    cache,
		maxAge:   maxAge,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "oracle_cache")),
	}
}

func (f *CachedFeed) LastPrice(ctx context.Context, asset string) (domain.PriceQuote, error) {
	if f.maxAge > 0 {
		q, cachedAt, err := f.cache.GetPrice(ctx, asset)
		switch {
		case err == nil && f.now().Sub(cachedAt) <= f.maxAge:
			return q, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			f.logger.WarnContext(ctx, "price cache read failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()),
			)
		}
	}

	q, err := f.upstream.LastPrice(ctx, asset)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("oracle: cached feed: %w", err)
	}
	if err := f.cache.SetPrice(ctx, q); err != nil {
		f.logger.WarnContext(ctx, "price cache write failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
	}
	return q, nil
}

var _ domain.PriceFeed = (*CachedFeed)(nil)
