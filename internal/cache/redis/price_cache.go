package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each asset's quote is stored at "price:{asset}" with fields "price"
// (base-10 integer), "ts" (oracle timestamp, unix seconds) and "cached"
// (unix nanoseconds when the quote was written).
type PriceCache struct {
	c *Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{c: c}
}

func (pc *PriceCache) priceKey(asset string) string {
	return pc.c.Key("price", asset)
}

// SetPrice stores the latest quote for an asset.
func (pc *PriceCache) SetPrice(ctx context.Context, q domain.PriceQuote) error {
	fields := map[string]interface{}{
		"price":  q.Price.String(),
		"ts":     strconv.FormatUint(q.Timestamp, 10),
		"cached": strconv.FormatInt(time.Now().UnixNano(), 10),
	}
	if err := pc.c.rdb.HSet(ctx, pc.priceKey(q.Asset), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", q.Asset, err)
	}
	return nil
}

// GetPrice retrieves the latest quote for an asset and the time it was
// cached. It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, asset string) (domain.PriceQuote, time.Time, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.priceKey(asset)).Result()
	if err != nil {
		return domain.PriceQuote{}, time.Time{}, fmt.Errorf("redis: get price %s: %w", asset, err)
	}
	priceStr, ok := vals["price"]
	if !ok {
		return domain.PriceQuote{}, time.Time{}, domain.ErrNotFound
	}
	price, err := domain.ParseAmount(priceStr)
	if err != nil {
		return domain.PriceQuote{}, time.Time{}, fmt.Errorf("redis: parse price %s: %w", asset, err)
	}
	ts, err := strconv.ParseUint(vals["ts"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", asset, err)
	}
	cachedNano, err := strconv.ParseInt(vals["cached"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, time.Time{}, fmt.Errorf("redis: parse cached %s: %w", asset, err)
	}

	return domain.PriceQuote{Asset: asset, Price: price, Timestamp: ts}, time.Unix(0, cachedNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
