package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest oracle prices.
type PriceCache interface {
	SetPrice(ctx context.Context, quote PriceQuote) error
	GetPrice(ctx context.Context, asset string) (PriceQuote, time.Time, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// ReplayGuard remembers request identifiers that were already accepted.
type ReplayGuard interface {
	// Seen marks id as used for ttl and reports whether it was marked before.
	Seen(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub and an append-only stream.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
