package domain

import (
	"context"
	"time"
)

// KeyValue is the read/write surface shared by backing stores and
// transactions. Get returns ErrNotFound for a missing key.
type KeyValue interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Has(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// KVWrite is one buffered write.
type KVWrite struct {
	Key   string
	Value []byte
}

// KVStore is the durable persistence primitive. Commit applies every write
// or none of them.
type KVStore interface {
	KeyValue
	Commit(ctx context.Context, writes []KVWrite) error
	Close() error
}

// Clock supplies the current ledger time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Authorizer answers whether caller holds the owner role.
type Authorizer interface {
	IsOwner(ctx context.Context, caller Address) (bool, error)
}

// PriceFeed returns the current reference price of asset.
type PriceFeed interface {
	LastPrice(ctx context.Context, asset string) (PriceQuote, error)
}

// Token is the fungible asset the market settles in.
type Token interface {
	Address() Address
	Balance(ctx context.Context, owner Address) (Amount, error)
	Allowance(ctx context.Context, owner, spender Address) (Amount, error)
	Transfer(ctx context.Context, from, to Address, amount Amount) error
	TransferFrom(ctx context.Context, spender, from, to Address, amount Amount) error
}

// FlashLoanCall is what the market hands to a receiver.
type FlashLoanCall struct {
	Lender Address
	Caller Address
	Token  Address
	Amount Amount
	Fee    Amount
}

// FlashLoanReceiver is called with the loaned funds already credited. tok is
// bound to the loan's transaction; everything the receiver does through it
// commits or rolls back with the loan.
type FlashLoanReceiver interface {
	Address() Address
	ExecuteFlashLoan(ctx context.Context, tok Token, call FlashLoanCall) error
}

// EventPublisher receives committed events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, events []Event)
}
