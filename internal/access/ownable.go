// Package access is the owner gate: a single owner with two-step transfer,
// kept in the ledger.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/ledger"
)

const (
	ownerKey   = "own/owner"
	pendingKey = "own/pending"
)

// Ownable implements domain.Authorizer.
type Ownable struct {
	host *ledger.Host
}

// New returns the owner gate over host's store.
func New(host *ledger.Host) *Ownable {
	return &Ownable{host: host}
}

// SetOwner writes the initial owner inside an existing transaction.
func SetOwner(ctx context.Context, kv domain.KeyValue, owner domain.Address) error {
	if owner == domain.ZeroAddress {
		return domain.ErrInvalidAddress
	}
	return ledger.Save(ctx, kv, ownerKey, owner)
}

// OwnerOf reads the owner from kv.
func OwnerOf(ctx context.Context, kv domain.KeyValue) (domain.Address, error) {
	var owner domain.Address
	ok, err := ledger.LoadOr(ctx, kv, ownerKey, &owner)
	if err != nil {
		return domain.ZeroAddress, err
	}
	if !ok || owner == domain.ZeroAddress {
		return domain.ZeroAddress, domain.ErrOwnerNotSet
	}
	return owner, nil
}

// Owner is the current owner, or ErrOwnerNotSet after renounce.
func (o *Ownable) Owner(ctx context.Context) (domain.Address, error) {
	return OwnerOf(ctx, o.host.Store())
}

// PendingOwner is the nominated successor, if any.
func (o *Ownable) PendingOwner(ctx context.Context) (domain.Address, error) {
	var pending domain.Address
	if _, err := ledger.LoadOr(ctx, o.host.Store(), pendingKey, &pending); err != nil {
		return domain.ZeroAddress, err
	}
	return pending, nil
}

func (o *Ownable) IsOwner(ctx context.Context, caller domain.Address) (bool, error) {
	owner, err := o.Owner(ctx)
	if errors.Is(err, domain.ErrOwnerNotSet) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("access: read owner: %w", err)
	}
	return owner == caller, nil
}

// TransferOwnership nominates newOwner; nothing changes until they accept.
func (o *Ownable) TransferOwnership(ctx context.Context, caller, newOwner domain.Address) error {
	if newOwner == domain.ZeroAddress {
		return fmt.Errorf("access: transfer ownership: %w", domain.ErrInvalidAddress)
	}
	return o.update(ctx, "transfer ownership", func(ctx context.Context, tx *ledger.Tx) error {
		if err := requireOwner(ctx, tx, caller); err != nil {
			return err
		}
		return ledger.Save(ctx, tx, pendingKey, newOwner)
	})
}

// AcceptOwnership completes a transfer; caller must be the nominee.
func (o *Ownable) AcceptOwnership(ctx context.Context, caller domain.Address) error {
	return o.update(ctx, "accept ownership", func(ctx context.Context, tx *ledger.Tx) error {
		var pending domain.Address
		ok, err := ledger.LoadOr(ctx, tx, pendingKey, &pending)
		if err != nil {
			return err
		}
		if !ok || pending == domain.ZeroAddress {
			return domain.ErrNoPendingOwner
		}
		if pending != caller {
			return domain.ErrNotPendingOwner
		}
		if err := ledger.Save(ctx, tx, ownerKey, caller); err != nil {
			return err
		}
		return ledger.Save(ctx, tx, pendingKey, domain.ZeroAddress)
	})
}

// RenounceOwnership leaves the market without an owner. Owner-only
// operations are unusable afterwards.
func (o *Ownable) RenounceOwnership(ctx context.Context, caller domain.Address) error {
	return o.update(ctx, "renounce ownership", func(ctx context.Context, tx *ledger.Tx) error {
		if err := requireOwner(ctx, tx, caller); err != nil {
			return err
		}
		if err := ledger.Save(ctx, tx, ownerKey, domain.ZeroAddress); err != nil {
			return err
		}
		return ledger.Save(ctx, tx, pendingKey, domain.ZeroAddress)
	})
}

func requireOwner(ctx context.Context, kv domain.KeyValue, caller domain.Address) error {
	owner, err := OwnerOf(ctx, kv)
	if errors.Is(err, domain.ErrOwnerNotSet) {
		return domain.ErrNotOwner
	}
	if err != nil {
		return err
	}
	if owner != caller {
		return domain.ErrNotOwner
	}
	return nil
}

func (o *Ownable) update(ctx context.Context, op string, fn func(context.Context, *ledger.Tx) error) error {
	if err := o.host.Update(ctx, fn); err != nil {
		return fmt.Errorf("access: %s: %w", op, err)
	}
	return nil
}

var _ domain.Authorizer = (*Ownable)(nil)
