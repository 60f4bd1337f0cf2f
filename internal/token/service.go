package token

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/ledger"
)

// Service exposes the token as standalone operations, each its own
// transaction on the shared ledger host.
type Service struct {
	host  *ledger.Host
	asset domain.Address
	auth  domain.Authorizer
}

// NewService returns a token service. auth gates Mint.
func NewService(host *ledger.Host, asset domain.Address, auth domain.Authorizer) *Service {
	return &Service{host: host, asset: asset, auth: auth}
}

// Asset is the token's address.
func (s *Service) Asset() domain.Address { return s.asset }

func (s *Service) Balance(ctx context.Context, owner domain.Address) (domain.Amount, error) {
	return Open(s.host.Store(), s.asset).Balance(ctx, owner)
}

func (s *Service) Allowance(ctx context.Context, owner, spender domain.Address) (domain.Amount, error) {
	return Open(s.host.Store(), s.asset).Allowance(ctx, owner, spender)
}

func (s *Service) TotalSupply(ctx context.Context) (domain.Amount, error) {
	return Open(s.host.Store(), s.asset).TotalSupply(ctx)
}

// Approve sets spender's allowance over caller's balance.
func (s *Service) Approve(ctx context.Context, caller, spender domain.Address, amount domain.Amount) error {
	return s.update(ctx, "approve", func(ctx context.Context, l *Ledger) error {
		return l.Approve(ctx, caller, spender, amount)
	})
}

// Transfer moves amount from caller to to.
func (s *Service) Transfer(ctx context.Context, caller, to domain.Address, amount domain.Amount) error {
	return s.update(ctx, "transfer", func(ctx context.Context, l *Ledger) error {
		return l.Transfer(ctx, caller, to, amount)
	})
}

// Mint is owner-only.
func (s *Service) Mint(ctx context.Context, caller, to domain.Address, amount domain.Amount) error {
	ok, err := s.auth.IsOwner(ctx, caller)
	if err != nil {
		return fmt.Errorf("token: mint: %w", err)
	}
	if !ok {
		return fmt.Errorf("token: mint: %w", domain.ErrNotOwner)
	}
	return s.update(ctx, "mint", func(ctx context.Context, l *Ledger) error {
		return l.Mint(ctx, to, amount)
	})
}

func (s *Service) update(ctx context.Context, op string, fn func(context.Context, *Ledger) error) error {
	err := s.host.Update(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		return fn(ctx, Open(tx, s.asset))
	})
	if err != nil {
		return fmt.Errorf("token: %s: %w", op, err)
	}
	return nil
}
