// Package token is the fungible asset the market settles in: balances,
// allowances and supply kept in the same key-value ledger as the market so
// token moves share the market operation's transaction.
package token

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/ledger"
)

// Ledger is a token view bound to one KeyValue, usually a *ledger.Tx.
type Ledger struct {
	kv    domain.KeyValue
	asset domain.Address
}

// Open binds the token at asset to kv.
func Open(kv domain.KeyValue, asset domain.Address) *Ledger {
	return &Ledger{kv: kv, asset: asset}
}

func (l *Ledger) prefix() string { return ledger.Key("tok", ledger.AddrKey(l.asset)) }

func (l *Ledger) balanceKey(owner domain.Address) string {
	return ledger.Key(l.prefix(), "bal", ledger.AddrKey(owner))
}

func (l *Ledger) allowanceKey(owner, spender domain.Address) string {
	return ledger.Key(l.prefix(), "allow", ledger.AddrKey(owner), ledger.AddrKey(spender))
}

func (l *Ledger) supplyKey() string { return ledger.Key(l.prefix(), "supply") }

// Address of the token.
func (l *Ledger) Address() domain.Address { return l.asset }

func (l *Ledger) load(ctx context.Context, key string) (domain.Amount, error) {
	var v domain.Amount
	if _, err := ledger.LoadOr(ctx, l.kv, key, &v); err != nil {
		return domain.Amount{}, fmt.Errorf("token: load %s: %w", key, err)
	}
	return v, nil
}

// Balance of owner; zero for unknown accounts.
func (l *Ledger) Balance(ctx context.Context, owner domain.Address) (domain.Amount, error) {
	return l.load(ctx, l.balanceKey(owner))
}

// Allowance spender may move out of owner.
func (l *Ledger) Allowance(ctx context.Context, owner, spender domain.Address) (domain.Amount, error) {
	return l.load(ctx, l.allowanceKey(owner, spender))
}

// TotalSupply minted so far.
func (l *Ledger) TotalSupply(ctx context.Context) (domain.Amount, error) {
	return l.load(ctx, l.supplyKey())
}

// Approve sets (not adds to) spender's allowance over owner's balance.
func (l *Ledger) Approve(ctx context.Context, owner, spender domain.Address, amount domain.Amount) error {
	if spender == domain.ZeroAddress {
		return domain.ErrInvalidAddress
	}
	return ledger.Save(ctx, l.kv, l.allowanceKey(owner, spender), amount)
}

// Transfer moves amount from from to to.
func (l *Ledger) Transfer(ctx context.Context, from, to domain.Address, amount domain.Amount) error {
	if to == domain.ZeroAddress {
		return domain.ErrInvalidAddress
	}
	if from == to {
		bal, err := l.Balance(ctx, from)
		if err != nil {
			return err
		}
		if bal.Lt(amount) {
			return domain.ErrInsufficientBalance
		}
		return nil
	}

	fromBal, err := l.Balance(ctx, from)
	if err != nil {
		return err
	}
	newFrom, err := fromBal.Sub(amount)
	if err != nil {
		return domain.ErrInsufficientBalance
	}
	toBal, err := l.Balance(ctx, to)
	if err != nil {
		return err
	}
	newTo, err := toBal.Add(amount)
	if err != nil {
		return err
	}

	if err := ledger.Save(ctx, l.kv, l.balanceKey(from), newFrom); err != nil {
		return err
	}
	return ledger.Save(ctx, l.kv, l.balanceKey(to), newTo)
}

// TransferFrom moves amount from from to to on spender's allowance.
func (l *Ledger) TransferFrom(ctx context.Context, spender, from, to domain.Address, amount domain.Amount) error {
	allowance, err := l.Allowance(ctx, from, spender)
	if err != nil {
		return err
	}
	remaining, err := allowance.Sub(amount)
	if err != nil {
		return domain.ErrInsufficientAllowance
	}
	if err := l.Transfer(ctx, from, to, amount); err != nil {
		return err
	}
	return ledger.Save(ctx, l.kv, l.allowanceKey(from, spender), remaining)
}

// Mint credits to and grows the supply. Callers gate who may mint.
func (l *Ledger) Mint(ctx context.Context, to domain.Address, amount domain.Amount) error {
	if to == domain.ZeroAddress {
		return domain.ErrInvalidAddress
	}
	if amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	supply, err := l.TotalSupply(ctx)
	if err != nil {
		return err
	}
	newSupply, err := supply.Add(amount)
	if err != nil {
		return err
	}
	bal, err := l.Balance(ctx, to)
	if err != nil {
		return err
	}
	newBal, err := bal.Add(amount)
	if err != nil {
		return err
	}
	if err := ledger.Save(ctx, l.kv, l.supplyKey(), newSupply); err != nil {
		return err
	}
	return ledger.Save(ctx, l.kv, l.balanceKey(to), newBal)
}

// Scoped returns a view of l acting for principal: funds can only leave
// principal's account, either directly or as spender of an allowance.
func (l *Ledger) Scoped(principal domain.Address) domain.Token {
	return &scoped{l: l, principal: principal}
}

// scoped exposes no Mint or Approve.
type scoped struct {
	l         *Ledger
	principal domain.Address
}

func (s *scoped) Address() domain.Address { return s.l.asset }

func (s *scoped) Balance(ctx context.Context, owner domain.Address) (domain.Amount, error) {
	return s.l.Balance(ctx, owner)
}

func (s *scoped) Allowance(ctx context.Context, owner, spender domain.Address) (domain.Amount, error) {
	return s.l.Allowance(ctx, owner, spender)
}

func (s *scoped) Transfer(ctx context.Context, from, to domain.Address, amount domain.Amount) error {
	if from != s.principal {
		return domain.ErrUnauthorized
	}
	return s.l.Transfer(ctx, from, to, amount)
}

func (s *scoped) TransferFrom(ctx context.Context, spender, from, to domain.Address, amount domain.Amount) error {
	if spender != s.principal {
		return domain.ErrUnauthorized
	}
	return s.l.TransferFrom(ctx, spender, from, to, amount)
}

var (
	_ domain.Token = (*Ledger)(nil)
	_ domain.Token = (*scoped)(nil)
)
