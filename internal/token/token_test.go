package token_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/ledger"
	"github.com/alanyoungcy/predictmarket/internal/store/memory"
	"github.com/alanyoungcy/predictmarket/internal/token"
)

var (
	asset = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	owner = common.HexToAddress("0x000000000000000000000000000000000000000f")
)

type ownerOnly struct{ owner domain.Address }

func (o ownerOnly) IsOwner(_ context.Context, caller domain.Address) (bool, error) {
	return caller == o.owner, nil
}

func newService(t *testing.T) *token.Service {
	t.Helper()
	host := ledger.NewHost(memory.New(), nil)
	return token.NewService(host, asset, ownerOnly{owner: owner})
}

func TestService_MintIsOwnerOnly(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	err := svc.Mint(ctx, alice, alice, domain.NewAmount(100))
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	require.NoError(t, svc.Mint(ctx, owner, alice, domain.NewAmount(100)))
	bal, err := svc.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "100", bal.String())

	supply, err := svc.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, "100", supply.String())
}

func TestService_Transfer(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	require.NoError(t, svc.Mint(ctx, owner, alice, domain.NewAmount(100)))

	require.NoError(t, svc.Transfer(ctx, alice, bob, domain.NewAmount(30)))

	a, _ := svc.Balance(ctx, alice)
	b, _ := svc.Balance(ctx, bob)
	assert.Equal(t, "70", a.String())
	assert.Equal(t, "30", b.String())

	err := svc.Transfer(ctx, alice, bob, domain.NewAmount(71))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestLedger_TransferFromConsumesAllowance(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := token.Open(store, asset)
	require.NoError(t, l.Mint(ctx, alice, domain.NewAmount(50)))
	require.NoError(t, l.Approve(ctx, alice, bob, domain.NewAmount(20)))

	err := l.TransferFrom(ctx, bob, alice, bob, domain.NewAmount(21))
	assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)

	require.NoError(t, l.TransferFrom(ctx, bob, alice, bob, domain.NewAmount(15)))
	left, err := l.Allowance(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, "5", left.String())

	bal, _ := l.Balance(ctx, bob)
	assert.Equal(t, "15", bal.String())
}

func TestLedger_TxBoundWritesRollBack(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, token.Open(store, asset).Mint(ctx, alice, domain.NewAmount(10)))

	tx := ledger.Begin(store)
	require.NoError(t, token.Open(tx, asset).Transfer(ctx, alice, bob, domain.NewAmount(10)))
	tx.Discard()

	bal, err := token.Open(store, asset).Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "10", bal.String())
}

func TestLedger_RejectsZeroAddress(t *testing.T) {
	ctx := context.Background()
	l := token.Open(memory.New(), asset)
	assert.ErrorIs(t, l.Mint(ctx, domain.ZeroAddress, domain.NewAmount(1)), domain.ErrInvalidAddress)
	assert.ErrorIs(t, l.Transfer(ctx, alice, domain.ZeroAddress, domain.NewAmount(0)), domain.ErrInvalidAddress)
}

func TestLedger_ScopedOnlyMovesPrincipalFunds(t *testing.T) {
	ctx := context.Background()
	l := token.Open(memory.New(), asset)
	require.NoError(t, l.Mint(ctx, alice, domain.NewAmount(10)))
	require.NoError(t, l.Mint(ctx, bob, domain.NewAmount(10)))

	asBob := l.Scoped(bob)
	assert.ErrorIs(t, asBob.Transfer(ctx, alice, bob, domain.NewAmount(1)), domain.ErrUnauthorized)
	assert.ErrorIs(t, asBob.TransferFrom(ctx, alice, alice, bob, domain.NewAmount(1)), domain.ErrUnauthorized)
	require.NoError(t, asBob.Transfer(ctx, bob, alice, domain.NewAmount(4)))

	bal, _ := l.Balance(ctx, alice)
	assert.Equal(t, "14", bal.String())
}
