package market_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/token"
)

func TestBet_MovesStakeIntoMarket(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.GenesisStartRound(h.ctx, owner))
	h.at(10)

	require.NoError(t, h.m.BetBull(h.ctx, alice, 1, alice, amt(100_000_000)))
	require.NoError(t, h.m.BetBear(h.ctx, bob, 1, bob, amt(50_000_000)))

	r := h.round(1)
	assert.Equal(t, "150000000", r.TotalAmount.String())
	assert.Equal(t, "100000000", r.BullAmount.String())
	assert.Equal(t, "50000000", r.BearAmount.String())

	bet, err := h.m.BetInfo(h.ctx, 1, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.Bull, bet.Position)
	assert.Equal(t, "100000000", bet.Amount.String())
	assert.False(t, bet.Claimed)

	assert.Equal(t, "900000000", h.balance(alice).String())
	assert.Equal(t, "950000000", h.balance(bob).String())
	assert.Equal(t, "150000000", h.balance(marketAdr).String())

	left, err := token.Open(h.store, tokenAdr).Allowance(h.ctx, alice, marketAdr)
	require.NoError(t, err)
	assert.Equal(t, "900000000", left.String())

	assert.Equal(t, []domain.Topic{
		domain.TopicRoundStarted,
		domain.TopicBetPlaced,
		domain.TopicBetPlaced,
	}, h.events.topics())
}

func TestBet_Rejections(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.GenesisStartRound(h.ctx, owner))

	broke := common.HexToAddress("0x0000000000000000000000000000000000000d01")
	require.NoError(t, token.Open(h.store, tokenAdr).Approve(h.ctx, broke, marketAdr, amt(1_000_000_000)))
	unapproved := common.HexToAddress("0x0000000000000000000000000000000000000d02")
	require.NoError(t, token.Open(h.store, tokenAdr).Mint(h.ctx, unapproved, amt(1_000_000_000)))

	tests := []struct {
		name   string
		offset uint64
		caller domain.Address
		epoch  uint64
		user   domain.Address
		amount domain.Amount
		want   error
	}{
		{"caller is not user", 10, bob, 1, alice, minBet, domain.ErrCallerMismatch},
		{"zero user", 10, domain.ZeroAddress, 1, domain.ZeroAddress, minBet, domain.ErrInvalidAddress},
		{"future epoch", 10, alice, 2, alice, minBet, domain.ErrEpochNotCurrent},
		{"past epoch", 10, alice, 0, alice, minBet, domain.ErrEpochNotCurrent},
		{"at start timestamp", 0, alice, 1, alice, minBet, domain.ErrRoundNotBettable},
		{"at lock timestamp", interval, alice, 1, alice, minBet, domain.ErrRoundNotBettable},
		{"below minimum", 10, alice, 1, alice, amt(9_999_999), domain.ErrBetAmountTooLow},
		{"no balance", 10, broke, 1, broke, minBet, domain.ErrInsufficientBalance},
		{"no allowance", 10, unapproved, 1, unapproved, minBet, domain.ErrInsufficientAllowance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.at(tt.offset)
			err := h.m.BetBull(h.ctx, tt.caller, tt.epoch, tt.user, tt.amount)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	r := h.round(1)
	assert.True(t, r.TotalAmount.IsZero())
	assert.Equal(t, "1000000000", h.balance(alice).String())
	assert.True(t, h.balance(marketAdr).IsZero())
	assert.Equal(t, []domain.Topic{domain.TopicRoundStarted}, h.events.topics())
}

func TestBet_OnePerUserPerRound(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.GenesisStartRound(h.ctx, owner))
	h.at(10)

	require.NoError(t, h.m.BetBull(h.ctx, alice, 1, alice, minBet))
	assert.ErrorIs(t, h.m.BetBear(h.ctx, alice, 1, alice, minBet), domain.ErrAlreadyBet)
	assert.ErrorIs(t, h.m.BetBull(h.ctx, alice, 1, alice, minBet), domain.ErrAlreadyBet)

	r := h.round(1)
	assert.Equal(t, minBet.String(), r.TotalAmount.String())
	assert.True(t, r.BearAmount.IsZero())
}

func TestBet_ExactMinimumAccepted(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.GenesisStartRound(h.ctx, owner))
	h.at(interval - 1)
	require.NoError(t, h.m.BetBear(h.ctx, carol, 1, carol, minBet))
	assert.Equal(t, minBet.String(), h.round(1).BearAmount.String())
}

func TestPlaceBet(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.GenesisStartRound(h.ctx, owner))
	h.at(10)

	assert.ErrorIs(t, h.m.PlaceBet(h.ctx, alice, 1, alice, minBet, domain.Position("sideways")), domain.ErrInvalidPosition)
	require.NoError(t, h.m.PlaceBet(h.ctx, alice, 1, alice, minBet, domain.Bear))

	bet, err := h.m.BetInfo(h.ctx, 1, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.Bear, bet.Position)

	_, err = h.m.BetInfo(h.ctx, 1, bob)
	assert.ErrorIs(t, err, domain.ErrBetNotFound)
}

func TestUserRounds_Paging(t *testing.T) {
	h := newHarness(t)
	h.genesis(100)

	// epoch 2 opened at +interval; bet, then keep executing and betting.
	for i := uint64(0); i < 4; i++ {
		epoch := 2 + i
		h.at((i+1)*interval + 1)
		require.NoError(t, h.m.BetBull(h.ctx, alice, epoch, alice, minBet))
		h.at((i + 2) * interval)
		require.NoError(t, h.m.ExecuteRound(h.ctx, owner))
	}

	epochs, total, err := h.m.UserRounds(h.ctx, alice, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []uint64{2, 3, 4, 5}, epochs)

	epochs, total, err = h.m.UserRounds(h.ctx, alice, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []uint64{3, 4}, epochs)

	epochs, _, err = h.m.UserRounds(h.ctx, alice, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5}, epochs)

	epochs, _, err = h.m.UserRounds(h.ctx, alice, 4, 10)
	require.NoError(t, err)
	assert.Empty(t, epochs)

	epochs, total, err = h.m.UserRounds(h.ctx, bob, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, epochs)
}
