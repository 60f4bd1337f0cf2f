package market_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

type stake struct {
	user   domain.Address
	pos    domain.Position
	amount uint64
}

// settleRound plays epoch 1 with stakes, locking at lockPrice and closing
// at closePrice.
func (h *harness) settleRound(stakes []stake, lockPrice, closePrice uint64) domain.Round {
	h.t.Helper()
	h.at(0)
	require.NoError(h.t, h.m.GenesisStartRound(h.ctx, owner))

	h.at(10)
	for _, s := range stakes {
		require.NoError(h.t, h.m.PlaceBet(h.ctx, s.user, 1, s.user, amt(s.amount), s.pos))
	}

	h.at(interval)
	h.price(lockPrice)
	require.NoError(h.t, h.m.GenesisLockRound(h.ctx, owner))

	h.at(2 * interval)
	h.price(closePrice)
	require.NoError(h.t, h.m.ExecuteRound(h.ctx, owner))
	return h.round(1)
}

func (h *harness) payout(user domain.Address) string {
	h.t.Helper()
	p, err := h.m.ExpectedPayout(h.ctx, 1, user)
	require.NoError(h.t, err)
	return p.String()
}

func (h *harness) treasury() domain.Treasury {
	h.t.Helper()
	tr, err := h.m.Treasury(h.ctx)
	require.NoError(h.t, err)
	return tr
}

func TestRewards_BullWins(t *testing.T) {
	h := newHarness(t)
	r := h.settleRound([]stake{
		{alice, domain.Bull, 100_000_000},
		{bob, domain.Bear, 50_000_000},
	}, 100, 120)

	assert.Equal(t, domain.RoundClosed, r.Status)
	assert.True(t, r.Settled)
	assert.Equal(t, "100000000", r.RewardBaseCalAmount.String())
	assert.Equal(t, "142500000", r.RewardAmount.String())
	assert.Equal(t, "7500000", h.treasury().TreasuryAmount.String())

	assert.Equal(t, "142500000", h.payout(alice))
	assert.Equal(t, "0", h.payout(bob))
	assert.Equal(t, "0", h.payout(carol))

	bet, err := h.m.BetInfo(h.ctx, 1, alice)
	require.NoError(t, err)
	assert.False(t, bet.Claimed)
	assert.Equal(t, "150000000", h.balance(marketAdr).String())
}

func TestRewards_BearWins(t *testing.T) {
	h := newHarness(t)
	r := h.settleRound([]stake{
		{alice, domain.Bull, 100_000_000},
		{bob, domain.Bear, 50_000_000},
	}, 100, 80)

	assert.Equal(t, "50000000", r.RewardBaseCalAmount.String())
	assert.Equal(t, "142500000", r.RewardAmount.String())
	assert.Equal(t, "7500000", h.treasury().TreasuryAmount.String())
	assert.Equal(t, "0", h.payout(alice))
	assert.Equal(t, "142500000", h.payout(bob))
}

func TestRewards_TieGoesToTreasury(t *testing.T) {
	h := newHarness(t)
	r := h.settleRound([]stake{
		{alice, domain.Bull, 100_000_000},
		{bob, domain.Bear, 50_000_000},
	}, 100, 100)

	assert.True(t, r.RewardBaseCalAmount.IsZero())
	assert.True(t, r.RewardAmount.IsZero())
	assert.Equal(t, "150000000", h.treasury().TreasuryAmount.String())
	assert.Equal(t, "0", h.payout(alice))
	assert.Equal(t, "0", h.payout(bob))
}

func TestRewards_PayoutsTruncateAndNeverExceedPool(t *testing.T) {
	h := newHarness(t)
	r := h.settleRound([]stake{
		{alice, domain.Bull, 10_000_001},
		{bob, domain.Bear, 33_333_333},
		{carol, domain.Bull, 20_000_000},
	}, 100, 101)

	assert.Equal(t, "30000001", r.RewardBaseCalAmount.String())
	assert.Equal(t, "60166668", r.RewardAmount.String())
	assert.Equal(t, "3166666", h.treasury().TreasuryAmount.String())

	assert.Equal(t, "20055557", h.payout(alice))
	assert.Equal(t, "40111110", h.payout(carol))

	a, _ := domain.ParseAmount(h.payout(alice))
	c, _ := domain.ParseAmount(h.payout(carol))
	sum, err := a.Add(c)
	require.NoError(t, err)
	assert.False(t, sum.Gt(r.RewardAmount))
}

func TestRewards_EmptyWinningSide(t *testing.T) {
	h := newHarness(t)
	r := h.settleRound([]stake{
		{bob, domain.Bear, 50_000_000},
	}, 100, 120)

	assert.True(t, r.RewardBaseCalAmount.IsZero())
	assert.Equal(t, "47500000", r.RewardAmount.String())
	assert.Equal(t, "2500000", h.treasury().TreasuryAmount.String())
	assert.Equal(t, "0", h.payout(bob))
}

func TestRewards_EmptyRound(t *testing.T) {
	h := newHarness(t)
	r := h.settleRound(nil, 100, 120)

	assert.True(t, r.Settled)
	assert.True(t, r.RewardAmount.IsZero())
	assert.True(t, h.treasury().TreasuryAmount.IsZero())
}

func TestExpectedPayout_BeforeSettlement(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.GenesisStartRound(h.ctx, owner))
	h.at(10)
	require.NoError(t, h.m.BetBull(h.ctx, alice, 1, alice, minBet))

	_, err := h.m.ExpectedPayout(h.ctx, 1, alice)
	assert.ErrorIs(t, err, domain.ErrRoundNotEnded)

	p, err := h.m.ExpectedPayout(h.ctx, 1, bob)
	require.NoError(t, err)
	assert.True(t, p.IsZero())

	_, err = h.m.ExpectedPayout(h.ctx, 7, alice)
	assert.ErrorIs(t, err, domain.ErrRoundNotFound)
}

func TestRewards_TreasuryAccumulatesAcrossRounds(t *testing.T) {
	h := newHarness(t)
	h.settleRound([]stake{
		{alice, domain.Bull, 100_000_000},
		{bob, domain.Bear, 100_000_000},
	}, 100, 120)
	assert.Equal(t, "10000000", h.treasury().TreasuryAmount.String())

	// round 2 opened at +interval and had no bets; a tie on an empty pot
	// leaves the treasury as it is.
	h.at(3 * interval)
	h.price(120)
	require.NoError(t, h.m.ExecuteRound(h.ctx, owner))
	assert.Equal(t, "10000000", h.treasury().TreasuryAmount.String())
	assert.True(t, h.round(2).Settled)
}
