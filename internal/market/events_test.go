package market_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

func TestEventsSince_DurableLog(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.GenesisStartRound(h.ctx, owner))
	h.at(10)
	require.NoError(t, h.m.BetBull(h.ctx, alice, 1, alice, amt(20_000_000)))
	h.at(interval)
	h.price(100)
	require.NoError(t, h.m.GenesisLockRound(h.ctx, owner))

	all, err := h.m.EventsSince(h.ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, evt := range all {
		assert.Equal(t, uint64(i+1), evt.Seq)
	}
	assert.Equal(t, []domain.Topic{
		domain.TopicRoundStarted,
		domain.TopicBetPlaced,
		domain.TopicRoundLocked,
		domain.TopicRoundStarted,
	}, []domain.Topic{all[0].Topic, all[1].Topic, all[2].Topic, all[3].Topic})
	assert.Equal(t, h.events.topics(), []domain.Topic{all[0].Topic, all[1].Topic, all[2].Topic, all[3].Topic})

	bet := all[1]
	require.NotNil(t, bet.Account)
	assert.Equal(t, alice, *bet.Account)
	assert.Equal(t, uint64(1), bet.Epoch)
	assert.Equal(t, t0+10, bet.Timestamp)
	var p domain.BetPlacedPayload
	require.NoError(t, sonnet.Unmarshal(bet.Payload, &p))
	assert.Equal(t, "20000000", p.Amount.String())
	assert.Equal(t, domain.Bull, p.Position)

	var locked domain.RoundLockedPayload
	require.NoError(t, sonnet.Unmarshal(all[2].Payload, &locked))
	assert.Equal(t, "100", locked.Price.String())
	assert.Equal(t, t0+interval, locked.Timestamp)

	tail, err := h.m.EventsSince(h.ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(3), tail[0].Seq)

	none, err := h.m.EventsSince(h.ctx, 4, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, uint64(4), h.state().EventSeq)
}

func TestEvents_FailedOperationEmitsNothing(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.GenesisStartRound(h.ctx, owner))

	h.at(interval)
	assert.ErrorIs(t, h.m.BetBull(h.ctx, alice, 1, alice, minBet), domain.ErrRoundNotBettable)
	h.at(interval + buffer + 1)
	assert.ErrorIs(t, h.m.GenesisLockRound(h.ctx, owner), domain.ErrOutsideBuffer)

	all, err := h.m.EventsSince(h.ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, uint64(1), h.state().EventSeq)
	assert.Equal(t, []domain.Topic{domain.TopicRoundStarted}, h.events.topics())
}
