package market

import (
	"context"
	"errors"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// calculateRewards settles a closed round exactly once. The winning side
// shares total minus the treasury cut; a tie sends the whole pot to the
// treasury.
func (s *session) calculateRewards(ctx context.Context, epoch uint64) error {
	r, ok, err := s.round(ctx, epoch)
	if err != nil {
		return err
	}
	if !ok || r.Status != domain.RoundClosed {
		return domain.ErrRoundNotEnded
	}
	if r.Settled {
		return domain.ErrRewardsAlreadyCalculated
	}

	var base, reward, cut domain.Amount
	switch r.ClosePrice.Cmp(r.LockPrice) {
	case 1:
		base = r.BullAmount
	case -1:
		base = r.BearAmount
	}
	if r.ClosePrice.Eq(r.LockPrice) {
		cut = r.TotalAmount
	} else {
		cut = r.TotalAmount.Bps(s.m.cfg.TreasuryFeeBps)
		if reward, err = r.TotalAmount.Sub(cut); err != nil {
			return err
		}
	}

	treasury, err := s.state.TreasuryAmount.Add(cut)
	if err != nil {
		return err
	}
	s.state.TreasuryAmount = treasury

	r.RewardBaseCalAmount = base
	r.RewardAmount = reward
	r.Settled = true
	if err := s.putRound(ctx, r); err != nil {
		return err
	}
	return s.emit(domain.TopicRewardsCalculated, epoch, nil, domain.RewardsCalculatedPayload{
		RewardBaseCalAmount: base,
		RewardAmount:        reward,
		TreasuryAmount:      cut,
	})
}

// Treasury returns both fee accumulators.
func (m *Market) Treasury(ctx context.Context) (domain.Treasury, error) {
	st, err := m.State(ctx)
	if err != nil {
		return domain.Treasury{}, err
	}
	return domain.Treasury{
		TreasuryAmount:      st.TreasuryAmount,
		FlashTreasuryAmount: st.FlashTreasuryAmount,
	}, nil
}

// ExpectedPayout is what user's bet in epoch is entitled to after
// settlement: amount * reward / base on the winning side, zero otherwise.
// It is read-only and leaves BetInfo.Claimed untouched.
func (m *Market) ExpectedPayout(ctx context.Context, epoch uint64, user domain.Address) (domain.Amount, error) {
	r, err := m.Round(ctx, epoch)
	if err != nil {
		return domain.Amount{}, err
	}
	bet, err := m.BetInfo(ctx, epoch, user)
	if errors.Is(err, domain.ErrBetNotFound) {
		return domain.Amount{}, nil
	}
	if err != nil {
		return domain.Amount{}, err
	}
	if !r.Settled {
		return domain.Amount{}, domain.ErrRoundNotEnded
	}
	winner, ok := r.Winner()
	if !ok || winner != bet.Position {
		return domain.Amount{}, nil
	}
	return bet.Amount.MulDiv(r.RewardAmount, r.RewardBaseCalAmount)
}
