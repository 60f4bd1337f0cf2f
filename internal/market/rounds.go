package market

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/ledger"
)

// GenesisStartRound opens epoch 1. Owner only, once.
func (m *Market) GenesisStartRound(ctx context.Context, caller domain.Address) error {
	return m.update(ctx, "genesis start round", func(ctx context.Context, s *session) error {
		if err := s.requireOwner(ctx, caller); err != nil {
			return err
		}
		if s.state.GenesisStarted {
			return domain.ErrGenesisAlreadyStarted
		}
		s.state.CurrentEpoch++
		if err := s.startRound(ctx, s.state.CurrentEpoch); err != nil {
			return err
		}
		s.state.GenesisStarted = true
		m.logger.InfoContext(ctx, "genesis round started", slog.Uint64("epoch", s.state.CurrentEpoch))
		return nil
	})
}

// GenesisLockRound locks epoch 1 at the oracle price and opens epoch 2
// without the predecessor check. Owner only, once, after GenesisStartRound.
func (m *Market) GenesisLockRound(ctx context.Context, caller domain.Address) error {
	return m.update(ctx, "genesis lock round", func(ctx context.Context, s *session) error {
		if err := s.requireOwner(ctx, caller); err != nil {
			return err
		}
		if !s.state.GenesisStarted {
			return domain.ErrGenesisNotStarted
		}
		if s.state.GenesisLocked {
			return domain.ErrGenesisAlreadyLocked
		}
		price, err := s.price(ctx)
		if err != nil {
			return err
		}
		if err := s.lockRound(ctx, s.state.CurrentEpoch, price); err != nil {
			return err
		}
		s.state.CurrentEpoch++
		if err := s.startRound(ctx, s.state.CurrentEpoch); err != nil {
			return err
		}
		s.state.GenesisLocked = true
		m.logger.InfoContext(ctx, "genesis round locked", slog.Uint64("epoch", s.state.CurrentEpoch-1))
		return nil
	})
}

// ExecuteRound advances the market by one epoch: lock the current round,
// end and settle the previous one, then open the next. Owner only.
func (m *Market) ExecuteRound(ctx context.Context, caller domain.Address) error {
	return m.update(ctx, "execute round", func(ctx context.Context, s *session) error {
		if err := s.requireOwner(ctx, caller); err != nil {
			return err
		}
		if !s.state.GenesisStarted {
			return domain.ErrGenesisNotStarted
		}
		if !s.state.GenesisLocked {
			return domain.ErrGenesisNotLocked
		}
		price, err := s.price(ctx)
		if err != nil {
			return err
		}

		current := s.state.CurrentEpoch
		if err := s.lockRound(ctx, current, price); err != nil {
			return err
		}
		if err := s.endRound(ctx, current-1, price); err != nil {
			return err
		}
		if err := s.calculateRewards(ctx, current-1); err != nil {
			return err
		}
		s.state.CurrentEpoch++
		if err := s.safeStartRound(ctx, s.state.CurrentEpoch); err != nil {
			return err
		}
		m.logger.InfoContext(ctx, "round executed",
			slog.Uint64("locked", current),
			slog.Uint64("ended", current-1),
			slog.String("price", price.String()),
		)
		return nil
	})
}

func (s *session) round(ctx context.Context, epoch uint64) (domain.Round, bool, error) {
	var r domain.Round
	ok, err := ledger.LoadOr(ctx, s.tx, roundKey(epoch), &r)
	return r, ok, err
}

func (s *session) putRound(ctx context.Context, r domain.Round) error {
	return ledger.Save(ctx, s.tx, roundKey(r.Epoch), r)
}

func (s *session) startRound(ctx context.Context, epoch uint64) error {
	exists, err := s.tx.Has(ctx, roundKey(epoch))
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrRoundExists
	}
	interval := s.m.cfg.IntervalSeconds
	r := domain.Round{
		Epoch:          epoch,
		Status:         domain.RoundOpen,
		StartTimestamp: s.now,
		LockTimestamp:  s.now + interval,
		CloseTimestamp: s.now + 2*interval,
	}
	if err := s.putRound(ctx, r); err != nil {
		return err
	}
	return s.emit(domain.TopicRoundStarted, epoch, nil, domain.RoundStartedPayload{
		StartTimestamp: r.StartTimestamp,
		LockTimestamp:  r.LockTimestamp,
		CloseTimestamp: r.CloseTimestamp,
	})
}

// safeStartRound opens epoch only once the round two behind it has closed.
func (s *session) safeStartRound(ctx context.Context, epoch uint64) error {
	if epoch < 3 {
		return domain.ErrPreviousRoundNotClosed
	}
	prev, ok, err := s.round(ctx, epoch-2)
	if err != nil {
		return err
	}
	if !ok || prev.Status != domain.RoundClosed {
		return domain.ErrPreviousRoundNotClosed
	}
	return s.startRound(ctx, epoch)
}

func (s *session) lockRound(ctx context.Context, epoch uint64, price domain.Amount) error {
	r, ok, err := s.round(ctx, epoch)
	if err != nil {
		return err
	}
	if !ok || r.StartTimestamp == 0 {
		return domain.ErrRoundNotStarted
	}
	if r.Status != domain.RoundOpen {
		return domain.ErrRoundAlreadyLocked
	}
	if s.now < r.LockTimestamp {
		return domain.ErrLockTooEarly
	}
	if s.now > r.LockTimestamp+s.m.cfg.BufferSeconds {
		return domain.ErrOutsideBuffer
	}

	r.LockPrice = price
	r.CloseTimestamp = s.now + s.m.cfg.IntervalSeconds
	r.Status = domain.RoundLocked
	if err := s.putRound(ctx, r); err != nil {
		return err
	}
	return s.emit(domain.TopicRoundLocked, epoch, nil, domain.RoundLockedPayload{
		Timestamp: s.now,
		Price:     price,
	})
}

func (s *session) endRound(ctx context.Context, epoch uint64, price domain.Amount) error {
	r, ok, err := s.round(ctx, epoch)
	if err != nil {
		return err
	}
	if !ok || r.LockTimestamp == 0 || r.Status == domain.RoundOpen {
		return domain.ErrRoundNotLocked
	}
	if r.Status == domain.RoundClosed {
		return domain.ErrRoundAlreadyEnded
	}
	if s.now < r.CloseTimestamp {
		return domain.ErrEndTooEarly
	}
	if s.now > r.CloseTimestamp+s.m.cfg.BufferSeconds {
		return domain.ErrOutsideBuffer
	}

	r.ClosePrice = price
	r.Status = domain.RoundClosed
	if err := s.putRound(ctx, r); err != nil {
		return err
	}
	return s.emit(domain.TopicRoundEnded, epoch, nil, domain.RoundEndedPayload{
		Timestamp: s.now,
		Price:     price,
	})
}

// CurrentEpoch is the epoch currently open for bets (0 before genesis).
func (m *Market) CurrentEpoch(ctx context.Context) (uint64, error) {
	st, err := m.State(ctx)
	return st.CurrentEpoch, err
}

// State is the market's global state.
func (m *Market) State(ctx context.Context) (domain.MarketState, error) {
	var st domain.MarketState
	if err := ledger.Load(ctx, m.host.Store(), stateKey, &st); err != nil {
		return domain.MarketState{}, wrapRead("state", err)
	}
	return st, nil
}

// GenesisStatus reports the genesis flags.
func (m *Market) GenesisStatus(ctx context.Context) (domain.GenesisStatus, error) {
	st, err := m.State(ctx)
	if err != nil {
		return domain.GenesisStatus{}, err
	}
	return domain.GenesisStatus{
		Started:      st.GenesisStarted,
		Locked:       st.GenesisLocked,
		CurrentEpoch: st.CurrentEpoch,
	}, nil
}

// Round returns the round at epoch or ErrRoundNotFound.
func (m *Market) Round(ctx context.Context, epoch uint64) (domain.Round, error) {
	var r domain.Round
	err := ledger.Load(ctx, m.host.Store(), roundKey(epoch), &r)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Round{}, domain.ErrRoundNotFound
	}
	if err != nil {
		return domain.Round{}, wrapRead("round", err)
	}
	return r, nil
}

// Rounds returns consecutive rounds from epoch from, stopping at the first
// missing epoch or after limit rounds.
func (m *Market) Rounds(ctx context.Context, from uint64, limit int) ([]domain.Round, error) {
	var out []domain.Round
	for epoch := from; len(out) < limit; epoch++ {
		r, err := m.Round(ctx, epoch)
		if errors.Is(err, domain.ErrRoundNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// IsBettable reports whether epoch is the current round and inside its
// betting window.
func (m *Market) IsBettable(ctx context.Context, epoch uint64) (bool, error) {
	st, err := m.State(ctx)
	if err != nil {
		return false, err
	}
	if epoch != st.CurrentEpoch {
		return false, nil
	}
	r, err := m.Round(ctx, epoch)
	if errors.Is(err, domain.ErrRoundNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bettable(r, m.now()), nil
}

func bettable(r domain.Round, now uint64) bool {
	return r.Status == domain.RoundOpen &&
		r.StartTimestamp != 0 &&
		r.LockTimestamp != 0 &&
		r.StartTimestamp < now &&
		now < r.LockTimestamp
}

// OraclePrice is the current reference price as the market would read it.
func (m *Market) OraclePrice(ctx context.Context) (domain.PriceQuote, error) {
	q, err := m.prices.LastPrice(ctx, m.cfg.Oracle)
	if err != nil {
		return domain.PriceQuote{}, wrapRead("oracle price", err)
	}
	return q, nil
}
