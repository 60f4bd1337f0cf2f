package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/ledger"
)

// BetBull stakes amount on the close price ending above the lock price.
func (m *Market) BetBull(ctx context.Context, caller domain.Address, epoch uint64, user domain.Address, amount domain.Amount) error {
	return m.placeBet(ctx, caller, epoch, user, amount, domain.Bull)
}

// BetBear stakes amount on the close price ending below the lock price.
func (m *Market) BetBear(ctx context.Context, caller domain.Address, epoch uint64, user domain.Address, amount domain.Amount) error {
	return m.placeBet(ctx, caller, epoch, user, amount, domain.Bear)
}

// PlaceBet dispatches to BetBull or BetBear.
func (m *Market) PlaceBet(ctx context.Context, caller domain.Address, epoch uint64, user domain.Address, amount domain.Amount, pos domain.Position) error {
	switch pos {
	case domain.Bull, domain.Bear:
		return m.placeBet(ctx, caller, epoch, user, amount, pos)
	}
	return fmt.Errorf("market: place bet: %w", domain.ErrInvalidPosition)
}

// placeBet validates everything before the first write; the only write that
// can fail after that is inside the same transaction.
func (m *Market) placeBet(ctx context.Context, caller domain.Address, epoch uint64, user domain.Address, amount domain.Amount, pos domain.Position) error {
	op := "bet " + string(pos)
	return m.update(ctx, op, func(ctx context.Context, s *session) error {
		if caller != user {
			return domain.ErrCallerMismatch
		}
		if user == domain.ZeroAddress {
			return domain.ErrInvalidAddress
		}
		if epoch != s.state.CurrentEpoch {
			return domain.ErrEpochNotCurrent
		}
		r, ok, err := s.round(ctx, epoch)
		if err != nil {
			return err
		}
		if !ok || !bettable(r, s.now) {
			return domain.ErrRoundNotBettable
		}
		if amount.Lt(s.m.cfg.MinBetAmount) {
			return domain.ErrBetAmountTooLow
		}
		exists, err := s.tx.Has(ctx, betKey(epoch, user))
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrAlreadyBet
		}

		tok := s.token()
		bal, err := tok.Balance(ctx, user)
		if err != nil {
			return err
		}
		if bal.Lt(amount) {
			return domain.ErrInsufficientBalance
		}
		allowance, err := tok.Allowance(ctx, user, s.m.cfg.Address)
		if err != nil {
			return err
		}
		if allowance.Lt(amount) {
			return domain.ErrInsufficientAllowance
		}

		total, err := r.TotalAmount.Add(amount)
		if err != nil {
			return err
		}
		side := r.BullAmount
		if pos == domain.Bear {
			side = r.BearAmount
		}
		side, err = side.Add(amount)
		if err != nil {
			return err
		}

		if err := tok.TransferFrom(ctx, s.m.cfg.Address, user, s.m.cfg.Address, amount); err != nil {
			return err
		}
		r.TotalAmount = total
		if pos == domain.Bull {
			r.BullAmount = side
		} else {
			r.BearAmount = side
		}
		if err := s.putRound(ctx, r); err != nil {
			return err
		}
		if err := ledger.Save(ctx, s.tx, betKey(epoch, user), domain.BetInfo{Position: pos, Amount: amount}); err != nil {
			return err
		}
		if err := s.appendUserRound(ctx, user, epoch); err != nil {
			return err
		}

		m.logger.DebugContext(ctx, "bet placed",
			slog.Uint64("epoch", epoch),
			slog.String("user", user.Hex()),
			slog.String("position", string(pos)),
			slog.String("amount", amount.String()),
		)
		return s.emit(domain.TopicBetPlaced, epoch, &user, domain.BetPlacedPayload{
			Amount:   amount,
			Position: pos,
		})
	})
}

func (s *session) appendUserRound(ctx context.Context, user domain.Address, epoch uint64) error {
	var epochs []uint64
	if _, err := ledger.LoadOr(ctx, s.tx, userRoundsKey(user), &epochs); err != nil {
		return err
	}
	return ledger.Save(ctx, s.tx, userRoundsKey(user), append(epochs, epoch))
}

// BetInfo returns user's bet in epoch or ErrBetNotFound.
func (m *Market) BetInfo(ctx context.Context, epoch uint64, user domain.Address) (domain.BetInfo, error) {
	var b domain.BetInfo
	err := ledger.Load(ctx, m.host.Store(), betKey(epoch, user), &b)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.BetInfo{}, domain.ErrBetNotFound
	}
	if err != nil {
		return domain.BetInfo{}, wrapRead("bet info", err)
	}
	return b, nil
}

// UserRounds returns the epochs user has bet in, oldest first, paged by
// cursor and size. total is the full count. A size of 0 returns all.
func (m *Market) UserRounds(ctx context.Context, user domain.Address, cursor, size int) (epochs []uint64, total int, err error) {
	var all []uint64
	if _, err := ledger.LoadOr(ctx, m.host.Store(), userRoundsKey(user), &all); err != nil {
		return nil, 0, wrapRead("user rounds", err)
	}
	total = len(all)
	if cursor < 0 || cursor >= total {
		return []uint64{}, total, nil
	}
	end := total
	if size > 0 && cursor+size < end {
		end = cursor + size
	}
	return all[cursor:end], total, nil
}

func wrapRead(what string, err error) error {
	return fmt.Errorf("market: read %s: %w", what, err)
}
