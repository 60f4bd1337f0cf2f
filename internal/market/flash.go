package market

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// FlashLoan lends amount of the market's token balance to receiver for the
// duration of one callback. The receiver must leave the market holding at
// least its starting balance plus the fee; otherwise every write of the
// operation, including the outgoing transfer, is discarded. It returns the
// fee charged.
func (m *Market) FlashLoan(ctx context.Context, caller domain.Address, amount domain.Amount, receiver domain.FlashLoanReceiver) (domain.Amount, error) {
	var fee domain.Amount
	err := m.update(ctx, "flash loan", func(ctx context.Context, s *session) error {
		if amount.IsZero() {
			return domain.ErrInvalidAmount
		}
		if receiver == nil || receiver.Address() == domain.ZeroAddress {
			return domain.ErrInvalidAddress
		}
		self := s.m.cfg.Address
		fee = amount.Bps(s.m.cfg.FlashLoanFeeBps)

		tok := s.token()
		before, err := tok.Balance(ctx, self)
		if err != nil {
			return err
		}
		if before.Lt(amount) {
			return domain.ErrInsufficientBalance
		}
		required, err := before.Add(fee)
		if err != nil {
			return err
		}

		if err := tok.Transfer(ctx, self, receiver.Address(), amount); err != nil {
			return err
		}
		call := domain.FlashLoanCall{
			Lender: self,
			Caller: caller,
			Token:  s.m.cfg.Token,
			Amount: amount,
			Fee:    fee,
		}
		err = s.m.host.CallOut(func() error {
			return invokeReceiver(ctx, receiver, tok.Scoped(receiver.Address()), call)
		})
		if err != nil {
			return err
		}

		after, err := tok.Balance(ctx, self)
		if err != nil {
			return err
		}
		if after.Lt(required) {
			return fmt.Errorf("%w: balance %s, want %s", domain.ErrFlashLoanNotRepaid, after, required)
		}

		flash, err := s.state.FlashTreasuryAmount.Add(fee)
		if err != nil {
			return err
		}
		s.state.FlashTreasuryAmount = flash

		recv := receiver.Address()
		m.logger.InfoContext(ctx, "flash loan repaid",
			slog.String("receiver", recv.Hex()),
			slog.String("amount", amount.String()),
			slog.String("fee", fee.String()),
		)
		return s.emit(domain.TopicFlashLoan, 0, &recv, domain.FlashLoanPayload{
			Caller: caller,
			Amount: amount,
			Fee:    fee,
		})
	})
	if err != nil {
		return domain.Amount{}, err
	}
	return fee, nil
}

// invokeReceiver runs the callback and turns a returned error or a panic
// into ErrFlashReceiverFailed.
func invokeReceiver(ctx context.Context, receiver domain.FlashLoanReceiver, tok domain.Token, call domain.FlashLoanCall) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrFlashReceiverFailed, r)
		}
	}()
	if err := receiver.ExecuteFlashLoan(ctx, tok, call); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrFlashReceiverFailed, err)
	}
	return nil
}
