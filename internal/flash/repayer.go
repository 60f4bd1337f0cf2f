package flash

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Repayer is a receiver that hands the principal straight back with the fee
// paid from its own balance. Short under-pays by that amount, which makes
// the loan fail; it exists for drills.
type Repayer struct {
	addr   domain.Address
	short  domain.Amount
	logger *slog.Logger
}

// RepayerOption customises a Repayer.
type RepayerOption func(*Repayer)

// WithShortfall makes the repayer return amount less than it owes.
func WithShortfall(amount domain.Amount) RepayerOption {
	return func(r *Repayer) { r.short = amount }
}

func NewRepayer(addr domain.Address, logger *slog.Logger, opts ...RepayerOption) *Repayer {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repayer{addr: addr, logger: logger.With(slog.String("component", "flash_repayer"))}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repayer) Address() domain.Address { return r.addr }

func (r *Repayer) ExecuteFlashLoan(ctx context.Context, tok domain.Token, call domain.FlashLoanCall) error {
	owed, err := call.Amount.Add(call.Fee)
	if err != nil {
		return err
	}
	if !r.short.IsZero() {
		if owed, err = owed.Sub(r.short); err != nil {
			owed = domain.Amount{}
		}
	}

	bal, err := tok.Balance(ctx, r.addr)
	if err != nil {
		return err
	}
	if bal.Lt(owed) {
		return fmt.Errorf("flash: repayer holds %s, owes %s: %w", bal, owed, domain.ErrInsufficientBalance)
	}

	r.logger.DebugContext(ctx, "repaying flash loan",
		slog.String("lender", call.Lender.Hex()),
		slog.String("amount", call.Amount.String()),
		slog.String("fee", call.Fee.String()),
		slog.String("repay", owed.String()),
	)
	if owed.IsZero() {
		return nil
	}
	return tok.Transfer(ctx, r.addr, call.Lender, owed)
}

var _ domain.FlashLoanReceiver = (*Repayer)(nil)
