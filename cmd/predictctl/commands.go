package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/alanyoungcy/predictmarket/internal/crypto"
	"github.com/alanyoungcy/predictmarket/internal/domain"
)

var commands = map[string]command{
	"status":         {"", cmdStatus},
	"address":        {"", cmdAddress},
	"price":          {"", cmdPrice},
	"round":          {"[epoch]", cmdRound},
	"rounds":         {"[-from N] [-n N]", cmdRounds},
	"genesis-start":  {"", cmdGenesisStart},
	"genesis-lock":   {"", cmdGenesisLock},
	"execute":        {"", cmdExecute},
	"bet":            {"<epoch> <bull|bear> <amount>", cmdBet},
	"bet-info":       {"<epoch> [address]", cmdBetInfo},
	"payout":         {"<epoch> [address]", cmdPayout},
	"user-rounds":    {"[-cursor N] [-size N] [address]", cmdUserRounds},
	"flash-loan":     {"<amount> <receiver>", cmdFlashLoan},
	"events":         {"[-since N] [-n N]", cmdEvents},
	"keeper":         {"<status|start|pause>", cmdKeeper},
	"owner":          {"", cmdOwner},
	"transfer-owner": {"<address>", cmdTransferOwner},
	"accept-owner":   {"", cmdAcceptOwner},
	"balance":        {"[address]", cmdBalance},
	"approve":        {"<amount> [spender]", cmdApprove},
	"transfer":       {"<to> <amount>", cmdTransfer},
	"mint":           {"<to> <amount>", cmdMint},
	"encrypt-key":    {"-out <file>", cmdEncryptKey},
}

func cmdStatus(ctx context.Context, e *env, _ []string) error {
	info, err := e.c.Market(ctx)
	if err != nil {
		return err
	}
	gs, err := e.c.GenesisStatus(ctx)
	if err != nil {
		return err
	}
	tr, err := e.c.Treasury(ctx)
	if err != nil {
		return err
	}
	renderStatus(e.out, info, gs, tr)
	return nil
}

func cmdAddress(_ context.Context, e *env, _ []string) error {
	if e.signer == nil {
		return fmt.Errorf("no key configured")
	}
	fmt.Fprintln(e.out, e.signer.Address().Hex())
	return nil
}

func cmdPrice(ctx context.Context, e *env, _ []string) error {
	q, err := e.c.OraclePrice(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s %s @ %s\n", q.Asset, q.Price, formatUnix(q.Timestamp))
	return nil
}

func cmdRound(ctx context.Context, e *env, args []string) error {
	var r domain.Round
	switch len(args) {
	case 0:
		cur, err := e.c.CurrentRound(ctx)
		if err != nil {
			return err
		}
		if cur.Round == nil {
			fmt.Fprintln(e.out, "genesis not started")
			return nil
		}
		r = *cur.Round
	case 1:
		epoch, err := parseEpoch(args[0])
		if err != nil {
			return err
		}
		if r, err = e.c.Round(ctx, epoch); err != nil {
			return err
		}
	default:
		return errUsage
	}
	renderRounds(e.out, []domain.Round{r})
	return nil
}

func cmdRounds(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("rounds", flag.ContinueOnError)
	from := fs.Uint64("from", 0, "first epoch; default is the last -n rounds")
	n := fs.Int("n", 10, "number of rounds")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	start := *from
	if start == 0 {
		gs, err := e.c.GenesisStatus(ctx)
		if err != nil {
			return err
		}
		start = 1
		if gs.CurrentEpoch > uint64(*n) {
			start = gs.CurrentEpoch - uint64(*n) + 1
		}
	}
	rounds, err := e.c.Rounds(ctx, start, *n)
	if err != nil {
		return err
	}
	renderRounds(e.out, rounds)
	return nil
}

func cmdGenesisStart(ctx context.Context, e *env, _ []string) error {
	gs, err := e.c.GenesisStart(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "genesis started, epoch %d\n", gs.CurrentEpoch)
	return nil
}

func cmdGenesisLock(ctx context.Context, e *env, _ []string) error {
	gs, err := e.c.GenesisLock(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "genesis locked, epoch %d\n", gs.CurrentEpoch)
	return nil
}

func cmdExecute(ctx context.Context, e *env, _ []string) error {
	cur, err := e.c.ExecuteRound(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "executed, now at epoch %d\n", cur.Epoch)
	return nil
}

func cmdBet(ctx context.Context, e *env, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	epoch, err := parseEpoch(args[0])
	if err != nil {
		return err
	}
	pos, err := domain.ParsePosition(args[1])
	if err != nil {
		return err
	}
	amount, err := domain.ParseAmount(args[2])
	if err != nil {
		return err
	}
	bet, err := e.c.Bet(ctx, epoch, pos, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "bet %s %s on epoch %d\n", bet.Amount, bet.Position, epoch)
	return nil
}

func cmdBetInfo(ctx context.Context, e *env, args []string) error {
	epoch, user, err := epochAndUser(e, args)
	if err != nil {
		return err
	}
	bet, err := e.c.BetInfo(ctx, epoch, user)
	if err != nil {
		return err
	}
	if bet.Amount.IsZero() {
		fmt.Fprintf(e.out, "no bet by %s in epoch %d\n", user.Hex(), epoch)
		return nil
	}
	fmt.Fprintf(e.out, "%s %s claimed=%t\n", bet.Position, bet.Amount, bet.Claimed)
	return nil
}

func cmdPayout(ctx context.Context, e *env, args []string) error {
	epoch, user, err := epochAndUser(e, args)
	if err != nil {
		return err
	}
	p, err := e.c.Payout(ctx, epoch, user)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, p)
	return nil
}

func cmdUserRounds(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("user-rounds", flag.ContinueOnError)
	cursor := fs.Int("cursor", 0, "offset into the user's epochs")
	size := fs.Int("size", 20, "page size")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	user, err := userArg(e, fs.Args())
	if err != nil {
		return err
	}
	page, err := e.c.UserRounds(ctx, user, *cursor, *size)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%d of %d epochs: %v\n", len(page.Epochs), page.Total, page.Epochs)
	return nil
}

func cmdFlashLoan(ctx context.Context, e *env, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	amount, err := domain.ParseAmount(args[0])
	if err != nil {
		return err
	}
	receiver, err := domain.ParseAddress(args[1])
	if err != nil {
		return err
	}
	res, err := e.c.FlashLoan(ctx, amount, receiver)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "lent %s to %s, fee %s\n", res.Amount, res.Receiver.Hex(), res.Fee)
	return nil
}

func cmdEvents(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	since := fs.Uint64("since", 0, "return events after this sequence number")
	n := fs.Int("n", 50, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	evts, err := e.c.Events(ctx, *since, *n)
	if err != nil {
		return err
	}
	renderEvents(e.out, evts)
	return nil
}

func cmdKeeper(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	switch args[0] {
	case "status":
		st, err := e.c.KeeperStatus(ctx)
		if err != nil {
			return err
		}
		renderKeeper(e.out, st)
	case "start":
		st, err := e.c.KeeperStart(ctx)
		if err != nil {
			return err
		}
		renderKeeper(e.out, st)
	case "pause":
		st, err := e.c.KeeperPause(ctx)
		if err != nil {
			return err
		}
		renderKeeper(e.out, st)
	default:
		return errUsage
	}
	return nil
}

func cmdOwner(ctx context.Context, e *env, _ []string) error {
	o, err := e.c.Ownership(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "owner:   %s\npending: %s\n", o.Owner.Hex(), o.PendingOwner.Hex())
	return nil
}

func cmdTransferOwner(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	to, err := domain.ParseAddress(args[0])
	if err != nil {
		return err
	}
	if err := e.c.TransferOwnership(ctx, to); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "ownership offered to %s\n", to.Hex())
	return nil
}

func cmdAcceptOwner(ctx context.Context, e *env, _ []string) error {
	if err := e.c.AcceptOwnership(ctx); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "ownership accepted")
	return nil
}

func cmdBalance(ctx context.Context, e *env, args []string) error {
	user, err := userArg(e, args)
	if err != nil {
		return err
	}
	info, err := e.c.Market(ctx)
	if err != nil {
		return err
	}
	bal, err := e.c.TokenBalance(ctx, user, info.Address)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "balance:   %s\n", bal.Balance)
	if bal.Allowance != nil {
		fmt.Fprintf(e.out, "allowance: %s (market)\n", bal.Allowance)
	}
	return nil
}

func cmdApprove(ctx context.Context, e *env, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	amount, err := domain.ParseAmount(args[0])
	if err != nil {
		return err
	}
	var spender domain.Address
	if len(args) == 2 {
		if spender, err = domain.ParseAddress(args[1]); err != nil {
			return err
		}
	} else {
		info, err := e.c.Market(ctx)
		if err != nil {
			return err
		}
		spender = info.Address
	}
	if err := e.c.Approve(ctx, spender, amount); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "approved %s for %s\n", amount, spender.Hex())
	return nil
}

func cmdTransfer(ctx context.Context, e *env, args []string) error {
	to, amount, err := toAndAmount(args)
	if err != nil {
		return err
	}
	if err := e.c.Transfer(ctx, to, amount); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "transferred %s to %s\n", amount, to.Hex())
	return nil
}

func cmdMint(ctx context.Context, e *env, args []string) error {
	to, amount, err := toAndAmount(args)
	if err != nil {
		return err
	}
	if err := e.c.Mint(ctx, to, amount); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "minted %s to %s\n", amount, to.Hex())
	return nil
}

// cmdEncryptKey writes the -key private key to a password-protected file
// that predictd and predictctl can load with -key-file.
func cmdEncryptKey(_ context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ContinueOnError)
	out := fs.String("out", "", "output file")
	if err := fs.Parse(args); err != nil || *out == "" {
		return errUsage
	}
	if e.g.key == "" || e.g.keyPassword == "" {
		return fmt.Errorf("encrypt-key needs -key and -key-password")
	}
	data, err := crypto.EncryptKey(e.g.key, e.g.keyPassword)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "wrote %s for %s\n", *out, e.signer.Address().Hex())
	return nil
}

// --------------------------------------------------------------------------
// Argument helpers
// --------------------------------------------------------------------------

func parseEpoch(s string) (uint64, error) {
	epoch, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid epoch %q", s)
	}
	return epoch, nil
}

// userArg is the single optional address argument, defaulting to the key's
// own address.
func userArg(e *env, args []string) (domain.Address, error) {
	switch len(args) {
	case 0:
		if e.signer == nil {
			return domain.Address{}, fmt.Errorf("no address given and no key configured")
		}
		return e.signer.Address(), nil
	case 1:
		return domain.ParseAddress(args[0])
	}
	return domain.Address{}, errUsage
}

func epochAndUser(e *env, args []string) (uint64, domain.Address, error) {
	if len(args) < 1 {
		return 0, domain.Address{}, errUsage
	}
	epoch, err := parseEpoch(args[0])
	if err != nil {
		return 0, domain.Address{}, err
	}
	user, err := userArg(e, args[1:])
	return epoch, user, err
}

func toAndAmount(args []string) (domain.Address, domain.Amount, error) {
	if len(args) != 2 {
		return domain.Address{}, domain.Amount{}, errUsage
	}
	to, err := domain.ParseAddress(args[0])
	if err != nil {
		return domain.Address{}, domain.Amount{}, err
	}
	amount, err := domain.ParseAmount(args[1])
	return to, amount, err
}
