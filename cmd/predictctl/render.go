package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alanyoungcy/predictmarket/internal/client"
	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/keeper"
)

func renderStatus(w io.Writer, info client.MarketInfo, gs domain.GenesisStatus, tr domain.Treasury) {
	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")
	table.Append("market", info.Address.Hex())
	table.Append("token", info.Token.Hex())
	table.Append("owner", info.Owner.Hex())
	table.Append("oracle", info.Oracle)
	table.Append("interval", fmt.Sprintf("%ds (buffer %ds)", info.IntervalSeconds, info.BufferSeconds))
	table.Append("min bet", info.MinBetAmount.String())
	table.Append("fees", fmt.Sprintf("treasury %s, flash %s", bps(info.TreasuryFeeBps), bps(info.FlashLoanFeeBps)))
	table.Append("genesis", fmt.Sprintf("started=%t locked=%t", gs.Started, gs.Locked))
	table.Append("epoch", strconv.FormatUint(gs.CurrentEpoch, 10))
	table.Append("treasury", tr.TreasuryAmount.String())
	table.Append("flash treasury", tr.FlashTreasuryAmount.String())
	table.Render()
}

func renderRounds(w io.Writer, rounds []domain.Round) {
	if len(rounds) == 0 {
		fmt.Fprintln(w, "no rounds")
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("Epoch", "Status", "Lock", "Close", "Lock Price", "Close Price", "Bull", "Bear", "Reward", "Winner")
	for _, r := range rounds {
		winner := "-"
		if pos, ok := r.Winner(); ok {
			winner = string(pos)
		} else if r.Status == domain.RoundClosed {
			winner = "house"
		}
		table.Append(
			strconv.FormatUint(r.Epoch, 10),
			string(r.Status),
			formatUnix(r.LockTimestamp),
			formatUnix(r.CloseTimestamp),
			r.LockPrice.String(),
			r.ClosePrice.String(),
			r.BullAmount.String(),
			r.BearAmount.String(),
			r.RewardAmount.String(),
			winner,
		)
	}
	table.Render()
}

func renderEvents(w io.Writer, evts []domain.Event) {
	if len(evts) == 0 {
		fmt.Fprintln(w, "no events")
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("Seq", "Time", "Topic", "Epoch", "Account", "Payload")
	for _, ev := range evts {
		account := "-"
		if ev.Account != nil {
			account = ev.Account.Hex()
		}
		epoch := "-"
		if ev.Epoch != 0 {
			epoch = strconv.FormatUint(ev.Epoch, 10)
		}
		table.Append(
			strconv.FormatUint(ev.Seq, 10),
			formatUnix(ev.Timestamp),
			string(ev.Topic),
			epoch,
			account,
			string(ev.Payload),
		)
	}
	table.Render()
}

func renderKeeper(w io.Writer, st keeper.Status) {
	lastRun := "never"
	if !st.LastRun.IsZero() {
		lastRun = st.LastRun.UTC().Format(time.RFC3339)
	}
	table := tablewriter.NewWriter(w)
	table.Header("Running", "Period", "Executed", "Failed", "Last Run", "Last Error")
	table.Append(
		strconv.FormatBool(st.Running),
		st.Period,
		strconv.FormatUint(st.Executed, 10),
		strconv.FormatUint(st.Failed, 10),
		lastRun,
		st.LastError,
	)
	table.Render()
}

func formatUnix(ts uint64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(int64(ts), 0).UTC().Format("2006-01-02 15:04:05")
}

func bps(v uint32) string {
	return fmt.Sprintf("%d.%02d%%", v/100, v%100)
}
