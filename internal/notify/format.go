package notify

import (
	"fmt"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Format renders evt as a plain-text title and body.
func Format(evt domain.Event) (title, message string) {
	switch evt.Topic {
	case domain.TopicRoundStarted:
		var p domain.RoundStartedPayload
		_ = sonnet.Unmarshal(evt.Payload, &p)
		return fmt.Sprintf("Round %d started", evt.Epoch),
			fmt.Sprintf("Bets open until %d, closes at %d", p.LockTimestamp, p.CloseTimestamp)
	case domain.TopicRoundLocked:
		var p domain.RoundLockedPayload
		_ = sonnet.Unmarshal(evt.Payload, &p)
		return fmt.Sprintf("Round %d locked", evt.Epoch),
			fmt.Sprintf("Lock price %s at %d", p.Price, p.Timestamp)
	case domain.TopicRoundEnded:
		var p domain.RoundEndedPayload
		_ = sonnet.Unmarshal(evt.Payload, &p)
		return fmt.Sprintf("Round %d ended", evt.Epoch),
			fmt.Sprintf("Close price %s at %d", p.Price, p.Timestamp)
	case domain.TopicRewardsCalculated:
		var p domain.RewardsCalculatedPayload
		_ = sonnet.Unmarshal(evt.Payload, &p)
		return fmt.Sprintf("Round %d settled", evt.Epoch),
			fmt.Sprintf("Reward pool %s over base %s, treasury +%s", p.RewardAmount, p.RewardBaseCalAmount, p.TreasuryAmount)
	case domain.TopicBetPlaced:
		var p domain.BetPlacedPayload
		_ = sonnet.Unmarshal(evt.Payload, &p)
		who := "unknown"
		if evt.Account != nil {
			who = evt.Account.Hex()
		}
		return fmt.Sprintf("Bet on round %d", evt.Epoch),
			fmt.Sprintf("%s staked %s %s", who, p.Amount, p.Position)
	case domain.TopicFlashLoan:
		var p domain.FlashLoanPayload
		_ = sonnet.Unmarshal(evt.Payload, &p)
		recv := "unknown"
		if evt.Account != nil {
			recv = evt.Account.Hex()
		}
		return "Flash loan",
			fmt.Sprintf("%s borrowed %s, fee %s", recv, p.Amount, p.Fee)
	}
	return string(evt.Topic), fmt.Sprintf("event %d", evt.Seq)
}
