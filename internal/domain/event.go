package domain

import "encoding/json"

// Topic names an event kind.
type Topic string

const (
	TopicRoundStarted      Topic = "round_started"
	TopicRoundLocked       Topic = "round_locked"
	TopicBetPlaced         Topic = "bet_placed"
	TopicRoundEnded        Topic = "round_ended"
	TopicRewardsCalculated Topic = "rewards_calculated"
	TopicFlashLoan         Topic = "flash_loan"
)

// Event is one entry of the market's durable event log. Seq is dense and
// starts at 1.
type Event struct {
	Seq       uint64          `json:"seq"`
	Topic     Topic           `json:"topic"`
	Epoch     uint64          `json:"epoch,omitempty"`
	Account   *Address        `json:"account,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp uint64          `json:"timestamp"`
}

type RoundStartedPayload struct {
	StartTimestamp uint64 `json:"start_timestamp"`
	LockTimestamp  uint64 `json:"lock_timestamp"`
	CloseTimestamp uint64 `json:"close_timestamp"`
}

type RoundLockedPayload struct {
	Timestamp uint64 `json:"timestamp"`
	Price     Amount `json:"price"`
}

type BetPlacedPayload struct {
	Amount   Amount   `json:"amount"`
	Position Position `json:"position"`
}

type RoundEndedPayload struct {
	Timestamp uint64 `json:"timestamp"`
	Price     Amount `json:"price"`
}

type RewardsCalculatedPayload struct {
	RewardBaseCalAmount Amount `json:"reward_base_cal_amount"`
	RewardAmount        Amount `json:"reward_amount"`
	TreasuryAmount      Amount `json:"treasury_amount"`
}

type FlashLoanPayload struct {
	Caller Address `json:"caller"`
	Amount Amount  `json:"amount"`
	Fee    Amount  `json:"fee"`
}
