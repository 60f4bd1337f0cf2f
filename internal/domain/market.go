package domain

import "strings"

// Position is the side of a bet.
type Position string

const (
	Bull Position = "bull"
	Bear Position = "bear"
)

// ParsePosition accepts "bull"/"bear" (also "up"/"down"), case-insensitive.
func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bull", "up":
		return Bull, nil
	case "bear", "down":
		return Bear, nil
	}
	return "", ErrInvalidPosition
}

// RoundStatus is the lifecycle phase of a round.
type RoundStatus string

const (
	RoundOpen   RoundStatus = "open"
	RoundLocked RoundStatus = "locked"
	RoundClosed RoundStatus = "closed"
)

// Round is one epoch of the market. Timestamps are unix seconds; zero means
// unset. BullAmount + BearAmount == TotalAmount at all times.
type Round struct {
	Epoch               uint64      `json:"epoch"`
	Status              RoundStatus `json:"status"`
	StartTimestamp      uint64      `json:"start_timestamp"`
	LockTimestamp       uint64      `json:"lock_timestamp"`
	CloseTimestamp      uint64      `json:"close_timestamp"`
	LockPrice           Amount      `json:"lock_price"`
	ClosePrice          Amount      `json:"close_price"`
	TotalAmount         Amount      `json:"total_amount"`
	BullAmount          Amount      `json:"bull_amount"`
	BearAmount          Amount      `json:"bear_amount"`
	RewardBaseCalAmount Amount      `json:"reward_base_cal_amount"`
	RewardAmount        Amount      `json:"reward_amount"`
	Settled             bool        `json:"settled"`
}

// Winner reports the winning side of a closed round. ok is false while the
// round is not closed or when the close price equals the lock price.
func (r Round) Winner() (pos Position, ok bool) {
	if r.Status != RoundClosed {
		return "", false
	}
	switch r.ClosePrice.Cmp(r.LockPrice) {
	case 1:
		return Bull, true
	case -1:
		return Bear, true
	}
	return "", false
}

// BetInfo is a user's single bet in one epoch.
type BetInfo struct {
	Position Position `json:"position"`
	Amount   Amount   `json:"amount"`
	Claimed  bool     `json:"claimed"`
}

// MarketConfig is fixed at deployment.
type MarketConfig struct {
	Address         Address `json:"address"`
	Token           Address `json:"token"`
	Oracle          string  `json:"oracle"`
	IntervalSeconds uint64  `json:"interval_seconds"`
	BufferSeconds   uint64  `json:"buffer_seconds"`
	MinBetAmount    Amount  `json:"min_bet_amount"`
	TreasuryFeeBps  uint32  `json:"treasury_fee_bps"`
	FlashLoanFeeBps uint32  `json:"flash_loan_fee_bps"`
}

// MaxFeeBps caps both fee rates at 10%.
const MaxFeeBps = 1000

// Validate checks the deployment parameters.
func (c MarketConfig) Validate() error {
	switch {
	case c.Address == ZeroAddress, c.Token == ZeroAddress:
		return ErrInvalidAddress
	case c.IntervalSeconds == 0, c.BufferSeconds >= c.IntervalSeconds:
		return ErrInvalidBufferInterval
	case c.MinBetAmount.IsZero():
		return ErrInvalidAmount
	case c.TreasuryFeeBps > MaxFeeBps, c.FlashLoanFeeBps > MaxFeeBps:
		return ErrFeeTooHigh
	}
	return nil
}

// MarketState holds the mutable globals of a deployed market.
type MarketState struct {
	CurrentEpoch        uint64 `json:"current_epoch"`
	GenesisStarted      bool   `json:"genesis_started"`
	GenesisLocked       bool   `json:"genesis_locked"`
	TreasuryAmount      Amount `json:"treasury_amount"`
	FlashTreasuryAmount Amount `json:"flash_treasury_amount"`
	EventSeq            uint64 `json:"event_seq"`
}

// GenesisStatus is the pair of genesis flags plus the current epoch.
type GenesisStatus struct {
	Started      bool   `json:"started"`
	Locked       bool   `json:"locked"`
	CurrentEpoch uint64 `json:"current_epoch"`
}

// Treasury is the pair of fee accumulators.
type Treasury struct {
	TreasuryAmount      Amount `json:"treasury_amount"`
	FlashTreasuryAmount Amount `json:"flash_treasury_amount"`
}

// PriceQuote is one oracle reading.
type PriceQuote struct {
	Asset     string `json:"asset"`
	Price     Amount `json:"price"`
	Timestamp uint64 `json:"timestamp"`
}
