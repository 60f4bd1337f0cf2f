package market

import (
	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/ledger"
)

const (
	cfgKey   = "cfg"
	stateKey = "state"
)

func roundKey(epoch uint64) string { return ledger.Key("round", ledger.EpochKey(epoch)) }

func betKey(epoch uint64, user domain.Address) string {
	return ledger.Key("bet", ledger.EpochKey(epoch), ledger.AddrKey(user))
}

func userRoundsKey(user domain.Address) string {
	return ledger.Key("user_rounds", ledger.AddrKey(user))
}

func eventKey(seq uint64) string { return ledger.Key("evt", ledger.EpochKey(seq)) }
