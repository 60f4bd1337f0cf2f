package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies an account: a user, the market itself, a token or a
// flash-loan receiver.
type Address = common.Address

// ZeroAddress is the unset address.
var ZeroAddress Address

// ParseAddress parses a 0x-prefixed hex address and rejects the zero
// address.
func ParseAddress(s string) (Address, error) {
	if !common.IsHexAddress(s) {
		return ZeroAddress, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	addr := common.HexToAddress(s)
	if addr == ZeroAddress {
		return ZeroAddress, fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}
	return addr, nil
}
