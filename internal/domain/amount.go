package domain

import (
	"fmt"

	"github.com/holiman/uint256"
)

// BasisPoints is the denominator for fee rates expressed in basis points.
const BasisPoints = 10_000

// Amount is an unsigned 256-bit token quantity or price. The zero value is
// zero. Amount is a value type: arithmetic returns new values and never
// mutates the receiver.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount holding n.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// ParseAmount parses a base-10 string.
func ParseAmount(s string) (Amount, error) {
	var a Amount
	if err := a.v.SetFromDecimal(s); err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return a, nil
}

// MustAmount is ParseAmount for constants and tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// Lt reports whether a < b.
func (a Amount) Lt(b Amount) bool { return a.v.Lt(&b.v) }

// Gt reports whether a > b.
func (a Amount) Gt(b Amount) bool { return a.v.Gt(&b.v) }

// Eq reports whether a == b.
func (a Amount) Eq(b Amount) bool { return a.v.Eq(&b.v) }

// Add returns a + b, or ErrAmountOverflow when the sum exceeds 2^256-1.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrAmountOverflow
	}
	return out, nil
}

// Sub returns a - b, or ErrAmountUnderflow when b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrAmountUnderflow
	}
	return out, nil
}

// MulDiv returns a * num / den truncated toward zero. The intermediate
// product is computed at 512 bits so it cannot overflow; the quotient can,
// which is reported as ErrAmountOverflow. A zero den returns zero.
func (a Amount) MulDiv(num, den Amount) (Amount, error) {
	if den.IsZero() {
		return Amount{}, nil
	}
	var out Amount
	if _, overflow := out.v.MulDivOverflow(&a.v, &num.v, &den.v); overflow {
		return Amount{}, ErrAmountOverflow
	}
	return out, nil
}

// Bps returns a * bps / 10000 truncated toward zero.
func (a Amount) Bps(bps uint32) Amount {
	out, _ := a.MulDiv(NewAmount(uint64(bps)), NewAmount(BasisPoints))
	return out
}

// String renders a in base 10.
func (a Amount) String() string { return a.v.Dec() }

// MarshalText encodes a as a base-10 string.
func (a Amount) MarshalText() ([]byte, error) { return []byte(a.v.Dec()), nil }

// UnmarshalText accepts a base-10 string.
func (a *Amount) UnmarshalText(b []byte) error {
	parsed, err := ParseAmount(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
