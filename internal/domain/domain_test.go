package domain_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

const maxUint256 = "115792089237316195423570985008687907853269984665640564039457584007913129639935"

func TestAmount_Arithmetic(t *testing.T) {
	a := domain.NewAmount(1_000)
	b := domain.NewAmount(250)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "1250", sum.String())

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, "750", diff.String())

	_, err = b.Sub(a)
	assert.ErrorIs(t, err, domain.ErrAmountUnderflow)

	_, err = domain.MustAmount(maxUint256).Add(domain.NewAmount(1))
	assert.ErrorIs(t, err, domain.ErrAmountOverflow)
}

func TestAmount_MulDiv(t *testing.T) {
	top := domain.MustAmount(maxUint256)

	// max * max / max needs the 512-bit intermediate.
	got, err := top.MulDiv(top, top)
	require.NoError(t, err)
	assert.True(t, got.Eq(top))

	_, err = top.MulDiv(domain.NewAmount(2), domain.NewAmount(1))
	assert.ErrorIs(t, err, domain.ErrAmountOverflow)

	got, err = domain.NewAmount(10).MulDiv(domain.NewAmount(1), domain.NewAmount(3))
	require.NoError(t, err)
	assert.Equal(t, "3", got.String(), "truncates toward zero")

	got, err = domain.NewAmount(10).MulDiv(domain.NewAmount(1), domain.Amount{})
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestAmount_Bps(t *testing.T) {
	assert.Equal(t, "300", domain.NewAmount(10_000).Bps(300).String())
	assert.Equal(t, "0", domain.NewAmount(199).Bps(50).String())
	assert.Equal(t, "5000", domain.NewAmount(1_000_000).Bps(50).String())
}

func TestAmount_ParseAndJSON(t *testing.T) {
	_, err := domain.ParseAmount("-1")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = domain.ParseAmount("1.5")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	b, err := json.Marshal(domain.BetInfo{Position: domain.Bull, Amount: domain.MustAmount(maxUint256)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"position":"bull","amount":"`+maxUint256+`","claimed":false}`, string(b))

	var bet domain.BetInfo
	require.NoError(t, json.Unmarshal(b, &bet))
	assert.Equal(t, maxUint256, bet.Amount.String())

	assert.Error(t, json.Unmarshal([]byte(`{"amount":"abc"}`), &bet))
}

func TestParsePosition(t *testing.T) {
	for in, want := range map[string]domain.Position{"bull": domain.Bull, " UP ": domain.Bull, "Bear": domain.Bear, "down": domain.Bear} {
		got, err := domain.ParsePosition(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := domain.ParsePosition("sideways")
	assert.ErrorIs(t, err, domain.ErrInvalidPosition)
}

func TestParseAddress(t *testing.T) {
	a, err := domain.ParseAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", a.Hex())

	_, err = domain.ParseAddress("0x0000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
	_, err = domain.ParseAddress("f39F")
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestRound_Winner(t *testing.T) {
	r := domain.Round{Status: domain.RoundClosed, LockPrice: domain.NewAmount(100), ClosePrice: domain.NewAmount(101)}
	pos, ok := r.Winner()
	assert.True(t, ok)
	assert.Equal(t, domain.Bull, pos)

	r.ClosePrice = domain.NewAmount(99)
	pos, ok = r.Winner()
	assert.True(t, ok)
	assert.Equal(t, domain.Bear, pos)

	r.ClosePrice = r.LockPrice
	_, ok = r.Winner()
	assert.False(t, ok, "a tie has no winner")

	r.Status = domain.RoundLocked
	r.ClosePrice = domain.NewAmount(200)
	_, ok = r.Winner()
	assert.False(t, ok)
}

func TestErrors_KindAndCode(t *testing.T) {
	err := fmt.Errorf("bet: %w", domain.ErrAlreadyBet)
	assert.Equal(t, domain.KindPrecondition, domain.KindOf(err))
	assert.Equal(t, "ALREADY_BET", domain.CodeOf(err))

	assert.Equal(t, domain.KindInternal, domain.KindOf(domain.ErrLockHeld))
	assert.Equal(t, "INTERNAL", domain.CodeOf(domain.ErrLockHeld))

	got, ok := domain.ErrorForCode("ROUND_NOT_FOUND")
	require.True(t, ok)
	assert.Same(t, domain.ErrRoundNotFound, got)
	_, ok = domain.ErrorForCode("NOPE")
	assert.False(t, ok)
}

func TestMarketConfig_Validate(t *testing.T) {
	cfg := domain.MarketConfig{
		Address:         domain.Address{1},
		Token:           domain.Address{2},
		IntervalSeconds: 300,
		BufferSeconds:   30,
		MinBetAmount:    domain.NewAmount(1),
		TreasuryFeeBps:  domain.MaxFeeBps,
	}
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.BufferSeconds = 300
	assert.ErrorIs(t, bad.Validate(), domain.ErrInvalidBufferInterval)

	bad = cfg
	bad.FlashLoanFeeBps = domain.MaxFeeBps + 1
	assert.ErrorIs(t, bad.Validate(), domain.ErrFeeTooHigh)

	bad = cfg
	bad.MinBetAmount = domain.Amount{}
	assert.ErrorIs(t, bad.Validate(), domain.ErrInvalidAmount)
}
