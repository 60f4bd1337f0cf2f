package market_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/ledger"
	"github.com/alanyoungcy/predictmarket/internal/market"
	"github.com/alanyoungcy/predictmarket/internal/oracle"
	"github.com/alanyoungcy/predictmarket/internal/store/memory"
	"github.com/alanyoungcy/predictmarket/internal/token"
)

const (
	t0       = uint64(1_700_000_000)
	interval = uint64(300)
	buffer   = uint64(60)
	asset    = "XLM"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	marketAdr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenAdr  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol     = common.HexToAddress("0x000000000000000000000000000000000000ca01")

	minBet = domain.NewAmount(10_000_000)
)

type fakeClock struct {
	mu  sync.Mutex
	now uint64
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(int64(c.now), 0)
}

func (c *fakeClock) Set(unix uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = unix
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(_ context.Context, events []domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *recorder) topics() []domain.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Topic, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Topic)
	}
	return out
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	host   *ledger.Host
	clock  *fakeClock
	prices *oracle.StaticFeed
	events *recorder
	m      *market.Market
}

func defaultConfig() domain.MarketConfig {
	return domain.MarketConfig{
		Address:         marketAdr,
		Token:           tokenAdr,
		Oracle:          asset,
		IntervalSeconds: interval,
		BufferSeconds:   buffer,
		MinBetAmount:    minBet,
		TreasuryFeeBps:  500,
		FlashLoanFeeBps: 50,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		store:  memory.New(),
		clock:  &fakeClock{now: t0},
		prices: oracle.NewStaticFeed(),
		events: &recorder{},
	}
	h.host = ledger.NewHost(h.store, nil)
	h.prices.Set(asset, domain.NewAmount(100), t0)

	m, err := market.Deploy(h.ctx, h.deps(), owner, defaultConfig())
	require.NoError(t, err)
	h.m = m

	for _, u := range []domain.Address{alice, bob, carol} {
		h.fund(u, domain.NewAmount(1_000_000_000))
	}
	return h
}

func (h *harness) deps() market.Deps {
	return market.Deps{
		Host:   h.host,
		Prices: h.prices,
		Clock:  h.clock,
		Events: h.events,
	}
}

// fund mints to user and approves the market for the same amount.
func (h *harness) fund(user domain.Address, amount domain.Amount) {
	h.t.Helper()
	tok := token.Open(h.store, tokenAdr)
	require.NoError(h.t, tok.Mint(h.ctx, user, amount))
	require.NoError(h.t, tok.Approve(h.ctx, user, marketAdr, amount))
}

func (h *harness) balance(addr domain.Address) domain.Amount {
	h.t.Helper()
	bal, err := token.Open(h.store, tokenAdr).Balance(h.ctx, addr)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) at(offset uint64) { h.clock.Set(t0 + offset) }

func (h *harness) price(p uint64) {
	h.prices.Set(asset, domain.NewAmount(p), uint64(h.clock.Now().Unix()))
}

func (h *harness) round(epoch uint64) domain.Round {
	h.t.Helper()
	r, err := h.m.Round(h.ctx, epoch)
	require.NoError(h.t, err)
	return r
}

func (h *harness) state() domain.MarketState {
	h.t.Helper()
	st, err := h.m.State(h.ctx)
	require.NoError(h.t, err)
	return st
}

// genesis runs start at t0 and lock at t0+interval with lockPrice.
func (h *harness) genesis(lockPrice uint64) {
	h.t.Helper()
	h.at(0)
	require.NoError(h.t, h.m.GenesisStartRound(h.ctx, owner))
	h.at(interval)
	h.price(lockPrice)
	require.NoError(h.t, h.m.GenesisLockRound(h.ctx, owner))
}

func amt(n uint64) domain.Amount { return domain.NewAmount(n) }
