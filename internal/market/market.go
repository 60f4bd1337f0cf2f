// Package market is the round lifecycle and settlement engine: rounds, the
// bet ledger, reward and treasury accounting, and the flash loan. Every
// mutating operation runs as one ledger transaction on the shared host, so
// it either commits all of its writes or none.
package market

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictmarket/internal/access"
	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/ledger"
	"github.com/alanyoungcy/predictmarket/internal/token"
)

// Deps are the market's collaborators. Host and Prices are required; Auth
// defaults to the ledger-backed owner gate and Clock to the wall clock.
type Deps struct {
	Host   *ledger.Host
	Auth   domain.Authorizer
	Prices domain.PriceFeed
	Clock  domain.Clock
	Events domain.EventPublisher
	Logger *slog.Logger
}

// Market is a deployed prediction market.
type Market struct {
	host   *ledger.Host
	auth   domain.Authorizer
	prices domain.PriceFeed
	clock  domain.Clock
	events domain.EventPublisher
	logger *slog.Logger
	cfg    domain.MarketConfig
}

func newMarket(deps Deps) (*Market, error) {
	if deps.Host == nil {
		return nil, fmt.Errorf("market: ledger host is required")
	}
	if deps.Prices == nil {
		return nil, fmt.Errorf("market: price feed is required")
	}
	m := &Market{
		host:   deps.Host,
		auth:   deps.Auth,
		prices: deps.Prices,
		clock:  deps.Clock,
		events: deps.Events,
		logger: deps.Logger,
	}
	if m.auth == nil {
		m.auth = access.New(deps.Host)
	}
	if m.clock == nil {
		m.clock = domain.SystemClock{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With(slog.String("component", "market"))
	return m, nil
}

// Deploy initializes a new market in an empty ledger: it records cfg, a
// zeroed state and owner. It fails with ErrAlreadyInitialized when the
// ledger already holds a market.
func Deploy(ctx context.Context, deps Deps, owner domain.Address, cfg domain.MarketConfig) (*Market, error) {
	if owner == domain.ZeroAddress {
		return nil, fmt.Errorf("market: deploy: owner: %w", domain.ErrInvalidAddress)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("market: deploy: %w", err)
	}
	m, err := newMarket(deps)
	if err != nil {
		return nil, err
	}

	err = m.host.Update(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		exists, err := tx.Has(ctx, cfgKey)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrAlreadyInitialized
		}
		if err := ledger.Save(ctx, tx, cfgKey, cfg); err != nil {
			return err
		}
		if err := ledger.Save(ctx, tx, stateKey, domain.MarketState{}); err != nil {
			return err
		}
		return access.SetOwner(ctx, tx, owner)
	})
	if err != nil {
		return nil, fmt.Errorf("market: deploy: %w", err)
	}

	m.cfg = cfg
	m.logger.InfoContext(ctx, "market deployed",
		slog.String("address", cfg.Address.Hex()),
		slog.String("token", cfg.Token.Hex()),
		slog.String("owner", owner.Hex()),
	)
	return m, nil
}

// Open attaches to a market already deployed in the ledger.
func Open(ctx context.Context, deps Deps) (*Market, error) {
	m, err := newMarket(deps)
	if err != nil {
		return nil, err
	}
	ok, err := ledger.LoadOr(ctx, m.host.Store(), cfgKey, &m.cfg)
	if err != nil {
		return nil, fmt.Errorf("market: open: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("market: open: %w", domain.ErrNotInitialized)
	}
	return m, nil
}

// Owner is the current owner.
func (m *Market) Owner(ctx context.Context) (domain.Address, error) {
	return access.OwnerOf(ctx, m.host.Store())
}

// Config is the deployment configuration.
func (m *Market) Config() domain.MarketConfig { return m.cfg }

func (m *Market) now() uint64 {
	return uint64(m.clock.Now().Unix())
}

// session is the per-operation working set.
type session struct {
	m      *Market
	tx     *ledger.Tx
	now    uint64
	state  domain.MarketState
	events []domain.Event
}

func (s *session) token() *token.Ledger { return token.Open(s.tx, s.m.cfg.Token) }

// update runs fn as one transaction. Events emitted by fn are appended to
// the durable log in the same transaction and published after commit.
func (m *Market) update(ctx context.Context, op string, fn func(ctx context.Context, s *session) error) error {
	var committed []domain.Event
	err := m.host.Update(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		s := &session{m: m, tx: tx, now: m.now()}
		if err := ledger.Load(ctx, tx, stateKey, &s.state); err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		if err := fn(ctx, s); err != nil {
			return err
		}
		if err := s.flush(ctx); err != nil {
			return err
		}
		committed = s.events
		return nil
	})
	if err != nil {
		return fmt.Errorf("market: %s: %w", op, err)
	}

	if m.events != nil && len(committed) > 0 {
		m.events.Publish(ctx, committed)
	}
	return nil
}

func (s *session) flush(ctx context.Context) error {
	for _, evt := range s.events {
		if err := ledger.Save(ctx, s.tx, eventKey(evt.Seq), evt); err != nil {
			return err
		}
	}
	return ledger.Save(ctx, s.tx, stateKey, s.state)
}

func (s *session) requireOwner(ctx context.Context, caller domain.Address) error {
	ok, err := s.m.auth.IsOwner(ctx, caller)
	if err != nil {
		return fmt.Errorf("owner check: %w", err)
	}
	if !ok {
		return domain.ErrNotOwner
	}
	return nil
}

// price reads the oracle and rejects an empty quote.
func (s *session) price(ctx context.Context) (domain.Amount, error) {
	q, err := s.m.prices.LastPrice(ctx, s.m.cfg.Oracle)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("oracle: %w", err)
	}
	if q.Price.IsZero() {
		return domain.Amount{}, domain.ErrInvalidPrice
	}
	return q.Price, nil
}
