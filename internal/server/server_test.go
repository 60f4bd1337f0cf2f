package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictmarket/internal/access"
	"github.com/alanyoungcy/predictmarket/internal/crypto"
	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/flash"
	"github.com/alanyoungcy/predictmarket/internal/keeper"
	"github.com/alanyoungcy/predictmarket/internal/ledger"
	"github.com/alanyoungcy/predictmarket/internal/market"
	"github.com/alanyoungcy/predictmarket/internal/oracle"
	"github.com/alanyoungcy/predictmarket/internal/server"
	"github.com/alanyoungcy/predictmarket/internal/server/handler"
	"github.com/alanyoungcy/predictmarket/internal/store/memory"
	"github.com/alanyoungcy/predictmarket/internal/token"
)

const (
	ownerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	aliceKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	t0       = int64(1_700_000_000)
)

var (
	marketAdr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenAdr  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	repayAdr  = common.HexToAddress("0x0000000000000000000000000000000000000f1a")
)

type clock struct {
	mu  sync.Mutex
	now int64
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

func (c *clock) set(unix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = unix
}

type api struct {
	t      *testing.T
	h      http.Handler
	clock  *clock
	prices *oracle.StaticFeed
	owner  *crypto.Signer
	alice  *crypto.Signer
}

type reply struct {
	Status  int
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newAPI(t *testing.T) *api {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	owner, err := crypto.NewSigner(ownerKey)
	require.NoError(t, err)
	alice, err := crypto.NewSigner(aliceKey)
	require.NoError(t, err)

	host := ledger.NewHost(memory.New(), logger)
	c := &clock{now: t0}
	prices := oracle.NewStaticFeed()
	prices.Set("XLM", domain.NewAmount(100), uint64(t0))

	m, err := market.Deploy(ctx, market.Deps{Host: host, Prices: prices, Clock: c, Logger: logger}, owner.Address(), domain.MarketConfig{
		Address:         marketAdr,
		Token:           tokenAdr,
		Oracle:          "XLM",
		IntervalSeconds: 300,
		BufferSeconds:   60,
		MinBetAmount:    domain.NewAmount(10_000_000),
		TreasuryFeeBps:  500,
		FlashLoanFeeBps: 50,
	})
	require.NoError(t, err)

	owners := access.New(host)
	tok := token.NewService(host, tokenAdr, owners)
	receivers := flash.NewRegistry()
	require.NoError(t, receivers.Register(flash.NewRepayer(repayAdr, logger)))
	k := keeper.New(m, owner.Address(), keeper.WithLogger(logger))

	srv := server.NewServer(server.Config{}, server.Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Market:    handler.NewMarketHandler(m, receivers, logger),
		Ownership: handler.NewOwnershipHandler(owners, logger),
		Keeper:    handler.NewKeeperHandler(k, owners, logger),
		Token:     handler.NewTokenHandler(tok, logger),
	}, nil, nil, logger)

	return &api{t: t, h: srv.Handler(), clock: c, prices: prices, owner: owner, alice: alice}
}

func (a *api) do(method, path string, signer *crypto.Signer, body string) reply {
	a.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if signer != nil {
		require.NoError(a.t, signer.SignRequest(req, []byte(body), time.Now()))
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)

	var r reply
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &r), rec.Body.String())
	r.Status = rec.Code
	return r
}

func (a *api) get(path string) reply { return a.do(http.MethodGet, path, nil, "") }

func decode[T any](t *testing.T, r reply) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

func TestAPI_Health(t *testing.T) {
	a := newAPI(t)
	r := a.get("/api/health")
	assert.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, "ok", decode[map[string]any](t, r)["status"])
}

func TestAPI_GenesisNeedsOwnerSignature(t *testing.T) {
	a := newAPI(t)

	r := a.do(http.MethodPost, "/api/genesis/start", nil, "")
	assert.Equal(t, http.StatusUnauthorized, r.Status)
	assert.Equal(t, "SIGNATURE_REQUIRED", r.Error)

	r = a.do(http.MethodPost, "/api/genesis/start", a.alice, "")
	assert.Equal(t, http.StatusForbidden, r.Status)
	assert.Equal(t, "NOT_OWNER", r.Error)

	r = a.do(http.MethodPost, "/api/genesis/start", a.owner, "")
	require.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, domain.GenesisStatus{Started: true, CurrentEpoch: 1}, decode[domain.GenesisStatus](t, r))

	r = a.do(http.MethodPost, "/api/genesis/start", a.owner, "")
	assert.Equal(t, http.StatusConflict, r.Status)
	assert.Equal(t, "GENESIS_ALREADY_STARTED", r.Error)
}

func TestAPI_BetFlow(t *testing.T) {
	a := newAPI(t)
	alice := a.alice.Address().Hex()

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/genesis/start", a.owner, "").Status)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/token/mint", a.owner,
		`{"to":"`+alice+`","amount":"100000000"}`).Status)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/token/approve", a.alice,
		`{"to":"`+marketAdr.Hex()+`","amount":"100000000"}`).Status)

	a.clock.set(t0 + 10)
	r := a.do(http.MethodPost, "/api/bets", a.alice, `{"epoch":1,"amount":"10000000","position":"bull"}`)
	require.Equal(t, http.StatusCreated, r.Status, r.Error)
	bet := decode[domain.BetInfo](t, r)
	assert.Equal(t, domain.Bull, bet.Position)
	assert.Equal(t, "10000000", bet.Amount.String())

	r = a.do(http.MethodPost, "/api/bets", a.alice, `{"epoch":1,"amount":"10000000","position":"bear"}`)
	assert.Equal(t, http.StatusConflict, r.Status)
	assert.Equal(t, "ALREADY_BET", r.Error)

	r = a.get("/api/bets/1/" + alice)
	assert.Equal(t, http.StatusOK, r.Status)

	r = a.get("/api/bets/1/" + alice + "/payout")
	assert.Equal(t, http.StatusConflict, r.Status)
	assert.Equal(t, "ROUND_NOT_ENDED", r.Error)

	r = a.get("/api/users/" + alice + "/rounds")
	assert.Equal(t, []any{float64(1)}, decode[map[string]any](t, r)["epochs"])

	r = a.get("/api/token/balance/" + alice + "?spender=" + marketAdr.Hex())
	bal := decode[map[string]any](t, r)
	assert.Equal(t, "90000000", bal["balance"])
	assert.Equal(t, "90000000", bal["allowance"])

	r = a.get("/api/rounds/current")
	cur := decode[map[string]any](t, r)
	assert.Equal(t, float64(1), cur["epoch"])
	assert.Equal(t, "10000000", cur["round"].(map[string]any)["bull_amount"])

	r = a.get("/api/rounds/1/bettable")
	assert.Equal(t, true, decode[map[string]any](t, r)["bettable"])

	r = a.get("/api/events?since=0")
	evts := decode[[]domain.Event](t, r)
	require.Len(t, evts, 2)
	assert.Equal(t, domain.TopicBetPlaced, evts[1].Topic)
}

func TestAPI_BetRejections(t *testing.T) {
	a := newAPI(t)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/genesis/start", a.owner, "").Status)
	a.clock.set(t0 + 10)

	r := a.do(http.MethodPost, "/api/bets", a.alice, `{"epoch":1,"amount":"10000000","position":"bull"}`)
	assert.Equal(t, http.StatusPaymentRequired, r.Status)
	assert.Equal(t, "INSUFFICIENT_BALANCE", r.Error)

	r = a.do(http.MethodPost, "/api/bets", a.alice, `{"epoch":1,"amount":"1","position":"bull"}`)
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "BET_AMOUNT_TOO_LOW", r.Error)

	r = a.do(http.MethodPost, "/api/bets", a.alice, `not json`)
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "INVALID_BODY", r.Error)
}

func TestAPI_Reads(t *testing.T) {
	a := newAPI(t)

	r := a.get("/api/rounds/abc")
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "INVALID_EPOCH", r.Error)

	r = a.get("/api/rounds/9")
	assert.Equal(t, http.StatusNotFound, r.Status)
	assert.Equal(t, "ROUND_NOT_FOUND", r.Error)

	r = a.get("/api/bets/1/nope")
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "INVALID_ADDRESS", r.Error)

	r = a.get("/api/market/config")
	cfg := decode[map[string]any](t, r)
	assert.Equal(t, float64(300), cfg["interval_seconds"])
	assert.Equal(t, a.owner.Address().Hex(), common.HexToAddress(cfg["owner"].(string)).Hex())

	r = a.get("/api/market/treasury")
	assert.Equal(t, "0", decode[domain.Treasury](t, r).TreasuryAmount.String())

	r = a.get("/api/oracle/price")
	assert.Equal(t, "100", decode[domain.PriceQuote](t, r).Price.String())

	r = a.get("/api/rounds/current")
	assert.Equal(t, map[string]any{"epoch": float64(0)}, decode[map[string]any](t, r))
}

func TestAPI_OracleDownIsBadGateway(t *testing.T) {
	a := newAPI(t)
	a.prices.Fail(domain.ErrOracleUnavailable)

	r := a.get("/api/oracle/price")
	assert.Equal(t, http.StatusBadGateway, r.Status)
	assert.Equal(t, "ORACLE_UNAVAILABLE", r.Error)
}

func TestAPI_FlashLoan(t *testing.T) {
	a := newAPI(t)

	r := a.do(http.MethodPost, "/api/flash-loan", a.alice, `{"amount":"1000","receiver":"0x0000000000000000000000000000000000000bad"}`)
	assert.Equal(t, http.StatusNotFound, r.Status)
	assert.Equal(t, "RECEIVER_UNKNOWN", r.Error)

	r = a.do(http.MethodPost, "/api/flash-loan", a.alice, `{"amount":"1000","receiver":"`+repayAdr.Hex()+`"}`)
	assert.Equal(t, http.StatusPaymentRequired, r.Status)
	assert.Equal(t, "INSUFFICIENT_BALANCE", r.Error)

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/token/mint", a.owner,
		`{"to":"`+marketAdr.Hex()+`","amount":"1000000"}`).Status)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/token/mint", a.owner,
		`{"to":"`+repayAdr.Hex()+`","amount":"10000"}`).Status)

	r = a.do(http.MethodPost, "/api/flash-loan", a.alice, `{"amount":"1000000","receiver":"`+repayAdr.Hex()+`"}`)
	require.Equal(t, http.StatusOK, r.Status, r.Error)
	assert.Equal(t, "5000", decode[map[string]any](t, r)["fee"])
}

func TestAPI_Keeper(t *testing.T) {
	a := newAPI(t)

	r := a.get("/api/cron/status")
	st := decode[keeper.Status](t, r)
	assert.False(t, st.Running)
	assert.Equal(t, uint64(300), st.IntervalSeconds)

	r = a.do(http.MethodPost, "/api/cron/start", a.alice, "")
	assert.Equal(t, http.StatusForbidden, r.Status)

	r = a.do(http.MethodPost, "/api/cron/start", a.owner, "")
	assert.Equal(t, http.StatusConflict, r.Status)
	assert.Equal(t, "GENESIS_NOT_STARTED", r.Error)

	r = a.do(http.MethodPost, "/api/cron/pause", a.owner, "")
	assert.Equal(t, http.StatusConflict, r.Status)
	assert.Equal(t, "KEEPER_NOT_RUNNING", r.Error)
}

func TestAPI_Ownership(t *testing.T) {
	a := newAPI(t)
	alice := a.alice.Address().Hex()

	r := a.do(http.MethodPost, "/api/ownership/transfer", a.owner, `{"new_owner":"`+alice+`"}`)
	require.Equal(t, http.StatusOK, r.Status, r.Error)

	r = a.do(http.MethodPost, "/api/ownership/accept", a.owner, "")
	assert.Equal(t, http.StatusForbidden, r.Status)
	assert.Equal(t, "NOT_PENDING_OWNER", r.Error)

	r = a.do(http.MethodPost, "/api/ownership/accept", a.alice, "")
	require.Equal(t, http.StatusOK, r.Status)

	r = a.get("/api/ownership")
	st := decode[map[string]any](t, r)
	assert.Equal(t, a.alice.Address(), common.HexToAddress(st["owner"].(string)))

	r = a.do(http.MethodPost, "/api/genesis/start", a.owner, "")
	assert.Equal(t, "NOT_OWNER", r.Error)

	r = a.do(http.MethodPost, "/api/ownership/renounce", a.alice, "")
	require.Equal(t, http.StatusOK, r.Status)
	r = a.get("/api/market/config")
	assert.Equal(t, http.StatusOK, r.Status)
}
