package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// MarketService is what the market routes need from *market.Market.
type MarketService interface {
	Config() domain.MarketConfig
	Owner(ctx context.Context) (domain.Address, error)
	GenesisStartRound(ctx context.Context, caller domain.Address) error
	GenesisLockRound(ctx context.Context, caller domain.Address) error
	GenesisStatus(ctx context.Context) (domain.GenesisStatus, error)
	ExecuteRound(ctx context.Context, caller domain.Address) error
	CurrentEpoch(ctx context.Context) (uint64, error)
	Round(ctx context.Context, epoch uint64) (domain.Round, error)
	IsBettable(ctx context.Context, epoch uint64) (bool, error)
	PlaceBet(ctx context.Context, caller domain.Address, epoch uint64, user domain.Address, amount domain.Amount, pos domain.Position) error
	BetInfo(ctx context.Context, epoch uint64, user domain.Address) (domain.BetInfo, error)
	UserRounds(ctx context.Context, user domain.Address, cursor, size int) ([]uint64, int, error)
	ExpectedPayout(ctx context.Context, epoch uint64, user domain.Address) (domain.Amount, error)
	Treasury(ctx context.Context) (domain.Treasury, error)
	OraclePrice(ctx context.Context) (domain.PriceQuote, error)
	EventsSince(ctx context.Context, since uint64, limit int) ([]domain.Event, error)
	FlashLoan(ctx context.Context, caller domain.Address, amount domain.Amount, receiver domain.FlashLoanReceiver) (domain.Amount, error)
}

// ReceiverLookup resolves flash-loan receivers by address.
type ReceiverLookup interface {
	Lookup(addr domain.Address) (domain.FlashLoanReceiver, error)
}

// MarketHandler serves the genesis, round, bet, flash-loan and read routes.
type MarketHandler struct {
	market    MarketService
	receivers ReceiverLookup
	logger    *slog.Logger
}

func NewMarketHandler(market MarketService, receivers ReceiverLookup, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		market:    market,
		receivers: receivers,
		logger:    logger.With(slog.String("handler", "market")),
	}
}

// GenesisStart opens epoch 1.
// POST /api/genesis/start
func (h *MarketHandler) GenesisStart(w http.ResponseWriter, r *http.Request) {
	if err := h.market.GenesisStartRound(r.Context(), caller(r)); err != nil {
		writeFailure(w, r, h.logger, "genesis start", err)
		return
	}
	h.writeGenesis(w, r)
}

// GenesisLock locks epoch 1 and opens epoch 2.
// POST /api/genesis/lock
func (h *MarketHandler) GenesisLock(w http.ResponseWriter, r *http.Request) {
	if err := h.market.GenesisLockRound(r.Context(), caller(r)); err != nil {
		writeFailure(w, r, h.logger, "genesis lock", err)
		return
	}
	h.writeGenesis(w, r)
}

// GenesisStatus reports the genesis flags.
// GET /api/genesis/status
func (h *MarketHandler) GenesisStatus(w http.ResponseWriter, r *http.Request) {
	h.writeGenesis(w, r)
}

func (h *MarketHandler) writeGenesis(w http.ResponseWriter, r *http.Request) {
	gs, err := h.market.GenesisStatus(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "genesis status", err)
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

// ExecuteRound advances the market by one epoch.
// POST /api/rounds/execute
func (h *MarketHandler) ExecuteRound(w http.ResponseWriter, r *http.Request) {
	if err := h.market.ExecuteRound(r.Context(), caller(r)); err != nil {
		writeFailure(w, r, h.logger, "execute round", err)
		return
	}
	h.CurrentRound(w, r)
}

type currentRoundResponse struct {
	Epoch uint64        `json:"epoch"`
	Round *domain.Round `json:"round,omitempty"`
}

// CurrentRound returns the current epoch and its round, if any.
// GET /api/rounds/current
func (h *MarketHandler) CurrentRound(w http.ResponseWriter, r *http.Request) {
	epoch, err := h.market.CurrentEpoch(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "current epoch", err)
		return
	}
	resp := currentRoundResponse{Epoch: epoch}
	if epoch > 0 {
		round, err := h.market.Round(r.Context(), epoch)
		if err != nil {
			writeFailure(w, r, h.logger, "current round", err)
			return
		}
		resp.Round = &round
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRound returns one round.
// GET /api/rounds/{epoch}
func (h *MarketHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	epoch, err := pathEpoch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_EPOCH", err.Error())
		return
	}
	round, err := h.market.Round(r.Context(), epoch)
	if err != nil {
		writeFailure(w, r, h.logger, "get round", err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// Bettable reports whether a round accepts bets now.
// GET /api/rounds/{epoch}/bettable
func (h *MarketHandler) Bettable(w http.ResponseWriter, r *http.Request) {
	epoch, err := pathEpoch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_EPOCH", err.Error())
		return
	}
	ok, err := h.market.IsBettable(r.Context(), epoch)
	if err != nil {
		writeFailure(w, r, h.logger, "bettable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"epoch": epoch, "bettable": ok})
}

type placeBetRequest struct {
	Epoch    uint64          `json:"epoch"`
	Amount   domain.Amount   `json:"amount"`
	Position domain.Position `json:"position"`
}

// PlaceBet stakes the caller's tokens on the current round.
// POST /api/bets
func (h *MarketHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	user := caller(r)
	if err := h.market.PlaceBet(r.Context(), user, req.Epoch, user, req.Amount, req.Position); err != nil {
		writeFailure(w, r, h.logger, "place bet", err)
		return
	}
	bet, err := h.market.BetInfo(r.Context(), req.Epoch, user)
	if err != nil {
		writeFailure(w, r, h.logger, "bet info", err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

// GetBet returns a user's bet in a round.
// GET /api/bets/{epoch}/{user}
func (h *MarketHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	epoch, user, ok := h.betPath(w, r)
	if !ok {
		return
	}
	bet, err := h.market.BetInfo(r.Context(), epoch, user)
	if err != nil {
		writeFailure(w, r, h.logger, "get bet", err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

// Payout returns what a settled bet is owed.
// GET /api/bets/{epoch}/{user}/payout
func (h *MarketHandler) Payout(w http.ResponseWriter, r *http.Request) {
	epoch, user, ok := h.betPath(w, r)
	if !ok {
		return
	}
	amount, err := h.market.ExpectedPayout(r.Context(), epoch, user)
	if err != nil {
		writeFailure(w, r, h.logger, "payout", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"epoch": epoch, "user": user, "payout": amount})
}

func (h *MarketHandler) betPath(w http.ResponseWriter, r *http.Request) (uint64, domain.Address, bool) {
	epoch, err := pathEpoch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_EPOCH", err.Error())
		return 0, domain.Address{}, false
	}
	user, err := parseAddress(r.PathValue("user"))
	if err != nil {
		writeFailure(w, r, h.logger, "bet path", err)
		return 0, domain.Address{}, false
	}
	return epoch, user, true
}

type userRoundsResponse struct {
	Epochs []uint64 `json:"epochs"`
	Total  int      `json:"total"`
}

// UserRounds pages through the epochs a user bet in.
// GET /api/users/{user}/rounds?cursor=0&size=50
func (h *MarketHandler) UserRounds(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress(r.PathValue("user"))
	if err != nil {
		writeFailure(w, r, h.logger, "user rounds", err)
		return
	}
	size := min(queryInt(r, "size", 50), 500)
	epochs, total, err := h.market.UserRounds(r.Context(), user, queryInt(r, "cursor", 0), size)
	if err != nil {
		writeFailure(w, r, h.logger, "user rounds", err)
		return
	}
	if epochs == nil {
		epochs = []uint64{}
	}
	writeJSON(w, http.StatusOK, userRoundsResponse{Epochs: epochs, Total: total})
}

type flashLoanRequest struct {
	Amount   domain.Amount `json:"amount"`
	Receiver string        `json:"receiver"`
}

// FlashLoan lends to a registered receiver for one callback.
// POST /api/flash-loan
func (h *MarketHandler) FlashLoan(w http.ResponseWriter, r *http.Request) {
	var req flashLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	addr, err := parseAddress(req.Receiver)
	if err != nil {
		writeFailure(w, r, h.logger, "flash loan", err)
		return
	}
	recv, err := h.receivers.Lookup(addr)
	if err != nil {
		writeFailure(w, r, h.logger, "flash loan", err)
		return
	}
	fee, err := h.market.FlashLoan(r.Context(), caller(r), req.Amount, recv)
	if err != nil {
		writeFailure(w, r, h.logger, "flash loan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receiver": addr, "amount": req.Amount, "fee": fee})
}

// OraclePrice returns the oracle's current quote.
// GET /api/oracle/price
func (h *MarketHandler) OraclePrice(w http.ResponseWriter, r *http.Request) {
	q, err := h.market.OraclePrice(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "oracle price", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type configResponse struct {
	domain.MarketConfig
	Owner domain.Address `json:"owner"`
}

// Config returns the market configuration and owner.
// GET /api/market/config
func (h *MarketHandler) Config(w http.ResponseWriter, r *http.Request) {
	owner, err := h.market.Owner(r.Context())
	if err != nil && !errors.Is(err, domain.ErrOwnerNotSet) {
		writeFailure(w, r, h.logger, "owner", err)
		return
	}
	writeJSON(w, http.StatusOK, configResponse{MarketConfig: h.market.Config(), Owner: owner})
}

// Treasury returns both fee accumulators.
// GET /api/market/treasury
func (h *MarketHandler) Treasury(w http.ResponseWriter, r *http.Request) {
	t, err := h.market.Treasury(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "treasury", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Events returns the event log after a sequence number.
// GET /api/events?since=0&limit=100
func (h *MarketHandler) Events(w http.ResponseWriter, r *http.Request) {
	since := uint64(queryInt(r, "since", 0))
	limit := min(queryInt(r, "limit", 100), 1000)
	evts, err := h.market.EventsSince(r.Context(), since, limit)
	if err != nil {
		writeFailure(w, r, h.logger, "events", err)
		return
	}
	if evts == nil {
		evts = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, evts)
}
