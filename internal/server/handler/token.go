package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// TokenService is the market's settlement token.
type TokenService interface {
	Asset() domain.Address
	Balance(ctx context.Context, owner domain.Address) (domain.Amount, error)
	Allowance(ctx context.Context, owner, spender domain.Address) (domain.Amount, error)
	TotalSupply(ctx context.Context) (domain.Amount, error)
	Approve(ctx context.Context, caller, spender domain.Address, amount domain.Amount) error
	Transfer(ctx context.Context, caller, to domain.Address, amount domain.Amount) error
	Mint(ctx context.Context, caller, to domain.Address, amount domain.Amount) error
}

type TokenHandler struct {
	token  TokenService
	logger *slog.Logger
}

func NewTokenHandler(token TokenService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{token: token, logger: logger.With(slog.String("handler", "token"))}
}

// Balance returns an account's balance, and its allowance towards spender
// when one is given.
// GET /api/token/balance/{addr}?spender=0x...
func (h *TokenHandler) Balance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(r.PathValue("addr"))
	if err != nil {
		writeFailure(w, r, h.logger, "balance", err)
		return
	}
	bal, err := h.token.Balance(r.Context(), owner)
	if err != nil {
		writeFailure(w, r, h.logger, "balance", err)
		return
	}
	resp := map[string]any{"token": h.token.Asset(), "owner": owner, "balance": bal}
	if s := r.URL.Query().Get("spender"); s != "" {
		spender, err := parseAddress(s)
		if err != nil {
			writeFailure(w, r, h.logger, "allowance", err)
			return
		}
		allowance, err := h.token.Allowance(r.Context(), owner, spender)
		if err != nil {
			writeFailure(w, r, h.logger, "allowance", err)
			return
		}
		resp["spender"] = spender
		resp["allowance"] = allowance
	}
	writeJSON(w, http.StatusOK, resp)
}

// Supply returns the total supply.
// GET /api/token/supply
func (h *TokenHandler) Supply(w http.ResponseWriter, r *http.Request) {
	supply, err := h.token.TotalSupply(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "supply", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": h.token.Asset(), "total_supply": supply})
}

type tokenMoveRequest struct {
	To     string        `json:"to"`
	Amount domain.Amount `json:"amount"`
}

// Approve sets the caller's allowance for a spender.
// POST /api/token/approve {"to":"<spender>","amount":"..."}
func (h *TokenHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "approve", h.token.Approve)
}

// Transfer moves the caller's tokens.
// POST /api/token/transfer
func (h *TokenHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "transfer", h.token.Transfer)
}

// Mint creates tokens; owner only.
// POST /api/token/mint
func (h *TokenHandler) Mint(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "mint", h.token.Mint)
}

func (h *TokenHandler) move(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, caller, to domain.Address, amount domain.Amount) error) {
	var req tokenMoveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeFailure(w, r, h.logger, op, err)
		return
	}
	if err := fn(r.Context(), caller(r), to, req.Amount); err != nil {
		writeFailure(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"op": op, "to": to, "amount": req.Amount})
}
