package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// OwnershipService is the two-step owner gate.
type OwnershipService interface {
	Owner(ctx context.Context) (domain.Address, error)
	PendingOwner(ctx context.Context) (domain.Address, error)
	TransferOwnership(ctx context.Context, caller, newOwner domain.Address) error
	AcceptOwnership(ctx context.Context, caller domain.Address) error
	RenounceOwnership(ctx context.Context, caller domain.Address) error
}

type OwnershipHandler struct {
	owners OwnershipService
	logger *slog.Logger
}

func NewOwnershipHandler(owners OwnershipService, logger *slog.Logger) *OwnershipHandler {
	return &OwnershipHandler{owners: owners, logger: logger.With(slog.String("handler", "ownership"))}
}

type ownershipResponse struct {
	Owner        domain.Address `json:"owner"`
	PendingOwner domain.Address `json:"pending_owner"`
}

// Transfer nominates a new owner.
// POST /api/ownership/transfer {"new_owner":"0x..."}
func (h *OwnershipHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewOwner string `json:"new_owner"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	next, err := parseAddress(req.NewOwner)
	if err != nil {
		writeFailure(w, r, h.logger, "transfer ownership", err)
		return
	}
	if err := h.owners.TransferOwnership(r.Context(), caller(r), next); err != nil {
		writeFailure(w, r, h.logger, "transfer ownership", err)
		return
	}
	h.Status(w, r)
}

// Accept completes a pending transfer.
// POST /api/ownership/accept
func (h *OwnershipHandler) Accept(w http.ResponseWriter, r *http.Request) {
	if err := h.owners.AcceptOwnership(r.Context(), caller(r)); err != nil {
		writeFailure(w, r, h.logger, "accept ownership", err)
		return
	}
	h.Status(w, r)
}

// Renounce leaves the market without an owner.
// POST /api/ownership/renounce
func (h *OwnershipHandler) Renounce(w http.ResponseWriter, r *http.Request) {
	if err := h.owners.RenounceOwnership(r.Context(), caller(r)); err != nil {
		writeFailure(w, r, h.logger, "renounce ownership", err)
		return
	}
	h.Status(w, r)
}

// Status returns the owner and pending owner.
// GET /api/ownership
func (h *OwnershipHandler) Status(w http.ResponseWriter, r *http.Request) {
	owner, err := h.owners.Owner(r.Context())
	if err != nil && !errors.Is(err, domain.ErrOwnerNotSet) {
		writeFailure(w, r, h.logger, "owner", err)
		return
	}
	pending, err := h.owners.PendingOwner(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "pending owner", err)
		return
	}
	writeJSON(w, http.StatusOK, ownershipResponse{Owner: owner, PendingOwner: pending})
}
