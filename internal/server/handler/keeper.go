package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictmarket/internal/keeper"
)

// KeeperControl starts and pauses the round keeper.
type KeeperControl interface {
	Start(ctx context.Context) error
	Pause() error
	Status() keeper.Status
}

type KeeperHandler struct {
	keeper KeeperControl
	owner  OwnershipService
	logger *slog.Logger
}

func NewKeeperHandler(k KeeperControl, owner OwnershipService, logger *slog.Logger) *KeeperHandler {
	return &KeeperHandler{keeper: k, owner: owner, logger: logger.With(slog.String("handler", "keeper"))}
}

// Start begins automatic round execution; owner only.
// POST /api/cron/start
func (h *KeeperHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.requireOwner(w, r) {
		return
	}
	if err := h.keeper.Start(r.Context()); err != nil {
		writeFailure(w, r, h.logger, "keeper start", err)
		return
	}
	writeJSON(w, http.StatusOK, h.keeper.Status())
}

// Pause stops automatic round execution; owner only.
// POST /api/cron/pause
func (h *KeeperHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if !h.requireOwner(w, r) {
		return
	}
	if err := h.keeper.Pause(); err != nil {
		writeFailure(w, r, h.logger, "keeper pause", err)
		return
	}
	writeJSON(w, http.StatusOK, h.keeper.Status())
}

// Status reports the keeper.
// GET /api/cron/status
func (h *KeeperHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.keeper.Status())
}

func (h *KeeperHandler) requireOwner(w http.ResponseWriter, r *http.Request) bool {
	owner, err := h.owner.Owner(r.Context())
	if err == nil && owner == caller(r) {
		return true
	}
	writeError(w, http.StatusForbidden, "NOT_OWNER", "caller is not the owner")
	return false
}
