package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/server/middleware"
)

const maxBody = 1 << 20

// envelope is the body of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// writeJSON marshals v as the data of a success envelope. If marshaling
// fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	writeEnvelope(w, status, envelope{Success: true, Data: v})
}

// writeError sends a failure envelope with a machine-readable code.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeEnvelope(w, status, envelope{Error: code, Message: msg})
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	data, err := sonnet.Marshal(env)
	if err != nil {
		http.Error(w, `{"success":false,"error":"INTERNAL"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// StatusFor maps an error onto an HTTP status by its kind.
func StatusFor(err error) int {
	if errors.Is(err, domain.ErrOracleUnavailable) {
		return http.StatusBadGateway
	}
	switch domain.KindOf(err) {
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindPrecondition:
		return http.StatusConflict
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case domain.KindInvariant:
		return http.StatusUnprocessableEntity
	case domain.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeFailure reports err to the client. Classified errors carry their
// code; anything else is logged and hidden behind INTERNAL or
// ORACLE_UNAVAILABLE.
func writeFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := StatusFor(err)
	code := domain.CodeOf(err)
	switch status {
	case http.StatusBadGateway:
		code = "ORACLE_UNAVAILABLE"
		fallthrough
	case http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("request_id", middleware.RequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, status, code, "")
		return
	}
	writeError(w, status, code, err.Error())
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return sonnet.Unmarshal(body, v)
}

// pathEpoch parses the {epoch} path parameter.
func pathEpoch(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("epoch"), 10, 64)
}

// parseAddress parses a 0x hex address.
func parseAddress(s string) (domain.Address, error) {
	if !common.IsHexAddress(s) {
		return domain.Address{}, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// caller is the address the signature middleware verified. Routes that need
// it are always mounted behind that middleware.
func caller(r *http.Request) domain.Address {
	a, _ := middleware.Caller(r.Context())
	return a
}
