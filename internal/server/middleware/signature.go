package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/predictmarket/internal/crypto"
	"github.com/alanyoungcy/predictmarket/internal/domain"
)

const maxSignedBody = 1 << 20

type callerKey struct{}

// WithCaller returns ctx carrying the authenticated caller.
func WithCaller(ctx context.Context, caller domain.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// Caller returns the address Signature verified for the request.
func Caller(ctx context.Context) (domain.Address, bool) {
	a, ok := ctx.Value(callerKey{}).(domain.Address)
	return a, ok
}

// Signature authenticates the caller of a mutating request. The client signs
// crypto.RequestMessage with its key and sends address, unix timestamp, nonce
// and signature headers; requests older or newer than maxSkew are refused.
// Each signed message is accepted once: guard remembers it for twice maxSkew,
// which outlives the timestamp window. A nil guard keeps the set in process.
func Signature(maxSkew time.Duration, guard domain.ReplayGuard, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	if guard == nil {
		guard = NewLocalReplayGuard()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := r.Header.Get(crypto.HeaderAddress)
			sig := r.Header.Get(crypto.HeaderSignature)
			tsRaw := r.Header.Get(crypto.HeaderTimestamp)
			nonce := r.Header.Get(crypto.HeaderNonce)
			if addr == "" || sig == "" || tsRaw == "" || nonce == "" {
				writeFailure(w, http.StatusUnauthorized, "SIGNATURE_REQUIRED")
				return
			}
			if !common.IsHexAddress(addr) {
				writeFailure(w, http.StatusUnauthorized, "INVALID_ADDRESS")
				return
			}
			ts, err := strconv.ParseInt(tsRaw, 10, 64)
			if err != nil {
				writeFailure(w, http.StatusUnauthorized, "INVALID_TIMESTAMP")
				return
			}
			if skew := now().Sub(time.Unix(ts, 0)); skew > maxSkew || skew < -maxSkew {
				writeFailure(w, http.StatusUnauthorized, "SIGNATURE_EXPIRED")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
			if err != nil {
				writeFailure(w, http.StatusBadRequest, "UNREADABLE_BODY")
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			caller := common.HexToAddress(addr)
			msg := crypto.RequestMessage(r.Method, r.URL.Path, ts, nonce, body)
			if err := crypto.VerifyText(caller, msg, sig); err != nil {
				writeFailure(w, http.StatusUnauthorized, "BAD_SIGNATURE")
				return
			}

			// keyed on the message, not the signature bytes, which have more
			// than one valid encoding
			sum := sha256.Sum256([]byte(msg))
			seen, err := guard.Seen(r.Context(), caller.Hex()+":"+hex.EncodeToString(sum[:]), 2*maxSkew)
			if err != nil {
				writeFailure(w, http.StatusServiceUnavailable, "REPLAY_CHECK_FAILED")
				return
			}
			if seen {
				writeFailure(w, http.StatusUnauthorized, "SIGNATURE_REPLAYED")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}
