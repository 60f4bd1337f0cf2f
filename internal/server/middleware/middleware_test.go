package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictmarket/internal/crypto"
	"github.com/alanyoungcy/predictmarket/internal/server/middleware"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	h := middleware.Auth("s3cret", "/api/health")(ok)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/rounds/current", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"MISSING_API_KEY"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/rounds/current", nil)
	req.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/rounds/current", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, serve(h, req).Code)

	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/api/health", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(middleware.Auth("")(ok), httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestLogging_RequestID(t *testing.T) {
	var seen string
	h := middleware.Logging(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.RequestID(r.Context())
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(middleware.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc")
	rec = serve(h, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get(middleware.RequestIDHeader))
}

func TestCORS(t *testing.T) {
	h := middleware.CORS([]string{"https://app.example"})(ok)

	req := httptest.NewRequest(http.MethodOptions, "/api/bets", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := serve(h, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), crypto.HeaderSignature)

	req = httptest.NewRequest(http.MethodGet, "/api/bets", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit_LocalLimiter(t *testing.T) {
	h := middleware.RateLimit(middleware.NewLocalLimiter(), 2, time.Minute)(ok)

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		codes = append(codes, serve(h, req).Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	assert.Equal(t, http.StatusOK, serve(h, req).Code)

	// writes from the throttled IP have their own bucket
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, http.StatusOK, serve(h, req).Code)
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/rounds/current", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "read:10.0.0.1", middleware.RateLimitKey(req))

	req = httptest.NewRequest(http.MethodPost, "/api/bets", nil)
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	assert.Equal(t, "write:203.0.113.7", middleware.RateLimitKey(req))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "write:198.51.100.2", middleware.RateLimitKey(req))
}

func signedRequest(t *testing.T, signer *crypto.Signer, body string, at time.Time) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/bets", bytes.NewBufferString(body))
	require.NoError(t, signer.SignRequest(req, []byte(body), at))
	return req
}

func TestSignature(t *testing.T) {
	signer, err := crypto.NewSigner(testKey)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	var caller string
	var body string
	h := middleware.Signature(time.Minute, nil, clock)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := middleware.Caller(r.Context())
		require.True(t, ok)
		caller = a.Hex()
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	}))

	rec := serve(h, signedRequest(t, signer, `{"epoch":1}`, now))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, signer.Address().Hex(), caller)
	assert.Equal(t, `{"epoch":1}`, body)

	t.Run("missing headers", func(t *testing.T) {
		rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/bets", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "SIGNATURE_REQUIRED")
	})

	t.Run("expired", func(t *testing.T) {
		rec := serve(h, signedRequest(t, signer, `{}`, now.Add(-2*time.Minute)))
		assert.Contains(t, rec.Body.String(), "SIGNATURE_EXPIRED")
	})

	t.Run("tampered body", func(t *testing.T) {
		req := signedRequest(t, signer, `{"epoch":1}`, now)
		req.Body = io.NopCloser(bytes.NewBufferString(`{"epoch":2}`))
		rec := serve(h, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "BAD_SIGNATURE")
	})

	t.Run("claimed address differs", func(t *testing.T) {
		req := signedRequest(t, signer, `{}`, now)
		req.Header.Set(crypto.HeaderAddress, "0x0000000000000000000000000000000000000a11")
		assert.Contains(t, serve(h, req).Body.String(), "BAD_SIGNATURE")
	})

	_, found := middleware.Caller(context.Background())
	assert.False(t, found)
}

func TestSignature_RejectsReplayedRequest(t *testing.T) {
	signer, err := crypto.NewSigner(testKey)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	h := middleware.Signature(time.Minute, nil, func() time.Time { return now })(ok)

	body := `{"to":"0x0000000000000000000000000000000000000b0b","amount":"5"}`
	orig := httptest.NewRequest(http.MethodPost, "/api/token/transfer", bytes.NewBufferString(body))
	require.NoError(t, signer.SignRequest(orig, []byte(body), now))
	resend := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/token/transfer", bytes.NewBufferString(body))
		req.Header = orig.Header.Clone()
		return serve(h, req)
	}

	assert.Equal(t, http.StatusOK, resend().Code)
	for range 2 {
		rec := resend()
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "SIGNATURE_REPLAYED")
	}

	// a fresh signature over the same body is a new request
	assert.Equal(t, http.StatusOK, serve(h, signedRequest(t, signer, body, now)).Code)

	t.Run("missing nonce", func(t *testing.T) {
		req := signedRequest(t, signer, `{}`, now)
		req.Header.Del(crypto.HeaderNonce)
		assert.Contains(t, serve(h, req).Body.String(), "SIGNATURE_REQUIRED")
	})

	t.Run("nonce swapped", func(t *testing.T) {
		req := signedRequest(t, signer, `{}`, now)
		req.Header.Set(crypto.HeaderNonce, "other")
		assert.Contains(t, serve(h, req).Body.String(), "BAD_SIGNATURE")
	})
}

type brokenGuard struct{}

func (brokenGuard) Seen(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestSignature_GuardUnavailable(t *testing.T) {
	signer, err := crypto.NewSigner(testKey)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	h := middleware.Signature(time.Minute, brokenGuard{}, func() time.Time { return now })(ok)

	rec := serve(h, signedRequest(t, signer, `{}`, now))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "REPLAY_CHECK_FAILED")
}

func TestLocalReplayGuard(t *testing.T) {
	g := middleware.NewLocalReplayGuard()
	ctx := context.Background()

	seen, err := g.Seen(ctx, "a", 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, _ = g.Seen(ctx, "a", 20*time.Millisecond)
	assert.True(t, seen)

	time.Sleep(30 * time.Millisecond)
	seen, _ = g.Seen(ctx, "a", 20*time.Millisecond)
	assert.False(t, seen, "expired ids are accepted again")

	_, _ = g.Seen(ctx, "b", 20*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	_, _ = g.Seen(ctx, "c", 20*time.Millisecond)
	assert.Equal(t, 1, g.Len(), "expired ids are swept")
}
