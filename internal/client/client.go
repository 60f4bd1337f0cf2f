// Package client is a Go client for the prediction market HTTP API. Mutating
// calls are signed with the caller's key.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/predictmarket/internal/crypto"
	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/keeper"
)

// ErrNoSigner is returned by signed calls on a client built without a key.
var ErrNoSigner = errors.New("client: signed request needs a key")

// APIError is a non-2xx reply. It unwraps to the domain sentinel named by
// Code when there is one, so errors.Is works across the wire.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d %s", e.Status, e.Code)
}

func (e *APIError) Unwrap() error {
	if d, ok := domain.ErrorForCode(e.Code); ok {
		return d
	}
	if e.Status == http.StatusTooManyRequests {
		return domain.ErrRateLimited
	}
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// Client talks to one market API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	apiKey     string
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default client with a 30s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for baseURL, e.g. "http://localhost:8000". signer may
// be nil for read-only use.
func New(baseURL string, signer *crypto.Signer, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     signer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MarketInfo is the deployed configuration plus the current owner.
type MarketInfo struct {
	domain.MarketConfig
	Owner domain.Address `json:"owner"`
}

// CurrentRound is the current epoch and, after genesis, its round.
type CurrentRound struct {
	Epoch uint64        `json:"epoch"`
	Round *domain.Round `json:"round,omitempty"`
}

// FlashLoanResult is the reply to a flash loan.
type FlashLoanResult struct {
	Receiver domain.Address `json:"receiver"`
	Amount   domain.Amount  `json:"amount"`
	Fee      domain.Amount  `json:"fee"`
}

// UserRounds is one page of the epochs a user bet in.
type UserRounds struct {
	Epochs []uint64 `json:"epochs"`
	Total  int      `json:"total"`
}

func (c *Client) Market(ctx context.Context) (MarketInfo, error) {
	var out MarketInfo
	return out, c.get(ctx, "/api/market/config", &out)
}

func (c *Client) Treasury(ctx context.Context) (domain.Treasury, error) {
	var out domain.Treasury
	return out, c.get(ctx, "/api/market/treasury", &out)
}

func (c *Client) OraclePrice(ctx context.Context) (domain.PriceQuote, error) {
	var out domain.PriceQuote
	return out, c.get(ctx, "/api/oracle/price", &out)
}

func (c *Client) GenesisStatus(ctx context.Context) (domain.GenesisStatus, error) {
	var out domain.GenesisStatus
	return out, c.get(ctx, "/api/genesis/status", &out)
}

func (c *Client) GenesisStart(ctx context.Context) (domain.GenesisStatus, error) {
	var out domain.GenesisStatus
	return out, c.signed(ctx, http.MethodPost, "/api/genesis/start", nil, &out)
}

func (c *Client) GenesisLock(ctx context.Context) (domain.GenesisStatus, error) {
	var out domain.GenesisStatus
	return out, c.signed(ctx, http.MethodPost, "/api/genesis/lock", nil, &out)
}

// ExecuteRound advances one epoch and returns the new current round.
func (c *Client) ExecuteRound(ctx context.Context) (CurrentRound, error) {
	var out CurrentRound
	return out, c.signed(ctx, http.MethodPost, "/api/rounds/execute", nil, &out)
}

func (c *Client) CurrentRound(ctx context.Context) (CurrentRound, error) {
	var out CurrentRound
	return out, c.get(ctx, "/api/rounds/current", &out)
}

func (c *Client) Round(ctx context.Context, epoch uint64) (domain.Round, error) {
	var out domain.Round
	return out, c.get(ctx, "/api/rounds/"+strconv.FormatUint(epoch, 10), &out)
}

// Rounds fetches up to limit consecutive rounds from epoch from, stopping at
// the first epoch that does not exist yet.
func (c *Client) Rounds(ctx context.Context, from uint64, limit int) ([]domain.Round, error) {
	var out []domain.Round
	for e := from; len(out) < limit; e++ {
		r, err := c.Round(ctx, e)
		if errors.Is(err, domain.ErrRoundNotFound) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Bet stakes amount on pos in epoch as the signing key.
func (c *Client) Bet(ctx context.Context, epoch uint64, pos domain.Position, amount domain.Amount) (domain.BetInfo, error) {
	body := map[string]any{"epoch": epoch, "position": pos, "amount": amount}
	var out domain.BetInfo
	return out, c.signed(ctx, http.MethodPost, "/api/bets", body, &out)
}

func (c *Client) BetInfo(ctx context.Context, epoch uint64, user domain.Address) (domain.BetInfo, error) {
	var out domain.BetInfo
	return out, c.get(ctx, fmt.Sprintf("/api/bets/%d/%s", epoch, user.Hex()), &out)
}

func (c *Client) Payout(ctx context.Context, epoch uint64, user domain.Address) (domain.Amount, error) {
	var out struct {
		Payout domain.Amount `json:"payout"`
	}
	err := c.get(ctx, fmt.Sprintf("/api/bets/%d/%s/payout", epoch, user.Hex()), &out)
	return out.Payout, err
}

func (c *Client) UserRounds(ctx context.Context, user domain.Address, cursor, size int) (UserRounds, error) {
	q := url.Values{}
	q.Set("cursor", strconv.Itoa(cursor))
	q.Set("size", strconv.Itoa(size))
	var out UserRounds
	return out, c.get(ctx, "/api/users/"+user.Hex()+"/rounds?"+q.Encode(), &out)
}

func (c *Client) FlashLoan(ctx context.Context, amount domain.Amount, receiver domain.Address) (FlashLoanResult, error) {
	body := map[string]any{"amount": amount, "receiver": receiver.Hex()}
	var out FlashLoanResult
	return out, c.signed(ctx, http.MethodPost, "/api/flash-loan", body, &out)
}

func (c *Client) Events(ctx context.Context, since uint64, limit int) ([]domain.Event, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatUint(since, 10))
	q.Set("limit", strconv.Itoa(limit))
	var out []domain.Event
	return out, c.get(ctx, "/api/events?"+q.Encode(), &out)
}

func (c *Client) KeeperStatus(ctx context.Context) (keeper.Status, error) {
	var out keeper.Status
	return out, c.get(ctx, "/api/cron/status", &out)
}

func (c *Client) KeeperStart(ctx context.Context) (keeper.Status, error) {
	var out keeper.Status
	return out, c.signed(ctx, http.MethodPost, "/api/cron/start", nil, &out)
}

func (c *Client) KeeperPause(ctx context.Context) (keeper.Status, error) {
	var out keeper.Status
	return out, c.signed(ctx, http.MethodPost, "/api/cron/pause", nil, &out)
}

// Ownership is the current and pending owner.
type Ownership struct {
	Owner        domain.Address `json:"owner"`
	PendingOwner domain.Address `json:"pending_owner"`
}

func (c *Client) Ownership(ctx context.Context) (Ownership, error) {
	var out Ownership
	return out, c.get(ctx, "/api/ownership", &out)
}

// TransferOwnership nominates newOwner; it takes effect on AcceptOwnership.
func (c *Client) TransferOwnership(ctx context.Context, newOwner domain.Address) error {
	return c.signed(ctx, http.MethodPost, "/api/ownership/transfer", map[string]any{"new_owner": newOwner.Hex()}, nil)
}

func (c *Client) AcceptOwnership(ctx context.Context) error {
	return c.signed(ctx, http.MethodPost, "/api/ownership/accept", nil, nil)
}

// Balance is a token balance and, when a spender was named, its allowance.
type Balance struct {
	Owner     domain.Address  `json:"owner"`
	Balance   domain.Amount   `json:"balance"`
	Spender   *domain.Address `json:"spender,omitempty"`
	Allowance *domain.Amount  `json:"allowance,omitempty"`
}

// TokenBalance reads owner's balance. A zero spender skips the allowance.
func (c *Client) TokenBalance(ctx context.Context, owner, spender domain.Address) (Balance, error) {
	path := "/api/token/balance/" + owner.Hex()
	if spender != (domain.Address{}) {
		path += "?spender=" + spender.Hex()
	}
	var out Balance
	return out, c.get(ctx, path, &out)
}

func (c *Client) Approve(ctx context.Context, spender domain.Address, amount domain.Amount) error {
	return c.tokenMove(ctx, "approve", spender, amount)
}

func (c *Client) Transfer(ctx context.Context, to domain.Address, amount domain.Amount) error {
	return c.tokenMove(ctx, "transfer", to, amount)
}

// Mint is owner only.
func (c *Client) Mint(ctx context.Context, to domain.Address, amount domain.Amount) error {
	return c.tokenMove(ctx, "mint", to, amount)
}

func (c *Client) tokenMove(ctx context.Context, op string, to domain.Address, amount domain.Amount) error {
	body := map[string]any{"to": to.Hex(), "amount": amount}
	return c.signed(ctx, http.MethodPost, "/api/token/"+op, body, nil)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, false, out)
}

func (c *Client) signed(ctx context.Context, method, path string, body, out any) error {
	if c.signer == nil {
		return ErrNoSigner
	}
	return c.do(ctx, method, path, body, true, out)
}

// do builds, optionally signs, sends and decodes one request. out receives
// the envelope's data field.
func (c *Client) do(ctx context.Context, method, path string, body any, sign bool, out any) error {
	var raw []byte
	if body != nil {
		b, err := sonnet.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request body: %w", err)
		}
		raw = b
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if sign {
		if err := c.signer.SignRequest(req, raw, c.now()); err != nil {
			return fmt.Errorf("client: sign request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}

	var env envelope
	decodeErr := sonnet.Unmarshal(respBody, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Code: env.Error, Message: env.Message}
		if decodeErr != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("client: decode response: %w", decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := sonnet.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("client: decode data: %w", err)
	}
	return nil
}
