// Package oracle supplies reference prices to the market.
package oracle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	maxRetries     = 3
	baseRetryWait  = 250 * time.Millisecond
)

// HTTPConfig configures HTTPFeed.
type HTTPConfig struct {
	BaseURL      string
	APIKey       string
	RatePerSec   float64
	Burst        int
	Timeout      time.Duration
	RetryBackoff time.Duration
}

// HTTPFeed reads prices from a REST endpoint
// GET {base}/prices/{asset} -> {"price":"<base-10 integer>","timestamp":<unix>}.
type HTTPFeed struct {
	http    *http.Client
	base    string
	apiKey  string
	limiter *rate.Limiter
	backoff time.Duration
	logger  *slog.Logger
}

type priceResponse struct {
	Price     string `json:"price"`
	Timestamp uint64 `json:"timestamp"`
}

// NewHTTPFeed builds a rate-limited feed client.
func NewHTTPFeed(cfg HTTPConfig, logger *slog.Logger) *HTTPFeed {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = baseRetryWait
	}
	return &HTTPFeed{
		http:    &http.Client{Timeout: cfg.Timeout},
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		backoff: cfg.RetryBackoff,
		logger:  logger.With(slog.String("component", "oracle")),
	}
}

// LastPrice fetches the current quote for asset, retrying transport errors,
// 429 and 5xx with exponential backoff.
func (f *HTTPFeed) LastPrice(ctx context.Context, asset string) (domain.PriceQuote, error) {
	endpoint := f.base + "/prices/" + url.PathEscape(asset)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := f.sleep(ctx, attempt); err != nil {
				return domain.PriceQuote{}, err
			}
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return domain.PriceQuote{}, fmt.Errorf("oracle: rate limiter: %w", err)
		}

		quote, retry, err := f.fetch(ctx, endpoint, asset)
		if err == nil {
			return quote, nil
		}
		lastErr = err
		if !retry {
			break
		}
		f.logger.WarnContext(ctx, "price fetch failed",
			slog.String("asset", asset),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return domain.PriceQuote{}, fmt.Errorf("oracle: last price %s: %w: %w", asset, domain.ErrOracleUnavailable, lastErr)
}

func (f *HTTPFeed) fetch(ctx context.Context, endpoint, asset string) (domain.PriceQuote, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.PriceQuote{}, false, err
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return domain.PriceQuote{}, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return domain.PriceQuote{}, true, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.PriceQuote{}, false, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return domain.PriceQuote{}, true, fmt.Errorf("read response: %w", err)
	}
	var pr priceResponse
	if err := sonnet.Unmarshal(body, &pr); err != nil {
		return domain.PriceQuote{}, false, fmt.Errorf("decode response: %w", err)
	}
	price, err := domain.ParseAmount(pr.Price)
	if err != nil {
		return domain.PriceQuote{}, false, err
	}
	return domain.PriceQuote{Asset: asset, Price: price, Timestamp: pr.Timestamp}, false, nil
}

func (f *HTTPFeed) sleep(ctx context.Context, attempt int) error {
	wait := f.backoff << (attempt - 1)
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ domain.PriceFeed = (*HTTPFeed)(nil)
