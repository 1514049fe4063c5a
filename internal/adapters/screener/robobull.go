// Package screener talks to the RoboBull screener API. It suggests
// tickers to trade and serves snapshot quotes for the pre-submission
// screen. Everything here is best effort; callers fall back to their
// static symbol list on error.
package screener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/robobull/trader/internal/domain"
)

const (
	defaultBase = "https://api.robobull.app"

	// The screener allows 120 requests per minute; stay at half of that.
	requestsPerSec = 1
	burst          = 5

	maxRetries    = 2
	baseRetryWait = 500 * time.Millisecond
)

// Client is the RoboBull screener HTTP client with rate limiting
// and retries. It implements ports.Screener.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// NewClient creates a Client for the given base URL. An empty base
// selects the production API.
func NewClient(base string) *Client {
	if base == "" {
		base = defaultBase
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(requestsPerSec, burst),
	}
}

type candidatesResponse struct {
	Symbols []string `json:"symbols"`
}

type quoteResponse struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent"`
}

// GetCandidateSymbols returns today's screened tickers, best first.
func (c *Client) GetCandidateSymbols(ctx context.Context) ([]string, error) {
	var out candidatesResponse
	if err := c.get(ctx, c.base+"/v1/screener/candidates", &out); err != nil {
		return nil, fmt.Errorf("screener.GetCandidateSymbols: %w", err)
	}
	return out.Symbols, nil
}

// GetQuote returns a snapshot quote for symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	var out quoteResponse
	if err := c.get(ctx, c.base+"/v1/quote/"+symbol, &out); err != nil {
		return domain.Quote{}, fmt.Errorf("screener.GetQuote: %s: %w", symbol, err)
	}
	return domain.Quote{
		Symbol:        out.Symbol,
		Price:         out.Price,
		ChangePercent: out.ChangePercent,
	}, nil
}

// get performs a rate-limited GET with retries on transient failures.
func (c *Client) get(ctx context.Context, url string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := baseRetryWait << attempt
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
