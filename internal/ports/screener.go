package ports

import (
	"context"

	"github.com/robobull/trader/internal/domain"
)

// Screener suggests symbols worth trading today. Best effort: on failure
// the engine falls back to the configured static list.
type Screener interface {
	// GetCandidateSymbols returns today's screened tickers, best first.
	GetCandidateSymbols(ctx context.Context) ([]string, error)

	// GetQuote returns a snapshot quote for the pre-submission screen.
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)
}
