package ports

import (
	"context"
	"time"

	"github.com/robobull/trader/internal/domain"
)

// OrderFilter narrows a broker order query.
type OrderFilter struct {
	Status string // "open" | "closed" | "all"
	After  time.Time
	Until  time.Time
}

// OrderRequest is a new order submission.
type OrderRequest struct {
	Symbol      string
	Qty         float64
	Side        domain.Side
	Type        string // "market" | "limit"
	TimeInForce string // "day"
}

// Broker exposes the brokerage account and order endpoints. The core never
// touches the broker's wire formats; adapters translate to domain types.
type Broker interface {
	// GetClock returns the market calendar state.
	GetClock(ctx context.Context) (domain.Clock, error)

	// GetAccount returns the current account snapshot.
	GetAccount(ctx context.Context) (domain.Account, error)

	// GetPositions returns the broker's view of open positions.
	GetPositions(ctx context.Context) ([]domain.BrokerPosition, error)

	// GetOrders returns orders matching the filter.
	GetOrders(ctx context.Context, filter OrderFilter) ([]domain.BrokerOrder, error)

	// CreateOrder submits an order and returns the broker's confirmation.
	CreateOrder(ctx context.Context, req OrderRequest) (domain.BrokerOrder, error)
}

// BarStream delivers live market bars for subscribed symbols.
type BarStream interface {
	// Connect opens the stream. The handler installed via Subscribe starts
	// receiving bars once connected.
	Connect(ctx context.Context) error

	// Subscribe adds symbols to the bar subscription. Safe to call again
	// with an expanded set; already-subscribed symbols are ignored.
	Subscribe(ctx context.Context, symbols []string, handler func(domain.Bar)) error

	// Disconnect tears the stream down. Terminal for the session.
	Disconnect() error
}

// MarketData provides historical bars, used to backfill live symbol state
// and to feed backtest day replays.
type MarketData interface {
	// GetBars returns one-minute bars per symbol for the given window,
	// ordered by timestamp.
	GetBars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.Bar, error)
}
