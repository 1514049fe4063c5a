// Package alpaca adapts the Alpaca trading and market-data APIs to the
// engine's broker, historical-data and bar-stream ports. Decimal values
// stay inside this package; the core works in float64.
package alpaca

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"github.com/robobull/trader/internal/domain"
	"github.com/robobull/trader/internal/ports"
)

// Config carries the Alpaca credentials and endpoints.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string // paper or live trading endpoint
	DataFeed  string // "iex" (default) or "sip"
}

// Broker implements ports.Broker over the Alpaca REST API.
type Broker struct {
	client *alpaca.Client
}

// NewBroker creates a REST broker client.
func NewBroker(cfg Config) *Broker {
	return &Broker{client: alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})}
}

func (b *Broker) GetClock(ctx context.Context) (domain.Clock, error) {
	clock, err := b.client.GetClock()
	if err != nil {
		return domain.Clock{}, fmt.Errorf("alpaca.GetClock: %w", err)
	}
	return domain.Clock{
		Now:       clock.Timestamp,
		IsOpen:    clock.IsOpen,
		NextClose: clock.NextClose,
	}, nil
}

func (b *Broker) GetAccount(ctx context.Context) (domain.Account, error) {
	account, err := b.client.GetAccount()
	if err != nil {
		return domain.Account{}, fmt.Errorf("alpaca.GetAccount: %w", err)
	}
	return domain.Account{
		Cash:             account.Cash.InexactFloat64(),
		Equity:           account.Equity.InexactFloat64(),
		LastEquity:       account.LastEquity.InexactFloat64(),
		PatternDayTrader: account.PatternDayTrader,
	}, nil
}

func (b *Broker) GetPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	positions, err := b.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("alpaca.GetPositions: %w", err)
	}
	out := make([]domain.BrokerPosition, 0, len(positions))
	for _, p := range positions {
		out = append(out, domain.BrokerPosition{
			Symbol:         p.Symbol,
			Qty:            p.Qty.InexactFloat64(),
			AvgEntryPrice:  p.AvgEntryPrice.InexactFloat64(),
			CurrentPrice:   deref(p.CurrentPrice),
			LastdayPrice:   deref(p.LastdayPrice),
			MarketValue:    deref(p.MarketValue),
			CostBasis:      p.CostBasis.InexactFloat64(),
			UnrealizedPLPC: deref(p.UnrealizedPLPC),
		})
	}
	return out, nil
}

func (b *Broker) GetOrders(ctx context.Context, filter ports.OrderFilter) ([]domain.BrokerOrder, error) {
	orders, err := b.client.GetOrders(alpaca.GetOrdersRequest{
		Status: filter.Status,
		After:  filter.After,
		Until:  filter.Until,
		Limit:  500,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca.GetOrders: %w", err)
	}
	out := make([]domain.BrokerOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, toBrokerOrder(o))
	}
	return out, nil
}

func (b *Broker) CreateOrder(ctx context.Context, req ports.OrderRequest) (domain.BrokerOrder, error) {
	qty := decimal.NewFromFloat(req.Qty)
	side := alpaca.Buy
	if req.Side == domain.SideSell {
		side = alpaca.Sell
	}
	order, err := b.client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        side,
		Type:        alpaca.OrderType(req.Type),
		TimeInForce: alpaca.TimeInForce(req.TimeInForce),
	})
	if err != nil {
		return domain.BrokerOrder{}, fmt.Errorf("alpaca.CreateOrder: %s %s: %w", req.Side, req.Symbol, err)
	}
	return toBrokerOrder(*order), nil
}

func toBrokerOrder(o alpaca.Order) domain.BrokerOrder {
	return domain.BrokerOrder{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           domain.Side(o.Side),
		Status:         string(o.Status),
		FilledQty:      o.FilledQty.InexactFloat64(),
		FilledAvgPrice: deref(o.FilledAvgPrice),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func deref(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}
