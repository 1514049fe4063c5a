package alpaca

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/robobull/trader/internal/domain"
)

// MarketData implements ports.MarketData over Alpaca's historical bars
// API, serving one-minute bars for backfills and backtest replays.
type MarketData struct {
	client *marketdata.Client
	feed   marketdata.Feed
}

// NewMarketData creates a historical data client.
func NewMarketData(cfg Config) *MarketData {
	feed := marketdata.IEX
	if cfg.DataFeed == "sip" {
		feed = marketdata.SIP
	}
	return &MarketData{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
		}),
		feed: feed,
	}
}

func (m *MarketData) GetBars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.Bar, error) {
	raw, err := m.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneMin,
		Start:     start,
		End:       end,
		Feed:      m.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca.GetBars: %w", err)
	}

	out := make(map[string][]domain.Bar, len(raw))
	for sym, bars := range raw {
		series := make([]domain.Bar, 0, len(bars))
		for _, b := range bars {
			series = append(series, domain.Bar{
				Symbol:    sym,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    float64(b.Volume),
				Timestamp: b.Timestamp,
			})
		}
		out[sym] = series
	}
	return out, nil
}
