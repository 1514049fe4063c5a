package alpaca

import (
	"context"
	"fmt"
	"sync"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"

	"github.com/robobull/trader/internal/domain"
)

// Stream implements ports.BarStream over Alpaca's stocks websocket. The
// connection lives until the context passed to Connect is cancelled;
// Disconnect cancels it.
type Stream struct {
	client *stream.StocksClient
	cancel context.CancelFunc

	mu         sync.Mutex
	subscribed map[string]bool
}

// NewStream creates a websocket bar stream.
func NewStream(cfg Config) *Stream {
	feed := "iex"
	if cfg.DataFeed != "" {
		feed = cfg.DataFeed
	}
	return &Stream{
		client:     stream.NewStocksClient(feed, stream.WithCredentials(cfg.APIKey, cfg.APISecret)),
		subscribed: make(map[string]bool),
	}
}

func (s *Stream) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	if err := s.client.Connect(ctx); err != nil {
		cancel()
		return fmt.Errorf("alpaca.Stream.Connect: %w", err)
	}
	return nil
}

func (s *Stream) Subscribe(ctx context.Context, symbols []string, handler func(domain.Bar)) error {
	s.mu.Lock()
	var fresh []string
	for _, sym := range symbols {
		if !s.subscribed[sym] {
			s.subscribed[sym] = true
			fresh = append(fresh, sym)
		}
	}
	s.mu.Unlock()
	if len(fresh) == 0 {
		return nil
	}

	err := s.client.SubscribeToBars(func(b stream.Bar) {
		handler(domain.Bar{
			Symbol:    b.Symbol,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
			Timestamp: b.Timestamp,
		})
	}, fresh...)
	if err != nil {
		return fmt.Errorf("alpaca.Stream.Subscribe: %v: %w", fresh, err)
	}
	return nil
}

func (s *Stream) Disconnect() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
