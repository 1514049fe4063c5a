package ports

import "context"

// Notification channels. They mirror the trading terminal's event feeds.
const (
	ChannelOrders    = "orders"
	ChannelPositions = "positions"
	ChannelStocks    = "stocks"
	ChannelClock     = "clock"
	ChannelResults   = "results"
	ChannelHalt      = "halt"
)

// Notifier is a fire-and-forget event sink. Implementations must not
// block the trading pipeline; errors are advisory only.
type Notifier interface {
	// Publish emits a payload on a channel. No acknowledgment is expected.
	Publish(ctx context.Context, channel string, payload any) error
}
