package notify

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robobull/trader/internal/domain"
	"github.com/robobull/trader/internal/ports"
)

func TestPublishOrder(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, false, false)

	err := c.Publish(context.Background(), ports.ChannelOrders, domain.Order{
		Symbol: "AAPL",
		Side:   domain.SideBuy,
		Qty:    10,
		Price:  150.25,
		Amount: 1502.5,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "BUY AAPL")
	assert.Contains(t, out, "qty 10")
	assert.Contains(t, out, "$1502.50")
	assert.NotContains(t, out, "roi")
}

func TestPublishOrder_SellIncludesROI(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, false, false)

	err := c.Publish(context.Background(), ports.ChannelOrders, domain.Order{
		Symbol: "MSFT",
		Side:   domain.SideSell,
		Qty:    5,
		Price:  110,
		Amount: 550,
		ROI:    0.1,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "SELL MSFT")
	assert.Contains(t, out, "roi 10.00%")
}

func TestPublishPositions_Table(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, true, false)

	err := c.Publish(context.Background(), ports.ChannelPositions, []domain.Position{
		{Symbol: "AAPL", Side: domain.SideBuy, Qty: 10, Price: 150, Amount: 1500},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "$1500.00")
}

func TestPublishPositions_Empty(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, true, false)

	err := c.Publish(context.Background(), ports.ChannelPositions, []domain.Position{})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "no open positions")
}

func TestPublishResults(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, true, false)

	start := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	err := c.Publish(context.Background(), ports.ChannelResults, []domain.Result{
		{
			SessionID:  "0f2a7c11-aaaa-bbbb-cccc-000000000000",
			StartValue: 100000,
			EndValue:   101500,
			ROI:        0.015,
			StartDate:  start,
			EndDate:    start,
			OrderCount: 4,
		},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "0f2a7c11")
	assert.NotContains(t, out, "0f2a7c11-aaaa")
	assert.Contains(t, out, "1.50%")
	assert.Contains(t, out, "2024-03-04")
}

func TestPublishHalt(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, false, false)

	err := c.Publish(context.Background(), ports.ChannelHalt, map[string]any{
		"session": "sess-1",
		"reason":  "roi ceiling reached",
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "HALT session=sess-1 reason=roi ceiling reached")
}

func TestPublishVerboseChannels(t *testing.T) {
	var quiet bytes.Buffer
	c := NewConsoleWriter(&quiet, false, false)
	require.NoError(t, c.Publish(context.Background(), ports.ChannelStocks, map[string]any{"symbol": "AAPL"}))
	assert.Empty(t, quiet.String())

	var loud bytes.Buffer
	c = NewConsoleWriter(&loud, false, true)
	require.NoError(t, c.Publish(context.Background(), ports.ChannelStocks, map[string]any{"symbol": "AAPL"}))
	assert.Contains(t, loud.String(), "stocks")
}
