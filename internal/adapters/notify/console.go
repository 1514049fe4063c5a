// Package notify renders trading events on the terminal. It implements
// ports.Notifier so the engines stay unaware of the output format.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/robobull/trader/internal/domain"
	"github.com/robobull/trader/internal/ports"
)

// Console implements ports.Notifier.
type Console struct {
	out     io.Writer
	table   bool
	verbose bool

	mu sync.Mutex
}

// NewConsole creates a notifier that writes to stdout. With table enabled,
// positions and results render as tables instead of single lines. Verbose
// additionally prints the per-bar signal and clock feeds.
func NewConsole(table, verbose bool) *Console {
	return &Console{out: os.Stdout, table: table, verbose: verbose}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer, table, verbose bool) *Console {
	return &Console{out: w, table: table, verbose: verbose}
}

// Publish renders the payload for the channel. Unknown channels and
// unexpected payload types are ignored.
func (c *Console) Publish(_ context.Context, channel string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch channel {
	case ports.ChannelOrders:
		if order, ok := payload.(domain.Order); ok {
			c.printOrder(order)
		}
	case ports.ChannelPositions:
		if positions, ok := payload.([]domain.Position); ok {
			c.printPositions(positions)
		}
	case ports.ChannelResults:
		if results, ok := payload.([]domain.Result); ok {
			c.printResults(results)
		}
	case ports.ChannelHalt:
		c.printHalt(payload)
	case ports.ChannelStocks, ports.ChannelClock:
		if c.verbose {
			fmt.Fprintf(c.out, "[%s] %s %v\n", stamp(), channel, payload)
		}
	}
	return nil
}

func (c *Console) printOrder(order domain.Order) {
	side := strings.ToUpper(string(order.Side))
	if order.Side == domain.SideSell {
		fmt.Fprintf(c.out, "[%s] %s %s qty %.0f @ $%.2f ($%.2f) roi %.2f%%\n",
			stamp(), side, order.Symbol, order.Qty, order.Price, order.Amount, order.ROI*100)
		return
	}
	fmt.Fprintf(c.out, "[%s] %s %s qty %.0f @ $%.2f ($%.2f)\n",
		stamp(), side, order.Symbol, order.Qty, order.Price, order.Amount)
}

func (c *Console) printPositions(positions []domain.Position) {
	if len(positions) == 0 {
		fmt.Fprintf(c.out, "[%s] no open positions\n", stamp())
		return
	}
	if !c.table {
		fmt.Fprintf(c.out, "[%s] %d open position(s)\n", stamp(), len(positions))
		return
	}

	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Symbol", "Qty", "Price", "Amount")
	for _, p := range positions {
		tbl.Append(
			p.Symbol,
			fmt.Sprintf("%.0f", p.Qty),
			fmt.Sprintf("$%.2f", p.Price),
			fmt.Sprintf("$%.2f", p.Amount),
		)
	}
	tbl.Render()
}

func (c *Console) printResults(results []domain.Result) {
	if len(results) == 0 {
		return
	}
	if !c.table {
		for _, r := range results {
			fmt.Fprintf(c.out, "[%s] result %s: $%.2f -> $%.2f (%.2f%%) orders %d\n",
				stamp(), r.SessionID, r.StartValue, r.EndValue, r.ROI*100, r.OrderCount)
		}
		return
	}

	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Session", "Period", "Start", "End", "ROI", "Orders")
	for _, r := range results {
		tbl.Append(
			compactID(r.SessionID),
			fmt.Sprintf("%s / %s", r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02")),
			fmt.Sprintf("$%.2f", r.StartValue),
			fmt.Sprintf("$%.2f", r.EndValue),
			fmt.Sprintf("%.2f%%", r.ROI*100),
			fmt.Sprintf("%d", r.OrderCount),
		)
	}
	tbl.Render()
}

func (c *Console) printHalt(payload any) {
	if fields, ok := payload.(map[string]any); ok {
		fmt.Fprintf(c.out, "[%s] HALT session=%v reason=%v\n", stamp(), fields["session"], fields["reason"])
		return
	}
	fmt.Fprintf(c.out, "[%s] HALT %v\n", stamp(), payload)
}

// compactID shortens uuids so result tables stay narrow.
func compactID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func stamp() string {
	return time.Now().Format("15:04:05")
}
