package live

import (
	"context"
	"log/slog"

	"github.com/robobull/trader/internal/domain"
	"github.com/robobull/trader/internal/ports"
)

// flushOrders is the 5s task: honor an external kill of the session,
// submit queued orders to the broker (optionally re-validated against the
// quote screen), and merge broker-reported fills back into the log.
func (e *Engine) flushOrders(ctx context.Context) {
	killed, err := e.deps.Storage.SessionHalted(ctx, e.session.ID)
	if err != nil {
		slog.Warn("live: session check failed", "err", err)
	} else if killed && !e.session.Halted() {
		e.halt(ctx, "session killed externally")
		return
	}

	queued, err := e.deps.Storage.UnprocessedOrders(ctx, e.session.ID)
	if err != nil {
		slog.Warn("live: load queued orders failed", "err", err)
		return
	}

	for _, order := range queued {
		if order.Side == domain.SideBuy && e.rejectedByQuoteScreen(ctx, order.Symbol) {
			e.cancelQueued(ctx, order)
			continue
		}
		bo, err := e.deps.Broker.CreateOrder(ctx, ports.OrderRequest{
			Symbol:      order.Symbol,
			Qty:         order.Qty,
			Side:        order.Side,
			Type:        "market",
			TimeInForce: "day",
		})
		if err != nil {
			slog.Warn("live: submit order failed",
				"symbol", order.Symbol, "side", order.Side, "err", err)
			continue
		}
		e.decider.MarkSubmitted(ctx, order.ID, bo)
	}

	e.syncFills(ctx)
}

// rejectedByQuoteScreen re-validates a queued buy against the symbol's
// percent change since the prior close. A stock that already ran more
// than the configured bound is not bought anymore.
func (e *Engine) rejectedByQuoteScreen(ctx context.Context, symbol string) bool {
	if !e.settings.UseQuoteScreen || e.settings.QuoteChangeMax <= 0 || e.deps.Screener == nil {
		return false
	}
	quote, err := e.deps.Screener.GetQuote(ctx, symbol)
	if err != nil {
		slog.Warn("live: quote screen failed, submitting anyway", "symbol", symbol, "err", err)
		return false
	}
	return quote.ChangePercent > e.settings.QuoteChangeMax
}

func (e *Engine) cancelQueued(ctx context.Context, order domain.Order) {
	if !e.decider.Cancel(ctx, order.ID) {
		slog.Warn("live: cancel queued order failed, not open in the log", "id", order.ID)
		return
	}
	slog.Info("live: queued buy cancelled by quote screen", "symbol", order.Symbol)
}

// syncFills pulls the session's closed broker orders and rewrites the
// order log with actual fill quantities and prices. The ledger itself is
// untouched; cash moved at decision time.
func (e *Engine) syncFills(ctx context.Context) {
	closed, err := e.deps.Broker.GetOrders(ctx, ports.OrderFilter{
		Status: "closed",
		After:  e.session.StartedAt,
	})
	if err != nil {
		slog.Warn("live: fill sync failed", "err", err)
		return
	}
	if len(closed) > 0 {
		e.decider.SyncFills(ctx, closed)
	}
}
