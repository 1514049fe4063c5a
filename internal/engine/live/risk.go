package live

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robobull/trader/internal/domain"
	"github.com/robobull/trader/internal/ports"
)

// checkRisk is the 30s task: compute the account's running ROI, enforce
// per-position stop-loss and take-profit bounds, and halt the session at
// a terminal bound (close ROI, reset ROI, market close approaching).
func (e *Engine) checkRisk(ctx context.Context) {
	account, err := e.deps.Broker.GetAccount(ctx)
	if err != nil {
		slog.Warn("live: get account failed", "err", err)
		return
	}
	roi := account.DayROI()
	e.publish(ctx, ports.ChannelClock, map[string]any{
		"equity": account.Equity, "cash": account.Cash, "roi": roi,
	})

	positions, err := e.deps.Broker.GetPositions(ctx)
	if err != nil {
		slog.Warn("live: get positions failed", "err", err)
		return
	}
	// broker truth wins: drop ledger rows the broker no longer reports
	// (cancelled buys among them) before enforcing bounds
	e.decider.WithPortfolio(func(p *domain.Portfolio) { p.Reconcile(positions) })

	for _, pos := range positions {
		e.enforceBounds(ctx, pos)
	}

	if reason := e.terminalReason(ctx, roi); reason != "" {
		e.halt(ctx, reason)
	}
}

// enforceBounds queues a forced sell for a position outside its ROI
// bounds, unless the symbol traded too recently.
func (e *Engine) enforceBounds(ctx context.Context, pos domain.BrokerPosition) {
	roi := pos.ROI()
	stop := e.settings.StopLossROI != 0 && roi <= e.settings.StopLossROI
	take := e.settings.TakeProfitROI != 0 && roi >= e.settings.TakeProfitROI
	if !stop && !take {
		return
	}
	if e.recentlyOrdered(pos.Symbol) {
		slog.Debug("live: forced sell suppressed, traded too recently", "symbol", pos.Symbol)
		return
	}
	st := e.store.Ensure(pos.Symbol, domain.SideBuy)
	if e.decider.Queue(ctx, st, domain.SideSell, pos.CurrentPrice, time.Now().UTC()) {
		slog.Info("live: forced sell queued",
			"symbol", pos.Symbol, "roi", roi, "stop_loss", stop, "take_profit", take)
	}
}

func (e *Engine) recentlyOrdered(symbol string) bool {
	if e.settings.CooldownMinutes <= 0 {
		return false
	}
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		last, ok := e.decider.LastOrder(symbol, side)
		if ok && time.Since(last.DateTime).Minutes() < e.settings.CooldownMinutes {
			return true
		}
	}
	return false
}

// terminalReason reports why the session should end now, empty if it
// should keep running. Both ROI bounds are session-terminal.
func (e *Engine) terminalReason(ctx context.Context, roi float64) string {
	if e.settings.ROIToClose != 0 && roi >= e.settings.ROIToClose {
		return fmt.Sprintf("account ROI %.2f%% reached close bound", roi)
	}
	if e.settings.ROIToReset != 0 && roi <= e.settings.ROIToReset {
		return fmt.Sprintf("account ROI %.2f%% fell to reset bound", roi)
	}
	clock, err := e.deps.Broker.GetClock(ctx)
	if err != nil {
		slog.Warn("live: get clock failed", "err", err)
		return ""
	}
	if clock.IsOpen && clock.TimeToClose() < closeSoon {
		return "market closes soon"
	}
	return ""
}

// liquidate queues sells for the remaining positions, most profitable
// first. With hold-until-profit set, losing positions are kept open.
func (e *Engine) liquidate(ctx context.Context) {
	positions, err := e.deps.Broker.GetPositions(ctx)
	if err != nil {
		slog.Warn("live: liquidation skipped, get positions failed", "err", err)
		return
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].MarketValue-positions[i].CostBasis >
			positions[j].MarketValue-positions[j].CostBasis
	})
	for _, pos := range positions {
		if e.settings.HoldUntilProfit && pos.MarketValue-pos.CostBasis <= 0 {
			slog.Info("live: holding losing position", "symbol", pos.Symbol)
			continue
		}
		st := e.store.Ensure(pos.Symbol, domain.SideBuy)
		e.decider.Queue(ctx, st, domain.SideSell, pos.CurrentPrice, time.Now().UTC())
	}
}

// storeResult records the session outcome, valuing the end state with the
// broker's final equity when reachable.
func (e *Engine) storeResult(ctx context.Context) {
	var start float64
	e.decider.WithPortfolio(func(p *domain.Portfolio) { start = p.StartingCapital })

	end := start
	if account, err := e.deps.Broker.GetAccount(ctx); err == nil {
		end = account.Equity
	} else {
		slog.Warn("live: final account fetch failed, assuming flat", "err", err)
	}

	result := domain.Result{
		SessionID:  e.session.ID,
		StartValue: start,
		EndValue:   end,
		ROI:        roiOf(start, end),
		StartDate:  e.session.StartedAt,
		EndDate:    time.Now().UTC(),
		OrderCount: e.decider.OrderCount(),
	}
	if err := e.deps.Storage.CreateResult(ctx, result); err != nil {
		slog.Warn("live: store result failed", "err", err)
	}
	e.publish(ctx, ports.ChannelResults, []domain.Result{result})
}

func roiOf(start, end float64) float64 {
	if start == 0 {
		return 0
	}
	return (end - start) / start
}
