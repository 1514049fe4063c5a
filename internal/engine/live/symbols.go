package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robobull/trader/internal/domain"
)

// refreshSymbols is the 15m task: merge the screener's current picks with
// every symbol still held and subscribe to the newcomers.
func (e *Engine) refreshSymbols(ctx context.Context) {
	var held []string
	e.decider.WithPortfolio(func(p *domain.Portfolio) {
		for _, pos := range p.Positions {
			held = append(held, pos.Symbol)
		}
	})

	merged := mergeSymbols(e.candidateSymbols(ctx), held)
	if err := e.subscribe(ctx, merged, held); err != nil {
		slog.Warn("live: subscription refresh failed", "err", err)
	}
	e.decider.SetSymbolCount(e.store.Len())
}

// candidateSymbols asks the screener for today's picks, falling back to
// the configured static list when the screener is off or unreachable.
func (e *Engine) candidateSymbols(ctx context.Context) []string {
	if !e.settings.UseScreener || e.deps.Screener == nil {
		return e.fallback
	}
	symbols, err := e.deps.Screener.GetCandidateSymbols(ctx)
	if err != nil || len(symbols) == 0 {
		slog.Warn("live: screener unavailable, using configured symbols", "err", err)
		return e.fallback
	}
	if e.settings.UseDefaultSymbols {
		symbols = mergeSymbols(symbols, e.fallback)
	}
	return symbols
}

// subscribe attaches state, indicators and stream delivery for symbols
// not yet tracked. Held symbols start as if just bought so their first
// fired signal is a sell.
func (e *Engine) subscribe(ctx context.Context, symbols, held []string) error {
	heldSet := make(map[string]bool, len(held))
	for _, sym := range held {
		heldSet[sym] = true
	}

	var fresh []string
	for _, sym := range symbols {
		if e.store.Get(sym) != nil {
			continue
		}
		side := domain.SideSell
		if heldSet[sym] {
			side = domain.SideBuy
		}
		st := e.store.Ensure(sym, side)
		if err := e.algos.InitSymbol(st); err != nil {
			return fmt.Errorf("live.subscribe: %w", err)
		}
		fresh = append(fresh, sym)
	}
	if len(fresh) == 0 {
		return nil
	}

	e.backfill(ctx, fresh)
	if err := e.deps.Stream.Subscribe(ctx, fresh, e.onBar); err != nil {
		return fmt.Errorf("live.subscribe: stream: %w", err)
	}
	slog.Info("live: subscribed", "symbols", fresh)
	return nil
}

// backfill warms fresh symbol state with today's bars so indicators do
// not start cold mid-session.
func (e *Engine) backfill(ctx context.Context, symbols []string) {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	bars, err := e.deps.Data.GetBars(ctx, symbols, midnight, now)
	if err != nil {
		slog.Warn("live: backfill failed, indicators start cold", "err", err)
		return
	}
	for _, sym := range symbols {
		st := e.store.Get(sym)
		if st == nil {
			continue
		}
		st.Lock()
		e.algos.Backfill(st, bars[sym])
		st.Unlock()
	}
}

// mergeSymbols unions two symbol lists preserving first-seen order.
func mergeSymbols(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, sym := range append(append([]string{}, a...), b...) {
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}
