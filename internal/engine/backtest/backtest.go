// Package backtest replays historical days through the signal and
// decision engines. Each day runs against a fresh session, portfolio and
// symbol-state set, so days are independent and can run in parallel.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robobull/trader/internal/algo"
	"github.com/robobull/trader/internal/decision"
	"github.com/robobull/trader/internal/domain"
	"github.com/robobull/trader/internal/ports"
	"github.com/robobull/trader/internal/stocks"
)

// batchSize is how many day windows replay concurrently.
const batchSize = 5

// errNoBars marks a day without market data (weekend, holiday). Such
// days are skipped, not failed.
var errNoBars = errors.New("no bars for day")

// Day is one replay window, [Start, End).
type Day struct {
	Start time.Time
	End   time.Time
}

// SplitDays cuts a date range into one-day windows. Both boundary days
// are included; a range inside a single day yields one window.
func SplitDays(start, end time.Time) []Day {
	if end.Before(start) {
		return nil
	}
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())

	var days []Day
	for d := first; !d.After(last); d = d.Add(24 * time.Hour) {
		days = append(days, Day{Start: d, End: d.Add(24 * time.Hour)})
	}
	return days
}

// Engine is the backtest driver.
type Engine struct {
	settings domain.Settings
	algoCfg  algo.Config
	symbols  []string
	data     ports.MarketData
	storage  ports.Storage
	notifier ports.Notifier
}

// New creates a backtest engine over the given historical data source.
// Storage and notifier are optional.
func New(settings domain.Settings, algoCfg algo.Config, symbols []string, data ports.MarketData, storage ports.Storage, notifier ports.Notifier) *Engine {
	settings = settings.Normalized()
	settings.IsBacktest = true
	if settings.StartingCapital <= 0 {
		settings.StartingCapital = domain.DefaultStartingCapital
	}
	return &Engine{
		settings: settings,
		algoCfg:  algoCfg,
		symbols:  symbols,
		data:     data,
		storage:  storage,
		notifier: notifier,
	}
}

// Run replays the configured date range in batches and returns the
// per-day results plus the aggregate. Total ROI is the sum of per-day
// ROIs; the ending value grows the starting capital by that total.
func (e *Engine) Run(ctx context.Context) ([]domain.Result, domain.Result, error) {
	days := SplitDays(e.settings.StartDate, e.settings.EndDate)
	if len(days) == 0 {
		return nil, domain.Result{}, fmt.Errorf("backtest.Run: empty date range %s..%s",
			e.settings.StartDate.Format("2006-01-02"), e.settings.EndDate.Format("2006-01-02"))
	}
	slog.Info("backtest: starting",
		"days", len(days), "symbols", len(e.symbols), "capital", e.settings.StartingCapital)

	perDay := make([]*domain.Result, len(days))
	for i := 0; i < len(days); i += batchSize {
		batchEnd := min(i+batchSize, len(days))
		var wg sync.WaitGroup
		for j := i; j < batchEnd; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				result, err := e.runDay(ctx, days[j])
				switch {
				case errors.Is(err, errNoBars):
					slog.Debug("backtest: day skipped", "day", days[j].Start.Format("2006-01-02"))
				case err != nil:
					slog.Warn("backtest: day failed",
						"day", days[j].Start.Format("2006-01-02"), "err", err)
				default:
					perDay[j] = &result
				}
			}(j)
		}
		wg.Wait()
	}

	var results []domain.Result
	for _, r := range perDay {
		if r != nil {
			results = append(results, *r)
		}
	}
	if len(results) == 0 {
		return nil, domain.Result{}, fmt.Errorf("backtest.Run: no tradable days in range")
	}

	total := domain.AggregateResults(e.settings.StartingCapital, results)
	if e.storage != nil {
		if err := e.storage.CreateResult(ctx, total); err != nil {
			slog.Warn("backtest: store aggregate result failed", "err", err)
		}
	}
	if e.notifier != nil {
		payload := append(append([]domain.Result(nil), results...), total)
		if err := e.notifier.Publish(ctx, ports.ChannelResults, payload); err != nil {
			slog.Debug("backtest: notify results failed", "err", err)
		}
	}
	slog.Info("backtest: finished",
		"days_traded", len(results), "orders", total.OrderCount,
		"roi", total.ROI, "end_value", total.EndValue)
	return results, total, nil
}

// runDay replays one day through a fresh pipeline and values the ledger
// at the day's last seen prices.
func (e *Engine) runDay(ctx context.Context, day Day) (domain.Result, error) {
	bars, err := e.data.GetBars(ctx, e.symbols, day.Start, day.End)
	if err != nil {
		return domain.Result{}, fmt.Errorf("backtest.runDay: get bars: %w", err)
	}
	merged := mergeBars(bars)
	if len(merged) == 0 {
		return domain.Result{}, errNoBars
	}

	session := domain.NewSession(true)
	if e.storage != nil {
		if err := e.storage.CreateSession(ctx, session); err != nil {
			slog.Warn("backtest: create session failed", "err", err)
		}
	}

	portfolio := domain.NewPortfolio(e.settings.StartingCapital)
	decider := decision.New(e.settings, session, portfolio, e.storage, e.notifier)
	decider.SetSymbolCount(len(e.symbols))
	algos := algo.New(e.algoCfg, e.settings.ResetSignals, decider, e.notifier)

	store := stocks.NewStore()
	for _, sym := range e.symbols {
		st := store.Ensure(sym, domain.SideSell)
		if err := algos.InitSymbol(st); err != nil {
			return domain.Result{}, fmt.Errorf("backtest.runDay: %w", err)
		}
	}

	for _, bar := range merged {
		st := store.Get(bar.Symbol)
		if st == nil {
			continue
		}
		st.Lock()
		algos.IngestBar(ctx, st, bar)
		st.Unlock()
	}

	var endValue float64
	decider.WithPortfolio(func(p *domain.Portfolio) {
		endValue = p.MarketValue(store.PriceOf)
	})

	result := domain.Result{
		SessionID:  session.ID,
		StartValue: e.settings.StartingCapital,
		EndValue:   endValue,
		ROI:        (endValue - e.settings.StartingCapital) / e.settings.StartingCapital,
		StartDate:  day.Start,
		EndDate:    day.End,
		IsBacktest: true,
		OrderCount: decider.OrderCount(),
	}
	if e.storage != nil {
		if err := e.storage.CreateResult(ctx, result); err != nil {
			slog.Warn("backtest: store day result failed", "err", err)
		}
	}
	return result, nil
}

// mergeBars flattens the per-symbol series into one chronological feed.
// Ties keep symbol order stable so replays are deterministic.
func mergeBars(bars map[string][]domain.Bar) []domain.Bar {
	var merged []domain.Bar
	for _, series := range bars {
		merged = append(merged, series...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Symbol < merged[j].Symbol
		}
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}
