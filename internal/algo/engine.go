package algo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robobull/trader/internal/domain"
	"github.com/robobull/trader/internal/indicator"
	"github.com/robobull/trader/internal/ports"
	"github.com/robobull/trader/internal/stocks"
)

// Fixed weightings for the standard candlestick pass.
const (
	bullishWeighting = 5
	bearishWeighting = 10
)

// Decider receives order requests once accumulated signal weight crosses
// a threshold. The decision engine implements it.
type Decider interface {
	Decide(ctx context.Context, st *stocks.State, side domain.Side, price float64, at time.Time)
}

// Engine is the signal engine: it advances each enabled algo's indicators
// one step per bar, fires weighted signals from the configured conditions,
// and hands threshold-crossing symbols to the decider.
type Engine struct {
	cfg          Config
	resetSignals bool
	decider      Decider
	notifier     ports.Notifier

	names []string // enabled algo names, stable order
}

// New creates a signal engine. The notifier is optional.
func New(cfg Config, resetSignals bool, decider Decider, notifier ports.Notifier) *Engine {
	names := make([]string, 0, len(cfg.Algos))
	for name, spec := range cfg.Algos {
		if spec.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return &Engine{
		cfg:          cfg,
		resetSignals: resetSignals,
		decider:      decider,
		notifier:     notifier,
		names:        names,
	}
}

// InitSymbol attaches fresh indicator instances for every enabled algo.
func (e *Engine) InitSymbol(st *stocks.State) error {
	for _, name := range e.names {
		spec := e.cfg.Algos[name]
		instances := make([]indicator.Streaming, 0, len(spec.Periods))
		for _, period := range spec.Periods {
			inst, err := indicator.New(period.Params())
			if err != nil {
				return fmt.Errorf("algo.InitSymbol: %s: %w", name, err)
			}
			instances = append(instances, inst)
		}
		st.Indicators[name] = instances
	}
	return nil
}

// Backfill replays historical bars through the series and indicators
// without firing signals, so live indicators start warm.
func (e *Engine) Backfill(st *stocks.State, bars []domain.Bar) {
	for _, bar := range bars {
		for _, name := range e.names {
			for _, inst := range st.Indicators[name] {
				inst.Next(bar)
			}
		}
		st.Append(bar)
	}
}

// IngestBar runs the full per-bar pipeline for one symbol: advance every
// algo's indicators, evaluate conditions, run the standard-pattern pass,
// and clear leftover signals when reset-signals is on. The caller holds
// the symbol lock.
func (e *Engine) IngestBar(ctx context.Context, st *stocks.State, bar domain.Bar) {
	for _, name := range e.names {
		spec := e.cfg.Algos[name]
		outputs := e.advance(st, name, bar)

		for _, cond := range spec.Conditions {
			cmp, okCmp := cond.Compare.Resolve(outputs)
			against, okAgainst := cond.Against.Resolve(outputs)
			if !okCmp || !okAgainst {
				continue // missing input: no signal
			}
			if !compare(cmp, cond.Operator, against) {
				continue
			}
			if st.LastOrderSide == cond.Side {
				continue // don't re-signal the direction just executed
			}
			e.addSignal(ctx, st, domain.Signal{
				Algo:      name,
				Type:      spec.Type,
				Side:      cond.Side,
				Weighting: spec.Weighting,
			}, bar.Close, bar.Timestamp)
		}
	}

	st.Append(bar)

	if e.cfg.UseStandardPatterns && st.HasEnoughSamples(e.cfg.MinPatternSamples) {
		e.standardPatterns(ctx, st, bar)
	}

	if e.resetSignals && len(st.Signals) > 0 {
		st.ClearSignals()
	}
}

// advance steps each of the algo's indicator instances by one bar.
// Instances that are still warming up yield nil outputs.
func (e *Engine) advance(st *stocks.State, name string, bar domain.Bar) []indicator.Output {
	instances := st.Indicators[name]
	outputs := make([]indicator.Output, len(instances))
	for i, inst := range instances {
		out, ok := inst.Next(bar)
		if ok {
			outputs[i] = out
		}
	}
	return outputs
}

// standardPatterns adds candlestick signals independently of the
// configured algo set.
func (e *Engine) standardPatterns(ctx context.Context, st *stocks.State, bar domain.Bar) {
	if st.LastOrderSide != domain.SideBuy &&
		indicator.Bullish(st.Open, st.High, st.Low, st.Close) {
		e.addSignal(ctx, st, domain.Signal{
			Algo: "bullish", Type: "bullish",
			Side: domain.SideBuy, Weighting: bullishWeighting,
		}, bar.Close, bar.Timestamp)
	}

	if st.LastOrderSide != domain.SideSell &&
		indicator.Bearish(st.Open, st.High, st.Low, st.Close) {
		e.addSignal(ctx, st, domain.Signal{
			Algo: "bearish", Type: "bearish",
			Side: domain.SideSell, Weighting: bearishWeighting,
		}, bar.Close, bar.Timestamp)
	}
}

// addSignal attaches the signal and checks whether the symbol's summed
// weight on that side now warrants an order.
func (e *Engine) addSignal(ctx context.Context, st *stocks.State, sig domain.Signal, price float64, at time.Time) {
	st.AddSignal(sig, price)
	e.checkSignalsForOrder(ctx, st, sig.Side, price, at)
}

func (e *Engine) checkSignalsForOrder(ctx context.Context, st *stocks.State, side domain.Side, price float64, at time.Time) {
	weight := domain.SumWeightings(st.Signals, side)

	if e.notifier != nil {
		payload := map[string]any{"symbol": st.Symbol, "side": side, "weighting": weight}
		if err := e.notifier.Publish(ctx, ports.ChannelStocks, payload); err != nil {
			slog.Debug("algo: notify stocks failed", "err", err)
		}
	}

	if weight < e.threshold(side) {
		return
	}
	if e.restricted(st.Signals) {
		slog.Debug("algo: signal restriction blocks order",
			"symbol", st.Symbol, "side", side, "weight", weight)
		return
	}

	e.decider.Decide(ctx, st, side, price, at)
}

func (e *Engine) threshold(side domain.Side) float64 {
	if side == domain.SideBuy {
		return e.cfg.ThresholdToBuy
	}
	return e.cfg.ThresholdToSell
}

// restricted reports whether any configured cap on signals of one
// sub-type and side has been met.
func (e *Engine) restricted(signals []domain.Signal) bool {
	for _, r := range e.cfg.Restrictions {
		if r.Type == "" || r.Side == "" {
			continue
		}
		if domain.CountByTypeAndSide(signals, r.Type, r.Side) >= r.Threshold {
			return true
		}
	}
	return false
}
