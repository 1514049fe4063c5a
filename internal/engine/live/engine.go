// Package live drives a real trading session: it wires the broker's bar
// stream into the signal and decision engines and runs the periodic
// order-flush, risk-check and subscription-refresh tasks until the
// session halts or the context ends.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robobull/trader/internal/algo"
	"github.com/robobull/trader/internal/decision"
	"github.com/robobull/trader/internal/domain"
	"github.com/robobull/trader/internal/ports"
	"github.com/robobull/trader/internal/stocks"
)

const (
	flushInterval   = 5 * time.Second
	riskInterval    = 30 * time.Second
	refreshInterval = 15 * time.Minute

	// closeSoon is how close to market close the session halts. Whether
	// the halt also sells the remaining positions is a separate setting.
	closeSoon = 15 * time.Minute
)

// Phase is the session lifecycle state.
type Phase int32

const (
	PhaseConnecting Phase = iota
	PhaseStreaming
	PhaseHalting
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseStreaming:
		return "streaming"
	case PhaseHalting:
		return "halting"
	case PhaseStopped:
		return "stopped"
	}
	return "unknown"
}

// Deps are the external collaborators of a live session.
type Deps struct {
	Broker   ports.Broker
	Stream   ports.BarStream
	Data     ports.MarketData
	Screener ports.Screener
	Storage  ports.Storage
	Notifier ports.Notifier
}

// Engine is the live control loop. One engine exclusively owns one
// session, one portfolio and the full symbol-state set for the run.
type Engine struct {
	settings domain.Settings
	algoCfg  algo.Config
	fallback []string // configured static symbol list
	deps     Deps

	session *domain.Session
	store   *stocks.Store
	algos   *algo.Engine
	decider *decision.Engine

	phase    atomic.Int32
	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	haltOnce sync.Once
}

// New creates a live engine. Run starts it.
func New(settings domain.Settings, algoCfg algo.Config, symbols []string, deps Deps) *Engine {
	return &Engine{
		settings: settings.Normalized(),
		algoCfg:  algoCfg,
		fallback: symbols,
		deps:     deps,
		store:    stocks.NewStore(),
	}
}

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

// Run starts the session and blocks until it stops. Cancelling ctx stops
// the session without halt semantics (no liquidation pass).
func (e *Engine) Run(ctx context.Context) error {
	e.phase.Store(int32(PhaseConnecting))

	clock, err := e.deps.Broker.GetClock(ctx)
	if err != nil {
		return fmt.Errorf("live.Run: get clock: %w", err)
	}
	if !clock.IsOpen {
		return fmt.Errorf("live.Run: market is closed, next close %s", clock.NextClose.Format(time.RFC3339))
	}
	e.publish(ctx, ports.ChannelClock, clock)

	account, err := e.deps.Broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("live.Run: get account: %w", err)
	}
	if account.PatternDayTrader {
		slog.Warn("live: account is flagged as pattern day trader")
	}
	slog.Info("live: session starting", "cash", account.Cash, "equity", account.Equity)

	e.session = domain.NewSession(false)
	if err := e.deps.Storage.CreateSession(ctx, e.session); err != nil {
		return fmt.Errorf("live.Run: create session: %w", err)
	}

	// Account cash is the session's starting capital; the configured
	// value is only used by backtests.
	portfolio := domain.NewPortfolio(account.Cash)
	e.decider = decision.New(e.settings, e.session, portfolio, e.deps.Storage, e.deps.Notifier)
	e.algos = algo.New(e.algoCfg, e.settings.ResetSignals, e.decider, e.deps.Notifier)

	positions, err := e.deps.Broker.GetPositions(ctx)
	if err != nil {
		slog.Warn("live: get positions failed, starting from cash only", "err", err)
	} else {
		e.decider.WithPortfolio(func(p *domain.Portfolio) { p.Reconcile(positions) })
	}
	held := make([]string, 0, len(positions))
	for _, pos := range positions {
		held = append(held, pos.Symbol)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.runCtx = runCtx
	e.cancel = cancel
	defer cancel()

	if err := e.deps.Stream.Connect(runCtx); err != nil {
		return fmt.Errorf("live.Run: connect stream: %w", err)
	}
	if err := e.subscribe(runCtx, mergeSymbols(e.candidateSymbols(runCtx), held), held); err != nil {
		return fmt.Errorf("live.Run: subscribe: %w", err)
	}
	e.decider.SetSymbolCount(e.store.Len())

	e.phase.Store(int32(PhaseStreaming))
	slog.Info("live: streaming", "session", e.session.ID, "symbols", e.store.Len())

	e.runTasks(runCtx, []task{
		{"flush-orders", flushInterval, e.flushOrders},
		{"risk-check", riskInterval, e.checkRisk},
		{"refresh-symbols", refreshInterval, e.refreshSymbols},
	})

	<-runCtx.Done()
	e.wg.Wait()
	if err := e.deps.Stream.Disconnect(); err != nil {
		slog.Warn("live: stream disconnect failed", "err", err)
	}
	e.phase.Store(int32(PhaseStopped))
	slog.Info("live: session stopped", "session", e.session.ID, "orders", e.decider.OrderCount())
	return nil
}

// onBar is the stream handler: bars for one symbol run the full signal
// and decision pipeline under that symbol's lock, serialized in arrival
// order.
func (e *Engine) onBar(bar domain.Bar) {
	st := e.store.Get(bar.Symbol)
	if st == nil {
		return
	}
	ctx := e.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	st.Lock()
	defer st.Unlock()
	e.algos.IngestBar(ctx, st, bar)
}

// halt is the terminal transition: the flag flips exactly once, remaining
// positions are liquidated per settings, the result is recorded, and the
// task runner is cancelled.
func (e *Engine) halt(ctx context.Context, reason string) {
	e.haltOnce.Do(func() {
		e.phase.Store(int32(PhaseHalting))
		e.session.Halt()
		slog.Info("live: halting session", "session", e.session.ID, "reason", reason)
		e.publish(ctx, ports.ChannelHalt, map[string]any{"session": e.session.ID, "reason": reason})

		if e.settings.CloseBeforeClose {
			e.liquidate(ctx)
		}
		e.flushOrders(ctx) // the flush task dies with the runner; submit the final sells now
		e.storeResult(ctx)

		if e.cancel != nil {
			e.cancel()
		}
	})
}

// task is one periodic job of the control loop. Tasks share the ledger
// through the decision engine's lock and stop together when the run
// context is cancelled.
type task struct {
	name  string
	every time.Duration
	fn    func(ctx context.Context)
}

func (e *Engine) runTasks(ctx context.Context, tasks []task) {
	for _, t := range tasks {
		slog.Debug("live: task scheduled", "task", t.name, "every", t.every)
		e.wg.Add(1)
		go func(t task) {
			defer e.wg.Done()
			ticker := time.NewTicker(t.every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					t.fn(ctx)
				}
			}
		}(t)
	}
}

func (e *Engine) publish(ctx context.Context, channel string, payload any) {
	if e.deps.Notifier == nil {
		return
	}
	if err := e.deps.Notifier.Publish(ctx, channel, payload); err != nil {
		slog.Debug("live: notify failed", "channel", channel, "err", err)
	}
}
