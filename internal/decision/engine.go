// Package decision implements the order decision engine: position sizing,
// the ordered gating rules, the session order log and the ledger updates
// that follow an accepted order.
package decision

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/robobull/trader/internal/domain"
	"github.com/robobull/trader/internal/ports"
	"github.com/robobull/trader/internal/stocks"
)

// Reject is why an order request was refused. Rejections are reported,
// never treated as errors.
type Reject string

const (
	RejectNone             Reject = ""
	RejectHalted           Reject = "trading halted"
	RejectQtyBelowOne      Reject = "quantity below one share"
	RejectStockCap         Reject = "stock cap reached"
	RejectAlreadyHeld      Reject = "position already open"
	RejectCooldown         Reject = "inside cooldown window"
	RejectRetentionFloor   Reject = "capital retention floor"
	RejectInsufficientCash Reject = "insufficient cash"
)

type lastKey struct {
	symbol string
	side   domain.Side
}

// Engine turns threshold-crossing signals into orders. One engine per
// session. The ledger and order log share one mutex; per-symbol state is
// locked by the caller (bar pipeline) or by Queue itself.
type Engine struct {
	settings domain.Settings
	session  *domain.Session
	storage  ports.Storage
	notifier ports.Notifier

	symbolCount atomic.Int64

	mu        sync.Mutex
	portfolio *domain.Portfolio
	orders    []domain.Order
	last      map[lastKey]int     // index of the most recent order per symbol+side
	filled    map[string]struct{} // order ids with a broker fill applied
}

// New creates a decision engine over the given ledger. Storage and
// notifier are optional.
func New(settings domain.Settings, session *domain.Session, portfolio *domain.Portfolio, storage ports.Storage, notifier ports.Notifier) *Engine {
	e := &Engine{
		settings:  settings.Normalized(),
		session:   session,
		portfolio: portfolio,
		storage:   storage,
		notifier:  notifier,
		last:      make(map[lastKey]int),
		filled:    make(map[string]struct{}),
	}
	e.symbolCount.Store(1)
	return e
}

// SetSymbolCount updates the subscribed-symbol count used by sizing.
// Called by the subscription refresh task.
func (e *Engine) SetSymbolCount(n int) {
	if n < 1 {
		n = 1
	}
	e.symbolCount.Store(int64(n))
}

// SymbolCount returns the sizing divisor currently in effect.
func (e *Engine) SymbolCount() int {
	return int(e.symbolCount.Load())
}

// Decide evaluates one order request. The caller holds the symbol lock.
// Evaluation order of the gates is fixed; the first failing gate rejects.
func (e *Engine) Decide(ctx context.Context, st *stocks.State, side domain.Side, price float64, at time.Time) {
	e.mu.Lock()
	qty, reject := e.gate(st.Symbol, side, price, at)
	if reject != RejectNone {
		e.mu.Unlock()
		slog.Debug("decision: order rejected",
			"symbol", st.Symbol, "side", side, "reason", string(reject))
		if e.settings.ResetSignals {
			st.ClearSignals()
		}
		return
	}
	order := e.accept(st.Symbol, side, qty, price, at)
	positions := append([]domain.Position(nil), e.portfolio.Positions...)
	e.mu.Unlock()

	st.LastOrderSide = side
	st.ClearSignals()

	e.record(ctx, order, positions)
}

// Queue records a forced order, bypassing every gate except the held
// quantity. The risk check uses it to liquidate positions outside their
// ROI bounds, which must work even after trading is halted. Returns
// whether an order was created.
func (e *Engine) Queue(ctx context.Context, st *stocks.State, side domain.Side, price float64, at time.Time) bool {
	st.Lock()
	defer st.Unlock()

	e.mu.Lock()
	qty := e.portfolio.HeldQty(st.Symbol)
	if side == domain.SideBuy || qty < 1 || price <= 0 {
		e.mu.Unlock()
		return false
	}
	order := e.accept(st.Symbol, side, qty, price, at)
	positions := append([]domain.Position(nil), e.portfolio.Positions...)
	e.mu.Unlock()

	st.LastOrderSide = side
	st.ClearSignals()

	e.record(ctx, order, positions)
	return true
}

// gate runs the seven ordered checks and sizes the order. Caller holds mu.
func (e *Engine) gate(symbol string, side domain.Side, price float64, at time.Time) (float64, Reject) {
	if e.session.Halted() {
		return 0, RejectHalted
	}

	var qty float64
	if side == domain.SideBuy {
		qty = e.buyQty(price)
	} else {
		qty = e.portfolio.HeldQty(symbol)
	}
	if qty < 1 {
		return 0, RejectQtyBelowOne
	}
	cost := qty * price

	if side == domain.SideBuy && e.portfolio.OpenPositions() >= e.settings.StockCap {
		return 0, RejectStockCap
	}
	if !e.settings.IsBacktest && side == domain.SideBuy && e.portfolio.HeldQty(symbol) > 0 {
		return 0, RejectAlreadyHeld
	}
	if !e.settings.IsBacktest && side == domain.SideSell && e.inCooldown(symbol, at) {
		return 0, RejectCooldown
	}
	if !e.settings.IsBacktest && side == domain.SideBuy &&
		e.portfolio.Cash-cost < e.settings.CapitalRetention {
		return 0, RejectRetentionFloor
	}
	if side == domain.SideBuy && cost > e.portfolio.Cash {
		return 0, RejectInsufficientCash
	}
	return qty, RejectNone
}

// buyQty sizes a new buy: cash times the per-symbol capital slice times
// the risk allocation, where risk is inflated as open positions pile up,
// capped at the configured fraction of starting capital. Caller holds mu.
func (e *Engine) buyQty(price float64) float64 {
	if price <= 0 {
		return 0
	}
	risk := e.settings.RiskAllocation
	if open := float64(e.portfolio.OpenPositions()); risk > 0 && open/risk > risk {
		risk = open / risk
	}
	pct := e.settings.CapitalAllowance / float64(e.symbolCount.Load()) * risk

	amount := e.portfolio.Cash * pct
	if maxAmount := e.portfolio.StartingCapital * e.settings.BuyCapFraction; amount > maxAmount {
		amount = maxAmount
	}
	return math.Floor(amount / price)
}

// inCooldown reports whether the most recent order for the symbol is
// closer than the configured minimum minutes. Caller holds mu.
func (e *Engine) inCooldown(symbol string, at time.Time) bool {
	if e.settings.CooldownMinutes <= 0 {
		return false
	}
	last := e.newestOrder(symbol)
	if last == nil {
		return false
	}
	return at.Sub(last.DateTime).Minutes() < e.settings.CooldownMinutes
}

// accept applies the fill to the ledger and appends the order to the log.
// Caller holds mu.
func (e *Engine) accept(symbol string, side domain.Side, qty, price float64, at time.Time) domain.Order {
	balanceBefore := e.portfolio.Cash
	amount := qty * price

	e.portfolio.ApplyFill(side, qty, price)
	e.portfolio.ApplyPosition(symbol, side, qty, price, balanceBefore)

	order := domain.Order{
		ID:            uuid.NewString(),
		SessionID:     e.session.ID,
		Symbol:        symbol,
		Side:          side,
		Qty:           qty,
		Price:         price,
		Amount:        amount,
		BalanceAtBuy:  balanceBefore,
		BalanceAtSell: e.portfolio.Cash,
		ROI:           domain.OrderROI(side, amount, e.lastOrder(symbol, domain.SideBuy)),
		ClientOrderID: uuid.NewString(),
		Processed:     e.settings.IsBacktest, // live orders wait for the flush task
		DateTime:      at,
		CreatedAt:     time.Now().UTC(),
	}
	e.orders = append(e.orders, order)
	e.last[lastKey{symbol, side}] = len(e.orders) - 1

	slog.Info("decision: order accepted",
		"symbol", symbol, "side", side, "qty", qty, "price", price, "roi", order.ROI)
	return order
}

// lastOrder returns the most recent order for a symbol and side, nil if
// none. The pointer is only valid while mu is held.
func (e *Engine) lastOrder(symbol string, side domain.Side) *domain.Order {
	i, ok := e.last[lastKey{symbol, side}]
	if !ok {
		return nil
	}
	return &e.orders[i]
}

// newestOrder returns the most recent order for a symbol on either side.
func (e *Engine) newestOrder(symbol string) *domain.Order {
	buy := e.lastOrder(symbol, domain.SideBuy)
	sell := e.lastOrder(symbol, domain.SideSell)
	switch {
	case buy == nil:
		return sell
	case sell == nil:
		return buy
	case sell.DateTime.After(buy.DateTime):
		return sell
	}
	return buy
}

// record persists and announces an accepted order. Runs outside mu.
func (e *Engine) record(ctx context.Context, order domain.Order, positions []domain.Position) {
	if e.storage != nil {
		if err := e.storage.CreateOrder(ctx, order); err != nil {
			slog.Warn("decision: persist order failed", "id", order.ID, "err", err)
		}
	}
	if e.notifier != nil {
		if err := e.notifier.Publish(ctx, ports.ChannelOrders, order); err != nil {
			slog.Debug("decision: notify order failed", "err", err)
		}
		if err := e.notifier.Publish(ctx, ports.ChannelPositions, positions); err != nil {
			slog.Debug("decision: notify positions failed", "err", err)
		}
	}
}

// MarkSubmitted records the broker's acknowledgment of a queued live
// order: the broker order id replaces the client ref so later fill syncs
// can match, and immediate fills are applied to the log.
func (e *Engine) MarkSubmitted(ctx context.Context, orderID string, bo domain.BrokerOrder) {
	e.mu.Lock()
	var updated *domain.Order
	for i := range e.orders {
		if e.orders[i].ID != orderID {
			continue
		}
		e.orders[i].ClientOrderID = bo.ID
		e.orders[i].Processed = true
		if bo.Filled() {
			e.applyFillLocked(&e.orders[i], bo)
		}
		updated = &e.orders[i]
		break
	}
	var copyOut domain.Order
	if updated != nil {
		copyOut = *updated
	}
	e.mu.Unlock()

	if updated == nil {
		return
	}
	e.update(ctx, copyOut)
}

// SyncFills merges broker-reported closed orders into the log by broker
// order id, replacing decision-time qty/price with the actual fill and
// recomputing ROI. The ledger is not touched: cash and positions were
// already moved at decision time.
func (e *Engine) SyncFills(ctx context.Context, brokerOrders []domain.BrokerOrder) {
	var changed []domain.Order

	e.mu.Lock()
	for _, bo := range brokerOrders {
		for i := range e.orders {
			if e.orders[i].ClientOrderID != bo.ID {
				continue
			}
			_, hasFill := e.filled[e.orders[i].ID]
			switch {
			case bo.Filled():
				e.applyFillLocked(&e.orders[i], bo)
			case hasFill:
				// a fill already landed; a stale terminal status cannot undo it
				continue
			case bo.Status == "canceled" || bo.Status == "expired" || bo.Status == "rejected":
				e.orders[i].Cancelled = true
			default:
				continue
			}
			changed = append(changed, e.orders[i])
			break
		}
	}
	e.mu.Unlock()

	for _, order := range changed {
		e.update(ctx, order)
	}
}

// applyFillLocked rewrites an order from its broker fill. Caller holds mu.
func (e *Engine) applyFillLocked(order *domain.Order, bo domain.BrokerOrder) {
	e.filled[order.ID] = struct{}{}
	order.Qty = bo.FilledQty
	order.Price = bo.FilledAvgPrice
	order.Amount = bo.FilledQty * bo.FilledAvgPrice
	if order.Side == domain.SideSell {
		lastBuy := e.lastOrder(order.Symbol, domain.SideBuy)
		if lastBuy != nil && lastBuy != order {
			order.ROI = domain.OrderROI(order.Side, order.Amount, lastBuy)
		}
	}
	order.Processed = true
}

// Cancel withdraws a queued buy that never reached the broker: the log
// entry is closed out and the decision-time cash and position moves are
// reversed, so the symbol can be bought again and sizing stays honest.
// Returns whether an open order was found.
func (e *Engine) Cancel(ctx context.Context, orderID string) bool {
	e.mu.Lock()
	var cancelled *domain.Order
	for i := range e.orders {
		o := &e.orders[i]
		if o.ID != orderID || o.Processed || o.Cancelled {
			continue
		}
		o.Cancelled = true
		o.Processed = true
		if o.Side == domain.SideBuy {
			e.portfolio.ApplyFill(domain.SideSell, o.Qty, o.Price)
			e.portfolio.ApplyPosition(o.Symbol, domain.SideSell, o.Qty, o.Price, e.portfolio.Cash)
		}
		cancelled = o
		break
	}
	var copyOut domain.Order
	if cancelled != nil {
		copyOut = *cancelled
	}
	e.mu.Unlock()

	if cancelled == nil {
		return false
	}
	e.update(ctx, copyOut)
	return true
}

func (e *Engine) update(ctx context.Context, order domain.Order) {
	if e.storage != nil {
		if err := e.storage.UpdateOrder(ctx, order); err != nil {
			slog.Warn("decision: update order failed", "id", order.ID, "err", err)
		}
	}
	if e.notifier != nil {
		if err := e.notifier.Publish(ctx, ports.ChannelOrders, order); err != nil {
			slog.Debug("decision: notify order failed", "err", err)
		}
	}
}

// Orders returns a copy of the session's order log, oldest first.
func (e *Engine) Orders() []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Order(nil), e.orders...)
}

// OrderCount returns how many orders the session has accepted.
func (e *Engine) OrderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.orders)
}

// LastOrder returns a copy of the most recent order for a symbol and
// side. The risk check uses it to suppress forced sells right after a
// fresh order.
func (e *Engine) LastOrder(symbol string, side domain.Side) (domain.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o := e.lastOrder(symbol, side)
	if o == nil {
		return domain.Order{}, false
	}
	return *o, true
}

// WithPortfolio runs fn with the ledger under the engine's lock. The risk
// and reconcile passes use it so their read-then-write cycles cannot
// interleave with order fills.
func (e *Engine) WithPortfolio(fn func(p *domain.Portfolio)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.portfolio)
}
